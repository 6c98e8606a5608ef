package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/example/chat-broker/modules/api"
	"github.com/example/chat-broker/modules/broker"
	"github.com/example/chat-broker/modules/directory"
	"github.com/example/chat-broker/modules/identity"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	defaultPort            = "3000"
)

type config struct {
	shutdownTimeout time.Duration
	port            string
}

func loadConfig() config {
	cfg := config{shutdownTimeout: defaultShutdownTimeout, port: defaultPort}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.shutdownTimeout = d
		} else {
			log.Printf("Ignoring invalid SHUTDOWN_TIMEOUT %q", v)
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.port = v
	}
	return cfg
}

// newApplication registers the chat modules. The api module depends on
// directory and identity through the service container; the broker is
// shared by pointer since sockets are long-lived values, not requests.
func newApplication(cfg config) (mono.MonoApplication, error) {
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		return nil, err
	}

	brokerModule := broker.NewModule()
	apiModule := api.NewModule()
	apiModule.SetBroker(brokerModule.Broker())

	for _, module := range []mono.Module{directory.NewModule(), identity.NewModule(), brokerModule, apiModule} {
		if err := app.Register(module); err != nil {
			return nil, fmt.Errorf("register %s: %w", module.Name(), err)
		}
	}
	return app, nil
}

func main() {
	cfg := loadConfig()

	app, err := newApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
	log.Printf("chat broker listening on :%s (HTTP under /chat/api/v1, CSRF tokens at /chat/csrf-token)", cfg.port)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("chat broker exited with code %d", exitCode)
	os.Exit(exitCode)
}
