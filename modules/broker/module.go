package broker

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/example/chat-broker/events"
	"github.com/example/chat-broker/modules/directory"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/redis/go-redis/v9"
)

const (
	defaultCacheTTL = 30 * time.Second
	cachePrefix     = "chat:history:"
)

// BrokerModule owns the connection registry and the routing engines.
type BrokerModule struct {
	broker    *Broker
	directory Directory
	eventBus  mono.EventBus
	redisAddr string
	cacheTTL  time.Duration
	client    *redis.Client
	cache     *RedisPageCache
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*BrokerModule)(nil)
	_ mono.DependentModule       = (*BrokerModule)(nil)
	_ mono.HealthCheckableModule = (*BrokerModule)(nil)
	_ mono.EventBusAwareModule   = (*BrokerModule)(nil)
	_ mono.EventEmitterModule    = (*BrokerModule)(nil)
	_ mono.EventConsumerModule   = (*BrokerModule)(nil)
)

// NewModule creates a new BrokerModule configured from the environment.
func NewModule() *BrokerModule {
	cacheTTL := defaultCacheTTL
	if v := os.Getenv("HISTORY_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cacheTTL = d
		} else {
			log.Printf("[broker] Ignoring invalid HISTORY_CACHE_TTL=%q", v)
		}
	}
	return &BrokerModule{
		broker:    NewBroker(slog.Default().With("module", "broker")),
		redisAddr: os.Getenv("REDIS_ADDR"),
		cacheTTL:  cacheTTL,
	}
}

// Name returns the module name.
func (m *BrokerModule) Name() string {
	return "broker"
}

// Dependencies returns the list of module dependencies.
func (m *BrokerModule) Dependencies() []string {
	return []string{"directory"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *BrokerModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "directory":
		m.directory = directory.NewDirectoryAdapter(container)
	}
}

// SetEventBus receives the EventBus from the framework.
func (m *BrokerModule) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *BrokerModule) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MemberOfflineV1.ToBase(),
	}
}

// RegisterEventConsumers subscribes to message events to keep the history cache fresh.
func (m *BrokerModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.MessagePersistedV1, m.handleMessagePersisted, m,
	); err != nil {
		return fmt.Errorf("failed to register MessagePersisted consumer: %w", err)
	}
	log.Println("[broker] Registered event consumers: MessagePersisted")
	return nil
}

// Start connects the history cache and starts the broker.
func (m *BrokerModule) Start(ctx context.Context) error {
	if m.directory == nil {
		return fmt.Errorf("directory dependency not set")
	}

	var cache PageCache
	if m.redisAddr != "" {
		m.client = redis.NewClient(&redis.Options{
			Addr:         m.redisAddr,
			PoolSize:     50,
			MinIdleConns: 5,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		if err := m.client.Ping(ctx).Err(); err != nil {
			m.client.Close()
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		m.cache = NewRedisPageCache(m.client, cachePrefix, m.cacheTTL)
		cache = m.cache
		log.Printf("[broker] History cache connected to Redis at %s (TTL: %s)", m.redisAddr, m.cacheTTL)
	} else {
		log.Println("[broker] REDIS_ADDR not set, history cache disabled")
	}

	m.broker.Start(m.directory, cache)
	m.broker.SetPublisher(m.publishOffline)

	log.Println("[broker] Module started")
	return nil
}

// Stop closes every live connection and the Redis client.
func (m *BrokerModule) Stop(ctx context.Context) error {
	closed := m.broker.Shutdown(ctx)
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			log.Printf("[broker] Error closing Redis connection: %v", err)
		}
	}
	log.Printf("[broker] Module stopped - %d connections were closed", closed)
	return nil
}

// Health returns the health status.
func (m *BrokerModule) Health(ctx context.Context) mono.HealthStatus {
	registry := m.broker.Registry()
	details := map[string]any{
		"connections": registry.ConnectionCount(),
		"groups":      registry.GroupCount(),
	}
	if m.cache == nil {
		return mono.HealthStatus{Healthy: true, Message: "operational", Details: details}
	}

	details["history_cache"] = m.cache.Stats()
	if err := m.cache.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("redis ping failed: %v", err),
			Details: details,
		}
	}
	return mono.HealthStatus{Healthy: true, Message: "operational", Details: details}
}

// Broker returns the broker for the API module to serve connections with.
func (m *BrokerModule) Broker() *Broker {
	return m.broker
}

func (m *BrokerModule) publishOffline(event events.MemberOfflineEvent) error {
	if m.eventBus == nil {
		return nil
	}
	return events.MemberOfflineV1.Publish(m.eventBus, event, nil)
}

func (m *BrokerModule) handleMessagePersisted(ctx context.Context, event events.MessagePersistedEvent, _ *mono.Msg) error {
	if err := m.broker.InvalidateHistory(ctx, event.RoomID); err != nil {
		log.Printf("[broker] Failed to invalidate history cache for room %s: %v", event.RoomID, err)
	}
	return nil
}
