package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"golang.org/x/sync/errgroup"
)

// shutdownParallelism bounds the connections disconnected at once during Shutdown.
const shutdownParallelism = 32

var (
	// ErrNotStarted is returned when serving before Start.
	ErrNotStarted = errors.New("broker not started")
	// ErrShuttingDown is returned when serving after Shutdown began.
	ErrShuttingDown = errors.New("broker is shutting down")
)

// Broker admits connections into topology groups and handles their frames.
type Broker struct {
	registry  *Registry
	router    *Router
	presence  *Presence
	history   *History
	validator *Validator
	logger    *slog.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
}

// NewBroker creates a Broker with an empty registry. Start must be called
// before connections are served.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		registry: NewRegistry(),
		logger:   logger,
	}
}

// Start wires the routing engines to the directory. A nil cache disables
// history caching.
func (b *Broker) Start(dir Directory, cache PageCache) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.router = NewRouter(b.registry, dir, b.logger)
	b.presence = NewPresence(b.registry, b.router, b.logger)
	b.router.onFailure = b.presence.Disconnect
	b.history = NewHistory(dir, cache, b.logger)
	b.router.onPersisted = b.history.Invalidate
	b.validator = NewValidator(dir)
	b.started = true
	b.closed = false
}

// SetPublisher sets the MemberOffline event publisher. Call after Start.
func (b *Broker) SetPublisher(publish OfflinePublisher) {
	b.presence.SetPublisher(publish)
}

// Registry returns the connection registry.
func (b *Broker) Registry() *Registry {
	return b.registry
}

// Validator returns the form validator. It is nil before Start.
func (b *Broker) Validator() *Validator {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.validator
}

// InvalidateHistory drops the cached history pages of a room.
func (b *Broker) InvalidateHistory(ctx context.Context, roomID string) error {
	b.mu.RLock()
	history := b.history
	b.mu.RUnlock()
	if history == nil {
		return nil
	}
	return history.Invalidate(ctx, roomID)
}

// Serve admits c into key and handles its frames until the client goes
// away or the broker shuts down. The connection is always closed on return.
func (b *Broker) Serve(ctx context.Context, c *Conn, key GroupKey) error {
	if err := b.admit(c, key); err != nil {
		c.Close()
		return err
	}
	c.Start(func(c *Conn, err error) {
		b.logger.Debug("connection write failed", "conn", c.ID, "endpoint", c.Endpoint.Name, "error", err)
		b.presence.Disconnect(ctx, c)
	})
	defer func() {
		b.presence.Disconnect(ctx, c)
		c.Wait()
	}()

	for {
		data, err := c.Read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Debug("connection read failed", "conn", c.ID, "endpoint", c.Endpoint.Name, "error", err)
			}
			return nil
		}
		if c.Left() {
			return nil
		}
		if err := b.handle(ctx, c, data); err != nil {
			b.logger.Debug("reply failed", "conn", c.ID, "endpoint", c.Endpoint.Name, "error", err)
			return nil
		}
	}
}

func (b *Broker) admit(c *Conn, key GroupKey) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.started {
		return ErrNotStarted
	}
	if b.closed {
		return ErrShuttingDown
	}
	return b.registry.Join(key, c)
}

func (b *Broker) handle(ctx context.Context, c *Conn, data []byte) error {
	switch c.Endpoint.Mode {
	case ModeHistory:
		page, err := b.history.Page(ctx, c.RoomID, data)
		if err != nil {
			return b.replyError(c, err)
		}
		return b.reply(c, page)
	case ModeValidation:
		result, err := b.validator.Validate(ctx, data)
		if err != nil {
			return b.replyError(c, err)
		}
		return b.reply(c, result)
	default:
		return b.router.Route(ctx, c, data)
	}
}

func (b *Broker) reply(c *Conn, v any) error {
	data, err := encodeJSON(v)
	if err != nil {
		b.logger.Error("failed to encode reply", "conn", c.ID, "error", err)
		return c.Reply(errorFrame(ErrorCodeServer, genericServerError))
	}
	return c.Reply(data)
}

func (b *Broker) replyError(c *Conn, err error) error {
	var invalidErr *InvalidRequestError
	if errors.As(err, &invalidErr) {
		return c.Reply(errorFrame(ErrorCodeValidation, invalidErr.Reason))
	}
	b.logger.Error("request failed", "conn", c.ID, "endpoint", c.Endpoint.Name, "error", err)
	return c.Reply(errorFrame(ErrorCodeServer, genericServerError))
}

// Shutdown refuses new connections and runs every live connection through
// the disconnect path. It returns the number of connections closed.
func (b *Broker) Shutdown(ctx context.Context) int {
	b.mu.Lock()
	b.closed = true
	presence := b.presence
	b.mu.Unlock()

	if presence == nil {
		return 0
	}
	conns := b.registry.Connections()
	var g errgroup.Group
	g.SetLimit(shutdownParallelism)
	for _, c := range conns {
		g.Go(func() error {
			presence.Disconnect(ctx, c)
			return nil
		})
	}
	_ = g.Wait()
	return len(conns)
}
