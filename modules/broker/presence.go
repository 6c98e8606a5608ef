package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/chat-broker/events"
)

// OfflinePublisher publishes a MemberOffline event.
type OfflinePublisher func(event events.MemberOfflineEvent) error

// Presence runs the disconnect path and announces departed members.
type Presence struct {
	registry *Registry
	router   *Router
	publish  OfflinePublisher
	now      func() time.Time
	logger   *slog.Logger
}

// NewPresence creates a Presence notifier.
func NewPresence(registry *Registry, router *Router, logger *slog.Logger) *Presence {
	return &Presence{
		registry: registry,
		router:   router,
		now:      time.Now,
		logger:   logger,
	}
}

// SetPublisher sets the MemberOffline event publisher.
func (p *Presence) SetPublisher(publish OfflinePublisher) {
	p.publish = publish
}

// Disconnect removes c from its group, announces it as Offline on presence
// groups and closes the socket. Only the first call for a connection
// announces anything.
func (p *Presence) Disconnect(ctx context.Context, c *Conn) {
	key, removed := p.registry.Leave(c)
	if removed && c.Endpoint.Presence && c.Endpoint.Topology == TopologyRoom {
		p.announceOffline(ctx, key, c)
	}
	if err := c.Close(); err != nil {
		p.logger.Debug("close failed", "conn", c.ID, "error", err)
	}
}

func (p *Presence) announceOffline(ctx context.Context, key GroupKey, c *Conn) {
	data, err := encodeJSON(StatusMessage{
		UserID:     c.Identity.UserID,
		UserName:   c.Identity.UserName,
		UserStatus: StatusOffline,
	})
	if err != nil {
		p.logger.Error("failed to encode offline status", "conn", c.ID, "error", err)
		return
	}
	p.router.Deliver(ctx, key, data)

	if p.publish == nil {
		return
	}
	roomID, _ := key.RoomID()
	event := events.MemberOfflineEvent{
		RoomID:    roomID,
		UserID:    c.Identity.UserID,
		UserName:  c.Identity.UserName,
		Timestamp: p.now().UTC(),
	}
	if err := p.publish(event); err != nil {
		p.logger.Warn("failed to publish MemberOffline event", "room", roomID, "error", err)
	}
}
