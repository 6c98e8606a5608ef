package api

import (
	"context"
	"errors"

	"github.com/example/chat-broker/modules/broker"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// setupWebsocketRoutes registers one upgrade route per broker endpoint.
func (m *APIModule) setupWebsocketRoutes(v1 fiber.Router) {
	room := stage{name: "room", run: m.roomStage}
	interlocutor := stage{name: "interlocutor", run: m.interlocutorStage}

	for _, ep := range []broker.Endpoint{broker.ChatMessage, broker.MemberStatus, broker.ClientSync, broker.ChatHistory} {
		v1.Get("/room/:room_id/"+ep.Name, m.upgrade(ep, room), m.websocketHandler(ep))
	}
	v1.Get("/:interlocutor_id/"+broker.DirectMessage.Name,
		m.upgrade(broker.DirectMessage, interlocutor), m.websocketHandler(broker.DirectMessage))
	v1.Get("/"+broker.FormValidation.Name,
		m.upgrade(broker.FormValidation), m.websocketHandler(broker.FormValidation))
}

// websocketHandler hands an accepted connection to the broker.
func (m *APIModule) websocketHandler(ep broker.Endpoint) fiber.Handler {
	handler := func(ws *websocket.Conn) {
		h, ok := ws.Locals(handshakeKey).(*handshake)
		if !ok {
			ws.Close()
			return
		}

		conn := broker.NewConn(ws, ep, h.identity)
		conn.RoomID = h.roomID

		err := m.broker.Serve(context.Background(), conn, groupKey(ep, h, conn.ID))
		switch {
		case err == nil:
		case errors.Is(err, broker.ErrShuttingDown), errors.Is(err, broker.ErrNotStarted):
			m.logger.Debug("connection refused", "endpoint", ep.Name, "error", err)
		default:
			m.logger.Warn("connection refused", "endpoint", ep.Name, "user_id", h.identity.UserID, "error", err)
		}
	}
	return websocket.New(handler, websocket.Config{
		Subprotocols: []string{wampProtocol},
	})
}

// groupKey selects the broadcast group of a new connection.
func groupKey(ep broker.Endpoint, h *handshake, connID string) broker.GroupKey {
	switch ep.Topology {
	case broker.TopologyRoom:
		return broker.RoomGroup(ep.Name, h.roomID)
	case broker.TopologyPeer:
		return broker.PeerGroup(ep.Name, h.identity.UserID, h.interlocutor)
	default:
		return broker.SingletonGroup(ep.Name, connID)
	}
}
