package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	domain "github.com/example/chat-broker/domain/chat"
	"github.com/example/chat-broker/modules/broker"
	"github.com/example/chat-broker/modules/directory"
	"github.com/example/chat-broker/modules/identity"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const (
	wampProtocol = "wamp"
	csrfPrefix   = "csrf"
	bearerPrefix = "bearer"

	// handshakeKey stores the accepted *handshake in the request locals.
	handshakeKey = "handshake"
	// identityKey stores the caller's domain.Identity in the request locals.
	identityKey = "identity"
)

// rejection is a handshake or request refusal with its HTTP rendering.
type rejection struct {
	status  int
	code    string
	message string
	cause   error
}

func (r *rejection) Error() string {
	if r.cause == nil {
		return r.message
	}
	return fmt.Sprintf("%s: %v", r.message, r.cause)
}

func (r *rejection) Unwrap() error {
	return r.cause
}

func unauthorized(cause error) error {
	return &rejection{
		status:  fiber.StatusUnauthorized,
		code:    "unauthorized",
		message: "Unauthorized",
		cause:   cause,
	}
}

func notFound(message string, cause error) error {
	return &rejection{
		status:  fiber.StatusNotFound,
		code:    "not_found",
		message: message,
		cause:   cause,
	}
}

var (
	errMissingCSRF   = errors.New("missing csrf token")
	errMissingBearer = errors.New("missing bearer token")
)

// handshake accumulates what the stages learn about a connection attempt.
type handshake struct {
	protocols    []string
	bearer       string
	identity     domain.Identity
	roomID       string
	interlocutor int64
}

// stage is one named step of the handshake pipeline. A non-nil error stops
// the pipeline; a *rejection is rendered as is and anything else as a 500.
type stage struct {
	name string
	run  func(c *fiber.Ctx, h *handshake) error
}

// handshakeStages builds the pipeline for ep: credentials first, then the
// resource stages the route needs.
func (m *APIModule) handshakeStages(ep broker.Endpoint, resources ...stage) []stage {
	stages := []stage{
		{name: "subprotocols", run: m.subprotocolsStage},
		{name: "csrf", run: m.csrfStage},
	}
	if ep.RequiresIdentity {
		stages = append(stages,
			stage{name: "bearer", run: m.bearerStage},
			stage{name: "identity", run: m.identityStage},
		)
	}
	return append(stages, resources...)
}

// upgrade returns a middleware that runs the handshake pipeline before the
// websocket upgrade.
func (m *APIModule) upgrade(ep broker.Endpoint, resources ...stage) fiber.Handler {
	stages := m.handshakeStages(ep, resources...)
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		h := &handshake{}
		for _, s := range stages {
			if err := s.run(c, h); err != nil {
				return m.reject(c, s.name, err)
			}
		}
		c.Locals(handshakeKey, h)
		return c.Next()
	}
}

// reject renders err. Rejection causes are logged, never sent.
func (m *APIModule) reject(c *fiber.Ctx, stage string, err error) error {
	var rej *rejection
	if errors.As(err, &rej) {
		m.logger.Debug("request rejected", "stage", stage, "path", c.Path(), "status", rej.status, "error", err)
		return c.Status(rej.status).JSON(ErrorResponse{
			Error:   rej.code,
			Message: rej.message,
		})
	}
	m.logger.Error("request failed", "stage", stage, "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error:   "server_error",
		Message: "Internal Server Error",
	})
}

func (m *APIModule) subprotocolsStage(c *fiber.Ctx, h *handshake) error {
	h.protocols = splitProtocols(c.Get("Sec-WebSocket-Protocol"))
	return nil
}

func (m *APIModule) csrfStage(c *fiber.Ctx, h *handshake) error {
	entry, ok := findProtocol(h.protocols, csrfPrefix)
	if !ok {
		return unauthorized(errMissingCSRF)
	}
	return m.checkCSRF(c, entry[len(csrfPrefix):])
}

func (m *APIModule) bearerStage(_ *fiber.Ctx, h *handshake) error {
	entry, _ := findProtocol(h.protocols, bearerPrefix)
	h.bearer = parseBearer(entry)
	return nil
}

func (m *APIModule) identityStage(c *fiber.Ctx, h *handshake) error {
	id, err := m.authenticate(c, h.bearer)
	if err != nil {
		return err
	}
	h.identity = id
	return nil
}

func (m *APIModule) roomStage(c *fiber.Ctx, h *handshake) error {
	roomID := c.Params("room_id")
	resp, err := m.directory.LookupRoom(c.UserContext(), directory.LookupRoomRequest{RoomID: roomID})
	if err != nil {
		return err
	}
	if !resp.Found {
		return notFound("Room not found", fmt.Errorf("room %q", roomID))
	}
	h.roomID = resp.Room.ID
	return nil
}

func (m *APIModule) interlocutorStage(c *fiber.Ctx, h *handshake) error {
	raw := c.Params("interlocutor_id")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return notFound("User not found", fmt.Errorf("malformed interlocutor %q", raw))
	}
	resp, err := m.directory.LookupUser(c.UserContext(), directory.LookupUserRequest{UserID: userID})
	if err != nil {
		return err
	}
	if !resp.Found {
		return notFound("User not found", fmt.Errorf("interlocutor %d", userID))
	}
	h.interlocutor = userID
	return nil
}

// checkCSRF validates an anti-forgery token with the identity service.
func (m *APIModule) checkCSRF(c *fiber.Ctx, token string) error {
	if token == "" {
		return unauthorized(errMissingCSRF)
	}
	err := m.identity.ValidateCSRF(c.UserContext(), token)
	if errors.Is(err, identity.ErrRejected) {
		return unauthorized(err)
	}
	return err
}

// authenticate resolves a bearer credential to an identity.
func (m *APIModule) authenticate(c *fiber.Ctx, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, unauthorized(errMissingBearer)
	}
	id, err := m.identity.ValidateToken(c.UserContext(), token)
	if errors.Is(err, identity.ErrRejected) {
		return domain.Identity{}, unauthorized(err)
	}
	if err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}

// requireCSRF guards HTTP routes with the X-CSRF-Token header.
func (m *APIModule) requireCSRF() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := m.checkCSRF(c, c.Get("X-CSRF-Token")); err != nil {
			return m.reject(c, "csrf", err)
		}
		return c.Next()
	}
}

// requireBearer guards HTTP routes with the Authorization header and stores
// the caller's identity in the request locals.
func (m *APIModule) requireBearer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := m.authenticate(c, parseBearer(c.Get(fiber.HeaderAuthorization)))
		if err != nil {
			return m.reject(c, "identity", err)
		}
		c.Locals(identityKey, id)
		return c.Next()
	}
}

// callerIdentity returns the identity stored by requireBearer.
func callerIdentity(c *fiber.Ctx) domain.Identity {
	id, _ := c.Locals(identityKey).(domain.Identity)
	return id
}

// parseBearer extracts the credential from "Bearer <token>" or the
// "Bearer<token>" subprotocol form. It never fails: anything too short
// yields the empty credential.
func parseBearer(value string) string {
	value = strings.TrimSpace(value)
	if len(value) <= len(bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(value[len(bearerPrefix):])
}

func splitProtocols(header string) []string {
	var protocols []string
	for _, p := range strings.Split(header, ",") {
		if p = strings.TrimSpace(p); p != "" {
			protocols = append(protocols, p)
		}
	}
	return protocols
}

// findProtocol returns the first entry starting with prefix, ignoring case.
func findProtocol(protocols []string, prefix string) (string, bool) {
	for _, p := range protocols {
		if len(p) >= len(prefix) && strings.EqualFold(p[:len(prefix)], prefix) {
			return p, true
		}
	}
	return "", false
}
