package api

import (
	"errors"
	"fmt"
	"time"

	domain "github.com/example/chat-broker/domain/chat"
	"github.com/example/chat-broker/modules/broker"
	"github.com/example/chat-broker/modules/directory"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

const (
	accountRateLimit  = 30
	accountRateWindow = time.Minute
)

var errInvalidLogin = errors.New("invalid login")

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes() {
	m.app.Get("/health", m.healthHandler)
	m.app.Get("/chat/csrf-token", m.csrfToken)

	v1 := m.app.Group("/chat/api/v1")
	m.setupWebsocketRoutes(v1)

	limit := m.accountLimiter()
	csrf := m.requireCSRF()
	auth := m.requireBearer()

	v1.Post("/user/create", limit, csrf, m.createUser)
	v1.Post("/user/login", limit, csrf, m.login)
	v1.Post("/room/create", limit, csrf, auth, m.createRoom)
	v1.Get("/room/:room_id", csrf, auth, m.getRoom)
	v1.Put("/room/:room_id/join", limit, csrf, auth, m.joinRoom)
	v1.Get("/room/:room_id/members", csrf, auth, m.roomMembers)
}

// accountLimiter limits account mutations per client IP. Counters live in
// Redis when configured and in memory otherwise.
func (m *APIModule) accountLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        accountRateLimit,
		Expiration: accountRateWindow,
		Storage:    m.limits,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{
				Error:   "rate_limited",
				Message: "Too many requests",
			})
		},
	})
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	details := map[string]any{"module": "api"}
	if m.broker != nil {
		details["connections"] = m.broker.Registry().ConnectionCount()
		details["groups"] = m.broker.Registry().GroupCount()
	}
	return c.JSON(HealthResponse{
		Status:  "healthy",
		Details: details,
	})
}

// csrfToken handles GET /chat/csrf-token.
func (m *APIModule) csrfToken(c *fiber.Ctx) error {
	token, err := m.identity.IssueCSRF(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(CSRFResponse{CSRFToken: token})
}

// createUser handles POST /chat/api/v1/user/create.
func (m *APIModule) createUser(c *fiber.Ctx) error {
	var req CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_request", "Invalid request body")
	}

	reason, err := m.validator.ValidateForm(c.UserContext(), broker.FormCreateUser, broker.Form{UserName: req.UserName})
	if err != nil {
		return err
	}
	if reason != "" {
		return badRequest(c, "validation_error", reason)
	}

	resp, err := m.directory.CreateUser(c.UserContext(), directory.CreateUserRequest{UserName: req.UserName})
	if err != nil {
		return err
	}
	if !resp.Created {
		return badRequest(c, "validation_error", fmt.Sprintf("User name %s is already taken", req.UserName))
	}

	return c.Status(fiber.StatusCreated).JSON(CreateUserResponse{
		UserName: resp.User.Name,
		UserHash: directory.UserHash(resp.Secret, resp.User.ID),
	})
}

// login handles POST /chat/api/v1/user/login. Every failure is the same 401.
func (m *APIModule) login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return m.reject(c, "login", unauthorized(err))
	}

	secret, userID, err := directory.ParseUserHash(req.UserHash)
	if err != nil {
		return m.reject(c, "login", unauthorized(err))
	}
	verified, err := m.directory.VerifyUser(c.UserContext(), directory.VerifyUserRequest{
		UserID: userID,
		Secret: secret,
	})
	if err != nil {
		return m.reject(c, "login", unauthorized(err))
	}
	if !verified.Valid {
		return m.reject(c, "login", unauthorized(errInvalidLogin))
	}

	id := domain.Identity{UserID: verified.User.ID, UserName: verified.User.Name}
	token, err := m.identity.IssueToken(c.UserContext(), id)
	if err != nil {
		return m.reject(c, "login", unauthorized(err))
	}

	return c.JSON(LoginResponse{
		UserID:    id.UserID,
		UserName:  id.UserName,
		UserToken: token,
	})
}

// createRoom handles POST /chat/api/v1/room/create. The owner joins the new
// room automatically.
func (m *APIModule) createRoom(c *fiber.Ctx) error {
	caller := callerIdentity(c)

	var req CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_request", "Invalid request body")
	}

	reason, err := m.validator.ValidateForm(c.UserContext(), broker.FormCreateRoom, broker.Form{
		RoomName: req.RoomName,
		UserID:   caller.UserID,
	})
	if err != nil {
		return err
	}
	if reason != "" {
		return badRequest(c, "validation_error", reason)
	}

	resp, err := m.directory.CreateRoom(c.UserContext(), directory.CreateRoomRequest{
		RoomName: req.RoomName,
		OwnerID:  caller.UserID,
	})
	if err != nil {
		return err
	}
	if !resp.Created {
		return badRequest(c, "validation_error", fmt.Sprintf("You already own a room named %s", req.RoomName))
	}

	return c.Status(fiber.StatusCreated).JSON(RoomResponse{
		RoomID:   resp.Room.ID,
		RoomName: resp.Room.Name,
	})
}

// getRoom handles GET /chat/api/v1/room/:room_id.
func (m *APIModule) getRoom(c *fiber.Ctx) error {
	resp, err := m.directory.LookupRoom(c.UserContext(), directory.LookupRoomRequest{RoomID: c.Params("room_id")})
	if err != nil {
		return err
	}
	if !resp.Found {
		return roomNotFound(c)
	}
	return c.JSON(RoomResponse{
		RoomID:   resp.Room.ID,
		RoomName: resp.Room.Name,
		OwnerID:  resp.Room.OwnerID,
	})
}

// joinRoom handles PUT /chat/api/v1/room/:room_id/join. Joining a room
// twice succeeds.
func (m *APIModule) joinRoom(c *fiber.Ctx) error {
	roomID := c.Params("room_id")
	room, err := m.directory.LookupRoom(c.UserContext(), directory.LookupRoomRequest{RoomID: roomID})
	if err != nil {
		return err
	}
	if !room.Found {
		return roomNotFound(c)
	}

	joined, err := m.directory.JoinRoom(c.UserContext(), directory.JoinRoomRequest{
		RoomID: roomID,
		UserID: callerIdentity(c).UserID,
	})
	if err != nil {
		return err
	}
	if !joined.Found {
		return roomNotFound(c)
	}

	return c.JSON(RoomResponse{
		RoomID:   room.Room.ID,
		RoomName: room.Room.Name,
	})
}

// roomMembers handles GET /chat/api/v1/room/:room_id/members.
func (m *APIModule) roomMembers(c *fiber.Ctx) error {
	resp, err := m.directory.RoomMembers(c.UserContext(), directory.RoomMembersRequest{RoomID: c.Params("room_id")})
	if err != nil {
		return err
	}
	if !resp.Found {
		return roomNotFound(c)
	}

	members := make([]MemberResponse, 0, len(resp.Members))
	for _, member := range resp.Members {
		members = append(members, MemberResponse{UserID: member.UserID, UserName: member.UserName})
	}
	return c.JSON(members)
}

func badRequest(c *fiber.Ctx, code, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:   code,
		Message: message,
	})
}

func roomNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
		Error:   "not_found",
		Message: "Room not found",
	})
}
