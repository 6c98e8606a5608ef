package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	domain "github.com/example/chat-broker/domain/chat"
	"github.com/example/chat-broker/modules/broker"
	"github.com/example/chat-broker/modules/directory"
	"github.com/example/chat-broker/modules/identity"
	"github.com/gofiber/fiber/v2"
)

var errNotImplemented = errors.New("not implemented")

// mockDirectory implements directory.DirectoryPort for testing.
type mockDirectory struct {
	lookupUserFunc     func(ctx context.Context, req directory.LookupUserRequest) (directory.LookupUserResponse, error)
	lookupRoomFunc     func(ctx context.Context, req directory.LookupRoomRequest) (directory.LookupRoomResponse, error)
	roomMembersFunc    func(ctx context.Context, req directory.RoomMembersRequest) (directory.RoomMembersResponse, error)
	persistMessageFunc func(ctx context.Context, req directory.PersistMessageRequest) (directory.PersistMessageResponse, error)
	queryMessagesFunc  func(ctx context.Context, req directory.QueryMessagesRequest) (directory.QueryMessagesResponse, error)
	createUserFunc     func(ctx context.Context, req directory.CreateUserRequest) (directory.CreateUserResponse, error)
	verifyUserFunc     func(ctx context.Context, req directory.VerifyUserRequest) (directory.VerifyUserResponse, error)
	createRoomFunc     func(ctx context.Context, req directory.CreateRoomRequest) (directory.CreateRoomResponse, error)
	joinRoomFunc       func(ctx context.Context, req directory.JoinRoomRequest) (directory.JoinRoomResponse, error)
}

var _ directory.DirectoryPort = (*mockDirectory)(nil)

func (m *mockDirectory) LookupUser(ctx context.Context, req directory.LookupUserRequest) (directory.LookupUserResponse, error) {
	if m.lookupUserFunc != nil {
		return m.lookupUserFunc(ctx, req)
	}
	return directory.LookupUserResponse{}, nil
}

func (m *mockDirectory) LookupRoom(ctx context.Context, req directory.LookupRoomRequest) (directory.LookupRoomResponse, error) {
	if m.lookupRoomFunc != nil {
		return m.lookupRoomFunc(ctx, req)
	}
	return directory.LookupRoomResponse{}, nil
}

func (m *mockDirectory) RoomMembers(ctx context.Context, req directory.RoomMembersRequest) (directory.RoomMembersResponse, error) {
	if m.roomMembersFunc != nil {
		return m.roomMembersFunc(ctx, req)
	}
	return directory.RoomMembersResponse{}, errNotImplemented
}

func (m *mockDirectory) PersistMessage(ctx context.Context, req directory.PersistMessageRequest) (directory.PersistMessageResponse, error) {
	if m.persistMessageFunc != nil {
		return m.persistMessageFunc(ctx, req)
	}
	return directory.PersistMessageResponse{MessageID: 1}, nil
}

func (m *mockDirectory) QueryMessages(ctx context.Context, req directory.QueryMessagesRequest) (directory.QueryMessagesResponse, error) {
	if m.queryMessagesFunc != nil {
		return m.queryMessagesFunc(ctx, req)
	}
	return directory.QueryMessagesResponse{Messages: []domain.HistoryEntry{}}, nil
}

func (m *mockDirectory) CreateUser(ctx context.Context, req directory.CreateUserRequest) (directory.CreateUserResponse, error) {
	if m.createUserFunc != nil {
		return m.createUserFunc(ctx, req)
	}
	return directory.CreateUserResponse{}, errNotImplemented
}

func (m *mockDirectory) VerifyUser(ctx context.Context, req directory.VerifyUserRequest) (directory.VerifyUserResponse, error) {
	if m.verifyUserFunc != nil {
		return m.verifyUserFunc(ctx, req)
	}
	return directory.VerifyUserResponse{}, errNotImplemented
}

func (m *mockDirectory) CreateRoom(ctx context.Context, req directory.CreateRoomRequest) (directory.CreateRoomResponse, error) {
	if m.createRoomFunc != nil {
		return m.createRoomFunc(ctx, req)
	}
	return directory.CreateRoomResponse{}, errNotImplemented
}

func (m *mockDirectory) JoinRoom(ctx context.Context, req directory.JoinRoomRequest) (directory.JoinRoomResponse, error) {
	if m.joinRoomFunc != nil {
		return m.joinRoomFunc(ctx, req)
	}
	return directory.JoinRoomResponse{}, errNotImplemented
}

// mockIdentity implements identity.IdentityPort with a fixed token table.
type mockIdentity struct {
	tokens      map[string]domain.Identity
	csrf        string
	validateErr error
}

var _ identity.IdentityPort = (*mockIdentity)(nil)

func (m *mockIdentity) IssueToken(_ context.Context, id domain.Identity) (string, error) {
	return "token-" + id.UserName, nil
}

func (m *mockIdentity) ValidateToken(_ context.Context, token string) (domain.Identity, error) {
	if m.validateErr != nil {
		return domain.Identity{}, m.validateErr
	}
	id, ok := m.tokens[token]
	if !ok {
		return domain.Identity{}, identity.ErrRejected
	}
	return id, nil
}

func (m *mockIdentity) IssueCSRF(_ context.Context) (string, error) {
	return m.csrf, nil
}

func (m *mockIdentity) ValidateCSRF(_ context.Context, token string) error {
	if token != m.csrf {
		return identity.ErrRejected
	}
	return nil
}

const (
	testCSRF   = "good-csrf"
	testTokenA = "token-a"
	testTokenB = "token-b"
)

func newMockIdentity() *mockIdentity {
	return &mockIdentity{
		csrf: testCSRF,
		tokens: map[string]domain.Identity{
			testTokenA: {UserID: 1, UserName: "U1"},
			testTokenB: {UserID: 2, UserName: "U2"},
		},
	}
}

// newTestModule builds an APIModule around mock ports and a started broker.
func newTestModule(t *testing.T, dir *mockDirectory, ident *mockIdentity) (*APIModule, *fiber.App) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := broker.NewBroker(logger)
	b.Start(dir, nil)

	m := &APIModule{
		directory: dir,
		identity:  ident,
		broker:    b,
		logger:    logger,
		port:      "0",
	}
	app := m.newApp()
	t.Cleanup(func() {
		b.Shutdown(context.Background())
	})
	return m, app
}

func knownRoom(ctx context.Context, req directory.LookupRoomRequest) (directory.LookupRoomResponse, error) {
	if req.RoomID == "room-1" {
		return directory.LookupRoomResponse{
			Found: true,
			Room:  directory.RoomView{ID: "room-1", Name: "Lobby", OwnerID: 1},
		}, nil
	}
	return directory.LookupRoomResponse{Found: false}, nil
}
