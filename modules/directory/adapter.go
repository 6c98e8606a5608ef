package directory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// DirectoryPort defines the directory and message store operations other modules use.
type DirectoryPort interface {
	LookupUser(ctx context.Context, req LookupUserRequest) (LookupUserResponse, error)
	LookupRoom(ctx context.Context, req LookupRoomRequest) (LookupRoomResponse, error)
	RoomMembers(ctx context.Context, req RoomMembersRequest) (RoomMembersResponse, error)
	PersistMessage(ctx context.Context, req PersistMessageRequest) (PersistMessageResponse, error)
	QueryMessages(ctx context.Context, req QueryMessagesRequest) (QueryMessagesResponse, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (CreateUserResponse, error)
	VerifyUser(ctx context.Context, req VerifyUserRequest) (VerifyUserResponse, error)
	CreateRoom(ctx context.Context, req CreateRoomRequest) (CreateRoomResponse, error)
	JoinRoom(ctx context.Context, req JoinRoomRequest) (JoinRoomResponse, error)
}

// Compile-time interface check.
var _ DirectoryPort = (*DirectoryAdapter)(nil)

// DirectoryAdapter implements DirectoryPort using the service container.
type DirectoryAdapter struct {
	container mono.ServiceContainer
}

// NewDirectoryAdapter creates a new DirectoryAdapter.
func NewDirectoryAdapter(container mono.ServiceContainer) *DirectoryAdapter {
	return &DirectoryAdapter{
		container: container,
	}
}

// LookupUser finds a user by id or name.
func (a *DirectoryAdapter) LookupUser(ctx context.Context, req LookupUserRequest) (LookupUserResponse, error) {
	var resp LookupUserResponse
	err := call(ctx, a.container, ServiceLookupUser, &req, &resp)
	return resp, err
}

// LookupRoom finds a room by id or by name and owner.
func (a *DirectoryAdapter) LookupRoom(ctx context.Context, req LookupRoomRequest) (LookupRoomResponse, error) {
	var resp LookupRoomResponse
	err := call(ctx, a.container, ServiceLookupRoom, &req, &resp)
	return resp, err
}

// RoomMembers lists the persisted members of a room.
func (a *DirectoryAdapter) RoomMembers(ctx context.Context, req RoomMembersRequest) (RoomMembersResponse, error) {
	var resp RoomMembersResponse
	err := call(ctx, a.container, ServiceRoomMembers, &req, &resp)
	return resp, err
}

// PersistMessage stores a chat message.
func (a *DirectoryAdapter) PersistMessage(ctx context.Context, req PersistMessageRequest) (PersistMessageResponse, error) {
	var resp PersistMessageResponse
	err := call(ctx, a.container, ServicePersistMessage, &req, &resp)
	return resp, err
}

// QueryMessages returns one page of room history.
func (a *DirectoryAdapter) QueryMessages(ctx context.Context, req QueryMessagesRequest) (QueryMessagesResponse, error) {
	var resp QueryMessagesResponse
	err := call(ctx, a.container, ServiceQueryMessages, &req, &resp)
	return resp, err
}

// CreateUser creates a user.
func (a *DirectoryAdapter) CreateUser(ctx context.Context, req CreateUserRequest) (CreateUserResponse, error) {
	var resp CreateUserResponse
	err := call(ctx, a.container, ServiceCreateUser, &req, &resp)
	return resp, err
}

// VerifyUser checks a user's login secret.
func (a *DirectoryAdapter) VerifyUser(ctx context.Context, req VerifyUserRequest) (VerifyUserResponse, error) {
	var resp VerifyUserResponse
	err := call(ctx, a.container, ServiceVerifyUser, &req, &resp)
	return resp, err
}

// CreateRoom creates a room.
func (a *DirectoryAdapter) CreateRoom(ctx context.Context, req CreateRoomRequest) (CreateRoomResponse, error) {
	var resp CreateRoomResponse
	err := call(ctx, a.container, ServiceCreateRoom, &req, &resp)
	return resp, err
}

// JoinRoom adds a user to a room.
func (a *DirectoryAdapter) JoinRoom(ctx context.Context, req JoinRoomRequest) (JoinRoomResponse, error) {
	var resp JoinRoomResponse
	err := call(ctx, a.container, ServiceJoinRoom, &req, &resp)
	return resp, err
}

func call[Req, Resp any](ctx context.Context, container mono.ServiceContainer, service string, req *Req, resp *Resp) error {
	if err := helper.CallRequestReplyService(
		ctx,
		container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	); err != nil {
		return fmt.Errorf("%s request failed: %w", service, err)
	}
	return nil
}
