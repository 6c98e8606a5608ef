package directory

import (
	"time"

	domain "github.com/example/chat-broker/domain/chat"
)

// UserView is the public projection of a user returned by lookups.
type UserView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// RoomView is the public projection of a room returned by lookups.
type RoomView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// LookupUserRequest selects a user by id or, when UserID is zero, by name.
type LookupUserRequest struct {
	UserID   int64  `json:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty"`
}

// LookupUserResponse reports whether the user exists.
type LookupUserResponse struct {
	Found bool     `json:"found"`
	User  UserView `json:"user"`
}

// LookupRoomRequest selects a room by id or, when RoomID is empty, by name and owner.
type LookupRoomRequest struct {
	RoomID   string `json:"room_id,omitempty"`
	RoomName string `json:"room_name,omitempty"`
	OwnerID  int64  `json:"owner_id,omitempty"`
}

// LookupRoomResponse reports whether the room exists.
type LookupRoomResponse struct {
	Found bool     `json:"found"`
	Room  RoomView `json:"room"`
}

// RoomMembersRequest lists the persisted members of a room.
type RoomMembersRequest struct {
	RoomID string `json:"room_id"`
}

// RoomMembersResponse carries the members of a room.
type RoomMembersResponse struct {
	Found   bool            `json:"found"`
	Members []domain.Member `json:"members"`
}

// PersistMessageRequest stores a chat message.
type PersistMessageRequest struct {
	AuthorID  int64     `json:"author_id"`
	RoomID    string    `json:"room_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// PersistMessageResponse returns the id of the stored message.
type PersistMessageResponse struct {
	MessageID int64 `json:"message_id"`
}

// QueryMessagesRequest asks for one page of room history.
type QueryMessagesRequest struct {
	RoomID    string           `json:"room_id"`
	Reference time.Time        `json:"reference"`
	ChunkSize int              `json:"chunk_size"`
	Direction domain.Direction `json:"direction"`
}

// QueryMessagesResponse carries an ordered page of messages.
type QueryMessagesResponse struct {
	Messages []domain.HistoryEntry `json:"messages"`
}

// CreateUserRequest creates a user with a generated login secret.
type CreateUserRequest struct {
	UserName string `json:"user_name"`
}

// CreateUserResponse is the result of CreateUserRequest. Created is false
// when the name is already taken.
type CreateUserResponse struct {
	Created bool     `json:"created"`
	User    UserView `json:"user"`
	Secret  string   `json:"secret,omitempty"`
}

// VerifyUserRequest checks a login secret for a user.
type VerifyUserRequest struct {
	UserID int64  `json:"user_id"`
	Secret string `json:"secret"`
}

// VerifyUserResponse reports whether the secret matched.
type VerifyUserResponse struct {
	Valid bool     `json:"valid"`
	User  UserView `json:"user"`
}

// CreateRoomRequest creates a room owned by OwnerID.
type CreateRoomRequest struct {
	RoomName string `json:"room_name"`
	OwnerID  int64  `json:"owner_id"`
}

// CreateRoomResponse is the result of CreateRoomRequest. Created is false
// when the owner already has a room with that name.
type CreateRoomResponse struct {
	Created bool     `json:"created"`
	Room    RoomView `json:"room"`
}

// JoinRoomRequest adds a user to the persisted members of a room.
type JoinRoomRequest struct {
	RoomID string `json:"room_id"`
	UserID int64  `json:"user_id"`
}

// JoinRoomResponse reports whether the room and user existed.
type JoinRoomResponse struct {
	Found bool `json:"found"`
}
