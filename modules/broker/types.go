package broker

import (
	"context"

	"github.com/example/chat-broker/modules/directory"
)

// Directory is the subset of the directory port the broker needs.
type Directory interface {
	LookupUser(ctx context.Context, req directory.LookupUserRequest) (directory.LookupUserResponse, error)
	LookupRoom(ctx context.Context, req directory.LookupRoomRequest) (directory.LookupRoomResponse, error)
	PersistMessage(ctx context.Context, req directory.PersistMessageRequest) (directory.PersistMessageResponse, error)
	QueryMessages(ctx context.Context, req directory.QueryMessagesRequest) (directory.QueryMessagesResponse, error)
}

// In-band error codes.
const (
	ErrorCodeValidation = "validation_error"
	ErrorCodeServer     = "server_error"
)

// ErrorMessage is the in-band error frame sent to a single client.
type ErrorMessage struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusOffline is the user_status of a disconnected member.
const StatusOffline = "Offline"

// StatusMessage is the presence frame broadcast on member-status groups.
type StatusMessage struct {
	UserID     int64  `json:"user_id"`
	UserName   string `json:"user_name"`
	UserStatus string `json:"user_status"`
}

// InvalidRequestError reports a client request that failed validation.
// Reason is safe to show to the client.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return e.Reason
}

func invalid(reason string) error {
	return &InvalidRequestError{Reason: reason}
}
