package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// MessagePersistedEvent is emitted after a room message is stored.
type MessagePersistedEvent struct {
	MessageID int64     `json:"message_id"`
	RoomID    string    `json:"room_id"`
	AuthorID  int64     `json:"author_id"`
	Timestamp time.Time `json:"timestamp"`
}

// MemberOfflineEvent is emitted when a member-status connection goes away.
type MemberOfflineEvent struct {
	RoomID    string    `json:"room_id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name"`
	Timestamp time.Time `json:"timestamp"`
}

// Event definitions for the chat domain.
var (
	MessagePersistedV1 = helper.EventDefinition[MessagePersistedEvent](
		"chat",
		"MessagePersisted",
		"v1",
	)

	MemberOfflineV1 = helper.EventDefinition[MemberOfflineEvent](
		"chat",
		"MemberOffline",
		"v1",
	)
)
