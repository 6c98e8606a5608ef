package chat

import (
	"time"
)

// Column limits shared by the directory and the validators.
const (
	// NameLength is the maximum length, in characters, of user and room names.
	NameLength = 32
	// ContentLength is the maximum length, in characters, of a chat message.
	ContentLength = 512
)

// Identity is the caller resolved from an identity token.
type Identity struct {
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
}

// User represents a chat user.
type User struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	Name       string `gorm:"uniqueIndex;not null;type:text collate nocase"`
	SecretHash string `gorm:"not null;type:text"`
	LastSeenAt *time.Time
	CreatedAt  time.Time
}

// TableName returns the table name for the User entity.
func (User) TableName() string {
	return "users"
}

// Room represents a chat room owned by a user.
type Room struct {
	ID        string `gorm:"primaryKey;type:text"`
	Name      string `gorm:"not null;type:text collate nocase;uniqueIndex:idx_rooms_name_owner"`
	OwnerID   int64  `gorm:"not null;uniqueIndex:idx_rooms_name_owner"`
	Owner     User   `gorm:"foreignKey:OwnerID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Members   []User `gorm:"many2many:room_members;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt time.Time
}

// TableName returns the table name for the Room entity.
func (Room) TableName() string {
	return "rooms"
}

// ChatMessage is a persisted room message.
type ChatMessage struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	AuthorID  int64     `gorm:"not null;index"`
	Author    User      `gorm:"foreignKey:AuthorID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	RoomID    string    `gorm:"not null;type:text;index:idx_chat_messages_room_ts,priority:1"`
	Room      Room      `gorm:"foreignKey:RoomID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Content   string    `gorm:"not null;size:512"`
	Timestamp time.Time `gorm:"not null;index:idx_chat_messages_room_ts,priority:2"`
}

// TableName returns the table name for the ChatMessage entity.
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// Member is the public projection of a user.
type Member struct {
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
}

// HistoryEntry is the wire shape of a message in history pages and broadcasts.
type HistoryEntry struct {
	UserName  string `json:"user_name"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// FormatTimestamp renders t as the ISO-8601 UTC string sent to clients.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Direction selects which side of a reference time a history page covers.
type Direction string

const (
	// DirectionOlder pages backwards in time, newest first.
	DirectionOlder Direction = "older"
	// DirectionNewer pages forwards in time, oldest first.
	DirectionNewer Direction = "newer"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionOlder || d == DirectionNewer
}
