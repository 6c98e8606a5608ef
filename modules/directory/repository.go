package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/example/chat-broker/domain/chat"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	// ErrUserNotFound is returned when a user is not found.
	ErrUserNotFound = errors.New("user not found")
	// ErrRoomNotFound is returned when a room is not found.
	ErrRoomNotFound = errors.New("room not found")
	// ErrUserExists is returned when the user name is already taken.
	ErrUserExists = errors.New("user name already taken")
	// ErrRoomExists is returned when the owner already has a room with the same name.
	ErrRoomExists = errors.New("room already exists for owner")
)

// OpenDatabase opens the SQLite database at path and migrates the chat schema.
func OpenDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer; one connection also keeps ":memory:" databases shared.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&domain.User{}, &domain.Room{}, &domain.ChatMessage{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// Repository handles users, rooms and messages using GORM.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser inserts a new user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByID finds a user by id.
func (r *Repository) FindUserByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// FindUserByName finds a user by name, ignoring case.
func (r *Repository) FindUserByName(ctx context.Context, name string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// TouchLastSeen records the last time a user was seen online.
func (r *Repository) TouchLastSeen(ctx context.Context, userID int64, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Update("last_seen_at", at.UTC())
	if result.Error != nil {
		return fmt.Errorf("failed to update last seen: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateRoom inserts a room and adds its owner as the first member.
func (r *Repository) CreateRoom(ctx context.Context, room *domain.Room) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner domain.User
		if err := tx.First(&owner, "id = ?", room.OwnerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to find room owner: %w", err)
		}
		if err := tx.Omit(clause.Associations).Create(room).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrRoomExists
			}
			return fmt.Errorf("failed to create room: %w", err)
		}
		if err := tx.Model(room).Association("Members").Append(&owner); err != nil {
			return fmt.Errorf("failed to add room owner: %w", err)
		}
		return nil
	})
}

// FindRoomByID finds a room by id.
func (r *Repository) FindRoomByID(ctx context.Context, id string) (*domain.Room, error) {
	var room domain.Room
	if err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	return &room, nil
}

// FindRoomByOwner finds the room named name owned by ownerID, ignoring case.
func (r *Repository) FindRoomByOwner(ctx context.Context, name string, ownerID int64) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).
		First(&room, "name = ? AND owner_id = ?", name, ownerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	return &room, nil
}

// AddRoomMember adds a user to the persisted members of a room.
func (r *Repository) AddRoomMember(ctx context.Context, roomID string, userID int64) error {
	room, err := r.FindRoomByID(ctx, roomID)
	if err != nil {
		return err
	}
	user, err := r.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Model(room).Association("Members").Append(user); err != nil {
		return fmt.Errorf("failed to add room member: %w", err)
	}
	return nil
}

// RoomMembers returns the persisted members of a room ordered by name.
func (r *Repository) RoomMembers(ctx context.Context, roomID string) ([]domain.User, error) {
	room, err := r.FindRoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	var members []domain.User
	if err := r.db.WithContext(ctx).Model(room).Order("name").Association("Members").Find(&members); err != nil {
		return nil, fmt.Errorf("failed to list room members: %w", err)
	}
	return members, nil
}

// CreateMessage stores a chat message.
func (r *Repository) CreateMessage(ctx context.Context, msg *domain.ChatMessage) error {
	msg.Timestamp = msg.Timestamp.UTC()
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// QueryMessages returns up to limit messages of a room on one side of ref.
// Older pages are ordered newest first, newer pages oldest first.
func (r *Repository) QueryMessages(ctx context.Context, roomID string, ref time.Time, limit int, dir domain.Direction) ([]domain.ChatMessage, error) {
	query := r.db.WithContext(ctx).
		Preload("Author").
		Where("room_id = ?", roomID).
		Limit(limit)

	switch dir {
	case domain.DirectionNewer:
		query = query.Where("timestamp > ?", ref.UTC()).Order("timestamp ASC, id ASC")
	default:
		query = query.Where("timestamp < ?", ref.UTC()).Order("timestamp DESC, id DESC")
	}

	var messages []domain.ChatMessage
	if err := query.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return messages, nil
}
