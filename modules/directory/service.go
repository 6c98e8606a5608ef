package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/example/chat-broker/domain/chat"
)

// Service implements the directory and message store operations.
type Service struct {
	repo   *Repository
	hasher *SecretHasher
	roomID func() string
	now    func() time.Time
}

// NewService creates a new directory Service.
func NewService(repo *Repository, hasher *SecretHasher) (*Service, error) {
	roomID, err := newRoomIDGenerator()
	if err != nil {
		return nil, fmt.Errorf("failed to create room id generator: %w", err)
	}
	return &Service{
		repo:   repo,
		hasher: hasher,
		roomID: roomID,
		now:    time.Now,
	}, nil
}

// LookupUser finds a user by id or by name.
func (s *Service) LookupUser(ctx context.Context, req LookupUserRequest) (LookupUserResponse, error) {
	var (
		user *domain.User
		err  error
	)
	if req.UserID != 0 {
		user, err = s.repo.FindUserByID(ctx, req.UserID)
	} else {
		user, err = s.repo.FindUserByName(ctx, req.UserName)
	}
	if errors.Is(err, ErrUserNotFound) {
		return LookupUserResponse{Found: false}, nil
	}
	if err != nil {
		return LookupUserResponse{}, err
	}
	return LookupUserResponse{Found: true, User: userView(user)}, nil
}

// LookupRoom finds a room by id or by name and owner.
func (s *Service) LookupRoom(ctx context.Context, req LookupRoomRequest) (LookupRoomResponse, error) {
	var (
		room *domain.Room
		err  error
	)
	if req.RoomID != "" {
		room, err = s.repo.FindRoomByID(ctx, req.RoomID)
	} else {
		room, err = s.repo.FindRoomByOwner(ctx, req.RoomName, req.OwnerID)
	}
	if errors.Is(err, ErrRoomNotFound) {
		return LookupRoomResponse{Found: false}, nil
	}
	if err != nil {
		return LookupRoomResponse{}, err
	}
	return LookupRoomResponse{Found: true, Room: roomView(room)}, nil
}

// RoomMembers lists the persisted members of a room.
func (s *Service) RoomMembers(ctx context.Context, req RoomMembersRequest) (RoomMembersResponse, error) {
	users, err := s.repo.RoomMembers(ctx, req.RoomID)
	if errors.Is(err, ErrRoomNotFound) {
		return RoomMembersResponse{Found: false}, nil
	}
	if err != nil {
		return RoomMembersResponse{}, err
	}

	members := make([]domain.Member, 0, len(users))
	for _, u := range users {
		members = append(members, domain.Member{UserID: u.ID, UserName: u.Name})
	}
	return RoomMembersResponse{Found: true, Members: members}, nil
}

// PersistMessage stores a chat message authored by req.AuthorID.
func (s *Service) PersistMessage(ctx context.Context, req PersistMessageRequest) (PersistMessageResponse, error) {
	if len([]rune(req.Content)) > domain.ContentLength {
		return PersistMessageResponse{}, fmt.Errorf("message content exceeds %d characters", domain.ContentLength)
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	msg := &domain.ChatMessage{
		AuthorID:  req.AuthorID,
		RoomID:    req.RoomID,
		Content:   req.Content,
		Timestamp: ts,
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return PersistMessageResponse{}, err
	}
	return PersistMessageResponse{MessageID: msg.ID}, nil
}

// QueryMessages returns one page of room history in the wire shape.
func (s *Service) QueryMessages(ctx context.Context, req QueryMessagesRequest) (QueryMessagesResponse, error) {
	if req.ChunkSize <= 0 {
		return QueryMessagesResponse{Messages: []domain.HistoryEntry{}}, nil
	}
	msgs, err := s.repo.QueryMessages(ctx, req.RoomID, req.Reference, req.ChunkSize, req.Direction)
	if err != nil {
		return QueryMessagesResponse{}, err
	}

	entries := make([]domain.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, domain.HistoryEntry{
			UserName:  m.Author.Name,
			Content:   m.Content,
			Timestamp: domain.FormatTimestamp(m.Timestamp),
		})
	}
	return QueryMessagesResponse{Messages: entries}, nil
}

// CreateUser creates a user and returns its plaintext login secret once.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (CreateUserResponse, error) {
	secret := s.hasher.NewSecret()
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return CreateUserResponse{}, fmt.Errorf("failed to hash secret: %w", err)
	}

	user := &domain.User{
		Name:       req.UserName,
		SecretHash: hash,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			return CreateUserResponse{Created: false}, nil
		}
		return CreateUserResponse{}, err
	}
	return CreateUserResponse{Created: true, User: userView(user), Secret: secret}, nil
}

// VerifyUser checks a login secret against the stored hash.
func (s *Service) VerifyUser(ctx context.Context, req VerifyUserRequest) (VerifyUserResponse, error) {
	user, err := s.repo.FindUserByID(ctx, req.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return VerifyUserResponse{Valid: false}, nil
	}
	if err != nil {
		return VerifyUserResponse{}, err
	}
	if !s.hasher.Verify(req.Secret, user.SecretHash) {
		return VerifyUserResponse{Valid: false}, nil
	}
	return VerifyUserResponse{Valid: true, User: userView(user)}, nil
}

// CreateRoom creates a room owned by req.OwnerID.
func (s *Service) CreateRoom(ctx context.Context, req CreateRoomRequest) (CreateRoomResponse, error) {
	room := &domain.Room{
		ID:        s.roomID(),
		Name:      req.RoomName,
		OwnerID:   req.OwnerID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateRoom(ctx, room); err != nil {
		if errors.Is(err, ErrRoomExists) || errors.Is(err, ErrUserNotFound) {
			return CreateRoomResponse{Created: false}, nil
		}
		return CreateRoomResponse{}, err
	}
	return CreateRoomResponse{Created: true, Room: roomView(room)}, nil
}

// JoinRoom adds a user to the persisted members of a room.
func (s *Service) JoinRoom(ctx context.Context, req JoinRoomRequest) (JoinRoomResponse, error) {
	err := s.repo.AddRoomMember(ctx, req.RoomID, req.UserID)
	if errors.Is(err, ErrRoomNotFound) || errors.Is(err, ErrUserNotFound) {
		return JoinRoomResponse{Found: false}, nil
	}
	if err != nil {
		return JoinRoomResponse{}, err
	}
	return JoinRoomResponse{Found: true}, nil
}

// MarkOffline records when a user was last seen online.
func (s *Service) MarkOffline(ctx context.Context, userID int64, at time.Time) error {
	err := s.repo.TouchLastSeen(ctx, userID, at)
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	return err
}

func userView(u *domain.User) UserView {
	return UserView{ID: u.ID, Name: u.Name}
}

func roomView(r *domain.Room) RoomView {
	return RoomView{
		ID:        r.ID,
		Name:      r.Name,
		OwnerID:   r.OwnerID,
		CreatedAt: r.CreatedAt,
	}
}
