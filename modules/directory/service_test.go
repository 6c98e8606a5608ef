package directory

import (
	"context"
	"strings"
	"testing"
	"time"

	domain "github.com/example/chat-broker/domain/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setupTestService(t *testing.T) *Service {
	t.Helper()

	hasher, err := NewSecretHasher(bcrypt.MinCost)
	require.NoError(t, err)
	service, err := NewService(NewRepository(setupTestDB(t)), hasher)
	require.NoError(t, err)
	return service
}

func TestService_CreateUserAndVerify(t *testing.T) {
	ctx := context.Background()
	service := setupTestService(t)

	created, err := service.CreateUser(ctx, CreateUserRequest{UserName: "Testy"})
	require.NoError(t, err)
	require.True(t, created.Created)
	assert.Len(t, created.Secret, SecretLength)
	assert.Equal(t, "Testy", created.User.Name)

	dup, err := service.CreateUser(ctx, CreateUserRequest{UserName: "testy"})
	require.NoError(t, err)
	assert.False(t, dup.Created)

	valid, err := service.VerifyUser(ctx, VerifyUserRequest{UserID: created.User.ID, Secret: created.Secret})
	require.NoError(t, err)
	assert.True(t, valid.Valid)
	assert.Equal(t, created.User, valid.User)

	wrong, err := service.VerifyUser(ctx, VerifyUserRequest{UserID: created.User.ID, Secret: "nope"})
	require.NoError(t, err)
	assert.False(t, wrong.Valid)

	missing, err := service.VerifyUser(ctx, VerifyUserRequest{UserID: 999, Secret: created.Secret})
	require.NoError(t, err)
	assert.False(t, missing.Valid)
}

func TestService_LookupUser(t *testing.T) {
	ctx := context.Background()
	service := setupTestService(t)

	created, err := service.CreateUser(ctx, CreateUserRequest{UserName: "alice"})
	require.NoError(t, err)

	tests := []struct {
		name      string
		req       LookupUserRequest
		wantFound bool
	}{
		{"by id", LookupUserRequest{UserID: created.User.ID}, true},
		{"by name any case", LookupUserRequest{UserName: "ALICE"}, true},
		{"unknown id", LookupUserRequest{UserID: 999}, false},
		{"unknown name", LookupUserRequest{UserName: "bob"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := service.LookupUser(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, resp.Found)
			if tt.wantFound {
				assert.Equal(t, created.User.ID, resp.User.ID)
			}
		})
	}
}

func TestService_RoomLifecycle(t *testing.T) {
	ctx := context.Background()
	service := setupTestService(t)

	owner, err := service.CreateUser(ctx, CreateUserRequest{UserName: "owner"})
	require.NoError(t, err)
	guest, err := service.CreateUser(ctx, CreateUserRequest{UserName: "guest"})
	require.NoError(t, err)

	room, err := service.CreateRoom(ctx, CreateRoomRequest{RoomName: "Lobby", OwnerID: owner.User.ID})
	require.NoError(t, err)
	require.True(t, room.Created)
	assert.NotEmpty(t, room.Room.ID)

	again, err := service.CreateRoom(ctx, CreateRoomRequest{RoomName: "lobby", OwnerID: owner.User.ID})
	require.NoError(t, err)
	assert.False(t, again.Created)

	byName, err := service.LookupRoom(ctx, LookupRoomRequest{RoomName: "LOBBY", OwnerID: owner.User.ID})
	require.NoError(t, err)
	assert.True(t, byName.Found)
	assert.Equal(t, room.Room.ID, byName.Room.ID)

	otherOwner, err := service.LookupRoom(ctx, LookupRoomRequest{RoomName: "Lobby", OwnerID: guest.User.ID})
	require.NoError(t, err)
	assert.False(t, otherOwner.Found)

	joined, err := service.JoinRoom(ctx, JoinRoomRequest{RoomID: room.Room.ID, UserID: guest.User.ID})
	require.NoError(t, err)
	assert.True(t, joined.Found)

	notJoined, err := service.JoinRoom(ctx, JoinRoomRequest{RoomID: "missing", UserID: guest.User.ID})
	require.NoError(t, err)
	assert.False(t, notJoined.Found)

	members, err := service.RoomMembers(ctx, RoomMembersRequest{RoomID: room.Room.ID})
	require.NoError(t, err)
	require.True(t, members.Found)
	assert.Equal(t, []domain.Member{
		{UserID: guest.User.ID, UserName: "guest"},
		{UserID: owner.User.ID, UserName: "owner"},
	}, members.Members)

	none, err := service.RoomMembers(ctx, RoomMembersRequest{RoomID: "missing"})
	require.NoError(t, err)
	assert.False(t, none.Found)
}

func TestService_PersistAndQueryMessages(t *testing.T) {
	ctx := context.Background()
	service := setupTestService(t)

	author, err := service.CreateUser(ctx, CreateUserRequest{UserName: "U1"})
	require.NoError(t, err)
	room, err := service.CreateRoom(ctx, CreateRoomRequest{RoomName: "R", OwnerID: author.User.ID})
	require.NoError(t, err)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 11; i++ {
		_, err := service.PersistMessage(ctx, PersistMessageRequest{
			AuthorID:  author.User.ID,
			RoomID:    room.Room.ID,
			Content:   string(rune('a' + i)),
			Timestamp: base.Add(time.Duration(i) * 2 * time.Second),
		})
		require.NoError(t, err)
	}

	_, err = service.PersistMessage(ctx, PersistMessageRequest{
		AuthorID: author.User.ID,
		RoomID:   room.Room.ID,
		Content:  strings.Repeat("x", domain.ContentLength+1),
	})
	assert.Error(t, err)

	req := QueryMessagesRequest{
		RoomID:    room.Room.ID,
		Reference: base.Add(time.Minute),
		ChunkSize: 5,
		Direction: domain.DirectionOlder,
	}
	first, err := service.QueryMessages(ctx, req)
	require.NoError(t, err)
	require.Len(t, first.Messages, 5)
	assert.Equal(t, "k", first.Messages[0].Content)
	assert.Equal(t, "g", first.Messages[4].Content)
	assert.Equal(t, "U1", first.Messages[0].UserName)
	assert.Equal(t, domain.FormatTimestamp(base.Add(20*time.Second)), first.Messages[0].Timestamp)

	second, err := service.QueryMessages(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	empty, err := service.QueryMessages(ctx, QueryMessagesRequest{RoomID: room.Room.ID, Reference: base, ChunkSize: 0})
	require.NoError(t, err)
	assert.Empty(t, empty.Messages)
}

func TestService_MarkOffline(t *testing.T) {
	ctx := context.Background()
	service := setupTestService(t)

	created, err := service.CreateUser(ctx, CreateUserRequest{UserName: "sleepy"})
	require.NoError(t, err)

	assert.NoError(t, service.MarkOffline(ctx, created.User.ID, time.Now()))
	assert.NoError(t, service.MarkOffline(ctx, 999, time.Now()))
}
