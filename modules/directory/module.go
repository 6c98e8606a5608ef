package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/example/chat-broker/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"gorm.io/gorm"
)

// Service names registered in the directory's service container.
const (
	ServiceLookupUser     = "lookup-user"
	ServiceLookupRoom     = "lookup-room"
	ServiceRoomMembers    = "room-members"
	ServicePersistMessage = "persist-message"
	ServiceQueryMessages  = "query-messages"
	ServiceCreateUser     = "create-user"
	ServiceVerifyUser     = "verify-user"
	ServiceCreateRoom     = "create-room"
	ServiceJoinRoom       = "join-room"
)

// DirectoryModule owns users, rooms and chat messages.
type DirectoryModule struct {
	db       *gorm.DB
	service  *Service
	eventBus mono.EventBus
	dbPath   string
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*DirectoryModule)(nil)
	_ mono.ServiceProviderModule = (*DirectoryModule)(nil)
	_ mono.HealthCheckableModule = (*DirectoryModule)(nil)
	_ mono.EventBusAwareModule   = (*DirectoryModule)(nil)
	_ mono.EventEmitterModule    = (*DirectoryModule)(nil)
	_ mono.EventConsumerModule   = (*DirectoryModule)(nil)
)

// NewModule creates a new DirectoryModule.
func NewModule() *DirectoryModule {
	dbPath := os.Getenv("CHAT_DB_PATH")
	if dbPath == "" {
		dbPath = "chat.db"
	}
	return &DirectoryModule{
		dbPath: dbPath,
	}
}

// Name returns the module name.
func (m *DirectoryModule) Name() string {
	return "directory"
}

// SetEventBus receives the EventBus from the framework.
func (m *DirectoryModule) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *DirectoryModule) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MessagePersistedV1.ToBase(),
	}
}

// RegisterEventConsumers subscribes to presence events to track last-seen times.
func (m *DirectoryModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.MemberOfflineV1, m.handleMemberOffline, m,
	); err != nil {
		return fmt.Errorf("failed to register MemberOffline consumer: %w", err)
	}
	log.Println("[directory] Registered event consumers: MemberOffline")
	return nil
}

// Start opens the database and builds the service.
func (m *DirectoryModule) Start(_ context.Context) error {
	db, err := OpenDatabase(m.dbPath)
	if err != nil {
		return err
	}
	m.db = db

	hasher, err := NewSecretHasher(DefaultBcryptCost)
	if err != nil {
		return err
	}
	service, err := NewService(NewRepository(db), hasher)
	if err != nil {
		return err
	}
	m.service = service

	log.Printf("[directory] Module started (database: %s)", m.dbPath)
	return nil
}

// Stop closes the database.
func (m *DirectoryModule) Stop(_ context.Context) error {
	if m.db != nil {
		sqlDB, err := m.db.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
	log.Println("[directory] Module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *DirectoryModule) Health(ctx context.Context) mono.HealthStatus {
	if m.db == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "database not initialized",
		}
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("failed to get database connection: %v", err),
		}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"database": m.dbPath,
		},
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *DirectoryModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceLookupUser, json.Unmarshal, json.Marshal, m.handleLookupUser,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceLookupUser, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceLookupRoom, json.Unmarshal, json.Marshal, m.handleLookupRoom,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceLookupRoom, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRoomMembers, json.Unmarshal, json.Marshal, m.handleRoomMembers,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceRoomMembers, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServicePersistMessage, json.Unmarshal, json.Marshal, m.handlePersistMessage,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServicePersistMessage, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceQueryMessages, json.Unmarshal, json.Marshal, m.handleQueryMessages,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceQueryMessages, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceCreateUser, json.Unmarshal, json.Marshal, m.handleCreateUser,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceCreateUser, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceVerifyUser, json.Unmarshal, json.Marshal, m.handleVerifyUser,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceVerifyUser, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceCreateRoom, json.Unmarshal, json.Marshal, m.handleCreateRoom,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceCreateRoom, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceJoinRoom, json.Unmarshal, json.Marshal, m.handleJoinRoom,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceJoinRoom, err)
	}

	log.Printf("[directory] Registered services: %s, %s, %s, %s, %s, %s, %s, %s, %s",
		ServiceLookupUser, ServiceLookupRoom, ServiceRoomMembers, ServicePersistMessage,
		ServiceQueryMessages, ServiceCreateUser, ServiceVerifyUser, ServiceCreateRoom, ServiceJoinRoom)
	return nil
}

func (m *DirectoryModule) handleLookupUser(ctx context.Context, req LookupUserRequest, _ *mono.Msg) (LookupUserResponse, error) {
	return m.service.LookupUser(ctx, req)
}

func (m *DirectoryModule) handleLookupRoom(ctx context.Context, req LookupRoomRequest, _ *mono.Msg) (LookupRoomResponse, error) {
	return m.service.LookupRoom(ctx, req)
}

func (m *DirectoryModule) handleRoomMembers(ctx context.Context, req RoomMembersRequest, _ *mono.Msg) (RoomMembersResponse, error) {
	return m.service.RoomMembers(ctx, req)
}

func (m *DirectoryModule) handlePersistMessage(ctx context.Context, req PersistMessageRequest, _ *mono.Msg) (PersistMessageResponse, error) {
	resp, err := m.service.PersistMessage(ctx, req)
	if err != nil {
		return PersistMessageResponse{}, err
	}

	event := events.MessagePersistedEvent{
		MessageID: resp.MessageID,
		RoomID:    req.RoomID,
		AuthorID:  req.AuthorID,
		Timestamp: req.Timestamp,
	}
	if err := events.MessagePersistedV1.Publish(m.eventBus, event, nil); err != nil {
		log.Printf("[directory] Failed to publish MessagePersisted event: %v", err)
	}
	return resp, nil
}

func (m *DirectoryModule) handleQueryMessages(ctx context.Context, req QueryMessagesRequest, _ *mono.Msg) (QueryMessagesResponse, error) {
	return m.service.QueryMessages(ctx, req)
}

func (m *DirectoryModule) handleCreateUser(ctx context.Context, req CreateUserRequest, _ *mono.Msg) (CreateUserResponse, error) {
	return m.service.CreateUser(ctx, req)
}

func (m *DirectoryModule) handleVerifyUser(ctx context.Context, req VerifyUserRequest, _ *mono.Msg) (VerifyUserResponse, error) {
	return m.service.VerifyUser(ctx, req)
}

func (m *DirectoryModule) handleCreateRoom(ctx context.Context, req CreateRoomRequest, _ *mono.Msg) (CreateRoomResponse, error) {
	return m.service.CreateRoom(ctx, req)
}

func (m *DirectoryModule) handleJoinRoom(ctx context.Context, req JoinRoomRequest, _ *mono.Msg) (JoinRoomResponse, error) {
	return m.service.JoinRoom(ctx, req)
}

func (m *DirectoryModule) handleMemberOffline(ctx context.Context, event events.MemberOfflineEvent, _ *mono.Msg) error {
	if m.service == nil {
		return nil
	}
	if err := m.service.MarkOffline(ctx, event.UserID, event.Timestamp); err != nil {
		log.Printf("[directory] Failed to record last seen for user %d: %v", event.UserID, err)
	}
	return nil
}
