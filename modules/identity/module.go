package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// Service names registered in the identity service container.
const (
	ServiceIssueToken    = "issue-token"
	ServiceValidateToken = "validate-token"
	ServiceIssueCSRF     = "issue-csrf"
	ServiceValidateCSRF  = "validate-csrf"
)

// IdentityModule issues and validates identity and anti-forgery tokens.
type IdentityModule struct {
	config  TokenConfig
	service *Service
}

// Compile-time interface checks.
var _ mono.Module = (*IdentityModule)(nil)
var _ mono.ServiceProviderModule = (*IdentityModule)(nil)
var _ mono.HealthCheckableModule = (*IdentityModule)(nil)

// NewModule creates a new IdentityModule configured from the environment.
func NewModule() *IdentityModule {
	config := loadTokenConfig()
	return &IdentityModule{
		config:  config,
		service: NewService(NewTokenManager(config)),
	}
}

// Name returns the module name.
func (m *IdentityModule) Name() string {
	return "identity"
}

// Start initializes the module.
func (m *IdentityModule) Start(_ context.Context) error {
	if m.config.SecretKey == DefaultTokenConfig().SecretKey {
		log.Println("[identity] JWT_SECRET is not set, using the development secret")
	}
	log.Printf("[identity] Module started (token ttl: %s, csrf ttl: %s)",
		m.config.AccessTokenDuration, m.config.CSRFTokenDuration)
	return nil
}

// Stop shuts down the module.
func (m *IdentityModule) Stop(_ context.Context) error {
	log.Println("[identity] Module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *IdentityModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"issuer": m.config.Issuer,
		},
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *IdentityModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceIssueToken, json.Unmarshal, json.Marshal, m.handleIssueToken,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceIssueToken, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceValidateToken, json.Unmarshal, json.Marshal, m.handleValidateToken,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceValidateToken, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceIssueCSRF, json.Unmarshal, json.Marshal, m.handleIssueCSRF,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceIssueCSRF, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceValidateCSRF, json.Unmarshal, json.Marshal, m.handleValidateCSRF,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceValidateCSRF, err)
	}

	log.Printf("[identity] Registered services: %s, %s, %s, %s",
		ServiceIssueToken, ServiceValidateToken, ServiceIssueCSRF, ServiceValidateCSRF)
	return nil
}

func (m *IdentityModule) handleIssueToken(ctx context.Context, req IssueTokenRequest, _ *mono.Msg) (IssueTokenResponse, error) {
	return m.service.IssueToken(ctx, req)
}

// handleValidateToken returns a response, not an error, for rejected tokens.
func (m *IdentityModule) handleValidateToken(ctx context.Context, req ValidateTokenRequest, _ *mono.Msg) (ValidateTokenResponse, error) {
	return m.service.ValidateToken(ctx, req), nil
}

func (m *IdentityModule) handleIssueCSRF(ctx context.Context, _ IssueCSRFRequest, _ *mono.Msg) (IssueCSRFResponse, error) {
	return m.service.IssueCSRF(ctx)
}

func (m *IdentityModule) handleValidateCSRF(ctx context.Context, req ValidateCSRFRequest, _ *mono.Msg) (ValidateCSRFResponse, error) {
	return m.service.ValidateCSRF(ctx, req), nil
}

// loadTokenConfig loads token configuration from environment variables.
func loadTokenConfig() TokenConfig {
	config := DefaultTokenConfig()

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.SecretKey = secret
	}
	config.AccessTokenDuration = durationFromEnv("JWT_TOKEN_TTL", config.AccessTokenDuration)
	config.CSRFTokenDuration = durationFromEnv("CSRF_TOKEN_TTL", config.CSRFTokenDuration)
	return config
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Printf("[identity] Ignoring invalid %s=%q, using %s", key, value, fallback)
		return fallback
	}
	return d
}
