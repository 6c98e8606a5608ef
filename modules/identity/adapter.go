package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/example/chat-broker/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// ErrRejected is returned when a token is refused for any reason.
var ErrRejected = errors.New("token rejected")

// IdentityPort defines the token operations other modules use.
type IdentityPort interface {
	IssueToken(ctx context.Context, id domain.Identity) (string, error)
	ValidateToken(ctx context.Context, token string) (domain.Identity, error)
	IssueCSRF(ctx context.Context) (string, error)
	ValidateCSRF(ctx context.Context, token string) error
}

// Compile-time interface check.
var _ IdentityPort = (*IdentityAdapter)(nil)

// IdentityAdapter implements IdentityPort using the service container.
type IdentityAdapter struct {
	container mono.ServiceContainer
}

// NewIdentityAdapter creates a new IdentityAdapter.
func NewIdentityAdapter(container mono.ServiceContainer) *IdentityAdapter {
	return &IdentityAdapter{
		container: container,
	}
}

// IssueToken issues an identity token for id.
func (a *IdentityAdapter) IssueToken(ctx context.Context, id domain.Identity) (string, error) {
	req := IssueTokenRequest{UserID: id.UserID, UserName: id.UserName}
	var resp IssueTokenResponse

	if err := call(ctx, a.container, ServiceIssueToken, &req, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// ValidateToken returns the identity carried by token or ErrRejected.
func (a *IdentityAdapter) ValidateToken(ctx context.Context, token string) (domain.Identity, error) {
	req := ValidateTokenRequest{Token: token}
	var resp ValidateTokenResponse

	if err := call(ctx, a.container, ServiceValidateToken, &req, &resp); err != nil {
		return domain.Identity{}, err
	}
	if !resp.Valid {
		return domain.Identity{}, fmt.Errorf("%w: %s", ErrRejected, resp.Error)
	}
	return domain.Identity{UserID: resp.UserID, UserName: resp.UserName}, nil
}

// IssueCSRF issues an anti-forgery token.
func (a *IdentityAdapter) IssueCSRF(ctx context.Context) (string, error) {
	req := IssueCSRFRequest{}
	var resp IssueCSRFResponse

	if err := call(ctx, a.container, ServiceIssueCSRF, &req, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// ValidateCSRF returns nil when token is an acceptable anti-forgery token.
func (a *IdentityAdapter) ValidateCSRF(ctx context.Context, token string) error {
	req := ValidateCSRFRequest{Token: token}
	var resp ValidateCSRFResponse

	if err := call(ctx, a.container, ServiceValidateCSRF, &req, &resp); err != nil {
		return err
	}
	if !resp.Valid {
		return fmt.Errorf("%w: %s", ErrRejected, resp.Error)
	}
	return nil
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
