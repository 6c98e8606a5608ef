package identity

import (
	"context"
	"errors"

	domain "github.com/example/chat-broker/domain/chat"
)

// Service issues and validates identity and anti-forgery tokens.
type Service struct {
	tokens *TokenManager
}

// NewService creates a new identity Service.
func NewService(tokens *TokenManager) *Service {
	return &Service{tokens: tokens}
}

// IssueToken signs an identity token for the given user.
func (s *Service) IssueToken(_ context.Context, req IssueTokenRequest) (IssueTokenResponse, error) {
	token, err := s.tokens.IssueAccessToken(domain.Identity{UserID: req.UserID, UserName: req.UserName})
	if err != nil {
		return IssueTokenResponse{}, err
	}
	return IssueTokenResponse{Token: token, ExpiresIn: s.tokens.AccessTokenTTLSeconds()}, nil
}

// ValidateToken resolves the identity carried by a token.
// Rejections are reported in the response, not as errors.
func (s *Service) ValidateToken(_ context.Context, req ValidateTokenRequest) ValidateTokenResponse {
	id, err := s.tokens.ValidateAccessToken(req.Token)
	if err != nil {
		return ValidateTokenResponse{Valid: false, Error: rejectionReason(err)}
	}
	return ValidateTokenResponse{Valid: true, UserID: id.UserID, UserName: id.UserName}
}

// IssueCSRF signs a fresh anti-forgery token.
func (s *Service) IssueCSRF(_ context.Context) (IssueCSRFResponse, error) {
	token, err := s.tokens.IssueCSRFToken()
	if err != nil {
		return IssueCSRFResponse{}, err
	}
	return IssueCSRFResponse{Token: token}, nil
}

// ValidateCSRF checks an anti-forgery token.
func (s *Service) ValidateCSRF(_ context.Context, req ValidateCSRFRequest) ValidateCSRFResponse {
	if err := s.tokens.ValidateCSRFToken(req.Token); err != nil {
		return ValidateCSRFResponse{Valid: false, Error: rejectionReason(err)}
	}
	return ValidateCSRFResponse{Valid: true}
}

func rejectionReason(err error) string {
	if errors.Is(err, ErrExpiredToken) {
		return "token expired"
	}
	return "invalid token"
}
