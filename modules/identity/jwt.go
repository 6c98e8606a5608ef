package identity

import (
	"errors"
	"strconv"
	"time"

	domain "github.com/example/chat-broker/domain/chat"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when the token is invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

// Token types carried in the token_type claim.
const (
	TokenTypeAccess = "access"
	TokenTypeCSRF   = "csrf"
)

// TokenConfig holds token signing configuration.
type TokenConfig struct {
	SecretKey           string
	AccessTokenDuration time.Duration
	CSRFTokenDuration   time.Duration
	Issuer              string
}

// DefaultTokenConfig returns the default token configuration.
// The secret key must be overridden with JWT_SECRET outside development.
func DefaultTokenConfig() TokenConfig {
	return TokenConfig{
		SecretKey:           "chat-broker-dev-secret-change-me",
		AccessTokenDuration: 24 * time.Hour,
		CSRFTokenDuration:   31 * 24 * time.Hour,
		Issuer:              "chat-broker",
	}
}

// TokenClaims are the claims of identity and CSRF tokens.
type TokenClaims struct {
	UserID    int64  `json:"user_id,omitempty"`
	UserName  string `json:"user_name,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenManager signs and validates HS256 tokens.
type TokenManager struct {
	config TokenConfig
	now    func() time.Time
}

// NewTokenManager creates a new TokenManager with the given configuration.
func NewTokenManager(config TokenConfig) *TokenManager {
	return &TokenManager{
		config: config,
		now:    time.Now,
	}
}

// IssueAccessToken returns an identity token for the given user.
func (m *TokenManager) IssueAccessToken(id domain.Identity) (string, error) {
	now := m.now()
	claims := TokenClaims{
		UserID:    id.UserID,
		UserName:  id.UserName,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   strconv.FormatInt(id.UserID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return m.sign(claims)
}

// IssueCSRFToken returns an anti-forgery token bound to a random nonce.
func (m *TokenManager) IssueCSRFToken() (string, error) {
	now := m.now()
	claims := TokenClaims{
		TokenType: TokenTypeCSRF,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.CSRFTokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return m.sign(claims)
}

func (m *TokenManager) sign(claims TokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.SecretKey))
}

// ValidateToken validates the token and returns the claims if valid.
func (m *TokenManager) ValidateToken(tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(m.config.SecretKey), nil
	}, jwt.WithIssuer(m.config.Issuer), jwt.WithTimeFunc(m.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateAccessToken validates an identity token and returns its Identity.
func (m *TokenManager) ValidateAccessToken(tokenString string) (domain.Identity, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return domain.Identity{}, err
	}
	if claims.TokenType != TokenTypeAccess || claims.UserID <= 0 {
		return domain.Identity{}, ErrInvalidToken
	}
	return domain.Identity{UserID: claims.UserID, UserName: claims.UserName}, nil
}

// ValidateCSRFToken validates an anti-forgery token.
func (m *TokenManager) ValidateCSRFToken(tokenString string) error {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return err
	}
	if claims.TokenType != TokenTypeCSRF {
		return ErrInvalidToken
	}
	return nil
}

// AccessTokenTTLSeconds returns the identity token lifetime in whole seconds.
func (m *TokenManager) AccessTokenTTLSeconds() int64 {
	return int64(m.config.AccessTokenDuration.Seconds())
}
