package directory

import (
	"errors"
	"fmt"
	"strconv"

	nanoid "github.com/jaevor/go-nanoid"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultBcryptCost is the default cost for bcrypt hashing.
	DefaultBcryptCost = 12
	// SecretLength is the length of generated login secrets.
	SecretLength = 40
	// roomIDLength is the length of generated room ids.
	roomIDLength = 21
)

// ErrMalformedUserHash is returned when a login hash cannot be split into secret and user id.
var ErrMalformedUserHash = errors.New("malformed user hash")

// SecretHasher generates login secrets and hashes them with bcrypt.
type SecretHasher struct {
	cost     int
	generate func() string
}

// NewSecretHasher creates a SecretHasher with the given bcrypt cost.
func NewSecretHasher(cost int) (*SecretHasher, error) {
	generate, err := nanoid.Standard(SecretLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret generator: %w", err)
	}
	return &SecretHasher{
		cost:     cost,
		generate: generate,
	}, nil
}

// NewSecret returns a fresh random login secret.
func (h *SecretHasher) NewSecret() string {
	return h.generate()
}

// Hash generates a bcrypt hash of the given secret.
func (h *SecretHasher) Hash(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Verify checks if the provided secret matches the hash.
func (h *SecretHasher) Verify(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// UserHash joins a login secret and a user id into the value handed to clients.
func UserHash(secret string, userID int64) string {
	return secret + strconv.FormatInt(userID, 10)
}

// ParseUserHash splits a user hash into its secret and user id.
func ParseUserHash(userHash string) (string, int64, error) {
	if len(userHash) <= SecretLength {
		return "", 0, ErrMalformedUserHash
	}
	userID, err := strconv.ParseInt(userHash[SecretLength:], 10, 64)
	if err != nil || userID <= 0 {
		return "", 0, ErrMalformedUserHash
	}
	return userHash[:SecretLength], userID, nil
}

// newRoomIDGenerator returns a generator of URL-safe room ids.
func newRoomIDGenerator() (func() string, error) {
	return nanoid.Standard(roomIDLength)
}
