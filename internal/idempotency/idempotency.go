package idempotency

import (
	"errors"
	"regexp"
	"sync"

	"github.com/google/uuid"
)

// ErrInvalidKey is returned for a non-empty key that is not a UUID v4.
var ErrInvalidKey = errors.New("idempotency key must be a UUID v4")

var keyPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// Generate returns a fresh random UUID v4.
func Generate() string {
	return uuid.NewString()
}

// Validate reports whether key is a canonical UUID v4, ignoring case.
func Validate(key string) bool {
	return keyPattern.MatchString(key)
}

// Check accepts an empty key (the backend assigns one) or a valid UUID v4.
func Check(key string) error {
	if key == "" || Validate(key) {
		return nil
	}
	return ErrInvalidKey
}

// Session holds the key for one logical submission attempt so that retries
// of the same attempt reuse it.
type Session struct {
	mu  sync.RWMutex
	key string
}

// NewSession starts a session with a generated key
func NewSession() *Session {
	return &Session{key: Generate()}
}

// Key returns the current key, which may be empty after Override("").
func (s *Session) Key() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key
}

// Override replaces the key with a user-supplied one. An empty key means none is sent.
func (s *Session) Override(key string) error {
	if err := Check(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	return nil
}

// Renew starts a new logical attempt and returns its key.
func (s *Session) Renew() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = Generate()
	return s.key
}
