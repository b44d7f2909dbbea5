// ABOUTME: Session-token authentication for the web UI login flow
// ABOUTME: Mints random tokens into an in-memory set checked by exact membership

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"sync"
)

// ErrBadCredentials means the login username or password did not match.
var ErrBadCredentials = errors.New("invalid username or password")

// SessionStore issues and validates ephemeral session tokens for the web UI.
//
// Tokens live only in process memory: they all expire together on restart
// and there is no per-token revocation. When no username/password is
// configured the store is disabled and every check passes.
type SessionStore struct {
	username string
	password string

	mu     sync.Mutex
	tokens map[string]struct{}
}

// NewSessionStore creates a SessionStore gated by the given credentials.
// Empty credentials disable authentication entirely.
func NewSessionStore(username, password string) *SessionStore {
	return &SessionStore{
		username: username,
		password: password,
		tokens:   make(map[string]struct{}),
	}
}

// Enabled reports whether login is required for this deployment.
func (s *SessionStore) Enabled() bool {
	return s.username != "" && s.password != ""
}

// Login validates the credentials and mints a new session token.
// When auth is disabled it returns an empty token and no error.
func (s *SessionStore) Login(username, password string) (string, error) {
	if !s.Enabled() {
		return "", nil
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
	if !userOK || !passOK {
		return "", ErrBadCredentials
	}

	token := randomHex(32)
	s.mu.Lock()
	s.tokens[token] = struct{}{}
	s.mu.Unlock()
	return token, nil
}

// Check reports whether the token authorizes access. Always true when auth
// is disabled; otherwise an exact set-membership test.
func (s *SessionStore) Check(token string) bool {
	if !s.Enabled() {
		return true
	}
	if token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[token]
	return ok
}

// randomHex returns a random hex string from n bytes of entropy.
func randomHex(n int) string {
	buf := make([]byte, n)
	// crypto/rand only fails when the OS entropy source is broken
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
