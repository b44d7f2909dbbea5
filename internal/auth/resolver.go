// ABOUTME: Bearer-token identity resolution and allow-list policy checks
// ABOUTME: Maps presented API keys to stable principal IDs before any bus traffic

package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Auth errors
var (
	// ErrNotConfigured means no API keys exist; callers must fail at
	// startup rather than per request.
	ErrNotConfigured = errors.New("no api keys configured")

	// ErrMissingToken means the request carried no usable bearer token.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrUnknownToken means the presented token matches no configured key.
	ErrUnknownToken = errors.New("unknown api key")
)

// Resolver maps presented bearer tokens to principal IDs. The mapping is
// static for the life of the process: the token is the credential and the
// principal is the bus-visible sender identity derived from it.
type Resolver struct {
	keys map[string]string
}

// NewResolver creates a Resolver from a token-to-principal mapping.
// Returns ErrNotConfigured when the mapping is empty, so deployments that
// mandate authentication fail fast instead of rejecting every request.
func NewResolver(keys map[string]string) (*Resolver, error) {
	if len(keys) == 0 {
		return nil, ErrNotConfigured
	}

	owned := make(map[string]string, len(keys))
	for token, principal := range keys {
		owned[token] = principal
	}
	return &Resolver{keys: owned}, nil
}

// ResolveBearer extracts the bearer token from an Authorization header value
// and returns the principal it maps to.
func (r *Resolver) ResolveBearer(authHeader string) (string, error) {
	token, err := extractBearerToken(authHeader)
	if err != nil {
		return "", err
	}

	principal, ok := r.keys[token]
	if !ok {
		return "", ErrUnknownToken
	}
	return principal, nil
}

// extractBearerToken extracts a bearer token from the Authorization header.
func extractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", fmt.Errorf("%w: missing authorization header", ErrMissingToken)
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("%w: invalid authorization header format", ErrMissingToken)
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrMissingToken)
	}
	return token, nil
}

// AllowList gates which sender IDs may submit work to the agent. An empty
// list allows every sender.
type AllowList struct {
	ids map[string]struct{}
}

// NewAllowList creates an AllowList from the configured sender IDs.
func NewAllowList(ids []string) *AllowList {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return &AllowList{ids: set}
}

// Allowed reports whether the sender may submit work.
func (a *AllowList) Allowed(senderID string) bool {
	if len(a.ids) == 0 {
		return true
	}
	_, ok := a.ids[senderID]
	return ok
}
