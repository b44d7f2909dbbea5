// ABOUTME: Tests for bearer-token resolution and allow-list checks
// ABOUTME: Covers header parsing, unknown tokens, and empty-list semantics

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResolver_RequiresKeys(t *testing.T) {
	_, err := NewResolver(nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewResolver(map[string]string{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestResolveBearer(t *testing.T) {
	r, err := NewResolver(map[string]string{
		"sk-alpha": "api:alice",
		"sk-beta":  "api:bob",
	})
	require.NoError(t, err)

	tests := []struct {
		name      string
		header    string
		principal string
		wantErr   error
	}{
		{
			name:      "valid token",
			header:    "Bearer sk-alpha",
			principal: "api:alice",
		},
		{
			name:      "second valid token",
			header:    "Bearer sk-beta",
			principal: "api:bob",
		},
		{
			name:    "missing header",
			header:  "",
			wantErr: ErrMissingToken,
		},
		{
			name:    "wrong scheme",
			header:  "Basic dXNlcjpwYXNz",
			wantErr: ErrMissingToken,
		},
		{
			name:    "empty token",
			header:  "Bearer ",
			wantErr: ErrMissingToken,
		},
		{
			name:    "unknown token",
			header:  "Bearer sk-gamma",
			wantErr: ErrUnknownToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal, err := r.ResolveBearer(tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.principal, principal)
		})
	}
}

func TestAllowList_EmptyAllowsEveryone(t *testing.T) {
	a := NewAllowList(nil)
	assert.True(t, a.Allowed("api:anyone"))
	assert.True(t, a.Allowed(""))
}

func TestAllowList_ExactMatch(t *testing.T) {
	a := NewAllowList([]string{"api:alice", "web:127.0.0.1"})

	assert.True(t, a.Allowed("api:alice"))
	assert.True(t, a.Allowed("web:127.0.0.1"))
	assert.False(t, a.Allowed("api:bob"))
	assert.False(t, a.Allowed("web:10.0.0.1"))
}
