// ABOUTME: Tests for identity providers
// ABOUTME: Covers static ids and JWT token file parsing

package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider("user-42")
	id, err := p.UserID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-42", id)
}

func TestStaticProvider_EmptyIsUnauthenticated(t *testing.T) {
	p := NewStaticProvider("")
	_, err := p.UserID(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func signToken(t *testing.T, secret []byte, sub string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": sub,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestTokenFileProvider(t *testing.T) {
	secret := []byte("test-secret")
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte(signToken(t, secret, "user-7")+"\n"), 0600))

	p := NewTokenFileProvider(path, secret)
	id, err := p.UserID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-7", id)

	// Cached on second call with the same token
	id, err = p.UserID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-7", id)
}

func TestTokenFileProvider_MissingFileIsUnauthenticated(t *testing.T) {
	p := NewTokenFileProvider(filepath.Join(t.TempDir(), "absent"), []byte("s"))
	_, err := p.UserID(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestTokenFileProvider_BadSignatureIsUnauthenticated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte(signToken(t, []byte("other"), "user-7")), 0600))

	p := NewTokenFileProvider(path, []byte("test-secret"))
	_, err := p.UserID(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestTokenFileProvider_TokenRotation(t *testing.T) {
	secret := []byte("test-secret")
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte(signToken(t, secret, "user-a")), 0600))

	p := NewTokenFileProvider(path, secret)
	id, err := p.UserID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-a", id)

	require.NoError(t, os.WriteFile(path, []byte(signToken(t, secret, "user-b")), 0600))
	id, err = p.UserID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-b", id)
}
