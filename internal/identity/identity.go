// ABOUTME: Authenticated-identity provider consumed at publish time
// ABOUTME: Static id for tests, JWT session token file for real deployments

package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned when no authenticated user is available.
// Callers on the publish path drop the write and log; nothing is queued.
var ErrUnauthenticated = errors.New("unauthenticated")

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingClaim = errors.New("missing required claim")
)

// Provider yields the current user id at call time. Absence is a valid,
// handled state, reported as ErrUnauthenticated.
type Provider interface {
	UserID(ctx context.Context) (string, error)
}

// StaticProvider returns a fixed user id. Used in tests and single-user
// deployments where the id is configured directly.
type StaticProvider struct {
	id string
}

// NewStaticProvider creates a provider with a fixed user id.
// An empty id models the signed-out state.
func NewStaticProvider(id string) *StaticProvider {
	return &StaticProvider{id: id}
}

func (p *StaticProvider) UserID(ctx context.Context) (string, error) {
	if p.id == "" {
		return "", ErrUnauthenticated
	}
	return p.id, nil
}

// TokenFileProvider reads a session token file on each call and extracts the
// user id from the JWT "sub" claim. The session lifecycle itself (login,
// refresh) is owned by the auth layer; deleting the file signs the user out.
type TokenFileProvider struct {
	path   string
	secret []byte

	mu         sync.Mutex
	cachedTok  string
	cachedUser string
}

// NewTokenFileProvider creates a provider reading HS256-signed session
// tokens from the given file.
func NewTokenFileProvider(path string, secret []byte) *TokenFileProvider {
	return &TokenFileProvider{path: path, secret: secret}
}

// UserID returns the subject of the current session token.
// A missing or unreadable token file is the signed-out state.
func (p *TokenFileProvider) UserID(ctx context.Context) (string, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return "", ErrUnauthenticated
	}
	tokenString := strings.TrimSpace(string(data))
	if tokenString == "" {
		return "", ErrUnauthenticated
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Same token as last call: skip re-parsing
	if tokenString == p.cachedTok && p.cachedUser != "" {
		return p.cachedUser, nil
	}

	userID, err := p.verify(tokenString)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	p.cachedTok = tokenString
	p.cachedUser = userID
	return userID, nil
}

// verify validates the token and extracts the user id from the "sub" claim
func (p *TokenFileProvider) verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}

var (
	_ Provider = (*StaticProvider)(nil)
	_ Provider = (*TokenFileProvider)(nil)
)
