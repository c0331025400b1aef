// Package identity resolves the signed-in user from a bearer token.
package identity

import (
	"context"
	"errors"
	"strings"

	"ekh_mining/internal/domain"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Provider answers "who is signed in".
type Provider interface {
	CurrentUser(ctx context.Context) (*domain.Identity, error)
}

// TokenVerifier checks a raw token and returns its subject.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*domain.Identity, error)
}

// Bearer is the Provider for one request or session: a verifier plus the
// token the client presented.
type Bearer struct {
	Verifier TokenVerifier
	Token    string
}

func (b Bearer) CurrentUser(ctx context.Context) (*domain.Identity, error) {
	if b.Verifier == nil || b.Token == "" {
		return nil, ErrUnauthenticated
	}
	return b.Verifier.Verify(ctx, b.Token)
}

// TokenFromHeader extracts the token from an "Authorization: Bearer ..." value.
func TokenFromHeader(h string) string {
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
