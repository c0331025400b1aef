package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ekh_mining/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTTL = 24 * time.Hour

// JWTVerifier validates HS256 tokens. The subject is taken from "sub",
// falling back to the legacy "user_id" claim.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &JWTVerifier{secret: []byte(secret)}, nil
}

func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (*domain.Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims", ErrUnauthenticated)
	}

	id := stringClaim(claims, "sub")
	if id == "" {
		id = stringClaim(claims, "user_id")
	}
	if id == "" {
		return nil, fmt.Errorf("%w: subject not found", ErrUnauthenticated)
	}

	return &domain.Identity{
		ID:    id,
		Email: stringClaim(claims, "email"),
		Name:  stringClaim(claims, "name"),
	}, nil
}

// Issue signs a token for ident; ttl <= 0 means 24h.
func (v *JWTVerifier) Issue(ident domain.Identity, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": ident.ID,
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
	}
	if ident.Email != "" {
		claims["email"] = ident.Email
	}
	if ident.Name != "" {
		claims["name"] = ident.Name
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// numeric user ids from older tokens come back as float64
func stringClaim(claims jwt.MapClaims, key string) string {
	switch v := claims[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}
