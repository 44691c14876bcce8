// Package auth verifies bearer tokens issued by the identity provider.
package auth

import (
	"context"
	"errors"

	"github.com/patrickwarner/nest/internal/models"
)

// ErrInvalidToken is returned when no verifier accepts a token.
var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the verified caller.
type Identity struct {
	UserID        string
	Email         string
	Name          string
	EmailVerified bool
	// Role is the claim carried by the token, if any. The user mirror takes
	// precedence when present.
	Role models.Role
}

// Verifier validates a raw bearer token.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Chain tries each verifier in order and returns the first identity.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	for _, v := range c {
		if v == nil {
			continue
		}
		if id, err := v.Verify(ctx, token); err == nil && id != nil && id.UserID != "" {
			return id, nil
		}
	}
	return nil, ErrInvalidToken
}

func roleClaim(v any) models.Role {
	s, _ := v.(string)
	if r := models.Role(s); r.Valid() {
		return r
	}
	return ""
}
