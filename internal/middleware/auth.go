package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/patrickwarner/nest/internal/apperr"
	"github.com/patrickwarner/nest/internal/auth"
	"github.com/patrickwarner/nest/internal/models"
)

type principalKey struct{}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID        string
	Email         string
	Name          string
	EmailVerified bool
	Role          models.Role
	// User is the local mirror, nil only when the user store is unavailable.
	User *models.User
}

// UserStore loads and creates local user mirrors.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpsertUser(ctx context.Context, u *models.User) (*models.User, error)
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller stored by Authenticate.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

// ResolveRole picks the effective role: the mirror's, then the token
// claim, then resident.
func ResolveRole(u *models.User, claim models.Role) models.Role {
	if u != nil && u.Role.Valid() {
		return u.Role
	}
	if claim.Valid() {
		return claim
	}
	return models.RoleResident
}

// Authenticate rejects requests without a verifiable bearer token and
// attaches the Principal to the request context. A caller seen for the first
// time is mirrored into users with the token's role and default preferences.
func Authenticate(v auth.Verifier, users UserStore, logger *zap.Logger, verbose bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := BearerToken(r)
			if tok == "" {
				apperr.Write(w, apperr.Authentication("authorization header required"), verbose)
				return
			}
			id, err := v.Verify(r.Context(), tok)
			if err != nil {
				apperr.Write(w, apperr.Authentication("invalid or expired token"), verbose)
				return
			}

			p := &Principal{
				UserID:        id.UserID,
				Email:         id.Email,
				Name:          id.Name,
				EmailVerified: id.EmailVerified,
			}
			if users != nil {
				u, err := users.GetUser(r.Context(), id.UserID)
				switch {
				case err == nil:
					p.User = u
				case errors.Is(err, models.ErrNotFound):
					p.User, err = users.UpsertUser(r.Context(), &models.User{
						ID:          id.UserID,
						Name:        id.Name,
						Email:       id.Email,
						Role:        ResolveRole(nil, id.Role),
						Preferences: models.DefaultPreferences,
					})
					if err != nil {
						LoggerFromRequest(r, logger).Warn("user mirror create failed",
							zap.String("user_id", id.UserID), zap.Error(err))
					}
				default:
					LoggerFromRequest(r, logger).Warn("user mirror lookup failed",
						zap.String("user_id", id.UserID), zap.Error(err))
				}
			}
			p.Role = ResolveRole(p.User, id.Role)

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole admits only principals holding one of roles.
func RequireRole(verbose bool, roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				apperr.Write(w, apperr.Authentication("authentication required"), verbose)
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			apperr.Write(w, apperr.Authorization("insufficient permissions"), verbose)
		})
	}
}
