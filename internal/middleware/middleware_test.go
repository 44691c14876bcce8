package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/nest/internal/auth"
	"github.com/patrickwarner/nest/internal/models"
)

type tokenVerifier map[string]*auth.Identity

func (v tokenVerifier) Verify(_ context.Context, tok string) (*auth.Identity, error) {
	if id, ok := v[tok]; ok {
		return id, nil
	}
	return nil, auth.ErrInvalidToken
}

type userMap map[string]*models.User

func (m userMap) GetUser(_ context.Context, id string) (*models.User, error) {
	if id == "broken" {
		return nil, errors.New("db down")
	}
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, models.ErrNotFound
}

func (m userMap) UpsertUser(_ context.Context, u *models.User) (*models.User, error) {
	if u.ID == "readonly" {
		return nil, errors.New("db read-only")
	}
	if cur, ok := m[u.ID]; ok {
		return cur, nil
	}
	c := *u
	m[u.ID] = &c
	return &c, nil
}

func TestAuthenticate(t *testing.T) {
	verifier := tokenVerifier{
		"mirror":   {UserID: "u1", Role: models.RoleAdmin},
		"claim":    {UserID: "u2", Role: models.RoleModerator},
		"plain":    {UserID: "u3"},
		"brokendb": {UserID: "broken", Role: models.RoleAdmin},
	}
	users := userMap{"u1": {ID: "u1", Role: models.RoleResident}}

	var got *Principal
	h := Authenticate(verifier, users, zaptest.NewLogger(t), false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFrom(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		status int
		role   models.Role
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic mirror", http.StatusUnauthorized, ""},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, ""},
		{"mirror role wins over claim", "Bearer mirror", http.StatusOK, models.RoleResident},
		{"claim role seeds new mirror", "bearer claim", http.StatusOK, models.RoleModerator},
		{"default resident", "Bearer plain", http.StatusOK, models.RoleResident},
		{"lookup failure falls back to claim", "Bearer brokendb", http.StatusOK, models.RoleAdmin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				require.NotNil(t, got)
				assert.Equal(t, tt.role, got.Role)
			} else {
				assert.Nil(t, got)
				assert.Contains(t, rec.Body.String(), `"success":false`)
			}
		})
	}
}

func TestAuthenticateMirrorsNewUsers(t *testing.T) {
	verifier := tokenVerifier{
		"fresh":    {UserID: "fresh-user", Name: "Fay", Email: "fay@example.com", Role: models.RoleModerator},
		"plain":    {UserID: "plain-user"},
		"readonly": {UserID: "readonly"},
	}
	users := userMap{}

	var got *Principal
	h := Authenticate(verifier, users, zaptest.NewLogger(t), false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFrom(r.Context())
	}))
	serve := func(tok string) int {
		got = nil
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, serve("fresh"))
	require.NotNil(t, got.User)
	mirror := users["fresh-user"]
	require.NotNil(t, mirror)
	assert.Equal(t, "Fay", mirror.Name)
	assert.Equal(t, "fay@example.com", mirror.Email)
	assert.Equal(t, models.RoleModerator, mirror.Role)
	assert.Equal(t, models.DefaultPreferences, mirror.Preferences)

	require.Equal(t, http.StatusOK, serve("plain"))
	assert.Equal(t, models.RoleResident, users["plain-user"].Role)

	// a store that cannot create the mirror still lets the request through
	require.Equal(t, http.StatusOK, serve("readonly"))
	require.NotNil(t, got)
	assert.Nil(t, got.User)
	assert.Equal(t, models.RoleResident, got.Role)
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(false, models.RoleAdmin, models.RoleModerator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(p *Principal) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if p != nil {
			req = req.WithContext(WithPrincipal(req.Context(), p))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(nil))
	assert.Equal(t, http.StatusForbidden, serve(&Principal{UserID: "u", Role: models.RoleResident}))
	assert.Equal(t, http.StatusNoContent, serve(&Principal{UserID: "u", Role: models.RoleModerator}))
}

func TestLoggerFromContext(t *testing.T) {
	fallback := zap.NewNop()
	assert.Same(t, fallback, LoggerFromContext(context.Background(), fallback))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1},
		SpanID:  trace.SpanID{2},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	assert.NotSame(t, fallback, LoggerFromContext(ctx, fallback))

	var inner *zap.Logger
	h := WithTraceLogger(fallback)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = LoggerFromRequest(r, nil)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
	require.NotNil(t, inner)
	assert.NotSame(t, fallback, inner)
}
