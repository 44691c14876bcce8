package api

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/patrickwarner/nest/internal/apperr"
	"github.com/patrickwarner/nest/internal/middleware"
	"github.com/patrickwarner/nest/internal/models"
	"github.com/patrickwarner/nest/internal/token"
)

type sessionRequest struct {
	FCMToken string `json:"fcmToken"`
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// CreateSession mirrors the caller into the user store and issues a socket
// session token.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	var req sessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	u, err := s.Store.UpsertUser(r.Context(), &models.User{
		ID:          p.UserID,
		Name:        p.Name,
		Email:       p.Email,
		Role:        p.Role,
		Preferences: models.DefaultPreferences,
		FCMToken:    strings.TrimSpace(req.FCMToken),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	tok, err := token.Generate(u.ID, string(u.Role), s.TokenSecret)
	if errors.Is(err, token.ErrNoKey) {
		s.fail(w, r, apperr.Upstream("socket sessions are not configured", err))
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.Sessions != nil {
		if err := s.Sessions.SaveSession(r.Context(), tok, u.ID, s.Config.SessionTTL); err != nil {
			s.fail(w, r, apperr.Upstream("could not store session", err))
			return
		}
	}
	middleware.LoggerFromRequest(r, s.Logger).Info("session issued", zap.String("user_id", u.ID))
	ok(w, http.StatusOK, sessionResponse{Token: tok, User: u})
}

type closeSessionRequest struct {
	Token string `json:"token"`
}

// CloseSession revokes one of the caller's socket session tokens.
func (s *Server) CloseSession(w http.ResponseWriter, r *http.Request) {
	var req closeSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	claims, err := token.Verify(req.Token, s.TokenSecret, 0)
	if errors.Is(err, token.ErrNoKey) {
		s.fail(w, r, apperr.Upstream("socket sessions are not configured", err))
		return
	}
	if err != nil || claims.UserID != caller(r).ID {
		s.fail(w, r, apperr.Validation("invalid session token"))
		return
	}
	if s.Sessions != nil {
		if err := s.Sessions.DeleteSession(r.Context(), req.Token); err != nil {
			s.fail(w, r, apperr.Upstream("could not remove session", err))
			return
		}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Session closed"})
}

// GetMe returns the caller's user mirror, or the identity alone when the
// caller has not opened a session yet.
func (s *Server) GetMe(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	if p.User != nil {
		u := *p.User
		u.Role = p.Role
		ok(w, http.StatusOK, &u)
		return
	}
	ok(w, http.StatusOK, &models.User{
		ID:          p.UserID,
		Name:        p.Name,
		Email:       p.Email,
		Role:        p.Role,
		Preferences: models.DefaultPreferences,
	})
}
