package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/nest/internal/ai"
	"github.com/patrickwarner/nest/internal/apperr"
	"github.com/patrickwarner/nest/internal/auth"
	"github.com/patrickwarner/nest/internal/config"
	"github.com/patrickwarner/nest/internal/forecasting"
	"github.com/patrickwarner/nest/internal/geoip"
	"github.com/patrickwarner/nest/internal/middleware"
	"github.com/patrickwarner/nest/internal/models"
	"github.com/patrickwarner/nest/internal/notify"
	"github.com/patrickwarner/nest/internal/observability"
	"github.com/patrickwarner/nest/internal/ratelimit"
	"github.com/patrickwarner/nest/internal/reports"
)

// SessionStore persists socket session tokens.
type SessionStore interface {
	SaveSession(ctx context.Context, token, userID string, ttl time.Duration) error
	DeleteSession(ctx context.Context, token string) error
}

// Assistant is the AI collaborator behind the /ai endpoints.
type Assistant interface {
	reports.ImageAnalyzer
	Chat(ctx context.Context, message string, history []ai.ChatMessage) (string, error)
}

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger    *zap.Logger
	Metrics   observability.MetricsRegistry
	Config    config.Config
	Store     models.Store
	Verifier  auth.Verifier
	Sessions  SessionStore
	Reports   *reports.Service
	Notifier  *notify.Dispatcher
	Forecasts *forecasting.Engine
	Assistant Assistant
	GeoIP     *geoip.GeoIP
	// Realtime serves the websocket endpoint when set.
	Realtime      http.Handler
	UploadLimiter *ratelimit.UserLimiter
	Checks        map[string]HealthCheck
	TokenSecret   []byte
}

// NewServer constructs a Server. Optional collaborators are set on the
// returned value.
func NewServer(logger *zap.Logger, store models.Store, svc *reports.Service, notifier *notify.Dispatcher, forecasts *forecasting.Engine, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Server{
		Logger:      logger,
		Metrics:     metrics,
		Config:      cfg,
		Store:       store,
		Reports:     svc,
		Notifier:    notifier,
		Forecasts:   forecasts,
		Checks:      make(map[string]HealthCheck),
		TokenSecret: []byte(cfg.SessionSecret),
	}
}

func (s *Server) verbose() bool { return !s.Config.Production() }

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	verbose := s.verbose()
	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(s.Logger), s.instrument, s.clientContext)

	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
	if s.Realtime != nil {
		r.Handle("/ws", s.Realtime).Methods(http.MethodGet)
	}

	authn := middleware.Authenticate(s.Verifier, s.Store, s.Logger, verbose)
	staff := middleware.RequireRole(verbose, models.RoleAdmin, models.RoleModerator)
	admin := middleware.RequireRole(verbose, models.RoleAdmin)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authn)

	api.HandleFunc("/auth/session", s.CreateSession).Methods(http.MethodPost)
	api.HandleFunc("/auth/session", s.CloseSession).Methods(http.MethodDelete)
	api.HandleFunc("/users/me", s.GetMe).Methods(http.MethodGet)

	rep := api.PathPrefix("/reports").Subrouter()
	rep.HandleFunc("", s.CreateReport).Methods(http.MethodPost)
	rep.HandleFunc("", s.ListReports).Methods(http.MethodGet)
	rep.HandleFunc("/nearby", s.NearbyReports).Methods(http.MethodGet)
	rep.HandleFunc("/category/{category}", s.ListReportsByCategory).Methods(http.MethodGet)
	rep.HandleFunc("/status/{status}", s.ListReportsByStatus).Methods(http.MethodGet)
	rep.HandleFunc("/{id}", s.GetReport).Methods(http.MethodGet)
	rep.HandleFunc("/{id}", s.UpdateReport).Methods(http.MethodPut)
	rep.HandleFunc("/{id}", s.DeleteReport).Methods(http.MethodDelete)
	rep.HandleFunc("/{id}/upvote", s.UpvoteReport).Methods(http.MethodPost)
	rep.HandleFunc("/{id}/comments", s.AddComment).Methods(http.MethodPost)
	rep.Handle("/{id}/assign", staff(http.HandlerFunc(s.AssignReport))).Methods(http.MethodPost)
	rep.Handle("/{id}/resolve", staff(http.HandlerFunc(s.ResolveReport))).Methods(http.MethodPost)
	rep.HandleFunc("/{id}/images", s.UploadImage).Methods(http.MethodPost)
	rep.HandleFunc("/{id}/audio", s.UploadAudio).Methods(http.MethodPost)

	api.HandleFunc("/notifications", s.ListNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/read-all", s.MarkAllNotificationsRead).Methods(http.MethodPut)
	api.HandleFunc("/notifications/{id}/read", s.MarkNotificationRead).Methods(http.MethodPut)
	api.HandleFunc("/notifications/{id}", s.DeleteNotification).Methods(http.MethodDelete)

	api.HandleFunc("/predictions", s.ListPredictions).Methods(http.MethodGet)
	api.Handle("/predictions/generate", admin(http.HandlerFunc(s.GeneratePredictions))).Methods(http.MethodPost)
	api.Handle("/predictions/{id}/status", staff(http.HandlerFunc(s.UpdatePredictionStatus))).Methods(http.MethodPut)

	api.HandleFunc("/ai/chat", s.Chat).Methods(http.MethodPost)
	api.HandleFunc("/ai/analyze-image", s.AnalyzeImage).Methods(http.MethodPost)

	return r
}

// envelope is the success response body.
type envelope struct {
	Success     bool               `json:"success"`
	Message     string             `json:"message,omitempty"`
	Data        any                `json:"data,omitempty"`
	Pagination  *models.Pagination `json:"pagination,omitempty"`
	UnreadCount *int               `json:"unreadCount,omitempty"`
}

// helper function to write JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// fail writes err with its mapped status. Server-side failures are logged
// with the request logger.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.HTTPStatus(err) >= http.StatusInternalServerError {
		middleware.LoggerFromRequest(r, s.Logger).Error("request failed",
			zap.String("path", r.URL.Path), zap.String("method", r.Method), zap.Error(err))
	}
	apperr.Write(w, err, s.verbose())
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("invalid json: %s", err.Error())
	}
	return nil
}

// caller returns the authenticated caller. The api subrouter always runs
// Authenticate first.
func caller(r *http.Request) reports.Caller {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		return reports.Caller{}
	}
	return reports.Caller{ID: p.UserID, Role: p.Role}
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", key)
	}
	return n, nil
}

func queryFloat(r *http.Request, key string) (*float64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, apperr.Validation("%s must be a number", key)
	}
	return &f, nil
}

// pageFromQuery reads page, limit and sort.
func pageFromQuery(r *http.Request) (models.Page, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return models.Page{}, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return models.Page{}, err
	}
	return models.Page{Page: page, Limit: limit, Sort: r.URL.Query().Get("sort")}, nil
}
