package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/nest/internal/ai"
	"github.com/patrickwarner/nest/internal/auth"
	"github.com/patrickwarner/nest/internal/config"
	"github.com/patrickwarner/nest/internal/forecasting"
	"github.com/patrickwarner/nest/internal/models"
	"github.com/patrickwarner/nest/internal/notify"
	"github.com/patrickwarner/nest/internal/observability"
	"github.com/patrickwarner/nest/internal/ratelimit"
	"github.com/patrickwarner/nest/internal/reports"
	"github.com/patrickwarner/nest/internal/storage"
)

type fakeVerifier map[string]*auth.Identity

func (f fakeVerifier) Verify(_ context.Context, tok string) (*auth.Identity, error) {
	if id, ok := f[tok]; ok {
		return id, nil
	}
	return nil, auth.ErrInvalidToken
}

type nopEmitter struct{}

func (nopEmitter) EmitToUser(string, string, any) bool { return true }

type fakeSessions struct{ saved map[string]string }

func (f *fakeSessions) SaveSession(_ context.Context, tok, userID string, _ time.Duration) error {
	f.saved[tok] = userID
	return nil
}

func (f *fakeSessions) DeleteSession(_ context.Context, tok string) error {
	delete(f.saved, tok)
	return nil
}

type fakeAssistant struct {
	reply string
	err   error
	seen  []ai.ChatMessage
}

func (f *fakeAssistant) AnalyzeImage(context.Context, models.Category, string, []byte) ai.Analysis {
	return ai.Analysis{IsValid: true, Severity: models.SeverityMedium, Confidence: 0.7, Tags: []string{"deep"}, Text: "a pothole"}
}

func (f *fakeAssistant) Chat(_ context.Context, _ string, history []ai.ChatMessage) (string, error) {
	f.seen = history
	return f.reply, f.err
}

type harness struct {
	srv     *Server
	handler http.Handler
	store   *models.InMemoryStore
	metrics *observability.MockMetricsRegistry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := models.NewInMemoryStore()
	for _, u := range []*models.User{
		{ID: "res-1", Name: "Rita", Role: models.RoleResident, Preferences: models.DefaultPreferences},
		{ID: "res-2", Name: "Sam", Role: models.RoleResident, Preferences: models.DefaultPreferences},
		{ID: "mod-1", Name: "Mo", Role: models.RoleModerator, Preferences: models.NotificationPreferences{App: true}},
		{ID: "admin-1", Name: "Ada", Role: models.RoleAdmin, Preferences: models.NotificationPreferences{App: true}},
	} {
		_, err := store.UpsertUser(ctx, u)
		require.NoError(t, err)
	}

	logger := zaptest.NewLogger(t)
	metrics := observability.NewMockMetricsRegistry()
	dispatcher := notify.New(store, nopEmitter{}, nil, nil, logger, metrics, 0)
	svc := reports.New(store, dispatcher, logger, metrics)
	svc.Objects = storage.NewMemory("nest-test")
	engine := forecasting.NewEngine(store, dispatcher, logger, metrics)

	srv := NewServer(logger, store, svc, dispatcher, engine, metrics, config.Config{Env: "test", SessionSecret: "s3cret", SessionTTL: time.Hour})
	srv.Verifier = fakeVerifier{
		"res":   {UserID: "res-1", Email: "rita@example.com"},
		"res2":  {UserID: "res-2"},
		"mod":   {UserID: "mod-1"},
		"admin": {UserID: "admin-1"},
		"new":   {UserID: "new-1", Name: "Nina", Email: "nina@example.com"},
		"fresh": {UserID: "fresh-user", Name: "Fay"},
	}
	return &harness{srv: srv, handler: srv.Router(), store: store, metrics: metrics}
}

func (h *harness) do(t *testing.T, method, path, tok string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return h.serve(t, req)
}

func (h *harness) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func leakBody() map[string]any {
	return map[string]any{
		"title":       "Leak",
		"description": "Water everywhere",
		"category":    "water",
		"subcategory": "leak",
		"severity":    "high",
		"location":    map[string]any{"coordinates": []float64{-122.4, 37.8}, "address": "1 Main St"},
	}
}

func (h *harness) createReport(t *testing.T, tok string) string {
	t.Helper()
	rec, out := h.do(t, http.MethodPost, "/api/reports", tok, leakBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return out["data"].(map[string]any)["id"].(string)
}

func multipartUpload(t *testing.T, path, tok, field string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "upload.bin")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tok)
	return req
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

func TestAuthenticationRequired(t *testing.T) {
	h := newHarness(t)

	rec, out := h.do(t, http.MethodGet, "/api/reports", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, out["success"])

	rec, _ = h.do(t, http.MethodGet, "/api/reports", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAndGetReport(t *testing.T) {
	h := newHarness(t)
	id := h.createReport(t, "res")

	rec, out := h.do(t, http.MethodGet, "/api/reports/"+id, "res2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	data := out["data"].(map[string]any)
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, "Rita", data["reporter"].(map[string]any)["name"])

	rec, out = h.do(t, http.MethodGet, "/api/reports/missing", "res", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "report not found", out["error"].(map[string]any)["message"])
}

func TestCreateReportValidation(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/reports", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer res")
	rec, _ := h.serve(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := leakBody()
	delete(body, "title")
	rec, out := h.do(t, http.MethodPost, "/api/reports", "res", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, out["error"].(map[string]any)["message"], "title is required")
}

func TestListReportsPagination(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.createReport(t, "res")
	}

	rec, out := h.do(t, http.MethodGet, "/api/reports?limit=2", "res", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["data"], 2)
	pg := out["pagination"].(map[string]any)
	assert.EqualValues(t, 3, pg["total"])
	assert.EqualValues(t, 2, pg["pages"])

	rec, out = h.do(t, http.MethodGet, "/api/reports/category/water", "res", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["data"], 3)

	rec, out = h.do(t, http.MethodGet, "/api/reports/status/resolved", "res", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["data"], 0)

	rec, _ = h.do(t, http.MethodGet, "/api/reports?limit=abc", "res", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNearbyReports(t *testing.T) {
	h := newHarness(t)
	h.createReport(t, "res")

	rec, out := h.do(t, http.MethodGet, "/api/reports/nearby?longitude=-122.4&latitude=37.8", "res", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["data"], 1)

	rec, _ = h.do(t, http.MethodGet, "/api/reports/nearby?longitude=-122.4", "res", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaffOnlyRoutes(t *testing.T) {
	h := newHarness(t)
	id := h.createReport(t, "res")

	rec, _ := h.do(t, http.MethodPost, "/api/reports/"+id+"/assign", "res", map[string]string{"userId": "mod-1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, out := h.do(t, http.MethodPost, "/api/reports/"+id+"/assign", "mod", map[string]string{"userId": "mod-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "in-progress", out["data"].(map[string]any)["status"])

	req := httptest.NewRequest(http.MethodPost, "/api/reports/"+id+"/resolve", nil)
	req.Header.Set("Authorization", "Bearer admin")
	rec, out = h.serve(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "resolved", out["data"].(map[string]any)["status"])

	rec, _ = h.do(t, http.MethodPost, "/api/predictions/generate", "mod", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReporterWithoutSessionIsNotified(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.store.GetUser(ctx, "fresh-user")
	require.ErrorIs(t, err, models.ErrNotFound)

	id := h.createReport(t, "fresh")
	u, err := h.store.GetUser(ctx, "fresh-user")
	require.NoError(t, err)
	assert.Equal(t, "Fay", u.Name)
	assert.Equal(t, models.RoleResident, u.Role)
	assert.Equal(t, models.DefaultPreferences, u.Preferences)

	rec, _ := h.do(t, http.MethodPost, "/api/reports/"+id+"/resolve", "mod", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec, _ = h.do(t, http.MethodPost, "/api/reports/"+id+"/comments", "res2", map[string]string{"text": "Thanks for fixing"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	items, _, _, err := h.store.ListNotifications(ctx, models.NotificationFilter{Recipient: "fresh-user"}, models.Page{Limit: 50})
	require.NoError(t, err)
	types := map[models.NotificationType]int{}
	for _, n := range items {
		types[n.Type]++
	}
	assert.Equal(t, 1, types[models.NotificationResolution])
	assert.Equal(t, 1, types[models.NotificationComment])
}

func TestUpdateAndDeleteReport(t *testing.T) {
	h := newHarness(t)
	id := h.createReport(t, "res")

	rec, _ := h.do(t, http.MethodPut, "/api/reports/"+id, "res2", map[string]string{"title": "Mine now"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, out := h.do(t, http.MethodPut, "/api/reports/"+id, "res", map[string]string{"title": "Big leak"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Big leak", out["data"].(map[string]any)["title"])

	rec, out = h.do(t, http.MethodDelete, "/api/reports/"+id, "res", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Report deleted successfully", out["message"])

	rec, _ = h.do(t, http.MethodGet, "/api/reports/"+id, "res", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpvoteAndComment(t *testing.T) {
	h := newHarness(t)
	id := h.createReport(t, "res")

	rec, out := h.do(t, http.MethodPost, "/api/reports/"+id+"/upvote", "res2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"count": float64(1), "upvoted": true}, out["data"])

	_, out = h.do(t, http.MethodPost, "/api/reports/"+id+"/upvote", "res2", nil)
	assert.Equal(t, map[string]any{"count": float64(0), "upvoted": false}, out["data"])

	rec, out = h.do(t, http.MethodPost, "/api/reports/"+id+"/comments", "res2", map[string]string{"text": "Seen it too"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Seen it too", out["data"].(map[string]any)["text"])

	rec, _ = h.do(t, http.MethodPost, "/api/reports/"+id+"/comments", "res2", map[string]string{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadImage(t *testing.T) {
	h := newHarness(t)
	id := h.createReport(t, "res")

	rec, out := h.serve(t, multipartUpload(t, "/api/reports/"+id+"/images", "res", "image", pngBytes, map[string]string{"caption": "front"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := out["data"].(map[string]any)
	assert.NotEmpty(t, data["imageUrl"])
	images := data["report"].(map[string]any)["images"].([]any)
	require.Len(t, images, 1)
	assert.Equal(t, "front", images[0].(map[string]any)["caption"])

	rec, _ = h.serve(t, multipartUpload(t, "/api/reports/"+id+"/images", "res", "file", pngBytes, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.serve(t, multipartUpload(t, "/api/reports/"+id+"/images", "res", "image", []byte("plain text"), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadTooLarge(t *testing.T) {
	h := newHarness(t)
	id := h.createReport(t, "res")
	h.srv.Reports.MaxUploadBytes = 16

	rec, _ := h.serve(t, multipartUpload(t, "/api/reports/"+id+"/images", "res", "image", pngBytes, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRateLimited(t *testing.T) {
	h := newHarness(t)
	id := h.createReport(t, "res")
	h.srv.UploadLimiter = ratelimit.NewUserLimiter(ratelimit.ScopeUpload, ratelimit.Config{Capacity: 1, RefillEvery: time.Hour, Enabled: true}, h.metrics)

	rec, _ := h.serve(t, multipartUpload(t, "/api/reports/"+id+"/images", "res", "image", pngBytes, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, out := h.serve(t, multipartUpload(t, "/api/reports/"+id+"/images", "res", "image", pngBytes, nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", out["error"].(map[string]any)["kind"])
}

func TestUploadAudio(t *testing.T) {
	h := newHarness(t)
	id := h.createReport(t, "res")
	mp3 := append([]byte("ID3"), make([]byte, 32)...)

	rec, out := h.serve(t, multipartUpload(t, "/api/reports/"+id+"/audio", "res", "audio", mp3, map[string]string{"duration": "12.5", "transcription": "it is leaking"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rep := out["data"].(map[string]any)["report"].(map[string]any)
	audio := rep["audio"].([]any)
	require.Len(t, audio, 1)
	assert.Equal(t, 12.5, audio[0].(map[string]any)["duration"])

	rec, _ = h.serve(t, multipartUpload(t, "/api/reports/"+id+"/audio", "res", "audio", mp3, map[string]string{"duration": "long"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotifications(t *testing.T) {
	h := newHarness(t)
	h.createReport(t, "res")
	h.createReport(t, "res")

	rec, out := h.do(t, http.MethodGet, "/api/notifications", "mod", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := out["data"].([]any)
	require.Len(t, items, 2)
	assert.EqualValues(t, 2, out["unreadCount"])
	first := items[0].(map[string]any)["id"].(string)
	second := items[1].(map[string]any)["id"].(string)

	// Another user cannot touch the moderator's notification.
	rec, _ = h.do(t, http.MethodPut, "/api/notifications/"+first+"/read", "res", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = h.do(t, http.MethodDelete, "/api/notifications/"+first, "res", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = h.do(t, http.MethodPut, "/api/notifications/"+first+"/read", "mod", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, out = h.do(t, http.MethodGet, "/api/notifications?unread=true", "mod", nil)
	require.Len(t, out["data"], 1)
	assert.Equal(t, second, out["data"].([]any)[0].(map[string]any)["id"])
	assert.EqualValues(t, 1, out["unreadCount"])

	_, out = h.do(t, http.MethodPut, "/api/notifications/read-all", "mod", nil)
	assert.EqualValues(t, 1, out["data"].(map[string]any)["updated"])

	rec, _ = h.do(t, http.MethodDelete, "/api/notifications/"+first, "mod", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, out = h.do(t, http.MethodGet, "/api/notifications", "mod", nil)
	assert.Len(t, out["data"], 1)
	assert.EqualValues(t, 0, out["unreadCount"])

	_, out = h.do(t, http.MethodGet, "/api/notifications", "res2", nil)
	assert.Equal(t, []any{}, out["data"])
}

func TestPredictions(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.createReport(t, "res")
	}

	rec, out := h.do(t, http.MethodPost, "/api/predictions/generate", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Generated 1 new predictions", out["message"])

	rec, out = h.do(t, http.MethodGet, "/api/predictions", "res", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	preds := out["data"].([]any)
	require.Len(t, preds, 1)
	id := preds[0].(map[string]any)["id"].(string)
	assert.Equal(t, "water", preds[0].(map[string]any)["type"])

	rec, _ = h.do(t, http.MethodGet, "/api/predictions?minProbability=high", "res", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(t, http.MethodPut, "/api/predictions/"+id+"/status", "res", map[string]string{"status": "verified"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, out = h.do(t, http.MethodPut, "/api/predictions/"+id+"/status", "mod", map[string]string{"status": "verified"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "verified", out["data"].(map[string]any)["status"])

	_, out = h.do(t, http.MethodGet, "/api/predictions", "res", nil)
	assert.Len(t, out["data"], 0)
	_, out = h.do(t, http.MethodGet, "/api/predictions?status=verified", "res", nil)
	assert.Len(t, out["data"], 1)

	rec, _ = h.do(t, http.MethodPut, "/api/predictions/missing/status", "mod", map[string]string{"status": "resolved"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	h.srv.Checks["postgres"] = func(context.Context) error { return nil }

	rec, out := h.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])

	h.srv.Checks["redis"] = func(context.Context) error { return errors.New("connection refused") }
	rec, out = h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", out["status"])
	assert.Equal(t, map[string]any{"postgres": "ok", "redis": "down"}, out["dependencies"])
}

func TestCreateSession(t *testing.T) {
	h := newHarness(t)
	sessions := &fakeSessions{saved: map[string]string{}}
	h.srv.Sessions = sessions

	rec, out := h.do(t, http.MethodPost, "/api/auth/session", "new", map[string]string{"fcmToken": "device-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := out["data"].(map[string]any)
	tok := data["token"].(string)
	assert.Equal(t, "new-1", sessions.saved[tok])

	u, err := h.store.GetUser(context.Background(), "new-1")
	require.NoError(t, err)
	assert.Equal(t, "Nina", u.Name)
	assert.Equal(t, models.RoleResident, u.Role)
	assert.Equal(t, "device-1", u.FCMToken)

	_, out = h.do(t, http.MethodGet, "/api/users/me", "new", nil)
	assert.Equal(t, "nina@example.com", out["data"].(map[string]any)["email"])

	rec, _ = h.do(t, http.MethodDelete, "/api/auth/session", "res", map[string]string{"token": tok})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, sessions.saved, tok)

	rec, _ = h.do(t, http.MethodDelete, "/api/auth/session", "new", map[string]string{"token": tok})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, sessions.saved, tok)

	h.srv.TokenSecret = nil
	rec, _ = h.do(t, http.MethodPost, "/api/auth/session", "res", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetMeKeepsStoredRole(t *testing.T) {
	h := newHarness(t)
	_, out := h.do(t, http.MethodGet, "/api/users/me", "mod", nil)
	data := out["data"].(map[string]any)
	assert.Equal(t, "moderator", data["role"])
	assert.Equal(t, "Mo", data["name"])
}

func TestChat(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.do(t, http.MethodPost, "/api/ai/chat", "res", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	assistant := &fakeAssistant{reply: "Hello, how can I help?"}
	h.srv.Assistant = assistant

	history := make([]ai.ChatMessage, 25)
	for i := range history {
		history[i] = ai.ChatMessage{Role: "user", Content: fmt.Sprintf("msg %d", i)}
	}
	rec, out := h.do(t, http.MethodPost, "/api/ai/chat", "res", map[string]any{"message": "hi", "history": history})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello, how can I help?", out["data"].(map[string]any)["reply"])
	require.Len(t, assistant.seen, maxChatHistory)
	assert.Equal(t, "msg 5", assistant.seen[0].Content)

	rec, _ = h.do(t, http.MethodPost, "/api/ai/chat", "res", map[string]string{"message": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assistant.err = errors.New("model offline")
	rec, out = h.do(t, http.MethodPost, "/api/ai/chat", "res", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "AI assistant unavailable", out["error"].(map[string]any)["message"])
}

func TestAnalyzeImage(t *testing.T) {
	h := newHarness(t)
	h.srv.Assistant = &fakeAssistant{}

	rec, out := h.serve(t, multipartUpload(t, "/api/ai/analyze-image", "res", "image", pngBytes, map[string]string{"category": "pothole"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, out["data"].(map[string]any)["isValid"])

	rec, _ = h.serve(t, multipartUpload(t, "/api/ai/analyze-image", "res", "image", pngBytes, map[string]string{"category": "volcano"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestMetricsUseRouteTemplate(t *testing.T) {
	h := newHarness(t)
	id := h.createReport(t, "res")
	h.do(t, http.MethodGet, "/api/reports/"+id, "res", nil)
	h.do(t, http.MethodGet, "/api/reports/missing", "res", nil)

	assert.Equal(t, 1, h.metrics.Count("Requests:/api/reports:POST:201"))
	assert.Equal(t, 1, h.metrics.Count("Requests:/api/reports/{id}:GET:200"))
	assert.Equal(t, 1, h.metrics.Count("Requests:/api/reports/{id}:GET:404"))
}
