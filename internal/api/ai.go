package api

import (
	"net/http"
	"strings"

	"github.com/patrickwarner/nest/internal/ai"
	"github.com/patrickwarner/nest/internal/apperr"
	"github.com/patrickwarner/nest/internal/models"
)

const maxChatHistory = 20

var errAssistantDisabled = apperr.Upstream("AI assistant is not configured", nil)

type chatRequest struct {
	Message string           `json:"message"`
	History []ai.ChatMessage `json:"history"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	if s.Assistant == nil {
		s.fail(w, r, errAssistantDisabled)
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		s.fail(w, r, apperr.Validation("message is required"))
		return
	}
	history := req.History
	if len(history) > maxChatHistory {
		history = history[len(history)-maxChatHistory:]
	}
	reply, err := s.Assistant.Chat(r.Context(), msg, history)
	if err != nil {
		s.fail(w, r, apperr.Upstream("AI assistant unavailable", err))
		return
	}
	ok(w, http.StatusOK, chatResponse{Reply: reply})
}

// AnalyzeImage runs the image analyzer on an upload without attaching it
// to a report.
func (s *Server) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	if s.Assistant == nil {
		s.fail(w, r, errAssistantDisabled)
		return
	}
	up, err := s.readUpload(w, r, "image")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !strings.HasPrefix(up.ContentType, "image/") {
		s.fail(w, r, apperr.Validation("only image files are allowed"))
		return
	}
	category := models.Category(r.FormValue("category"))
	if category != "" && !category.Valid() {
		s.fail(w, r, apperr.Validation("invalid category %q", category))
		return
	}
	ok(w, http.StatusOK, s.Assistant.AnalyzeImage(r.Context(), category, up.ContentType, up.Data))
}
