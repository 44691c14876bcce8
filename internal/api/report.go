package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) UpvoteReport(w http.ResponseWriter, r *http.Request) {
	res, err := s.Reports.ToggleUpvote(r.Context(), mux.Vars(r)["id"], caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, res)
}

type commentRequest struct {
	Text string `json:"text"`
}

func (s *Server) AddComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.Reports.AddComment(r.Context(), mux.Vars(r)["id"], req.Text, caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, c)
}

type assignRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) AssignReport(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	rep, err := s.Reports.AssignTo(r.Context(), mux.Vars(r)["id"], req.UserID, caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, rep)
}

type resolveRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) ResolveReport(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	rep, err := s.Reports.Resolve(r.Context(), mux.Vars(r)["id"], req.Notes, caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, rep)
}
