package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/patrickwarner/nest/internal/apperr"
	"github.com/patrickwarner/nest/internal/reports"
)

// multipartOverhead is added to the file size limit to leave room for
// boundaries and the other form fields.
const multipartOverhead = 1 << 20

const multipartMemory = 32 << 20

func (s *Server) maxUpload() int64 {
	if s.Reports != nil && s.Reports.MaxUploadBytes > 0 {
		return s.Reports.MaxUploadBytes
	}
	return reports.DefaultMaxUploadBytes
}

// readUpload rate limits the caller and reads one multipart file field.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, field string) (reports.Upload, error) {
	if s.UploadLimiter != nil && !s.UploadLimiter.Allow(caller(r).ID) {
		return reports.Upload{}, apperr.RateLimited("too many uploads, try again later")
	}
	limit := s.maxUpload()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return reports.Upload{}, apperr.Validation("file exceeds %d bytes", limit)
		}
		return reports.Upload{}, apperr.Validation("invalid multipart form")
	}
	file, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return reports.Upload{}, apperr.Validation("no %s file provided", field)
	}
	if err != nil {
		return reports.Upload{}, apperr.Validation("invalid %s file", field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return reports.Upload{}, apperr.Validation("read %s file: %s", field, err.Error())
	}
	ct := hdr.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	return reports.Upload{
		Filename:    hdr.Filename,
		ContentType: ct,
		Data:        data,
	}, nil
}

func (s *Server) UploadImage(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r, "image")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	up.Caption = strings.TrimSpace(r.FormValue("caption"))
	res, err := s.Reports.AttachImage(r.Context(), mux.Vars(r)["id"], up, caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, res)
}

func (s *Server) UploadAudio(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r, "audio")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if v := r.FormValue("duration"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.fail(w, r, apperr.Validation("duration must be a number of seconds"))
			return
		}
		up.Duration = d
	}
	up.Transcription = strings.TrimSpace(r.FormValue("transcription"))
	res, err := s.Reports.AttachAudio(r.Context(), mux.Vars(r)["id"], up, caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, res)
}
