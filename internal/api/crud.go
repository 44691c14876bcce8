package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/patrickwarner/nest/internal/models"
	"github.com/patrickwarner/nest/internal/reports"
)

// ===== Reports =====

func (s *Server) CreateReport(w http.ResponseWriter, r *http.Request) {
	var in models.ReportInput
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	rep, err := s.Reports.Create(r.Context(), in, caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, rep)
}

func reportFilter(r *http.Request) models.ReportFilter {
	q := r.URL.Query()
	return models.ReportFilter{
		Category: models.Category(q.Get("category")),
		Status:   models.Status(q.Get("status")),
		Severity: models.Severity(q.Get("severity")),
		Reporter: q.Get("reporter"),
		Search:   q.Get("search"),
	}
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request, f models.ReportFilter) {
	p, err := pageFromQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.Reports.Query(r.Context(), f, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: page.Reports, Pagination: &page.Pagination})
}

func (s *Server) ListReports(w http.ResponseWriter, r *http.Request) {
	s.listReports(w, r, reportFilter(r))
}

func (s *Server) ListReportsByCategory(w http.ResponseWriter, r *http.Request) {
	f := reportFilter(r)
	f.Category = models.Category(mux.Vars(r)["category"])
	s.listReports(w, r, f)
}

func (s *Server) ListReportsByStatus(w http.ResponseWriter, r *http.Request) {
	f := reportFilter(r)
	f.Status = models.Status(mux.Vars(r)["status"])
	s.listReports(w, r, f)
}

func (s *Server) NearbyReports(w http.ResponseWriter, r *http.Request) {
	var q reports.NearbyQuery
	var err error
	if q.Longitude, err = queryFloat(r, "longitude"); err != nil {
		s.fail(w, r, err)
		return
	}
	if q.Latitude, err = queryFloat(r, "latitude"); err != nil {
		s.fail(w, r, err)
		return
	}
	maxDistance, err := queryFloat(r, "maxDistance")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if maxDistance != nil {
		q.MaxDistance = *maxDistance
	}
	if q.Limit, err = queryInt(r, "limit"); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.Reports.QueryNearby(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, out)
}

func (s *Server) GetReport(w http.ResponseWriter, r *http.Request) {
	view, err := s.Reports.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, view)
}

func (s *Server) UpdateReport(w http.ResponseWriter, r *http.Request) {
	var patch models.ReportPatch
	if err := decodeJSON(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	rep, err := s.Reports.Update(r.Context(), mux.Vars(r)["id"], patch, caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, rep)
}

func (s *Server) DeleteReport(w http.ResponseWriter, r *http.Request) {
	if err := s.Reports.Delete(r.Context(), mux.Vars(r)["id"], caller(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Report deleted successfully"})
}
