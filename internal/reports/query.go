package reports

import (
	"context"
	"fmt"

	"github.com/patrickwarner/nest/internal/apperr"
	"github.com/patrickwarner/nest/internal/models"
)

// Nearby query defaults.
const (
	DefaultNearbyDistance = 5000.0
	DefaultNearbyLimit    = 10
	MaxNearbyLimit        = 100
)

// ReportPage is one page of a report query.
type ReportPage struct {
	Reports    []*models.Report  `json:"data"`
	Pagination models.Pagination `json:"pagination"`
}

// Query lists reports matching f, newest first unless p.Sort says otherwise.
func (s *Service) Query(ctx context.Context, f models.ReportFilter, p models.Page) (ReportPage, error) {
	if f.Category != "" && !f.Category.Valid() {
		return ReportPage{}, apperr.Validation("unknown category %q", f.Category)
	}
	if f.Status != "" && !f.Status.Valid() {
		return ReportPage{}, apperr.Validation("unknown status %q", f.Status)
	}
	if f.Severity != "" && !f.Severity.Valid() {
		return ReportPage{}, apperr.Validation("unknown severity %q", f.Severity)
	}
	p = p.Normalize()
	items, total, err := s.Store.QueryReports(ctx, f, p)
	if err != nil {
		return ReportPage{}, fmt.Errorf("query reports: %w", err)
	}
	if items == nil {
		items = []*models.Report{}
	}
	return ReportPage{Reports: items, Pagination: models.NewPagination(total, p)}, nil
}

// CommentView is a comment with its author populated.
type CommentView struct {
	models.Comment
	Author models.UserSummary `json:"author"`
}

// ReportView is a report with reporter, assignee and comment authors
// populated as user summaries.
type ReportView struct {
	*models.Report
	Reporter   models.UserSummary  `json:"reporter"`
	AssignedTo *models.UserSummary `json:"assignedTo,omitempty"`
	Comments   []CommentView       `json:"comments"`
}

// Get returns one report with its user references populated. Users missing
// from the mirror are summarized by id alone.
func (s *Service) Get(ctx context.Context, id string) (*ReportView, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	ids := []string{r.Reporter}
	if r.AssignedTo != "" {
		ids = append(ids, r.AssignedTo)
	}
	for _, c := range r.Comments {
		ids = append(ids, c.Author)
	}
	users, err := s.Store.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load report users: %w", err)
	}
	summary := func(id string) models.UserSummary {
		if u, ok := users[id]; ok {
			return u.Summary()
		}
		return models.UserSummary{ID: id}
	}

	v := &ReportView{Report: r, Reporter: summary(r.Reporter), Comments: make([]CommentView, len(r.Comments))}
	if r.AssignedTo != "" {
		a := summary(r.AssignedTo)
		v.AssignedTo = &a
	}
	for i, c := range r.Comments {
		v.Comments[i] = CommentView{Comment: c, Author: summary(c.Author)}
	}
	return v, nil
}

// NearbyQuery locates reports around a point. Longitude and Latitude are
// required; zero distance and limit take defaults.
type NearbyQuery struct {
	Longitude   *float64
	Latitude    *float64
	MaxDistance float64
	Limit       int
}

// QueryNearby returns reports within the radius, nearest first.
func (s *Service) QueryNearby(ctx context.Context, q NearbyQuery) ([]models.NearbyReport, error) {
	if q.Longitude == nil || q.Latitude == nil {
		return nil, apperr.Validation("longitude and latitude are required")
	}
	if err := models.ValidateCoordinates(*q.Longitude, *q.Latitude); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	if q.MaxDistance < 0 {
		return nil, apperr.Validation("maxDistance must not be negative")
	}
	if q.MaxDistance == 0 {
		q.MaxDistance = DefaultNearbyDistance
	}
	if q.Limit <= 0 {
		q.Limit = DefaultNearbyLimit
	}
	if q.Limit > MaxNearbyLimit {
		q.Limit = MaxNearbyLimit
	}
	out, err := s.Store.NearbyReports(ctx, *q.Longitude, *q.Latitude, q.MaxDistance, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("nearby reports: %w", err)
	}
	if out == nil {
		out = []models.NearbyReport{}
	}
	return out, nil
}
