package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/patrickwarner/nest/internal/analytics"
	"github.com/patrickwarner/nest/internal/apperr"
	"github.com/patrickwarner/nest/internal/models"
	"github.com/patrickwarner/nest/internal/notify"
	"github.com/patrickwarner/nest/internal/storage"
)

// Patch fields that may be changed, per caller relationship to the report.
var (
	contentFields = []string{"title", "description", "severity"}
	staffFields   = []string{"status", "assignedTo"}
)

// allowedFields is the patch allow-list for c on r. It is empty when c may
// not update r at all.
func allowedFields(r *models.Report, c Caller) map[string]bool {
	allowed := make(map[string]bool)
	if !canEditContent(r, c) {
		return allowed
	}
	for _, f := range contentFields {
		allowed[f] = true
	}
	if c.IsStaff() {
		for _, f := range staffFields {
			allowed[f] = true
		}
	}
	return allowed
}

// Create persists a new pending report owned by the caller and tells staff
// about it.
func (s *Service) Create(ctx context.Context, in models.ReportInput, c Caller) (*models.Report, error) {
	if err := in.Validate(); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	now := s.now().UTC()
	r := &models.Report{
		ID:          s.newID(),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    in.Category,
		Subcategory: in.Subcategory,
		Severity:    in.Severity,
		Status:      models.StatusPending,
		Location: models.Location{
			Type:        "Point",
			Coordinates: [2]float64{in.Location.Coordinates[0], in.Location.Coordinates[1]},
			Address:     strings.TrimSpace(in.Location.Address),
		},
		Images:    []models.Image{},
		Audio:     []models.Audio{},
		Comments:  []models.Comment{},
		Upvotes:   []string{},
		Reporter:  c.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.CreateReport(ctx, r); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	s.Metrics.IncrementReports(string(r.Category))
	s.Logger.Info("report created", zap.String("report_id", r.ID), zap.String("category", string(r.Category)),
		zap.String("severity", string(r.Severity)), zap.String("reporter", c.ID))

	s.notifyStaff(ctx, notify.Request{
		Type:      models.NotificationReportStatus,
		Title:     "New Report Submitted",
		Message:   fmt.Sprintf("A new %s report has been submitted: %s", r.Category, r.Title),
		RelatedTo: related(r),
		Priority:  priorityFor(r.Severity),
	}, notify.EventNewReport, map[string]any{
		"reportId": r.ID,
		"title":    r.Title,
		"category": r.Category,
		"severity": r.Severity,
	})
	s.record(ctx, analytics.EventReportCreated, r, c.ID)
	return r, nil
}

// Update applies a patch. Content fields need the reporter or staff; status
// and assignee need staff. Moving into resolved stamps the resolution and
// notifies the reporter; a new assignee is notified as with AssignTo.
func (s *Service) Update(ctx context.Context, id string, patch models.ReportPatch, c Caller) (*models.Report, error) {
	fields := patch.Fields()
	if len(fields) == 0 {
		return nil, apperr.Validation("no updatable fields in request")
	}
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed := allowedFields(r, c)
	if len(allowed) == 0 {
		return nil, apperr.Authorization("you are not authorized to update this report")
	}
	for _, f := range fields {
		if !allowed[f] {
			return nil, apperr.Authorization(fmt.Sprintf("only admins and moderators can change %s", f))
		}
	}

	prev := r.Status
	now := s.now().UTC()
	if patch.Title != nil {
		t := strings.TrimSpace(*patch.Title)
		if t == "" || len([]rune(t)) > models.MaxTitleLength {
			return nil, apperr.Validation("title must be 1-%d characters", models.MaxTitleLength)
		}
		r.Title = t
	}
	if patch.Description != nil {
		d := strings.TrimSpace(*patch.Description)
		if d == "" {
			return nil, apperr.Validation("description must not be empty")
		}
		r.Description = d
	}
	if patch.Severity != nil {
		if !patch.Severity.Valid() {
			return nil, apperr.Validation("unknown severity %q", *patch.Severity)
		}
		r.Severity = *patch.Severity
	}
	resolved := false
	if patch.Status != nil && *patch.Status != prev {
		next := *patch.Status
		if !next.Valid() {
			return nil, apperr.Validation("unknown status %q", next)
		}
		if !models.CanTransition(prev, next) {
			return nil, apperr.Validation("cannot change status from %s to %s", prev, next)
		}
		r.Status = next
		if next == models.StatusResolved {
			r.Resolution = &models.Resolution{ResolvedBy: c.ID, ResolutionDate: now}
			resolved = true
		}
	}
	assigned := false
	if patch.AssignedTo != nil {
		assignee := strings.TrimSpace(*patch.AssignedTo)
		if assignee != "" {
			if err := s.requireUser(ctx, assignee); err != nil {
				return nil, err
			}
			assigned = assignee != r.AssignedTo
		}
		r.AssignedTo = assignee
	}
	r.UpdatedAt = now

	if err := s.Store.UpdateReport(ctx, r, prev); err != nil {
		return nil, storeErr("update report", err)
	}
	s.Logger.Info("report updated", zap.String("report_id", r.ID), zap.Strings("fields", fields), zap.String("by", c.ID))

	if resolved {
		s.notifyUser(ctx, r.Reporter, notify.Request{
			Type:      models.NotificationReportStatus,
			Title:     "Report Resolved",
			Message:   fmt.Sprintf("Your report \"%s\" has been resolved.", r.Title),
			RelatedTo: related(r),
			Priority:  models.PriorityNormal,
		}, notify.EventReportResolved, map[string]any{"reportId": r.ID, "title": r.Title})
		s.record(ctx, analytics.EventReportResolved, r, c.ID)
	} else {
		s.record(ctx, analytics.EventReportUpdated, r, c.ID)
	}
	if assigned {
		s.notifyAssignee(ctx, r)
		s.record(ctx, analytics.EventReportAssigned, r, c.ID)
	}
	return r, nil
}

func (s *Service) requireUser(ctx context.Context, id string) error {
	_, err := s.Store.GetUser(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return apperr.Validation("user %s does not exist", id)
	}
	if err != nil {
		return fmt.Errorf("load user %s: %w", id, err)
	}
	return nil
}

// Delete removes a report and, best effort, its uploaded files.
func (s *Service) Delete(ctx context.Context, id string, c Caller) error {
	r, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !canEditContent(r, c) {
		return apperr.Authorization("you are not authorized to delete this report")
	}
	if err := s.Store.DeleteReport(ctx, id); err != nil {
		return storeErr("delete report", err)
	}
	s.deleteObjects(ctx, r)
	s.Logger.Info("report deleted", zap.String("report_id", id), zap.String("by", c.ID))
	s.record(ctx, analytics.EventReportDeleted, r, c.ID)
	return nil
}

func (s *Service) deleteObjects(ctx context.Context, r *models.Report) {
	if s.Objects == nil {
		return
	}
	urls := make([]string, 0, len(r.Images)+len(r.Audio))
	for _, img := range r.Images {
		urls = append(urls, img.URL)
	}
	for _, a := range r.Audio {
		urls = append(urls, a.URL)
	}
	for _, u := range urls {
		if err := s.Objects.Delete(ctx, u); err != nil && !errors.Is(err, storage.ErrForeignURL) {
			s.Logger.Warn("delete attachment", zap.String("report_id", r.ID), zap.String("url", u), zap.Error(err))
		}
	}
}

// AssignTo hands a report to a user and moves it to in-progress.
func (s *Service) AssignTo(ctx context.Context, id, userID string, c Caller) (*models.Report, error) {
	if !c.IsStaff() {
		return nil, apperr.Authorization("only admins and moderators can assign reports")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.Validation("userId is required")
	}
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	prev := r.Status
	if prev != models.StatusInProgress {
		if !models.CanTransition(prev, models.StatusInProgress) {
			return nil, apperr.Validation("cannot assign a %s report", prev)
		}
		r.Status = models.StatusInProgress
	}
	r.AssignedTo = userID
	r.UpdatedAt = s.now().UTC()
	if err := s.Store.UpdateReport(ctx, r, prev); err != nil {
		return nil, storeErr("assign report", err)
	}
	s.Logger.Info("report assigned", zap.String("report_id", r.ID), zap.String("assignee", userID), zap.String("by", c.ID))

	s.notifyAssignee(ctx, r)
	s.record(ctx, analytics.EventReportAssigned, r, c.ID)
	return r, nil
}

func (s *Service) notifyAssignee(ctx context.Context, r *models.Report) {
	s.notifyUser(ctx, r.AssignedTo, notify.Request{
		Type:      models.NotificationAssignment,
		Title:     "Report Assigned to You",
		Message:   fmt.Sprintf("You have been assigned to handle report \"%s\".", r.Title),
		RelatedTo: related(r),
		Priority:  priorityFor(r.Severity),
	}, notify.EventReportAssigned, map[string]any{"reportId": r.ID, "title": r.Title, "severity": r.Severity})
}

// Resolve closes a report with optional notes and notifies the reporter.
func (s *Service) Resolve(ctx context.Context, id, notes string, c Caller) (*models.Report, error) {
	if !c.IsStaff() {
		return nil, apperr.Authorization("only admins and moderators can resolve reports")
	}
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := r.Status
	if !models.CanTransition(prev, models.StatusResolved) {
		return nil, apperr.Validation("cannot resolve a %s report", prev)
	}
	now := s.now().UTC()
	notes = strings.TrimSpace(notes)
	r.Status = models.StatusResolved
	r.Resolution = &models.Resolution{ResolvedBy: c.ID, ResolutionDate: now, Notes: notes}
	r.UpdatedAt = now
	if err := s.Store.UpdateReport(ctx, r, prev); err != nil {
		return nil, storeErr("resolve report", err)
	}
	s.Logger.Info("report resolved", zap.String("report_id", r.ID), zap.String("by", c.ID))

	s.notifyUser(ctx, r.Reporter, notify.Request{
		Type:      models.NotificationResolution,
		Title:     "Your Report Has Been Resolved",
		Message:   fmt.Sprintf("Your report \"%s\" has been resolved.", r.Title),
		RelatedTo: related(r),
		Priority:  models.PriorityNormal,
	}, notify.EventReportResolved, map[string]any{"reportId": r.ID, "title": r.Title, "resolutionNotes": notes})
	s.record(ctx, analytics.EventReportResolved, r, c.ID)
	return r, nil
}
