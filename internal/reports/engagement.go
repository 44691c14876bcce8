package reports

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/patrickwarner/nest/internal/analytics"
	"github.com/patrickwarner/nest/internal/apperr"
	"github.com/patrickwarner/nest/internal/models"
	"github.com/patrickwarner/nest/internal/notify"
)

// MaxCommentLength bounds a comment's text.
const MaxCommentLength = 1000

// UpvoteResult is the state after a vote toggle.
type UpvoteResult struct {
	Count   int  `json:"count"`
	Upvoted bool `json:"upvoted"`
}

// ToggleUpvote adds the caller's vote or removes it when already present.
// Staff are told once, when an added vote makes the count equal the
// threshold; later votes and removals never re-trigger it.
func (s *Service) ToggleUpvote(ctx context.Context, id string, c Caller) (UpvoteResult, error) {
	count, added, err := s.Store.ToggleUpvote(ctx, id, c.ID)
	if err != nil {
		return UpvoteResult{}, storeErr("toggle upvote", err)
	}
	res := UpvoteResult{Count: count, Upvoted: added}

	r, err := s.Store.GetReport(ctx, id)
	if err != nil {
		// the vote is stored; only the side effects are lost
		s.Logger.Warn("reload report after upvote", zap.String("report_id", id), zap.Error(err))
		return res, nil
	}
	if added && count == s.threshold() {
		s.Metrics.IncrementUpvoteThreshold()
		s.Logger.Info("report reached upvote threshold", zap.String("report_id", id), zap.Int("count", count))
		s.notifyStaff(ctx, notify.Request{
			Type:      models.NotificationUpvote,
			Title:     "Popular Report",
			Message:   fmt.Sprintf("Report \"%s\" has received %d upvotes.", r.Title, count),
			RelatedTo: related(r),
			Priority:  models.PriorityNormal,
		}, notify.EventPopularReport, map[string]any{"reportId": r.ID, "title": r.Title, "upvotes": count})
	}
	s.record(ctx, analytics.EventReportUpvoted, r, c.ID)
	return res, nil
}

// AddComment appends a comment and tells the reporter when someone else
// wrote it.
func (s *Service) AddComment(ctx context.Context, id, text string, c Caller) (models.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Comment{}, apperr.Validation("comment text is required")
	}
	if len([]rune(text)) > MaxCommentLength {
		return models.Comment{}, apperr.Validation("comment must be at most %d characters", MaxCommentLength)
	}
	comment := models.Comment{
		ID:        s.newID(),
		Author:    c.ID,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	r, err := s.Store.AppendComment(ctx, id, comment)
	if err != nil {
		return models.Comment{}, storeErr("add comment", err)
	}

	if r.Reporter != c.ID {
		s.notifyUser(ctx, r.Reporter, notify.Request{
			Type:      models.NotificationComment,
			Title:     "New Comment on Your Report",
			Message:   fmt.Sprintf("Someone commented on your report \"%s\".", r.Title),
			RelatedTo: related(r),
			Priority:  models.PriorityNormal,
		}, notify.EventNewComment, map[string]any{"reportId": r.ID, "title": r.Title, "comment": text})
	}
	s.record(ctx, analytics.EventReportCommented, r, c.ID)
	return comment, nil
}
