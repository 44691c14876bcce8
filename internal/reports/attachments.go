package reports

import (
	"bytes"
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/patrickwarner/nest/internal/analytics"
	"github.com/patrickwarner/nest/internal/apperr"
	"github.com/patrickwarner/nest/internal/models"
	"github.com/patrickwarner/nest/internal/storage"
)

// Upload is one attachment file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte

	Caption       string  // images
	Duration      float64 // audio, seconds
	Transcription string  // audio
}

// ImageResult is returned by AttachImage. ImageValidation is only
// meaningful when Analysis is set.
type ImageResult struct {
	ImageURL        string             `json:"imageUrl"`
	ImageValidation bool               `json:"imageValidation"`
	Analysis        *models.AIAnalysis `json:"aiAnalysis,omitempty"`
	Report          *models.Report     `json:"report"`
}

// AudioResult is returned by AttachAudio.
type AudioResult struct {
	AudioURL string         `json:"audioUrl"`
	Report   *models.Report `json:"report"`
}

// analyzedCategories have their images checked by the AI collaborator.
var analyzedCategories = map[models.Category]bool{
	models.CategoryPothole:     true,
	models.CategoryCleanliness: true,
}

// prepareUpload checks permissions and the file, and uploads it.
func (s *Service) prepareUpload(ctx context.Context, id string, up Upload, kind string, c Caller) (*models.Report, string, error) {
	if len(up.Data) == 0 {
		return nil, "", apperr.Validation("no %s file provided", kindNoun(kind))
	}
	if got, ok := storage.KindForContentType(up.ContentType); !ok || got != kind {
		return nil, "", apperr.Validation("unsupported content type %q for %s", up.ContentType, kindNoun(kind))
	}
	if limit := s.maxUpload(); int64(len(up.Data)) > limit {
		return nil, "", apperr.Validation("file exceeds %d bytes", limit)
	}
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if !canEditContent(r, c) {
		return nil, "", apperr.Authorization("you are not authorized to upload files to this report")
	}
	if s.Objects == nil {
		return nil, "", apperr.Upstream("file storage is not configured", storage.ErrDisabled)
	}
	object := storage.ObjectName(r.ID, kind, up.Filename)
	url, err := s.Objects.Upload(ctx, object, up.ContentType, bytes.NewReader(up.Data))
	if err != nil {
		return nil, "", apperr.Upstream("file upload failed", err)
	}
	return r, url, nil
}

func (s *Service) maxUpload() int64 {
	if s.MaxUploadBytes > 0 {
		return s.MaxUploadBytes
	}
	return DefaultMaxUploadBytes
}

func kindNoun(kind string) string {
	if kind == storage.KindImage {
		return "image"
	}
	return "audio"
}

// AttachImage uploads an image and appends it to the report. Pothole and
// cleanliness reports also get the image analyzed; analysis problems never
// fail the upload.
func (s *Service) AttachImage(ctx context.Context, id string, up Upload, c Caller) (*ImageResult, error) {
	r, url, err := s.prepareUpload(ctx, id, up, storage.KindImage, c)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	var analysis *models.AIAnalysis
	if analyzedCategories[r.Category] && s.Analyzer != nil {
		analysis = s.Analyzer.AnalyzeImage(ctx, r.Category, up.ContentType, up.Data).AsAIAnalysis(now)
		if err := s.Store.SetAIAnalysis(ctx, r.ID, analysis); err != nil {
			s.Logger.Warn("store image analysis", zap.String("report_id", r.ID), zap.Error(err))
		}
	}

	updated, err := s.Store.AppendImage(ctx, r.ID, models.Image{URL: url, Caption: up.Caption, UploadedAt: now})
	if err != nil {
		s.discardObject(ctx, r.ID, url)
		return nil, storeErr("attach image", err)
	}
	s.Logger.Info("image attached", zap.String("report_id", r.ID), zap.String("url", url), zap.Bool("analyzed", analysis != nil))
	s.record(ctx, analytics.EventAttachmentAdded, updated, c.ID)

	res := &ImageResult{ImageURL: url, Analysis: analysis, Report: updated}
	if analysis != nil {
		res.ImageValidation = analysis.IsValid
	}
	return res, nil
}

// AttachAudio uploads a recording and appends it to the report.
func (s *Service) AttachAudio(ctx context.Context, id string, up Upload, c Caller) (*AudioResult, error) {
	if up.Duration < 0 {
		return nil, apperr.Validation("duration must not be negative")
	}
	r, url, err := s.prepareUpload(ctx, id, up, storage.KindAudio, c)
	if err != nil {
		return nil, err
	}
	updated, err := s.Store.AppendAudio(ctx, r.ID, models.Audio{
		URL:           url,
		Duration:      up.Duration,
		Transcription: up.Transcription,
		UploadedAt:    s.now().UTC(),
	})
	if err != nil {
		s.discardObject(ctx, r.ID, url)
		return nil, storeErr("attach audio", err)
	}
	s.Logger.Info("audio attached", zap.String("report_id", r.ID), zap.String("url", url))
	s.record(ctx, analytics.EventAttachmentAdded, updated, c.ID)
	return &AudioResult{AudioURL: url, Report: updated}, nil
}

// discardObject removes an uploaded object whose report row could not be
// updated, e.g. because the report was deleted meanwhile.
func (s *Service) discardObject(ctx context.Context, reportID, url string) {
	if err := s.Objects.Delete(ctx, url); err != nil && !errors.Is(err, storage.ErrForeignURL) {
		s.Logger.Warn("discard orphaned upload", zap.String("report_id", reportID), zap.String("url", url), zap.Error(err))
	}
}
