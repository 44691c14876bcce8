package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/nest/internal/models"
)

// Analyzer runs image analysis and chat on top of a Completer.
type Analyzer struct {
	completer Completer
	logger    *zap.Logger
	now       func() time.Time
}

func NewAnalyzer(c Completer, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{completer: c, logger: logger, now: time.Now}
}

// AnalyzeImage never fails: collaborator errors yield FailedAnalysis.
func (a *Analyzer) AnalyzeImage(ctx context.Context, category models.Category, contentType string, image []byte) Analysis {
	if a == nil || a.completer == nil {
		return FailedAnalysis()
	}
	prompt := ImagePrompt(category, contentType, base64.StdEncoding.EncodeToString(image))
	text, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		if !errors.Is(err, ErrDisabled) {
			a.logger.Warn("image analysis failed", zap.String("category", string(category)), zap.Error(err))
		}
		return FailedAnalysis()
	}
	return InterpretImageAnalysis(category, text)
}

// Chat answers message in the context of history.
func (a *Analyzer) Chat(ctx context.Context, message string, history []ChatMessage) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errors.New("message is required")
	}
	if a == nil || a.completer == nil {
		return "", ErrDisabled
	}
	text, err := a.completer.Complete(ctx, ChatPrompt(history, message, a.now()))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// AsAIAnalysis converts the analysis into the form stored on a report.
func (an Analysis) AsAIAnalysis(at time.Time) *models.AIAnalysis {
	return &models.AIAnalysis{
		Confidence: an.Confidence,
		Tags:       append([]string{}, an.Tags...),
		IsValid:    an.IsValid,
		Severity:   an.Severity,
		AnalyzedAt: at,
	}
}
