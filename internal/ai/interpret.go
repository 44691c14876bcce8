package ai

import (
	"strings"
	"unicode"

	"github.com/patrickwarner/nest/internal/models"
)

// Analysis is the structured reading of an image-analysis completion.
type Analysis struct {
	IsValid    bool            `json:"isValid"`
	Severity   models.Severity `json:"severity"`
	Confidence float64         `json:"confidence"`
	Tags       []string        `json:"tags"`
	Text       string          `json:"analysis"`
}

var categoryTags = map[models.Category][]string{
	models.CategoryPothole:     {"large", "deep", "multiple"},
	models.CategoryCleanliness: {"garbage", "debris", "graffiti"},
}

// FailedAnalysis is the result used when the completion could not be obtained.
func FailedAnalysis() Analysis {
	return Analysis{IsValid: false, Severity: models.SeverityLow, Confidence: 0, Tags: []string{}, Text: "Failed to analyze image"}
}

// InterpretImageAnalysis extracts validity, severity and tags from free text
// by keyword matching. The text is valid when it says "yes", or when it
// carries no negation at all.
func InterpretImageAnalysis(category models.Category, text string) Analysis {
	words := wordSet(text)

	valid := words["yes"] || (!words["no"] && !words["not"])

	severity := models.SeverityLow
	if words["medium"] {
		severity = models.SeverityMedium
	}
	if words["high"] {
		severity = models.SeverityHigh
	}

	tags := []string{}
	for _, tag := range categoryTags[category] {
		if words[tag] {
			tags = append(tags, tag)
		}
	}

	confidence := 0.3
	if valid {
		confidence = 0.8
	}
	return Analysis{IsValid: valid, Severity: severity, Confidence: confidence, Tags: tags, Text: text}
}

func wordSet(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
