package models

import "time"

// PredictionStatus tracks whether a prediction held up.
type PredictionStatus string

const (
	PredictionActive        PredictionStatus = "active"
	PredictionVerified      PredictionStatus = "verified"
	PredictionResolved      PredictionStatus = "resolved"
	PredictionFalsePositive PredictionStatus = "false_positive"
)

// Valid reports whether s is a known prediction status.
func (s PredictionStatus) Valid() bool {
	switch s {
	case PredictionActive, PredictionVerified, PredictionResolved, PredictionFalsePositive:
		return true
	}
	return false
}

// Factor is a named contributor to a prediction.
type Factor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// HistoricalData summarizes the reports a prediction was derived from.
type HistoricalData struct {
	ReportCount int    `json:"reportCount"`
	TimeFrame   string `json:"timeFrame"`
	Pattern     string `json:"pattern"`
}

// TimeFrame is a closed time interval.
type TimeFrame struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Prediction forecasts a recurring issue around a location.
type Prediction struct {
	ID                 string           `json:"id"`
	Type               Category         `json:"type"`
	Location           Location         `json:"location"`
	Radius             float64          `json:"radius"`
	Probability        float64          `json:"probability"`
	Confidence         float64          `json:"confidence"`
	Severity           Severity         `json:"severity"`
	Factors            []Factor         `json:"factors"`
	HistoricalData     HistoricalData   `json:"historicalData"`
	PredictedTimeFrame TimeFrame        `json:"predictedTimeFrame"`
	Status             PredictionStatus `json:"status"`
	RelatedReports     []string         `json:"relatedReports"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// PredictionFilter narrows a prediction listing.
type PredictionFilter struct {
	Status         PredictionStatus
	Type           Category
	MinProbability float64
}
