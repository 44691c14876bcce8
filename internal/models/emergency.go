package models

import (
	"encoding/json"
	"time"
)

// EmergencyAlert is a transient alert raised by a connected user.
type EmergencyAlert struct {
	ID          string          `json:"id"`
	UserID      string          `json:"-"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Location    json.RawMessage `json:"location"`
	Timestamp   time.Time       `json:"timestamp"`
}
