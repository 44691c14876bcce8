package models

import "time"

// NotificationType classifies why a notification was sent.
type NotificationType string

const (
	NotificationReportStatus          NotificationType = "report_status"
	NotificationEmergencyAlert        NotificationType = "emergency_alert"
	NotificationCommunityAnnouncement NotificationType = "community_announcement"
	NotificationComment               NotificationType = "comment"
	NotificationUpvote                NotificationType = "upvote"
	NotificationAssignment            NotificationType = "assignment"
	NotificationResolution            NotificationType = "resolution"
	NotificationPrediction            NotificationType = "prediction"
	NotificationSystem                NotificationType = "system"
)

// Priority of a notification.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Entity models a notification can refer to.
const (
	RelatedReport = "Report"
	RelatedEvent  = "Event"
	RelatedUser   = "User"
	RelatedForum  = "Forum"
	RelatedSystem = "System"
)

// Delivery channels.
const (
	ChannelApp   = "app"
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelPush  = "push"
)

// RelatedTo names the entity a notification is about.
type RelatedTo struct {
	Model string `json:"model"`
	ID    string `json:"id"`
}

// Notification is a directed message to one user.
type Notification struct {
	ID        string           `json:"id"`
	Recipient string           `json:"recipient"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	RelatedTo RelatedTo        `json:"relatedTo"`
	Priority  Priority         `json:"priority"`
	Read      bool             `json:"read"`
	SentVia   []string         `json:"sentVia"`
	CreatedAt time.Time        `json:"createdAt"`
	ExpiresAt *time.Time       `json:"expiresAt,omitempty"`
}

// NotificationFilter narrows a recipient's notification listing.
type NotificationFilter struct {
	Recipient  string
	UnreadOnly bool
}
