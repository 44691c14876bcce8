package models

import "time"

// Role is a user's privilege level.
type Role string

const (
	RoleResident  Role = "resident"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleResident || r == RoleModerator || r == RoleAdmin
}

// IsStaff reports whether r is an elevated role.
func (r Role) IsStaff() bool {
	return r == RoleModerator || r == RoleAdmin
}

// NotificationPreferences holds per-channel opt-ins.
type NotificationPreferences struct {
	App   bool `json:"app"`
	Email bool `json:"email"`
	Push  bool `json:"push"`
	SMS   bool `json:"sms"`
}

// DefaultPreferences are applied to newly mirrored users.
var DefaultPreferences = NotificationPreferences{App: true, Email: true}

// User is the local mirror of an identity-provider account.
type User struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Email       string                  `json:"email"`
	Role        Role                    `json:"role"`
	Preferences NotificationPreferences `json:"notificationPreferences"`
	FCMToken    string                  `json:"-"`
	IsOnline    bool                    `json:"isOnline"`
	LastSeen    *time.Time              `json:"lastSeen,omitempty"`
	CreatedAt   time.Time               `json:"createdAt"`
}

// UserSummary is the populated form of a user reference.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Summary returns the public fields of u.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}
