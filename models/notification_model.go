package models

import "time"

const (
	NotificationFollowRequest  = "follow_request"
	NotificationFollowAccepted = "follow_accepted"
	NotificationFollowDenied   = "follow_denied"
	NotificationPassportUpdate = "passport_update"
	NotificationGeneral        = "general"
)

// NotificationTTL is the retention window; expired rows are purged by the
// store's TTL index, not by a scheduler.
const NotificationTTL = 30 * 24 * time.Hour

type Notification struct {
	ID             string         `json:"id" bson:"_id,omitempty"`
	RecipientID    string         `json:"recipient_id" bson:"recipient_id"`
	SenderID       string         `json:"sender_id" bson:"sender_id"`
	SenderUsername string         `json:"sender_username" bson:"sender_username"`
	Type           string         `json:"type" bson:"type"`
	Title          string         `json:"title" bson:"title"`
	Message        string         `json:"message" bson:"message"`
	Data           map[string]any `json:"data,omitempty" bson:"data,omitempty"`

	Read   bool       `json:"read" bson:"read"`
	ReadAt *time.Time `json:"read_at,omitempty" bson:"read_at,omitempty"`

	ActionTaken   bool       `json:"action_taken" bson:"action_taken"`
	ActionTakenAt *time.Time `json:"action_taken_at,omitempty" bson:"action_taken_at,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
}

// IsExpired reports whether the notification is past its retention window
// but not yet reaped by the TTL index.
func (n Notification) IsExpired(now time.Time) bool {
	return now.After(n.ExpiresAt)
}
