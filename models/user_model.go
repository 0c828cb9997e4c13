package models

import "time"

type User struct {
	ID           string `json:"id" bson:"_id,omitempty"`
	PublicID     string `json:"public_id" bson:"public_id"`
	Username     string `json:"username" bson:"username"`
	Email        string `json:"email" bson:"email"`
	PasswordHash string `json:"-" bson:"password_hash"`

	Passport *Passport       `json:"passport,omitempty" bson:"passport,omitempty"`
	Privacy  PrivacySettings `json:"privacy" bson:"privacy"`

	Following       []RelationshipEntry `json:"following" bson:"following"`
	Followers       []RelationshipEntry `json:"followers" bson:"followers"`
	SentRequests    []RelationshipEntry `json:"sent_requests" bson:"sent_requests"`
	PendingRequests []RelationshipEntry `json:"pending_requests" bson:"pending_requests"`
	Blocked         []RelationshipEntry `json:"blocked" bson:"blocked"`

	// User IDs whose notifications are hidden without being deleted.
	MutedSenders []string `json:"muted_senders" bson:"muted_senders"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// RelationshipEntry is one edge endpoint stored on a user document.
type RelationshipEntry struct {
	UserID string    `json:"user_id" bson:"user_id"`
	At     time.Time `json:"at" bson:"at"`
}

type PrivacySettings struct {
	AllowFollowRequests bool `json:"allow_follow_requests" bson:"allow_follow_requests"`
	ShowInSearch        bool `json:"show_in_search" bson:"show_in_search"`
}

// DefaultPrivacySettings applies to newly registered users.
func DefaultPrivacySettings() PrivacySettings {
	return PrivacySettings{AllowFollowRequests: true, ShowInSearch: true}
}

// Passport is the shareable communication profile. PasscodeNorm is the
// uppercase, dash-stripped form used as the public lookup key and for the
// uniqueness index; Passcode keeps whatever the user typed.
type Passport struct {
	PreferredName string `json:"preferred_name" bson:"preferred_name"`
	Pronouns      string `json:"pronouns" bson:"pronouns"`

	Diagnoses       []string `json:"diagnoses" bson:"diagnoses"`
	CustomDiagnosis string   `json:"custom_diagnosis" bson:"custom_diagnosis"`

	HealthAlerts      []string `json:"health_alerts" bson:"health_alerts"`
	CustomHealthAlert string   `json:"custom_health_alert" bson:"custom_health_alert"`
	AllergyDetails    string   `json:"allergy_details" bson:"allergy_details"`

	CommunicationPreferences []string `json:"communication_preferences" bson:"communication_preferences"`
	CustomCommPreference     string   `json:"custom_comm_preference" bson:"custom_comm_preference"`

	Triggers         string `json:"triggers" bson:"triggers"`
	Likes            string `json:"likes" bson:"likes"`
	Dislikes         string `json:"dislikes" bson:"dislikes"`
	OtherInformation string `json:"other_information" bson:"other_information"`

	TrustedContact TrustedContact `json:"trusted_contact" bson:"trusted_contact"`

	Passcode     string `json:"passcode" bson:"passcode"`
	PasscodeNorm string `json:"-" bson:"passcode_norm,omitempty"`

	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

type TrustedContact struct {
	Name  string `json:"name" bson:"name"`
	Phone string `json:"phone" bson:"phone"`
	Email string `json:"email,omitempty" bson:"email,omitempty"`
}
