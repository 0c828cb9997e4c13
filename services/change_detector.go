package services

import (
	"strings"

	"passport-server/models"
)

// FieldChange is one detected difference in a tracked passport field, with
// values already rendered for display in a notification.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
}

const (
	noTextSentinel = "Not specified"
	noListSentinel = "None"
)

type fieldKind int

const (
	textField fieldKind = iota
	listField
)

type trackedField struct {
	label string
	kind  fieldKind
	text  func(p *models.Passport) string
	list  func(p *models.Passport) []string
}

// trackedFields is the fixed set of passport fields that trigger follower
// notifications when they change. Trusted contact and passcode are
// deliberately not tracked.
var trackedFields = []trackedField{
	{label: "Preferred Name", kind: textField, text: func(p *models.Passport) string { return p.PreferredName }},
	{label: "Pronouns", kind: textField, text: func(p *models.Passport) string { return p.Pronouns }},
	{label: "Diagnoses", kind: listField, list: func(p *models.Passport) []string { return p.Diagnoses }},
	{label: "Custom Diagnosis", kind: textField, text: func(p *models.Passport) string { return p.CustomDiagnosis }},
	{label: "Health Alerts", kind: listField, list: func(p *models.Passport) []string { return p.HealthAlerts }},
	{label: "Custom Health Alert", kind: textField, text: func(p *models.Passport) string { return p.CustomHealthAlert }},
	{label: "Allergy Details", kind: textField, text: func(p *models.Passport) string { return p.AllergyDetails }},
	{label: "Communication Preferences", kind: listField, list: func(p *models.Passport) []string { return p.CommunicationPreferences }},
	{label: "Custom Communication Preference", kind: textField, text: func(p *models.Passport) string { return p.CustomCommPreference }},
	{label: "Triggers", kind: textField, text: func(p *models.Passport) string { return p.Triggers }},
	{label: "Likes", kind: textField, text: func(p *models.Passport) string { return p.Likes }},
	{label: "Dislikes", kind: textField, text: func(p *models.Passport) string { return p.Dislikes }},
	{label: "Other Information", kind: textField, text: func(p *models.Passport) string { return p.OtherInformation }},
}

// DetectPassportChanges compares a pre-update snapshot against the updated
// passport and returns one FieldChange per tracked field that differs, in
// declaration order. A nil snapshot is treated as an empty passport so a
// first-time passport still produces diffs.
func DetectPassportChanges(before, after *models.Passport) []FieldChange {
	if before == nil {
		before = &models.Passport{}
	}
	if after == nil {
		after = &models.Passport{}
	}

	var changes []FieldChange
	for _, f := range trackedFields {
		switch f.kind {
		case textField:
			oldVal := strings.TrimSpace(f.text(before))
			newVal := strings.TrimSpace(f.text(after))
			if oldVal != newVal {
				changes = append(changes, FieldChange{
					Field:    f.label,
					OldValue: renderText(oldVal),
					NewValue: renderText(newVal),
				})
			}
		case listField:
			oldList := f.list(before)
			newList := f.list(after)
			if !equalStringSlices(oldList, newList) {
				changes = append(changes, FieldChange{
					Field:    f.label,
					OldValue: renderList(oldList),
					NewValue: renderList(newList),
				})
			}
		}
	}
	return changes
}

// Order-sensitive: a reorder with identical members still counts as a change.
func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if strings.TrimSpace(a[i]) != strings.TrimSpace(b[i]) {
			return false
		}
	}
	return true
}

func renderText(s string) string {
	if s == "" {
		return noTextSentinel
	}
	return s
}

func renderList(items []string) string {
	if len(items) == 0 {
		return noListSentinel
	}
	return strings.Join(items, ", ")
}
