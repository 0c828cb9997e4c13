package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passport-server/models"
)

func TestDetectPassportChanges_IdenticalSnapshots(t *testing.T) {
	p := &models.Passport{
		PreferredName: "Alex",
		Pronouns:      "they/them",
		Diagnoses:     []string{"Autism", "ADHD"},
		Triggers:      "loud noises",
	}
	other := *p
	other.Diagnoses = []string{"Autism", "ADHD"}

	changes := DetectPassportChanges(p, &other)
	assert.Empty(t, changes)
}

func TestDetectPassportChanges_SingleTextField(t *testing.T) {
	before := &models.Passport{Triggers: ""}
	after := &models.Passport{Triggers: "loud noises"}

	changes := DetectPassportChanges(before, after)
	require.Len(t, changes, 1)
	assert.Equal(t, "Triggers", changes[0].Field)
	assert.Equal(t, "Not specified", changes[0].OldValue)
	assert.Equal(t, "loud noises", changes[0].NewValue)
}

func TestDetectPassportChanges_NilBeforeTreatedAsEmpty(t *testing.T) {
	after := &models.Passport{PreferredName: "Sam"}

	changes := DetectPassportChanges(nil, after)
	require.Len(t, changes, 1)
	assert.Equal(t, "Preferred Name", changes[0].Field)
	assert.Equal(t, "Not specified", changes[0].OldValue)
	assert.Equal(t, "Sam", changes[0].NewValue)
}

func TestDetectPassportChanges_TrimmedStringsEqual(t *testing.T) {
	before := &models.Passport{Likes: "  trains "}
	after := &models.Passport{Likes: "trains"}

	assert.Empty(t, DetectPassportChanges(before, after))
}

func TestDetectPassportChanges_ListReorderCounts(t *testing.T) {
	// Order-sensitive comparison: a reorder with the same members is a change.
	before := &models.Passport{HealthAlerts: []string{"Epilepsy", "Asthma"}}
	after := &models.Passport{HealthAlerts: []string{"Asthma", "Epilepsy"}}

	changes := DetectPassportChanges(before, after)
	require.Len(t, changes, 1)
	assert.Equal(t, "Health Alerts", changes[0].Field)
	assert.Equal(t, "Epilepsy, Asthma", changes[0].OldValue)
	assert.Equal(t, "Asthma, Epilepsy", changes[0].NewValue)
}

func TestDetectPassportChanges_ListSentinels(t *testing.T) {
	before := &models.Passport{Diagnoses: []string{"Autism"}}
	after := &models.Passport{}

	changes := DetectPassportChanges(before, after)
	require.Len(t, changes, 1)
	assert.Equal(t, "Diagnoses", changes[0].Field)
	assert.Equal(t, "Autism", changes[0].OldValue)
	assert.Equal(t, "None", changes[0].NewValue)
}

func TestDetectPassportChanges_UntrackedFieldsIgnored(t *testing.T) {
	before := &models.Passport{
		Passcode:       "TEST1234",
		TrustedContact: models.TrustedContact{Name: "Jordan", Phone: "555-0100"},
	}
	after := &models.Passport{
		Passcode:       "OTHER999",
		TrustedContact: models.TrustedContact{Name: "Riley", Phone: "555-0199"},
	}

	assert.Empty(t, DetectPassportChanges(before, after))
}

func TestDetectPassportChanges_MultipleFieldsInDeclarationOrder(t *testing.T) {
	before := &models.Passport{
		Pronouns: "she/her",
		Dislikes: "crowds",
	}
	after := &models.Passport{
		Pronouns: "they/them",
		Dislikes: "crowds and queues",
	}

	changes := DetectPassportChanges(before, after)
	require.Len(t, changes, 2)
	assert.Equal(t, "Pronouns", changes[0].Field)
	assert.Equal(t, "Dislikes", changes[1].Field)
}
