package utils

import (
	"testing"
	"time"

	"tresorerie/models"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestDelayThresholdDefault(t *testing.T) {
	t.Setenv("DELAY_THRESHOLD_HOURS", "")
	assert.Equal(t, 24*time.Hour, DelayThreshold())

	t.Setenv("DELAY_THRESHOLD_HOURS", "not-a-number")
	assert.Equal(t, 24*time.Hour, DelayThreshold())

	t.Setenv("DELAY_THRESHOLD_HOURS", "-3")
	assert.Equal(t, 24*time.Hour, DelayThreshold())
}

func TestDelayThresholdFromEnv(t *testing.T) {
	t.Setenv("DELAY_THRESHOLD_HOURS", "48")
	assert.Equal(t, 48*time.Hour, DelayThreshold())
}

func TestCandidateFilter(t *testing.T) {
	cutoff := time.Date(2026, time.August, 26, 12, 0, 0, 0, time.UTC)

	filter := CandidateFilter("admin_reminder_sent", cutoff, bson.M{"statut": models.StatusPending})

	assert.Equal(t, false, filter["admin_reminder_sent"])
	assert.Equal(t, bson.M{"$lt": cutoff}, filter["created_at"])
	assert.Equal(t, models.StatusPending, filter["statut"])
}

func TestCandidateFilterNoExtra(t *testing.T) {
	cutoff := time.Now()
	filter := CandidateFilter("payment_reminder_sent", cutoff, nil)

	assert.Len(t, filter, 2)
	assert.Equal(t, false, filter["payment_reminder_sent"])
}

func TestClaimUpdatePairsFlagAndHistory(t *testing.T) {
	event := models.DelayEvent{Reminder: ReminderAdminOrder, Target: "admin"}
	update := ClaimUpdate("admin_reminder_sent", event)

	assert.Equal(t, bson.M{"admin_reminder_sent": true}, update["$set"])
	assert.Equal(t, bson.M{"delay_history": event}, update["$push"])
}

func TestDelayScansCoverEveryReminderClass(t *testing.T) {
	scans := delayScans()

	classes := make(map[string]bool, len(scans))
	for _, scan := range scans {
		classes[scan.class] = true
		assert.NotEmpty(t, scan.flag, scan.class)
		assert.NotEmpty(t, scan.target, scan.class)
		assert.NotEmpty(t, scan.message("CMD/2026/08/0001"), scan.class)
	}

	for _, class := range []string{ReminderAdminOrder, ReminderAdminPaiement, ReminderPayment, ReminderProforma, ReminderApproval} {
		assert.True(t, classes[class], class)
	}
}

func TestEntityKey(t *testing.T) {
	id, key := entityKey(bson.M{"id_commande": "CMD/2026/08/0001"})
	assert.Equal(t, "CMD/2026/08/0001", id)
	assert.Equal(t, bson.M{"id_commande": "CMD/2026/08/0001"}, key)

	id, key = entityKey(bson.M{"id_paiement": "PAY/2026/08/0002"})
	assert.Equal(t, "PAY/2026/08/0002", id)
	assert.Equal(t, bson.M{"id_paiement": "PAY/2026/08/0002"}, key)

	id, key = entityKey(bson.M{"other": "x"})
	assert.Empty(t, id)
	assert.Nil(t, key)
}
