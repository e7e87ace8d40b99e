package utils

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"tresorerie/config"
	"tresorerie/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Reminder classes scanned by the delay cron.
const (
	ReminderAdminOrder    = "admin_commande"
	ReminderAdminPaiement = "admin_paiement"
	ReminderPayment       = "paiement_en_retard"
	ReminderProforma      = "proforma_manquante"
	ReminderApproval      = "reglement_en_retard"
)

const defaultDelayThresholdHours = 24

// DelayThreshold reads the age an entity must reach before a reminder is
// due. Configuration only; the claim logic does not depend on it.
func DelayThreshold() time.Duration {
	hours, err := strconv.Atoi(os.Getenv("DELAY_THRESHOLD_HOURS"))
	if err != nil || hours <= 0 {
		hours = defaultDelayThresholdHours
	}
	return time.Duration(hours) * time.Hour
}

// CandidateFilter matches entities old enough for a reminder whose flag is
// still unclaimed. extra narrows by status / ledger state per class.
func CandidateFilter(flag string, olderThan time.Time, extra bson.M) bson.M {
	filter := bson.M{
		flag:         false,
		"created_at": bson.M{"$lt": olderThan},
	}
	for k, v := range extra {
		filter[k] = v
	}
	return filter
}

// ClaimUpdate sets the reminder flag and appends the audit event in one
// update, so the flag can never be claimed without its delay_history trace.
func ClaimUpdate(flag string, event models.DelayEvent) bson.M {
	return bson.M{
		"$set":  bson.M{flag: true},
		"$push": bson.M{"delay_history": event},
	}
}

// ClaimReminder attempts the conditional claim on one candidate. The filter
// re-asserts the flag is still false at the moment of the update: of N
// concurrent scans racing on the same entity, exactly one matches. Losing
// returns ErrClaimLost, which callers treat as a normal outcome.
func ClaimReminder(ctx context.Context, coll *mongo.Collection, entityID bson.M, flag string, event models.DelayEvent) error {
	filter := bson.M{flag: false}
	for k, v := range entityID {
		filter[k] = v
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	result := coll.FindOneAndUpdate(ctx, filter, ClaimUpdate(flag, event), opts)
	if err := result.Err(); err != nil {
		if err == mongo.ErrNoDocuments {
			return models.ErrClaimLost
		}
		return err
	}
	return nil
}

type reminderScan struct {
	class      string
	collection func() *mongo.Collection
	flag       string
	extra      bson.M
	target     string
	message    func(id string) string
}

func delayScans() []reminderScan {
	return []reminderScan{
		{
			class:      ReminderAdminOrder,
			collection: func() *mongo.Collection { return config.OrderCollection },
			flag:       "admin_reminder_sent",
			extra:      bson.M{"statut": models.StatusPending},
			target:     "admin",
			message: func(id string) string {
				return fmt.Sprintf("Rappel: la commande %s attend une validation depuis plus de %s.", id, DelayThreshold())
			},
		},
		{
			class:      ReminderAdminPaiement,
			collection: func() *mongo.Collection { return config.PaymentRequestCollection },
			flag:       "admin_reminder_sent",
			extra:      bson.M{"statut": models.StatusPending},
			target:     "admin",
			message: func(id string) string {
				return fmt.Sprintf("Rappel: la demande de paiement %s attend une validation depuis plus de %s.", id, DelayThreshold())
			},
		},
		{
			class:      ReminderProforma,
			collection: func() *mongo.Collection { return config.OrderCollection },
			flag:       "proforma_reminder_sent",
			extra: bson.M{
				"statut":              models.StatusApproved,
				"proformas.validated": bson.M{"$ne": true},
			},
			target: "admin",
			message: func(id string) string {
				return fmt.Sprintf("Rappel: la commande %s n'a toujours pas de proforma validée.", id)
			},
		},
		{
			class:      ReminderPayment,
			collection: func() *mongo.Collection { return config.OrderCollection },
			flag:       "payment_reminder_sent",
			extra: bson.M{
				"statut":              models.StatusApproved,
				"payment_done":        false,
				"proformas.validated": true,
			},
			target: "finance",
			message: func(id string) string {
				return fmt.Sprintf("Rappel: la commande %s validée n'est pas encore réglée.", id)
			},
		},
		{
			class:      ReminderApproval,
			collection: func() *mongo.Collection { return config.PaymentRequestCollection },
			flag:       "approval_reminder_sent",
			extra: bson.M{
				"statut":       models.StatusApproved,
				"payment_done": false,
			},
			target: "finance",
			message: func(id string) string {
				return fmt.Sprintf("Rappel: la demande de paiement %s validée n'est pas encore réglée.", id)
			},
		},
	}
}

// entityKey extracts the natural identifier of a scanned document.
func entityKey(doc bson.M) (string, bson.M) {
	if id, ok := doc["id_commande"].(string); ok && id != "" {
		return id, bson.M{"id_commande": id}
	}
	if id, ok := doc["id_paiement"].(string); ok && id != "" {
		return id, bson.M{"id_paiement": id}
	}
	return "", nil
}

// RunDelayScans is the cron body. For every reminder class it lists the
// candidates, then races a conditional claim per candidate; only claim
// winners send the reminder. Runs may overlap across ticks and across
// process instances; the conditional claim is the only dedup.
func RunDelayScans() {
	log.Println("delay scan started")
	cutoff := time.Now().Add(-DelayThreshold())

	for _, scan := range delayScans() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)

		cursor, err := scan.collection().Find(ctx, CandidateFilter(scan.flag, cutoff, scan.extra))
		if err != nil {
			log.Printf("delay scan %s: candidate query failed: %v", scan.class, err)
			cancel()
			continue
		}

		var candidates []bson.M
		if err := cursor.All(ctx, &candidates); err != nil {
			log.Printf("delay scan %s: decoding candidates failed: %v", scan.class, err)
			cancel()
			continue
		}

		for _, doc := range candidates {
			id, key := entityKey(doc)
			if key == nil {
				continue
			}

			event := models.DelayEvent{
				Reminder:  scan.class,
				Target:    scan.target,
				Details:   scan.message(id),
				Timestamp: time.Now(),
			}
			err := ClaimReminder(ctx, scan.collection(), key, scan.flag, event)
			if err == models.ErrClaimLost {
				// Another scan got there first. Normal, not an error.
				ClaimsLost.WithLabelValues(scan.class).Inc()
				continue
			}
			if err != nil {
				log.Printf("delay scan %s: claim on %s failed: %v", scan.class, id, err)
				continue
			}

			// Claim committed; delivery failure must not unset it.
			channel, _ := doc["channel_id"].(string)
			if scan.target == "admin" {
				NotifyAdmins(event.Details)
			} else {
				NotifyChannel(channel, event.Details)
			}
			RemindersSent.WithLabelValues(scan.class).Inc()
			log.Printf("delay scan %s: reminder sent for %s", scan.class, id)
		}

		cancel()
	}

	log.Println("delay scan completed")
}
