package utils

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tresorerie/config"
	"tresorerie/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Entity type prefixes used in human-readable identifiers.
const (
	EntityOrder    = "CMD"
	EntityPaiement = "PAY"
	EntityFunding  = "FIN"
	EntityTransfer = "TRF"
)

// PeriodKey returns the year-month scope of a sequence counter, e.g. "2026-08".
func PeriodKey(t time.Time) string {
	return t.Format("2006-01")
}

// FormatEntityID renders "{PREFIX}/{YYYY}/{MM}/{NNNN}".
func FormatEntityID(prefix string, t time.Time, sequence int64) string {
	return fmt.Sprintf("%s/%s/%04d", prefix, t.Format("2006/01"), sequence)
}

// NextEntityID issues the next identifier for the given entity type, scoped
// to the current year-month. The counter increment is a single atomic upsert:
// two concurrent callers for the same (type, period) can never draw the same
// number. If the store is unavailable the call fails; there is no fallback.
func NextEntityID(ctx context.Context, entityType string) (string, error) {
	now := time.Now()
	period := PeriodKey(now)

	filter := bson.M{"type": entityType, "period": period}
	update := bson.M{"$inc": bson.M{"current_number": 1}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter models.Counter
	err := config.CounterCollection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&counter)
	if err != nil {
		return "", fmt.Errorf("sequence increment for %s/%s: %w", entityType, period, err)
	}

	return FormatEntityID(entityType, now, counter.CurrentNumber), nil
}

// ParseEntityID classifies an identifier by its prefix. Unknown prefixes are
// rejected before any lookup is attempted.
func ParseEntityID(id string) (string, error) {
	prefix, _, found := strings.Cut(id, "/")
	if !found {
		return "", models.ErrInvalidIdentifier
	}
	switch prefix {
	case EntityOrder, EntityPaiement, EntityFunding, EntityTransfer:
		return prefix, nil
	}
	return "", models.ErrInvalidIdentifier
}
