package utils

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"tresorerie/config"
	"tresorerie/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

var connectOnce sync.Once

// connectTestDB wires the collections against a throwaway database. Skipped
// unless MONGO_TEST_URI is set, so the unit tests run without a server.
func connectTestDB(t *testing.T) {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	connectOnce.Do(func() {
		os.Setenv("MONGO_URI", uri)
		os.Setenv("MONGO_DB", "tresorerie_test")
		config.ConnectDatabase()
	})
}

func TestNextEntityIDConcurrentUniqueness(t *testing.T) {
	connectTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// A dedicated entity type keeps the counter isolated from other runs.
	entityType := "TST" + uuid.New().String()[:8]

	const n = 40
	ids := make(chan string, n)
	errs := make(chan error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := NextEntityID(ctx, entityType)
			if err != nil {
				errs <- err
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	seen := make(map[string]bool, n)
	for id := range ids {
		assert.False(t, seen[id], "duplicate identifier %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestClaimReminderSingleWinner(t *testing.T) {
	connectTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	idCommande := "CMD/TEST/" + uuid.New().String()
	_, err := config.OrderCollection.InsertOne(ctx, models.Order{
		IDCommande: idCommande,
		Statut:     models.StatusPending,
		CreatedAt:  time.Now().Add(-48 * time.Hour),
	})
	require.NoError(t, err)
	defer config.OrderCollection.DeleteOne(context.Background(), bson.M{"id_commande": idCommande})

	const n = 20
	results := make(chan error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			event := models.DelayEvent{
				Reminder:  ReminderAdminOrder,
				Target:    "admin",
				Timestamp: time.Now(),
			}
			results <- ClaimReminder(ctx, config.OrderCollection, bson.M{"id_commande": idCommande}, "admin_reminder_sent", event)
		}()
	}
	wg.Wait()
	close(results)

	winners, losers := 0, 0
	for err := range results {
		switch err {
		case nil:
			winners++
		case models.ErrClaimLost:
			losers++
		default:
			require.NoError(t, err)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, n-1, losers)

	var order models.Order
	err = config.OrderCollection.FindOne(ctx, bson.M{"id_commande": idCommande}).Decode(&order)
	require.NoError(t, err)
	assert.True(t, order.AdminReminderSent)
	assert.Len(t, order.DelayHistory, 1)
}
