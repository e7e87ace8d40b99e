package controllers

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"tresorerie/config"
	"tresorerie/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var connectOnce sync.Once

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

func insertTestCaisse(t *testing.T, ctx context.Context, balances map[string]float64) primitive.ObjectID {
	t.Helper()
	caisse := models.Caisse{
		Type:             "test",
		Balances:         balances,
		Transactions:     []models.CaisseTransaction{},
		FundingRequests:  []models.FundingRequest{},
		TransferRequests: []models.TransferRequest{},
		CreatedAt:        time.Now(),
	}
	result, err := config.CaisseCollection.InsertOne(ctx, caisse)
	require.NoError(t, err)
	id := result.InsertedID.(primitive.ObjectID)
	t.Cleanup(func() {
		config.CaisseCollection.DeleteOne(context.Background(), bson.M{"_id": id})
	})
	return id
}

func TestApplyCashMovementDebitAndCredit(t *testing.T) {
	connectTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id := insertTestCaisse(t, ctx, map[string]float64{models.CurrencyXOF: 5000})

	balance, err := ApplyCashMovement(ctx, id, models.CurrencyXOF, -2000, models.CaisseTransaction{
		Type:        models.TxDisbursement,
		ReferenceID: "CMD/2026/08/0001",
	})
	require.NoError(t, err)
	assert.Equal(t, 3000.0, balance)

	balance, err = ApplyCashMovement(ctx, id, models.CurrencyXOF, 500, models.CaisseTransaction{
		Type:        models.TxFunding,
		ReferenceID: "FIN/2026/08/0001",
	})
	require.NoError(t, err)
	assert.Equal(t, 3500.0, balance)

	caisse, err := GetCaisseDocByID(ctx, id.Hex())
	require.NoError(t, err)
	require.Len(t, caisse.Transactions, 2)
	assert.Equal(t, -2000.0, caisse.Transactions[0].Amount)
	assert.Equal(t, models.CurrencyXOF, caisse.Transactions[0].Currency)
	assert.Equal(t, 500.0, caisse.Transactions[1].Amount)
}

func TestApplyCashMovementInsufficientFunds(t *testing.T) {
	connectTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id := insertTestCaisse(t, ctx, map[string]float64{models.CurrencyUSD: 100})

	_, err := ApplyCashMovement(ctx, id, models.CurrencyUSD, -101, models.CaisseTransaction{
		Type: models.TxDisbursement,
	})
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	// Rejected movement leaves no trace: balance and log are untouched.
	caisse, err := GetCaisseDocByID(ctx, id.Hex())
	require.NoError(t, err)
	assert.Equal(t, 100.0, caisse.Balances[models.CurrencyUSD])
	assert.Empty(t, caisse.Transactions)
}

func TestApplyCashMovementUnknownCaisse(t *testing.T) {
	connectTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := ApplyCashMovement(ctx, primitive.NewObjectID(), models.CurrencyUSD, -10, models.CaisseTransaction{
		Type: models.TxDisbursement,
	})
	assert.ErrorIs(t, err, models.ErrEntityNotFound)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	connectTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// 10 concurrent debits of 1000 against a 5000 balance: exactly 5 land.
	id := insertTestCaisse(t, ctx, map[string]float64{models.CurrencyXOF: 5000})

	const n = 10
	results := make(chan error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ApplyCashMovement(ctx, id, models.CurrencyXOF, -1000, models.CaisseTransaction{
				Type: models.TxDisbursement,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	applied, rejected := 0, 0
	for err := range results {
		switch err {
		case nil:
			applied++
		case models.ErrInsufficientFunds:
			rejected++
		default:
			require.NoError(t, err)
		}
	}
	assert.Equal(t, 5, applied)
	assert.Equal(t, 5, rejected)

	caisse, err := GetCaisseDocByID(ctx, id.Hex())
	require.NoError(t, err)
	assert.Equal(t, 0.0, caisse.Balances[models.CurrencyXOF])
	assert.Len(t, caisse.Transactions, 5)
}

func TestPaymentAppendStaleAfterProformaSwitch(t *testing.T) {
	connectTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	idCommande := "CMD/TEST/" + primitive.NewObjectID().Hex()
	order := models.Order{
		IDCommande: idCommande,
		Statut:     models.StatusApproved,
		Proformas: []models.Proforma{
			{Nom: "Fournisseur A", Montant: 1000, Devise: models.CurrencyUSD, Validated: true},
			{Nom: "Fournisseur B", Montant: 500, Devise: models.CurrencyUSD},
		},
		Payments:        []models.Payment{},
		RemainingAmount: 1000,
		PaymentStatus:   models.PaymentStatusPending,
		CreatedAt:       time.Now(),
	}
	_, err := config.OrderCollection.InsertOne(ctx, order)
	require.NoError(t, err)
	t.Cleanup(func() {
		config.OrderCollection.DeleteOne(context.Background(), bson.M{"id_commande": idCommande})
	})

	// Switch the validated proforma while payments are still empty, as a
	// concurrent proforma validation would.
	switched, err := ValidatedProformaSet(order.Proformas, 1, "admin2", time.Now())
	require.NoError(t, err)
	_, err = config.OrderCollection.UpdateOne(ctx,
		bson.M{"id_commande": idCommande, "payments": bson.M{"$size": 0}},
		bson.M{"$set": bson.M{"proformas": switched}})
	require.NoError(t, err)

	update := bson.M{
		"$push": bson.M{"payments": models.Payment{PaymentID: "p1", PaymentMode: models.PaymentModeVirement, AmountPaid: 900}},
		"$set":  bson.M{"amount_paid": 900.0, "remaining_amount": 100.0},
	}

	// An append whose ledger was computed against the old 1000 due must
	// match nothing now.
	result, err := config.OrderCollection.UpdateOne(ctx, PaymentAppendFilter(idCommande, 0, 1000), update)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.MatchedCount)

	// Recomputed against the fresh due, the same write goes through.
	freshUpdate := bson.M{
		"$push": bson.M{"payments": models.Payment{PaymentID: "p1", PaymentMode: models.PaymentModeVirement, AmountPaid: 400}},
		"$set":  bson.M{"amount_paid": 400.0, "remaining_amount": 100.0},
	}
	result, err = config.OrderCollection.UpdateOne(ctx, PaymentAppendFilter(idCommande, 0, 500), freshUpdate)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.MatchedCount)
}

func TestCompensateMovementRestoresBalance(t *testing.T) {
	connectTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id := insertTestCaisse(t, ctx, map[string]float64{models.CurrencyEUR: 1000})

	_, err := ApplyCashMovement(ctx, id, models.CurrencyEUR, -400, models.CaisseTransaction{
		Type:        models.TxDisbursement,
		ReferenceID: "CMD/2026/08/0009",
	})
	require.NoError(t, err)

	CompensateMovement(ctx, id, models.CurrencyEUR, 400, "CMD/2026/08/0009", "ledger write failed")

	caisse, err := GetCaisseDocByID(ctx, id.Hex())
	require.NoError(t, err)
	assert.Equal(t, 1000.0, caisse.Balances[models.CurrencyEUR])
	require.Len(t, caisse.Transactions, 2)
	assert.Equal(t, models.TxCompensation, caisse.Transactions[1].Type)
}
