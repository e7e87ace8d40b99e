package controllers

import (
	"testing"

	"tresorerie/models"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestValidCurrency(t *testing.T) {
	assert.True(t, ValidCurrency(models.CurrencyXOF))
	assert.True(t, ValidCurrency(models.CurrencyUSD))
	assert.True(t, ValidCurrency(models.CurrencyEUR))
	assert.False(t, ValidCurrency("GBP"))
	assert.False(t, ValidCurrency(""))
}

func TestNewBalancesHasEveryCurrency(t *testing.T) {
	balances := NewBalances()

	assert.Len(t, balances, 3)
	for _, currency := range []string{models.CurrencyXOF, models.CurrencyUSD, models.CurrencyEUR} {
		value, ok := balances[currency]
		assert.True(t, ok, currency)
		assert.Equal(t, 0.0, value)
	}
}

func TestMovementFilterGuardsDisbursements(t *testing.T) {
	id := primitive.NewObjectID()

	filter := MovementFilter(id, models.CurrencyUSD, -250)
	assert.Equal(t, id, filter["_id"])
	assert.Equal(t, bson.M{"$gte": 250.0}, filter["balances.USD"])
}

func TestMovementFilterCreditHasNoBalanceGuard(t *testing.T) {
	id := primitive.NewObjectID()

	filter := MovementFilter(id, models.CurrencyXOF, 5000)
	assert.Equal(t, bson.M{"_id": id}, filter)
}

func TestMovementUpdatePairsBalanceAndLog(t *testing.T) {
	tx := models.CaisseTransaction{Type: models.TxDisbursement, ReferenceID: "CMD/2026/08/0001"}
	update := MovementUpdate(models.CurrencyUSD, -250, tx)

	assert.Equal(t, bson.M{"balances.USD": -250.0}, update["$inc"])
	assert.Equal(t, bson.M{"transactions": tx}, update["$push"])
}
