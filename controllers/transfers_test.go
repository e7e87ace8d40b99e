package controllers

import (
	"testing"

	"tresorerie/models"

	"github.com/stretchr/testify/assert"
)

func TestValidateTransferSubmission(t *testing.T) {
	balances := map[string]float64{
		models.CurrencyXOF: 10000,
		models.CurrencyUSD: 50,
		models.CurrencyEUR: 0,
	}

	err := ValidateTransferSubmission("caisseA", "caisseB", models.CurrencyXOF, 5000, balances)
	assert.NoError(t, err)
}

func TestValidateTransferSubmissionSameCaisse(t *testing.T) {
	err := ValidateTransferSubmission("caisseA", "caisseA", models.CurrencyXOF, 100, map[string]float64{models.CurrencyXOF: 1000})
	assert.Error(t, err)
}

func TestValidateTransferSubmissionBadAmount(t *testing.T) {
	balances := map[string]float64{models.CurrencyXOF: 1000}

	assert.Error(t, ValidateTransferSubmission("caisseA", "caisseB", models.CurrencyXOF, 0, balances))
	assert.Error(t, ValidateTransferSubmission("caisseA", "caisseB", models.CurrencyXOF, -50, balances))
}

func TestValidateTransferSubmissionBadCurrency(t *testing.T) {
	err := ValidateTransferSubmission("caisseA", "caisseB", "GBP", 100, map[string]float64{"GBP": 1000})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrInsufficientFunds)
}

func TestValidateTransferSubmissionInsufficientFunds(t *testing.T) {
	balances := map[string]float64{models.CurrencyUSD: 50}

	err := ValidateTransferSubmission("caisseA", "caisseB", models.CurrencyUSD, 51, balances)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	// The exact balance is still spendable.
	err = ValidateTransferSubmission("caisseA", "caisseB", models.CurrencyUSD, 50, balances)
	assert.NoError(t, err)
}
