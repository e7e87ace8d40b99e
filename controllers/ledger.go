package controllers

import (
	"fmt"
	"math"
	"strconv"

	"tresorerie/models"
)

// LedgerState is the set of derived fields cached on an Order or a
// PaymentRequest. It is always recomputed in full from the payments array
// and the due amount, never incremented, so a partial update can not make
// the cache drift from the payments it summarizes.
type LedgerState struct {
	AmountPaid      float64 `json:"amount_paid"`
	RemainingAmount float64 `json:"remaining_amount"`
	PaymentStatus   string  `json:"payment_status"`
	PaymentDone     bool    `json:"payment_done"`
}

// ValidateAmount ensures the amount has at most two decimal places and is positive
func ValidateAmount(amount float64) (float64, error) {
	formattedAmount, err := strconv.ParseFloat(fmt.Sprintf("%.2f", amount), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount format")
	}

	if formattedAmount <= 0 {
		return 0, fmt.Errorf("amount must be a positive number")
	}

	return formattedAmount, nil
}

func TruncateToTwoDecimals(value float64) float64 {
	factor := 100.0
	return math.Round(value*factor) / factor
}

// SumPayments is the authoritative total: the full sum of the embedded
// payment records. Fees are not part of the amount reconciled against the
// due amount; they only widen the caisse disbursement.
func SumPayments(payments []models.Payment) float64 {
	total := 0.0
	for _, p := range payments {
		total += p.AmountPaid
	}
	return TruncateToTwoDecimals(total)
}

// RecomputeLedger derives the cached ledger fields from scratch.
func RecomputeLedger(payments []models.Payment, dueAmount float64) LedgerState {
	paid := SumPayments(payments)
	remaining := TruncateToTwoDecimals(dueAmount - paid)
	if remaining < 0 {
		remaining = 0
	}

	status := models.PaymentStatusPending
	switch {
	case paid >= dueAmount && paid > 0:
		status = models.PaymentStatusPaid
	case paid > 0:
		status = models.PaymentStatusPartial
	}

	return LedgerState{
		AmountPaid:      paid,
		RemainingAmount: remaining,
		PaymentStatus:   status,
		PaymentDone:     remaining == 0 && paid > 0,
	}
}

// OrderDueAmount looks up the montant of the single validated proforma.
// Performed fresh on every recomputation; an order with no validated
// proforma has no due amount and can not take payments.
func OrderDueAmount(order *models.Order) (float64, string, error) {
	proforma := order.ValidatedProforma()
	if proforma == nil {
		return 0, "", models.ErrNoValidatedProforma
	}
	return proforma.Montant, proforma.Devise, nil
}

// FeeInclusiveAmount is what a new payment actually costs. Only Mobile Money
// carries a fee; for every other mode the fee field is ignored.
func FeeInclusiveAmount(p models.Payment) float64 {
	if p.PaymentMode == models.PaymentModeMobileMoney {
		return TruncateToTwoDecimals(p.AmountPaid + p.Fee)
	}
	return p.AmountPaid
}

// ValidateNewPayment is the pre-commit overpayment check: the fee-inclusive
// total must fit in the current remaining amount. Called before anything is
// persisted — a rejected payment leaves the payments array untouched.
func ValidateNewPayment(p models.Payment, remaining float64) error {
	amount, err := ValidateAmount(p.AmountPaid)
	if err != nil {
		return err
	}
	p.AmountPaid = amount

	if FeeInclusiveAmount(p) > remaining {
		return models.ErrOverpaymentRejected
	}
	return nil
}

// NormalizePaymentFee zeroes the fee outside Mobile Money so the stored
// record matches what was validated.
func NormalizePaymentFee(p models.Payment) models.Payment {
	if p.PaymentMode != models.PaymentModeMobileMoney {
		p.Fee = 0
	}
	return p
}
