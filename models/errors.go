package models

import "errors"

// Domain errors shared between controllers and the scheduler. Validation
// errors are pre-commit: when one is returned, nothing was persisted.
var (
	ErrInvalidIdentifier    = errors.New("invalid identifier: unknown entity prefix")
	ErrEntityNotFound       = errors.New("entity not found")
	ErrNoValidatedProforma  = errors.New("no validated proforma on order")
	ErrOverpaymentRejected  = errors.New("payment exceeds remaining amount")
	ErrInsufficientFunds    = errors.New("insufficient caisse balance")
	ErrAlreadyProcessed     = errors.New("entity already processed")
	ErrClaimLost            = errors.New("reminder already claimed")
	ErrPaymentsExist        = errors.New("payments already recorded against validated proforma")
	ErrProformaNotFound     = errors.New("proforma not found on order")
	ErrRejectionNeedsReason = errors.New("rejection requires a reason")
)
