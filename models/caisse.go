package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Currencies a caisse can hold. Balances for all three are always present
// on the document so $inc never targets a missing field.
const (
	CurrencyXOF = "XOF"
	CurrencyUSD = "USD"
	CurrencyEUR = "EUR"
)

// Transfer and funding requests reuse StatusPending/StatusRejected; their
// approval has its own wording.
const StatusRequestApproved = "Approuvé"

// Funding workflow stages.
const (
	StageInitialRequest = "initial_request"
	StagePreApproved    = "pre_approved"
	StageApproved       = "approved"
	StageRejected       = "rejected"
)

// Caisse transaction types.
const (
	TxDisbursement = "disbursement"
	TxFunding      = "funding"
	TxTransferOut  = "transfer_out"
	TxTransferIn   = "transfer_in"
	TxCompensation = "transfer_compensation"
	TxAdjustment   = "payment_adjustment"
)

// CaisseTransaction is one immutable entry of a caisse's transaction log.
// Amount is signed: negative for disbursements, positive for credits.
type CaisseTransaction struct {
	Type        string    `bson:"type" json:"type"`
	Amount      float64   `bson:"amount" json:"amount"`
	Currency    string    `bson:"currency" json:"currency"`
	ReferenceID string    `bson:"reference_id" json:"reference_id"`
	Details     string    `bson:"details,omitempty" json:"details,omitempty"`
	Actor       string    `bson:"actor,omitempty" json:"actor,omitempty"`
	Timestamp   time.Time `bson:"timestamp" json:"timestamp"`
}

// WorkflowStep is one entry of an approval workflow's audit trail.
type WorkflowStep struct {
	Stage     string    `bson:"stage" json:"stage"`
	Actor     string    `bson:"actor" json:"actor"`
	Details   string    `bson:"details,omitempty" json:"details,omitempty"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

type Workflow struct {
	Stage   string         `bson:"stage" json:"stage"`
	History []WorkflowStep `bson:"history" json:"history"`
}

// FundingRequest asks to credit a caisse. Changed marks that the final
// approval already credited the balance, so a re-approval after a
// correction flow can never credit twice.
type FundingRequest struct {
	RequestID        string    `bson:"request_id" json:"request_id"`
	Amount           float64   `bson:"amount" json:"amount"`
	Currency         string    `bson:"currency" json:"currency"`
	Status           string    `bson:"status" json:"status"`
	DisbursementType string    `bson:"disbursement_type,omitempty" json:"disbursement_type,omitempty"`
	PaymentDetails   string    `bson:"payment_details,omitempty" json:"payment_details,omitempty"`
	RequestedBy      string    `bson:"requested_by" json:"requested_by"`
	Changed          bool      `bson:"changed" json:"changed"`
	Workflow         Workflow  `bson:"workflow" json:"workflow"`
	CreatedAt        time.Time `bson:"created_at" json:"created_at"`
}

type TransferRequest struct {
	TransferID string    `bson:"transfer_id" json:"transfer_id"`
	FromCaisse string    `bson:"from_caisse" json:"from_caisse"`
	ToCaisse   string    `bson:"to_caisse" json:"to_caisse"`
	Amount     float64   `bson:"amount" json:"amount"`
	Currency   string    `bson:"currency" json:"currency"`
	Status     string    `bson:"status" json:"status"`
	Motif      string    `bson:"motif,omitempty" json:"motif,omitempty"`
	Workflow   Workflow  `bson:"workflow" json:"workflow"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

type Caisse struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty" json:"id,omitempty"`
	Type             string              `bson:"type" json:"type"`
	ChannelID        string              `bson:"channel_id" json:"channel_id"`
	Balances         map[string]float64  `bson:"balances" json:"balances"`
	Transactions     []CaisseTransaction `bson:"transactions" json:"transactions"`
	FundingRequests  []FundingRequest    `bson:"funding_requests" json:"funding_requests"`
	TransferRequests []TransferRequest   `bson:"transfer_requests" json:"transfer_requests"`
	CreatedAt        time.Time           `bson:"created_at" json:"created_at"`
}
