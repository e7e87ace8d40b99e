package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Entity and payment statuses. Kept in French to match the identifiers and
// the notification texts the finance team reads.
const (
	StatusPending  = "En attente"
	StatusApproved = "Validé"
	StatusRejected = "Rejeté"

	PaymentStatusPending = "En attente"
	PaymentStatusPartial = "Paiement Partiel"
	PaymentStatusPaid    = "Payé"
)

// Payment modes that route through a caisse, and the one that carries a fee.
const (
	PaymentModeCash        = "Espèces"
	PaymentModeCheque      = "Chèque"
	PaymentModeVirement    = "Virement"
	PaymentModeMobileMoney = "Mobile Money"
)

type Article struct {
	Designation string  `bson:"designation" json:"designation"`
	Quantity    float64 `bson:"quantity" json:"quantity"`
	Details     string  `bson:"details,omitempty" json:"details,omitempty"`
}

// Proforma is a supplier quote attached to an order. Validating one fixes
// the order's due amount; at most one may be validated at a time.
type Proforma struct {
	Nom         string    `bson:"nom" json:"nom"`
	Montant     float64   `bson:"montant" json:"montant"`
	Devise      string    `bson:"devise" json:"devise"`
	FileURL     string    `bson:"file_url,omitempty" json:"file_url,omitempty"`
	Validated   bool      `bson:"validated" json:"validated"`
	ValidatedAt time.Time `bson:"validated_at,omitempty" json:"validated_at,omitempty"`
	ValidatedBy string    `bson:"validated_by,omitempty" json:"validated_by,omitempty"`
}

// Payment is embedded in an Order or a PaymentRequest. Once settled it is
// immutable except through the modification flow, which recomputes the
// parent ledger from scratch.
type Payment struct {
	PaymentID     string    `bson:"payment_id" json:"payment_id"`
	PaymentMode   string    `bson:"payment_mode" json:"payment_mode"`
	AmountPaid    float64   `bson:"amount_paid" json:"amount_paid"`
	Fee           float64   `bson:"fee,omitempty" json:"fee,omitempty"`
	PaymentTitle  string    `bson:"payment_title,omitempty" json:"payment_title,omitempty"`
	PaymentProofs []string  `bson:"payment_proofs,omitempty" json:"payment_proofs,omitempty"`
	Details       string    `bson:"details,omitempty" json:"details,omitempty"`
	Status        string    `bson:"status" json:"status"`
	CaisseID      string    `bson:"caisse_id,omitempty" json:"caisse_id,omitempty"`
	RecordedBy    string    `bson:"recorded_by,omitempty" json:"recorded_by,omitempty"`
	DateSubmitted time.Time `bson:"date_submitted" json:"date_submitted"`
}

// DelayEvent is one entry of the delay_history audit log, appended by the
// scheduler together with the reminder flag claim.
type DelayEvent struct {
	Reminder  string    `bson:"reminder" json:"reminder"`
	Target    string    `bson:"target" json:"target"`
	Details   string    `bson:"details,omitempty" json:"details,omitempty"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

type Order struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	IDCommande string             `bson:"id_commande" json:"id_commande"`
	Statut     string             `bson:"statut" json:"statut"`
	Requester  string             `bson:"requester" json:"requester"`
	ChannelID  string             `bson:"channel_id,omitempty" json:"channel_id,omitempty"`
	Articles   []Article          `bson:"articles" json:"articles"`
	Proformas  []Proforma         `bson:"proformas" json:"proformas"`
	Payments   []Payment          `bson:"payments" json:"payments"`

	// Cached ledger fields. amount_paid must always equal the sum of
	// payments[].amount_paid; remaining_amount never goes negative.
	AmountPaid      float64 `bson:"amount_paid" json:"amount_paid"`
	RemainingAmount float64 `bson:"remaining_amount" json:"remaining_amount"`
	PaymentStatus   string  `bson:"payment_status" json:"payment_status"`
	PaymentDone     bool    `bson:"payment_done" json:"payment_done"`

	RejectionReason string `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	ApprovedBy      string `bson:"approved_by,omitempty" json:"approved_by,omitempty"`
	IsApprovedOnce  bool   `bson:"is_approved_once" json:"is_approved_once"`

	AdminReminderSent    bool         `bson:"admin_reminder_sent" json:"admin_reminder_sent"`
	PaymentReminderSent  bool         `bson:"payment_reminder_sent" json:"payment_reminder_sent"`
	ProformaReminderSent bool         `bson:"proforma_reminder_sent" json:"proforma_reminder_sent"`
	DelayHistory         []DelayEvent `bson:"delay_history,omitempty" json:"delay_history,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// ValidatedProforma returns the single validated proforma, if any.
func (o *Order) ValidatedProforma() *Proforma {
	for i := range o.Proformas {
		if o.Proformas[i].Validated {
			return &o.Proformas[i]
		}
	}
	return nil
}
