package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PaymentRequest is a standalone payment demand. Unlike an Order its due
// amount is fixed at creation, so no proforma step is involved.
type PaymentRequest struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	IDPaiement string             `bson:"id_paiement" json:"id_paiement"`
	Statut     string             `bson:"statut" json:"statut"`
	Requester  string             `bson:"requester" json:"requester"`
	ChannelID  string             `bson:"channel_id,omitempty" json:"channel_id,omitempty"`
	Motif      string             `bson:"motif" json:"motif"`
	Montant    float64            `bson:"montant" json:"montant"`
	Devise     string             `bson:"devise" json:"devise"`

	Payments        []Payment `bson:"payments" json:"payments"`
	AmountPaid      float64   `bson:"amount_paid" json:"amount_paid"`
	RemainingAmount float64   `bson:"remaining_amount" json:"remaining_amount"`
	PaymentStatus   string    `bson:"payment_status" json:"payment_status"`
	PaymentDone     bool      `bson:"payment_done" json:"payment_done"`

	RejectionReason string `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	ApprovedBy      string `bson:"approved_by,omitempty" json:"approved_by,omitempty"`
	IsApprovedOnce  bool   `bson:"is_approved_once" json:"is_approved_once"`

	AdminReminderSent    bool         `bson:"admin_reminder_sent" json:"admin_reminder_sent"`
	ApprovalReminderSent bool         `bson:"approval_reminder_sent" json:"approval_reminder_sent"`
	DelayHistory         []DelayEvent `bson:"delay_history,omitempty" json:"delay_history,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
