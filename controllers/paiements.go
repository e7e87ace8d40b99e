package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tresorerie/config"
	"tresorerie/models"
	"tresorerie/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func GetPaymentRequestDocByID(ctx context.Context, idPaiement string) (*models.PaymentRequest, error) {
	var request models.PaymentRequest
	err := config.PaymentRequestCollection.FindOne(ctx, bson.M{"id_paiement": idPaiement}).Decode(&request)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrEntityNotFound
		}
		return nil, err
	}
	return &request, nil
}

// CreatePaymentRequest opens a standalone payment demand. The due amount is
// fixed here, at creation; there is no proforma step.
func CreatePaymentRequest(c *gin.Context) {
	var input struct {
		Requester string  `json:"requester" binding:"required"`
		ChannelID string  `json:"channel_id"`
		Motif     string  `json:"motif" binding:"required"`
		Montant   float64 `json:"montant" binding:"required"`
		Devise    string  `json:"devise" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	montant, err := ValidateAmount(input.Montant)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !ValidCurrency(input.Devise) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported currency"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	idPaiement, err := utils.NextEntityID(ctx, utils.EntityPaiement)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to allocate payment request identifier"})
		return
	}

	now := time.Now()
	request := models.PaymentRequest{
		IDPaiement:      idPaiement,
		Statut:          models.StatusPending,
		Requester:       input.Requester,
		ChannelID:       input.ChannelID,
		Motif:           input.Motif,
		Montant:         montant,
		Devise:          input.Devise,
		Payments:        []models.Payment{},
		RemainingAmount: montant,
		PaymentStatus:   models.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if _, err := config.PaymentRequestCollection.InsertOne(ctx, request); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create payment request"})
		return
	}

	go utils.NotifyAdmins(fmt.Sprintf("Nouvelle demande de paiement %s (%.2f %s) par %s",
		idPaiement, montant, input.Devise, utils.ResolveDisplayName(input.Requester)))

	c.JSON(http.StatusCreated, request)
}

func GetPaymentRequest(c *gin.Context) {
	// Fail fast on identifiers that can not possibly name a payment request.
	if prefix, err := utils.ParseEntityID(c.Param("id")); err != nil || prefix != utils.EntityPaiement {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Identifiant invalide"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	request, err := GetPaymentRequestDocByID(ctx, c.Param("id"))
	if err != nil {
		if err == models.ErrEntityNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment request not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve payment request"})
		}
		return
	}

	c.JSON(http.StatusOK, request)
}

func GetAllPaymentRequests(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{}
	if statut := c.Query("statut"); statut != "" {
		filter["statut"] = statut
	}

	cursor, err := config.PaymentRequestCollection.Find(ctx, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve payment requests"})
		return
	}
	defer cursor.Close(ctx)

	var requests []models.PaymentRequest
	if err = cursor.All(ctx, &requests); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode payment requests"})
		return
	}

	c.JSON(http.StatusOK, requests)
}

func ValidatePaymentRequest(c *gin.Context) {
	idPaiement := c.Param("id")
	actor := c.GetString("userID")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{"id_paiement": idPaiement, "statut": models.StatusPending, "is_approved_once": false}
	update := bson.M{"$set": bson.M{
		"statut":           models.StatusApproved,
		"approved_by":      actor,
		"is_approved_once": true,
		"updated_at":       time.Now(),
	}}

	var request models.PaymentRequest
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := config.PaymentRequestCollection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&request)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate payment request"})
			return
		}
		if _, lookupErr := GetPaymentRequestDocByID(ctx, idPaiement); lookupErr != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment request not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notice": "Cette demande a déjà été traitée."})
		return
	}

	go utils.NotifyChannel(request.ChannelID, fmt.Sprintf("Demande de paiement %s validée.", idPaiement))

	c.JSON(http.StatusOK, request)
}

func RejectPaymentRequest(c *gin.Context) {
	idPaiement := c.Param("id")
	actor := c.GetString("userID")

	var input struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrRejectionNeedsReason.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{"id_paiement": idPaiement, "statut": models.StatusPending, "is_approved_once": false}
	update := bson.M{"$set": bson.M{
		"statut":           models.StatusRejected,
		"rejection_reason": input.Reason,
		"approved_by":      actor,
		"is_approved_once": true,
		"updated_at":       time.Now(),
	}}

	var request models.PaymentRequest
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := config.PaymentRequestCollection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&request)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reject payment request"})
			return
		}
		if _, lookupErr := GetPaymentRequestDocByID(ctx, idPaiement); lookupErr != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment request not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notice": "Cette demande a déjà été traitée."})
		return
	}

	go utils.NotifyChannel(request.ChannelID, fmt.Sprintf("Demande de paiement %s rejetée: %s", idPaiement, input.Reason))

	c.JSON(http.StatusOK, request)
}

// RecordRequestPayment appends a payment to a validated payment request.
// Same pre-commit checks and compare-and-swap append as order payments; the
// due amount is simply the fixed montant.
func RecordRequestPayment(c *gin.Context) {
	idPaiement := c.Param("id")
	actor := c.GetString("userID")

	var input struct {
		PaymentMode   string   `json:"payment_mode" binding:"required"`
		AmountPaid    float64  `json:"amount_paid" binding:"required"`
		Fee           float64  `json:"fee"`
		PaymentTitle  string   `json:"payment_title"`
		PaymentProofs []string `json:"payment_proofs"`
		Details       string   `json:"details"`
		CaisseID      string   `json:"caisse_id"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, err := ValidateAmount(input.AmountPaid)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Cash and Mobile Money always move through a caisse; recording them
	// without one would skip the balance mutation and the solvency gate.
	if IsCashEquivalent(input.PaymentMode) && input.CaisseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Une caisse est requise pour un paiement en espèces ou Mobile Money"})
		return
	}

	payment := models.Payment{
		PaymentID:     uuid.New().String(),
		PaymentMode:   input.PaymentMode,
		AmountPaid:    amount,
		Fee:           input.Fee,
		PaymentTitle:  input.PaymentTitle,
		PaymentProofs: input.PaymentProofs,
		Details:       input.Details,
		Status:        "Réglé",
		CaisseID:      input.CaisseID,
		RecordedBy:    actor,
		DateSubmitted: time.Now(),
	}
	payment = NormalizePaymentFee(payment)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	request, err := GetPaymentRequestDocByID(ctx, idPaiement)
	if err != nil {
		if err == models.ErrEntityNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment request not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve payment request"})
		}
		return
	}
	if request.Statut != models.StatusApproved {
		c.JSON(http.StatusBadRequest, gin.H{"error": "La demande doit être validée avant tout paiement"})
		return
	}

	due := request.Montant
	current := RecomputeLedger(request.Payments, due)
	if err := ValidateNewPayment(payment, current.RemainingAmount); err != nil {
		if err == models.ErrOverpaymentRejected {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Le montant dépasse le restant dû"})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	var caisseObjID primitive.ObjectID
	debited := false
	cashOut := FeeInclusiveAmount(payment)
	if IsCashEquivalent(payment.PaymentMode) {
		caisseObjID, err = primitive.ObjectIDFromHex(input.CaisseID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid caisse ID"})
			return
		}
		tx := models.CaisseTransaction{
			Type:        models.TxDisbursement,
			ReferenceID: idPaiement,
			Details:     fmt.Sprintf("Paiement %s (%s)", payment.PaymentID, payment.PaymentMode),
			Actor:       actor,
		}
		if _, err := ApplyCashMovement(ctx, caisseObjID, request.Devise, -cashOut, tx); err != nil {
			switch err {
			case models.ErrInsufficientFunds:
				c.JSON(http.StatusBadRequest, gin.H{"error": "Solde insuffisant dans la caisse"})
			case models.ErrEntityNotFound:
				c.JSON(http.StatusNotFound, gin.H{"error": "Caisse not found"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to debit caisse"})
			}
			return
		}
		debited = true
	}

	appended := false
	for attempt := 0; attempt < paymentAppendAttempts; attempt++ {
		newPayments := append(append([]models.Payment{}, request.Payments...), payment)
		ledger := RecomputeLedger(newPayments, due)

		filter := bson.M{
			"id_paiement": idPaiement,
			"amount_paid": request.AmountPaid,
			"statut":      models.StatusApproved,
		}
		update := bson.M{
			"$push": bson.M{"payments": payment},
			"$set": bson.M{
				"amount_paid":      ledger.AmountPaid,
				"remaining_amount": ledger.RemainingAmount,
				"payment_status":   ledger.PaymentStatus,
				"payment_done":     ledger.PaymentDone,
				"updated_at":       time.Now(),
			},
		}
		result, err := config.PaymentRequestCollection.UpdateOne(ctx, filter, update)
		if err != nil {
			break
		}
		if result.MatchedCount == 1 {
			appended = true
			break
		}

		request, err = GetPaymentRequestDocByID(ctx, idPaiement)
		if err != nil {
			break
		}
		current = RecomputeLedger(request.Payments, due)
		if ValidateNewPayment(payment, current.RemainingAmount) != nil {
			break
		}
	}

	if !appended {
		if debited {
			CompensateMovement(ctx, caisseObjID, request.Devise, cashOut, idPaiement, "paiement non enregistré")
		}
		c.JSON(http.StatusConflict, gin.H{"error": "Le paiement n'a pas pu être enregistré, veuillez réessayer"})
		return
	}

	ledger := RecomputeLedger(append(request.Payments, payment), due)
	go utils.NotifyChannel(request.ChannelID, fmt.Sprintf("Paiement de %.2f %s enregistré sur %s (restant: %.2f %s)",
		payment.AmountPaid, request.Devise, idPaiement, ledger.RemainingAmount, request.Devise))
	go utils.ExportEntitySnapshot(idPaiement)

	c.JSON(http.StatusOK, gin.H{"payment": payment, "ledger": ledger})
}
