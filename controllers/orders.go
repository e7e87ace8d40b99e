package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
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

const paymentAppendAttempts = 3

func GetOrderDocByID(ctx context.Context, idCommande string) (*models.Order, error) {
	var order models.Order
	err := config.OrderCollection.FindOne(ctx, bson.M{"id_commande": idCommande}).Decode(&order)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrEntityNotFound
		}
		return nil, err
	}
	return &order, nil
}

func CreateOrder(c *gin.Context) {
	var input struct {
		Requester string            `json:"requester" binding:"required"`
		ChannelID string            `json:"channel_id"`
		Articles  []models.Article  `json:"articles" binding:"required"`
		Proformas []models.Proforma `json:"proformas"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	idCommande, err := utils.NextEntityID(ctx, utils.EntityOrder)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to allocate order identifier"})
		return
	}

	// Submitted proformas always start unvalidated; validation is a separate
	// admin action that fixes the due amount.
	for i := range input.Proformas {
		input.Proformas[i].Validated = false
		input.Proformas[i].ValidatedAt = time.Time{}
		input.Proformas[i].ValidatedBy = ""
	}

	now := time.Now()
	order := models.Order{
		IDCommande:    idCommande,
		Statut:        models.StatusPending,
		Requester:     input.Requester,
		ChannelID:     input.ChannelID,
		Articles:      input.Articles,
		Proformas:     input.Proformas,
		Payments:      []models.Payment{},
		PaymentStatus: models.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if _, err := config.OrderCollection.InsertOne(ctx, order); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create order"})
		return
	}

	go utils.NotifyAdmins(fmt.Sprintf("Nouvelle commande %s soumise par %s", idCommande, utils.ResolveDisplayName(input.Requester)))

	c.JSON(http.StatusCreated, order)
}

func GetOrder(c *gin.Context) {
	// Fail fast on identifiers that can not possibly name an order.
	if prefix, err := utils.ParseEntityID(c.Param("id")); err != nil || prefix != utils.EntityOrder {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Identifiant invalide"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	order, err := GetOrderDocByID(ctx, c.Param("id"))
	if err != nil {
		if err == models.ErrEntityNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve order"})
		}
		return
	}

	c.JSON(http.StatusOK, order)
}

func GetAllOrders(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{}
	if statut := c.Query("statut"); statut != "" {
		filter["statut"] = statut
	}

	cursor, err := config.OrderCollection.Find(ctx, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve orders"})
		return
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err = cursor.All(ctx, &orders); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode orders"})
		return
	}

	c.JSON(http.StatusOK, orders)
}

// ValidateOrder moves a pending order to Validé. The update filter doubles
// as the isApprovedOnce guard: a second validation matches nothing and comes
// back as a benign "already processed" notice.
func ValidateOrder(c *gin.Context) {
	idCommande := c.Param("id")
	actor := c.GetString("userID")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{"id_commande": idCommande, "statut": models.StatusPending, "is_approved_once": false}
	update := bson.M{"$set": bson.M{
		"statut":           models.StatusApproved,
		"approved_by":      actor,
		"is_approved_once": true,
		"updated_at":       time.Now(),
	}}

	var order models.Order
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := config.OrderCollection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&order)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate order"})
			return
		}
		if _, lookupErr := GetOrderDocByID(ctx, idCommande); lookupErr != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notice": "Cette commande a déjà été traitée."})
		return
	}

	go utils.NotifyChannel(order.ChannelID, fmt.Sprintf("Commande %s validée.", idCommande))

	c.JSON(http.StatusOK, order)
}

func RejectOrder(c *gin.Context) {
	idCommande := c.Param("id")
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

	filter := bson.M{"id_commande": idCommande, "statut": models.StatusPending, "is_approved_once": false}
	update := bson.M{"$set": bson.M{
		"statut":           models.StatusRejected,
		"rejection_reason": input.Reason,
		"approved_by":      actor,
		"is_approved_once": true,
		"updated_at":       time.Now(),
	}}

	var order models.Order
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := config.OrderCollection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&order)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reject order"})
			return
		}
		if _, lookupErr := GetOrderDocByID(ctx, idCommande); lookupErr != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notice": "Cette commande a déjà été traitée."})
		return
	}

	go utils.NotifyChannel(order.ChannelID, fmt.Sprintf("Commande %s rejetée: %s", idCommande, input.Reason))

	c.JSON(http.StatusOK, order)
}

func AddProforma(c *gin.Context) {
	idCommande := c.Param("id")

	var proforma models.Proforma
	if err := c.ShouldBindJSON(&proforma); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	montant, err := ValidateAmount(proforma.Montant)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !ValidCurrency(proforma.Devise) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported currency"})
		return
	}
	proforma.Montant = montant
	proforma.Validated = false
	proforma.ValidatedAt = time.Time{}
	proforma.ValidatedBy = ""

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	update := bson.M{
		"$push": bson.M{"proformas": proforma},
		"$set":  bson.M{"updated_at": time.Now()},
	}
	result, err := config.OrderCollection.UpdateOne(ctx, bson.M{"id_commande": idCommande}, update)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add proforma"})
		return
	}
	if result.MatchedCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Proforma ajoutée"})
}

// ValidatedProformaSet returns a proformas array where exactly the requested
// index is validated. It is always written as a whole, which is what keeps
// the "at most one validated" invariant: whichever write lands last, the
// array holds a single validated entry.
func ValidatedProformaSet(proformas []models.Proforma, index int, actor string, at time.Time) ([]models.Proforma, error) {
	if index < 0 || index >= len(proformas) {
		return nil, models.ErrProformaNotFound
	}
	out := make([]models.Proforma, len(proformas))
	copy(out, proformas)
	for i := range out {
		out[i].Validated = false
		out[i].ValidatedAt = time.Time{}
		out[i].ValidatedBy = ""
	}
	out[index].Validated = true
	out[index].ValidatedAt = at
	out[index].ValidatedBy = actor
	return out, nil
}

// ValidateProforma fixes the order's due amount. Switching to a different
// proforma is only possible while no payment exists: the update filter
// requires an empty payments array, so a payment recorded concurrently (or
// before) makes this a no-op instead of silently changing the due amount
// under existing payments.
func ValidateProforma(c *gin.Context) {
	idCommande := c.Param("id")
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid proforma index"})
		return
	}
	actor := c.GetString("userID")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	order, err := GetOrderDocByID(ctx, idCommande)
	if err != nil {
		if err == models.ErrEntityNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve order"})
		}
		return
	}

	if len(order.Payments) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrPaymentsExist.Error()})
		return
	}

	proformas, err := ValidatedProformaSet(order.Proformas, index, actor, time.Now())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Proforma not found"})
		return
	}

	filter := bson.M{"id_commande": idCommande, "payments": bson.M{"$size": 0}}
	update := bson.M{"$set": bson.M{"proformas": proformas, "updated_at": time.Now()}}
	result, err := config.OrderCollection.UpdateOne(ctx, filter, update)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate proforma"})
		return
	}
	if result.MatchedCount == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrPaymentsExist.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Proforma validée",
		"montant": proformas[index].Montant,
		"devise":  proformas[index].Devise,
	})
}

// PaymentAppendFilter is the compare-and-swap filter for appending a payment.
// The parent must still be approved, hold the amount_paid the new ledger was
// computed from, and still price against a validated proforma of the same
// montant — so both a concurrent append and a concurrent proforma switch make
// the write match nothing instead of persisting a ledger computed against a
// stale due amount.
func PaymentAppendFilter(idCommande string, amountPaid, due float64) bson.M {
	return bson.M{
		"id_commande": idCommande,
		"amount_paid": amountPaid,
		"statut":      models.StatusApproved,
		"proformas":   bson.M{"$elemMatch": bson.M{"validated": true, "montant": due}},
	}
}

// RecordOrderPayment appends a payment to a validated order. Overpayment and
// insufficient caisse funds are both checked before anything is committed.
// The ledger fields are recomputed from the full payments array and written
// with a compare-and-swap on amount_paid, so a concurrent append forces a
// re-read instead of a lost update.
func RecordOrderPayment(c *gin.Context) {
	idCommande := c.Param("id")
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

	order, err := GetOrderDocByID(ctx, idCommande)
	if err != nil {
		if err == models.ErrEntityNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve order"})
		}
		return
	}
	if order.Statut != models.StatusApproved {
		c.JSON(http.StatusBadRequest, gin.H{"error": "La commande doit être validée avant tout paiement"})
		return
	}

	due, devise, err := OrderDueAmount(order)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Aucune proforma validée: paiement bloqué"})
		return
	}

	current := RecomputeLedger(order.Payments, due)
	if err := ValidateNewPayment(payment, current.RemainingAmount); err != nil {
		if err == models.ErrOverpaymentRejected {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Le montant dépasse le restant dû"})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	// Cash-equivalent payments debit the caisse first: the movement is the
	// atomic insufficient-funds gate. If the ledger append can not land
	// afterwards, the debit is compensated.
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
			ReferenceID: idCommande,
			Details:     fmt.Sprintf("Paiement %s (%s)", payment.PaymentID, payment.PaymentMode),
			Actor:       actor,
		}
		if _, err := ApplyCashMovement(ctx, caisseObjID, devise, -cashOut, tx); err != nil {
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
		newPayments := append(append([]models.Payment{}, order.Payments...), payment)
		ledger := RecomputeLedger(newPayments, due)

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
		result, err := config.OrderCollection.UpdateOne(ctx, PaymentAppendFilter(idCommande, order.AmountPaid, due), update)
		if err != nil {
			break
		}
		if result.MatchedCount == 1 {
			appended = true
			break
		}

		// Someone appended concurrently, or the validated proforma was
		// switched while payments were still empty: re-read, re-derive the
		// due amount and re-validate against the latest persisted state.
		order, err = GetOrderDocByID(ctx, idCommande)
		if err != nil {
			break
		}
		newDue, newDevise, dueErr := OrderDueAmount(order)
		if dueErr != nil {
			break
		}
		if debited && newDevise != devise {
			// The caisse debit already went out in the old currency.
			break
		}
		due, devise = newDue, newDevise
		if ValidateNewPayment(payment, RecomputeLedger(order.Payments, due).RemainingAmount) != nil {
			break
		}
	}

	if !appended {
		if debited {
			CompensateMovement(ctx, caisseObjID, devise, cashOut, idCommande, "paiement non enregistré")
		}
		c.JSON(http.StatusConflict, gin.H{"error": "Le paiement n'a pas pu être enregistré, veuillez réessayer"})
		return
	}

	ledger := RecomputeLedger(append(order.Payments, payment), due)
	go utils.NotifyChannel(order.ChannelID, fmt.Sprintf("Paiement de %.2f %s enregistré sur %s (restant: %.2f %s)",
		payment.AmountPaid, devise, idCommande, ledger.RemainingAmount, devise))
	go utils.ExportEntitySnapshot(idCommande)

	c.JSON(http.StatusOK, gin.H{"payment": payment, "ledger": ledger})
}

// AdjustmentTransaction builds the caisse movement record of a payment
// modification. The signed amount set by ApplyCashMovement carries the
// direction; the type marks it as an adjustment in either direction so the
// log stays reconstructible per operation kind.
func AdjustmentTransaction(referenceID, paymentID, actor string) models.CaisseTransaction {
	return models.CaisseTransaction{
		Type:        models.TxAdjustment,
		ReferenceID: referenceID,
		Details:     fmt.Sprintf("Modification du paiement %s", paymentID),
		Actor:       actor,
	}
}

// ModifyOrderPayment replaces the amount of an existing payment. The parent
// ledger is recomputed from scratch, and any caisse-backed payment is
// adjusted by the difference, with the same insufficient-funds hard stop.
func ModifyOrderPayment(c *gin.Context) {
	idCommande := c.Param("id")
	paymentID := c.Param("paymentId")
	actor := c.GetString("userID")

	var input struct {
		AmountPaid float64 `json:"amount_paid" binding:"required"`
		Fee        float64 `json:"fee"`
		Details    string  `json:"details"`
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	order, err := GetOrderDocByID(ctx, idCommande)
	if err != nil {
		if err == models.ErrEntityNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve order"})
		}
		return
	}

	due, devise, err := OrderDueAmount(order)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Aucune proforma validée"})
		return
	}

	target := -1
	for i := range order.Payments {
		if order.Payments[i].PaymentID == paymentID {
			target = i
			break
		}
	}
	if target == -1 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		return
	}

	old := order.Payments[target]
	newPayments := make([]models.Payment, len(order.Payments))
	copy(newPayments, order.Payments)
	newPayments[target].AmountPaid = amount
	newPayments[target].Fee = input.Fee
	newPayments[target] = NormalizePaymentFee(newPayments[target])
	if input.Details != "" {
		newPayments[target].Details = input.Details
	}

	ledger := RecomputeLedger(newPayments, due)
	if SumPayments(newPayments) > due {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Le montant dépasse le restant dû"})
		return
	}

	// Extra cash out (or back in) for caisse-backed payments.
	delta := FeeInclusiveAmount(newPayments[target]) - FeeInclusiveAmount(old)
	debited := false
	var caisseObjID primitive.ObjectID
	if IsCashEquivalent(old.PaymentMode) && old.CaisseID != "" && delta != 0 {
		caisseObjID, err = primitive.ObjectIDFromHex(old.CaisseID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid caisse ID on payment"})
			return
		}
		tx := AdjustmentTransaction(idCommande, paymentID, actor)
		if _, err := ApplyCashMovement(ctx, caisseObjID, devise, -delta, tx); err != nil {
			switch err {
			case models.ErrInsufficientFunds:
				c.JSON(http.StatusBadRequest, gin.H{"error": "Solde insuffisant dans la caisse"})
			case models.ErrEntityNotFound:
				c.JSON(http.StatusNotFound, gin.H{"error": "Caisse not found"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to adjust caisse"})
			}
			return
		}
		debited = true
	}

	filter := bson.M{"id_commande": idCommande, "amount_paid": order.AmountPaid}
	update := bson.M{"$set": bson.M{
		"payments":         newPayments,
		"amount_paid":      ledger.AmountPaid,
		"remaining_amount": ledger.RemainingAmount,
		"payment_status":   ledger.PaymentStatus,
		"payment_done":     ledger.PaymentDone,
		"updated_at":       time.Now(),
	}}
	result, err := config.OrderCollection.UpdateOne(ctx, filter, update)
	if err != nil || result.MatchedCount == 0 {
		if debited {
			CompensateMovement(ctx, caisseObjID, devise, delta, idCommande, "modification non enregistrée")
		}
		c.JSON(http.StatusConflict, gin.H{"error": "La modification n'a pas pu être enregistrée, veuillez réessayer"})
		return
	}

	go utils.ExportEntitySnapshot(idCommande)

	c.JSON(http.StatusOK, gin.H{"ledger": ledger})
}

// DeleteOrder is the explicit admin removal path; orders are never deleted
// anywhere else.
func DeleteOrder(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := config.OrderCollection.DeleteOne(ctx, bson.M{"id_commande": c.Param("id")})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete order"})
		return
	}
	if result.DeletedCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Commande supprimée"})
}

func IsCashEquivalent(mode string) bool {
	return mode == models.PaymentModeCash || mode == models.PaymentModeMobileMoney
}
