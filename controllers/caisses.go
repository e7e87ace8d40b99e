package controllers

import (
	"context"
	"log"
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

func ValidCurrency(currency string) bool {
	switch currency {
	case models.CurrencyXOF, models.CurrencyUSD, models.CurrencyEUR:
		return true
	}
	return false
}

// NewBalances returns a zeroed balance map. Every supported currency is
// present from the start so $inc always targets an existing field.
func NewBalances() map[string]float64 {
	return map[string]float64{
		models.CurrencyXOF: 0,
		models.CurrencyUSD: 0,
		models.CurrencyEUR: 0,
	}
}

func GetCaisseDocByID(ctx context.Context, caisseID string) (*models.Caisse, error) {
	objID, err := primitive.ObjectIDFromHex(caisseID)
	if err != nil {
		return nil, models.ErrEntityNotFound
	}
	var caisse models.Caisse
	err = config.CaisseCollection.FindOne(ctx, bson.M{"_id": objID}).Decode(&caisse)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrEntityNotFound
		}
		return nil, err
	}
	return &caisse, nil
}

// MovementFilter builds the match document of a cash movement. For a
// disbursement the filter itself enforces the non-negative balance: the
// update only matches while balances.<currency> still covers the debit.
func MovementFilter(caisseID primitive.ObjectID, currency string, delta float64) bson.M {
	filter := bson.M{"_id": caisseID}
	if delta < 0 {
		filter["balances."+currency] = bson.M{"$gte": -delta}
	}
	return filter
}

// MovementUpdate pairs the balance adjustment with the transaction-log
// append in one update document, so neither can apply without the other.
func MovementUpdate(currency string, delta float64, tx models.CaisseTransaction) bson.M {
	return bson.M{
		"$inc":  bson.M{"balances." + currency: delta},
		"$push": bson.M{"transactions": tx},
	}
}

// ApplyCashMovement adjusts one currency balance of a caisse and appends the
// matching transaction record, atomically. Delta is negative for a
// disbursement, positive for a credit. A disbursement that would drive the
// balance negative matches nothing: no balance change, no transaction entry,
// ErrInsufficientFunds.
func ApplyCashMovement(ctx context.Context, caisseID primitive.ObjectID, currency string, delta float64, tx models.CaisseTransaction) (float64, error) {
	tx.Amount = delta
	tx.Currency = currency
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now()
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Caisse
	err := config.CaisseCollection.FindOneAndUpdate(ctx, MovementFilter(caisseID, currency, delta), MovementUpdate(currency, delta, tx), opts).Decode(&updated)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			return 0, err
		}
		// No match: either the caisse is gone or the balance check failed.
		count, countErr := config.CaisseCollection.CountDocuments(ctx, bson.M{"_id": caisseID})
		if countErr == nil && count == 0 {
			return 0, models.ErrEntityNotFound
		}
		utils.MovementsRejected.WithLabelValues(tx.Type).Inc()
		return 0, models.ErrInsufficientFunds
	}

	return updated.Balances[currency], nil
}

// CompensateMovement reverses a movement whose paired ledger write never
// landed. The compensation carries its own id and the filter skips caisses
// that already hold it, so retrying after an ambiguous failure can not apply
// it twice.
func CompensateMovement(ctx context.Context, caisseID primitive.ObjectID, currency string, amount float64, referenceID, reason string) {
	compID := uuid.New().String()
	tx := models.CaisseTransaction{
		Type:        models.TxCompensation,
		Amount:      amount,
		Currency:    currency,
		ReferenceID: compID,
		Details:     "compensation " + referenceID + ": " + reason,
		Timestamp:   time.Now(),
	}
	filter := bson.M{
		"_id":          caisseID,
		"transactions": bson.M{"$not": bson.M{"$elemMatch": bson.M{"type": models.TxCompensation, "reference_id": compID}}},
	}
	update := MovementUpdate(currency, amount, tx)

	for attempt := 0; attempt < 3; attempt++ {
		result, err := config.CaisseCollection.UpdateOne(ctx, filter, update)
		if err == nil {
			// ModifiedCount == 1: applied now. MatchedCount == 0: a previous
			// attempt already pushed this compensation id.
			if result.ModifiedCount == 1 || result.MatchedCount == 0 {
				return
			}
		}
		log.Printf("compensation of %.2f %s on caisse %s failed (attempt %d): %v", amount, currency, caisseID.Hex(), attempt+1, err)
		time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	}

	log.Printf("ALERTE: compensation of %.2f %s on caisse %s could not be applied (ref %s)", amount, currency, caisseID.Hex(), referenceID)
	utils.EscalateFailure("Compensation de caisse échouée",
		"Caisse "+caisseID.Hex()+": compensation de "+referenceID+" non appliquée ("+reason+")")
}

func CreateCaisse(c *gin.Context) {
	var input struct {
		Type      string `json:"type" binding:"required"`
		ChannelID string `json:"channel_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	caisse := models.Caisse{
		Type:             input.Type,
		ChannelID:        input.ChannelID,
		Balances:         NewBalances(),
		Transactions:     []models.CaisseTransaction{},
		FundingRequests:  []models.FundingRequest{},
		TransferRequests: []models.TransferRequest{},
		CreatedAt:        time.Now(),
	}

	result, err := config.CaisseCollection.InsertOne(ctx, caisse)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create caisse"})
		return
	}

	caisse.ID = result.InsertedID.(primitive.ObjectID)
	c.JSON(http.StatusCreated, caisse)
}

func GetCaisse(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	caisse, err := GetCaisseDocByID(ctx, c.Param("id"))
	if err != nil {
		if err == models.ErrEntityNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Caisse not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve caisse"})
		}
		return
	}

	c.JSON(http.StatusOK, caisse)
}

func GetAllCaisses(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Transaction logs can get long; the listing only needs the header fields.
	projection := bson.M{"transactions": 0}
	cursor, err := config.CaisseCollection.Find(ctx, bson.M{}, options.Find().SetProjection(projection))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve caisses"})
		return
	}
	defer cursor.Close(ctx)

	var caisses []models.Caisse
	if err = cursor.All(ctx, &caisses); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode caisses"})
		return
	}

	c.JSON(http.StatusOK, caisses)
}

func GetCaisseTransactions(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	caisse, err := GetCaisseDocByID(ctx, c.Param("id"))
	if err != nil {
		if err == models.ErrEntityNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Caisse not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve caisse"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"caisse_id":    caisse.ID.Hex(),
		"type":         caisse.Type,
		"balances":     caisse.Balances,
		"transactions": caisse.Transactions,
	})
}

// DisburseFromCaisse records a direct expense against a caisse, outside of
// any order. The movement itself carries the insufficient-funds check.
func DisburseFromCaisse(c *gin.Context) {
	var input struct {
		Amount      float64 `json:"amount" binding:"required"`
		Currency    string  `json:"currency" binding:"required"`
		ReferenceID string  `json:"reference_id" binding:"required"`
		Details     string  `json:"details"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, err := ValidateAmount(input.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !ValidCurrency(input.Currency) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported currency"})
		return
	}

	objID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid caisse ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx := models.CaisseTransaction{
		Type:        models.TxDisbursement,
		ReferenceID: input.ReferenceID,
		Details:     input.Details,
		Actor:       c.GetString("userID"),
	}
	newBalance, err := ApplyCashMovement(ctx, objID, input.Currency, -amount, tx)
	if err != nil {
		switch err {
		case models.ErrInsufficientFunds:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Solde insuffisant dans la caisse"})
		case models.ErrEntityNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "Caisse not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply movement"})
		}
		return
	}

	go utils.ExportCaisseSnapshot(c.Param("id"), input.ReferenceID)

	c.JSON(http.StatusOK, gin.H{"new_balance": newBalance, "currency": input.Currency})
}
