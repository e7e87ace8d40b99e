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
)

// ValidateTransferSubmission runs the submission-time checks. The balance
// check here is advisory only — funds can move before approval, so approval
// re-checks through the atomic debit itself.
func ValidateTransferSubmission(fromCaisse, toCaisse, currency string, amount float64, sourceBalances map[string]float64) error {
	if fromCaisse == toCaisse {
		return fmt.Errorf("source and destination caisses must differ")
	}
	if amount <= 0 {
		return fmt.Errorf("amount must be a positive number")
	}
	if !ValidCurrency(currency) {
		return fmt.Errorf("unsupported currency")
	}
	if sourceBalances[currency] < amount {
		return models.ErrInsufficientFunds
	}
	return nil
}

func SubmitTransfer(c *gin.Context) {
	fromID := c.Param("id")
	actor := c.GetString("userID")

	var input struct {
		ToCaisse string  `json:"to_caisse" binding:"required"`
		Amount   float64 `json:"amount" binding:"required"`
		Currency string  `json:"currency" binding:"required"`
		Motif    string  `json:"motif"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	source, err := GetCaisseDocByID(ctx, fromID)
	if err != nil {
		if err == models.ErrEntityNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Source caisse not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve source caisse"})
		}
		return
	}
	if _, err := GetCaisseDocByID(ctx, input.ToCaisse); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Destination caisse not found"})
		return
	}

	amount := TruncateToTwoDecimals(input.Amount)
	if err := ValidateTransferSubmission(fromID, input.ToCaisse, input.Currency, amount, source.Balances); err != nil {
		if err == models.ErrInsufficientFunds {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Solde insuffisant dans la caisse source"})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	now := time.Now()
	transfer := models.TransferRequest{
		TransferID: uuid.New().String(),
		FromCaisse: fromID,
		ToCaisse:   input.ToCaisse,
		Amount:     amount,
		Currency:   input.Currency,
		Status:     models.StatusPending,
		Motif:      input.Motif,
		Workflow: models.Workflow{
			Stage: models.StageInitialRequest,
			History: []models.WorkflowStep{{
				Stage:     models.StageInitialRequest,
				Actor:     actor,
				Details:   input.Motif,
				Timestamp: now,
			}},
		},
		CreatedAt: now,
	}

	update := bson.M{"$push": bson.M{"transfer_requests": transfer}}
	if _, err := config.CaisseCollection.UpdateOne(ctx, bson.M{"_id": source.ID}, update); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit transfer"})
		return
	}

	go utils.NotifyChannel(source.ChannelID, fmt.Sprintf("Demande de transfert de %.2f %s vers la caisse %s soumise.",
		amount, input.Currency, input.ToCaisse))

	c.JSON(http.StatusCreated, transfer)
}

// setTransferStatus flips one embedded transfer request from an expected
// status to a new one, appending the workflow step in the same update. The
// elemMatch filter is the compare-and-swap: a request no longer in the
// expected status matches nothing.
func setTransferStatus(ctx context.Context, caisseID primitive.ObjectID, transferID, expected, status string, step models.WorkflowStep) error {
	filter := bson.M{
		"_id":               caisseID,
		"transfer_requests": bson.M{"$elemMatch": bson.M{"transfer_id": transferID, "status": expected}},
	}
	update := bson.M{
		"$set":  bson.M{"transfer_requests.$.status": status},
		"$push": bson.M{"transfer_requests.$.workflow.history": step},
	}
	result, err := config.CaisseCollection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return models.ErrAlreadyProcessed
	}
	return nil
}

func findTransfer(caisse *models.Caisse, transferID string) *models.TransferRequest {
	for i := range caisse.TransferRequests {
		if caisse.TransferRequests[i].TransferID == transferID {
			return &caisse.TransferRequests[i]
		}
	}
	return nil
}

// ApproveTransfer executes an approved transfer: claim the request, debit
// the source, credit the destination. The claim prevents a concurrent
// double approval; an insufficient source balance releases the claim and
// leaves the request En attente for resubmission or rejection; a failed
// destination credit compensates the source debit before reporting failure.
func ApproveTransfer(c *gin.Context) {
	caisseID := c.Param("id")
	transferID := c.Param("transferId")
	actor := c.GetString("userID")

	var input struct {
		Comment string `json:"comment"`
	}
	_ = c.ShouldBindJSON(&input)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	source, err := GetCaisseDocByID(ctx, caisseID)
	if err != nil {
		if err == models.ErrEntityNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Caisse not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve caisse"})
		}
		return
	}

	transfer := findTransfer(source, transferID)
	if transfer == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Transfer request not found"})
		return
	}

	destObjID, err := primitive.ObjectIDFromHex(transfer.ToCaisse)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid destination caisse on transfer"})
		return
	}

	// Claim: En attente -> Approuvé. A repeat approval is a benign notice.
	step := models.WorkflowStep{
		Stage:     models.StageApproved,
		Actor:     actor,
		Details:   input.Comment,
		Timestamp: time.Now(),
	}
	if err := setTransferStatus(ctx, source.ID, transferID, models.StatusPending, models.StatusRequestApproved, step); err != nil {
		if err == models.ErrAlreadyProcessed {
			c.JSON(http.StatusOK, gin.H{"notice": "Ce transfert a déjà été traité."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to approve transfer"})
		return
	}

	// Debit side. The movement filter re-checks the balance atomically:
	// funds may have moved since submission.
	debitTx := models.CaisseTransaction{
		Type:        models.TxTransferOut,
		ReferenceID: transfer.TransferID,
		Details:     fmt.Sprintf("Transfert vers caisse %s", transfer.ToCaisse),
		Actor:       actor,
	}
	if _, err := ApplyCashMovement(ctx, source.ID, transfer.Currency, -transfer.Amount, debitTx); err != nil {
		// Release the claim so the request can be resubmitted or rejected.
		release := models.WorkflowStep{
			Stage:     models.StageInitialRequest,
			Actor:     actor,
			Details:   "approbation annulée: solde insuffisant",
			Timestamp: time.Now(),
		}
		if relErr := setTransferStatus(ctx, source.ID, transferID, models.StatusRequestApproved, models.StatusPending, release); relErr != nil {
			utils.EscalateFailure("Transfert bloqué", "Transfert "+transferID+": claim non libéré après échec du débit")
		}
		if err == models.ErrInsufficientFunds {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Solde insuffisant dans la caisse source"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to debit source caisse"})
		}
		return
	}

	// Credit side, cross-referenced by the shared transfer id.
	creditTx := models.CaisseTransaction{
		Type:        models.TxTransferIn,
		ReferenceID: transfer.TransferID,
		Details:     fmt.Sprintf("Transfert depuis caisse %s", transfer.FromCaisse),
		Actor:       actor,
	}
	if _, err := ApplyCashMovement(ctx, destObjID, transfer.Currency, transfer.Amount, creditTx); err != nil {
		// The destination credit did not land: reverse the source debit so
		// neither side of the transfer is visible.
		CompensateMovement(ctx, source.ID, transfer.Currency, transfer.Amount, transfer.TransferID, "crédit destination échoué")
		release := models.WorkflowStep{
			Stage:     models.StageInitialRequest,
			Actor:     actor,
			Details:   "approbation annulée: crédit destination échoué",
			Timestamp: time.Now(),
		}
		if relErr := setTransferStatus(ctx, source.ID, transferID, models.StatusRequestApproved, models.StatusPending, release); relErr != nil {
			utils.EscalateFailure("Transfert bloqué", "Transfert "+transferID+": claim non libéré après compensation")
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to credit destination caisse"})
		return
	}

	go utils.NotifyChannel(source.ChannelID, fmt.Sprintf("Transfert %s de %.2f %s approuvé par %s.",
		transferID, transfer.Amount, transfer.Currency, utils.ResolveDisplayName(actor)))

	c.JSON(http.StatusOK, gin.H{
		"transfer_id": transferID,
		"status":      models.StatusRequestApproved,
	})
}

func RejectTransfer(c *gin.Context) {
	caisseID := c.Param("id")
	transferID := c.Param("transferId")
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

	source, err := GetCaisseDocByID(ctx, caisseID)
	if err != nil {
		if err == models.ErrEntityNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Caisse not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve caisse"})
		}
		return
	}
	if findTransfer(source, transferID) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Transfer request not found"})
		return
	}

	step := models.WorkflowStep{
		Stage:     models.StageRejected,
		Actor:     actor,
		Details:   input.Reason,
		Timestamp: time.Now(),
	}
	if err := setTransferStatus(ctx, source.ID, transferID, models.StatusPending, models.StatusRejected, step); err != nil {
		if err == models.ErrAlreadyProcessed {
			c.JSON(http.StatusOK, gin.H{"notice": "Ce transfert a déjà été traité."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reject transfer"})
		return
	}

	go utils.NotifyChannel(source.ChannelID, fmt.Sprintf("Transfert %s rejeté: %s", transferID, input.Reason))

	c.JSON(http.StatusOK, gin.H{"transfer_id": transferID, "status": models.StatusRejected})
}

func GetCaisseTransfers(c *gin.Context) {
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

	c.JSON(http.StatusOK, caisse.TransferRequests)
}
