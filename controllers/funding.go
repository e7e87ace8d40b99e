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
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func findFundingRequest(caisse *models.Caisse, requestID string) *models.FundingRequest {
	for i := range caisse.FundingRequests {
		if caisse.FundingRequests[i].RequestID == requestID {
			return &caisse.FundingRequests[i]
		}
	}
	return nil
}

// setFundingStage advances one embedded funding request from an expected
// workflow stage, appending the audit step in the same atomic update.
// extraSet may carry additional fields ("changed", payment details, status).
func setFundingStage(ctx context.Context, caisseID primitive.ObjectID, requestID, expected, stage string, step models.WorkflowStep, extraSet bson.M) error {
	match := bson.M{"request_id": requestID, "workflow.stage": expected}
	set := bson.M{"funding_requests.$.workflow.stage": stage}
	for k, v := range extraSet {
		set["funding_requests.$."+k] = v
	}

	filter := bson.M{"_id": caisseID, "funding_requests": bson.M{"$elemMatch": match}}
	update := bson.M{
		"$set":  set,
		"$push": bson.M{"funding_requests.$.workflow.history": step},
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

func SubmitFundingRequest(c *gin.Context) {
	caisseID := c.Param("id")
	actor := c.GetString("userID")

	var input struct {
		Amount           float64 `json:"amount" binding:"required"`
		Currency         string  `json:"currency" binding:"required"`
		DisbursementType string  `json:"disbursement_type"`
		PaymentDetails   string  `json:"payment_details"`
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	caisse, err := GetCaisseDocByID(ctx, caisseID)
	if err != nil {
		if err == models.ErrEntityNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Caisse not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve caisse"})
		}
		return
	}

	requestID, err := utils.NextEntityID(ctx, utils.EntityFunding)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to allocate funding request identifier"})
		return
	}

	now := time.Now()
	request := models.FundingRequest{
		RequestID:        requestID,
		Amount:           amount,
		Currency:         input.Currency,
		Status:           models.StatusPending,
		DisbursementType: input.DisbursementType,
		PaymentDetails:   input.PaymentDetails,
		RequestedBy:      actor,
		Workflow: models.Workflow{
			Stage: models.StageInitialRequest,
			History: []models.WorkflowStep{{
				Stage:     models.StageInitialRequest,
				Actor:     actor,
				Details:   input.PaymentDetails,
				Timestamp: now,
			}},
		},
		CreatedAt: now,
	}

	update := bson.M{"$push": bson.M{"funding_requests": request}}
	if _, err := config.CaisseCollection.UpdateOne(ctx, bson.M{"_id": caisse.ID}, update); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit funding request"})
		return
	}

	go utils.NotifyAdmins(fmt.Sprintf("Demande d'approvisionnement %s de %.2f %s pour la caisse %s.",
		requestID, amount, input.Currency, caisse.Type))

	c.JSON(http.StatusCreated, request)
}

func PreApproveFunding(c *gin.Context) {
	caisseID := c.Param("id")
	requestID := c.Param("requestId")
	actor := c.GetString("userID")

	var input struct {
		Comment string `json:"comment"`
	}
	_ = c.ShouldBindJSON(&input)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	caisse, err := GetCaisseDocByID(ctx, caisseID)
	if err != nil {
		if err == models.ErrEntityNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Caisse not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve caisse"})
		}
		return
	}
	if findFundingRequest(caisse, requestID) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Funding request not found"})
		return
	}

	step := models.WorkflowStep{
		Stage:     models.StagePreApproved,
		Actor:     actor,
		Details:   input.Comment,
		Timestamp: time.Now(),
	}
	err = setFundingStage(ctx, caisse.ID, requestID, models.StageInitialRequest, models.StagePreApproved, step, nil)
	if err != nil {
		if err == models.ErrAlreadyProcessed {
			c.JSON(http.StatusOK, gin.H{"notice": "Cette demande a déjà été traitée."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to pre-approve funding request"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"request_id": requestID, "stage": models.StagePreApproved})
}

// ApproveFunding is the only workflow transition that touches a balance. The
// stage transition also flips the changed marker, so a second approval
// attempt — including one after a correction resubmission — can never credit
// the caisse twice.
func ApproveFunding(c *gin.Context) {
	caisseID := c.Param("id")
	requestID := c.Param("requestId")
	actor := c.GetString("userID")

	var input struct {
		Comment string `json:"comment"`
	}
	_ = c.ShouldBindJSON(&input)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	caisse, err := GetCaisseDocByID(ctx, caisseID)
	if err != nil {
		if err == models.ErrEntityNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Caisse not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve caisse"})
		}
		return
	}

	request := findFundingRequest(caisse, requestID)
	if request == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Funding request not found"})
		return
	}
	if request.Changed {
		c.JSON(http.StatusOK, gin.H{"notice": "Cette demande a déjà crédité la caisse."})
		return
	}

	step := models.WorkflowStep{
		Stage:     models.StageApproved,
		Actor:     actor,
		Details:   input.Comment,
		Timestamp: time.Now(),
	}
	extra := bson.M{"status": models.StatusRequestApproved, "changed": true}
	err = setFundingStage(ctx, caisse.ID, requestID, models.StagePreApproved, models.StageApproved, step, extra)
	if err != nil {
		if err == models.ErrAlreadyProcessed {
			c.JSON(http.StatusOK, gin.H{"notice": "Cette demande a déjà été traitée."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to approve funding request"})
		return
	}

	tx := models.CaisseTransaction{
		Type:        models.TxFunding,
		ReferenceID: requestID,
		Details:     "Approvisionnement " + request.DisbursementType,
		Actor:       actor,
	}
	newBalance, err := ApplyCashMovement(ctx, caisse.ID, request.Currency, request.Amount, tx)
	if err != nil {
		// Put the request back so the credit can be retried; the changed
		// marker is cleared because no credit was applied.
		revert := models.WorkflowStep{
			Stage:     models.StagePreApproved,
			Actor:     actor,
			Details:   "approbation annulée: crédit non appliqué",
			Timestamp: time.Now(),
		}
		revertSet := bson.M{"status": models.StatusPending, "changed": false}
		if revErr := setFundingStage(ctx, caisse.ID, requestID, models.StageApproved, models.StagePreApproved, revert, revertSet); revErr != nil {
			utils.EscalateFailure("Approvisionnement bloqué", "Demande "+requestID+": crédit non appliqué et étape non rétablie")
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to credit caisse"})
		return
	}

	go utils.NotifyChannel(caisse.ChannelID, fmt.Sprintf("Approvisionnement %s approuvé: +%.2f %s (nouveau solde: %.2f).",
		requestID, request.Amount, request.Currency, newBalance))
	go utils.ExportCaisseSnapshot(caisseID, requestID)

	c.JSON(http.StatusOK, gin.H{"request_id": requestID, "stage": models.StageApproved, "new_balance": newBalance})
}

// RejectFunding is allowed at any pre-terminal stage.
func RejectFunding(c *gin.Context) {
	caisseID := c.Param("id")
	requestID := c.Param("requestId")
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

	caisse, err := GetCaisseDocByID(ctx, caisseID)
	if err != nil {
		if err == models.ErrEntityNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Caisse not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve caisse"})
		}
		return
	}

	request := findFundingRequest(caisse, requestID)
	if request == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Funding request not found"})
		return
	}
	if request.Workflow.Stage == models.StageApproved || request.Workflow.Stage == models.StageRejected {
		c.JSON(http.StatusOK, gin.H{"notice": "Cette demande a déjà été traitée."})
		return
	}

	step := models.WorkflowStep{
		Stage:     models.StageRejected,
		Actor:     actor,
		Details:   input.Reason,
		Timestamp: time.Now(),
	}
	extra := bson.M{"status": models.StatusRejected}
	err = setFundingStage(ctx, caisse.ID, requestID, request.Workflow.Stage, models.StageRejected, step, extra)
	if err != nil {
		if err == models.ErrAlreadyProcessed {
			c.JSON(http.StatusOK, gin.H{"notice": "Cette demande a déjà été traitée."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reject funding request"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"request_id": requestID, "stage": models.StageRejected})
}

// CorrectFunding lets the requester fix payment details on a rejected
// request and resubmit it through the workflow. The changed marker is left
// untouched: if a previous approval already credited the caisse, the next
// approval attempt is refused.
func CorrectFunding(c *gin.Context) {
	caisseID := c.Param("id")
	requestID := c.Param("requestId")
	actor := c.GetString("userID")

	var input struct {
		PaymentDetails   string `json:"payment_details" binding:"required"`
		DisbursementType string `json:"disbursement_type"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	caisse, err := GetCaisseDocByID(ctx, caisseID)
	if err != nil {
		if err == models.ErrEntityNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Caisse not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve caisse"})
		}
		return
	}
	if findFundingRequest(caisse, requestID) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Funding request not found"})
		return
	}

	step := models.WorkflowStep{
		Stage:     models.StageInitialRequest,
		Actor:     actor,
		Details:   "resoumission après correction",
		Timestamp: time.Now(),
	}
	extra := bson.M{"status": models.StatusPending, "payment_details": input.PaymentDetails}
	if input.DisbursementType != "" {
		extra["disbursement_type"] = input.DisbursementType
	}
	err = setFundingStage(ctx, caisse.ID, requestID, models.StageRejected, models.StageInitialRequest, step, extra)
	if err != nil {
		if err == models.ErrAlreadyProcessed {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Seule une demande rejetée peut être corrigée"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resubmit funding request"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"request_id": requestID, "stage": models.StageInitialRequest})
}

func GetCaisseFundingRequests(c *gin.Context) {
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

	c.JSON(http.StatusOK, caisse.FundingRequests)
}
