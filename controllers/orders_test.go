package controllers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tresorerie/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func postJSON(t *testing.T, handler gin.HandlerFunc, params gin.Params, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params
	handler(c)
	return w
}

func TestValidatedProformaSetSingleWinner(t *testing.T) {
	now := time.Now()
	proformas := []models.Proforma{
		{Nom: "Fournisseur A", Montant: 900, Validated: true, ValidatedBy: "admin1", ValidatedAt: now.Add(-time.Hour)},
		{Nom: "Fournisseur B", Montant: 1000},
		{Nom: "Fournisseur C", Montant: 1100},
	}

	out, err := ValidatedProformaSet(proformas, 1, "admin2", now)
	require.NoError(t, err)

	validated := 0
	for _, p := range out {
		if p.Validated {
			validated++
		}
	}
	assert.Equal(t, 1, validated)
	assert.True(t, out[1].Validated)
	assert.Equal(t, "admin2", out[1].ValidatedBy)
	assert.Equal(t, now, out[1].ValidatedAt)

	// The previously validated entry is fully cleared.
	assert.False(t, out[0].Validated)
	assert.Empty(t, out[0].ValidatedBy)
	assert.True(t, out[0].ValidatedAt.IsZero())
}

func TestValidatedProformaSetDoesNotMutateInput(t *testing.T) {
	proformas := []models.Proforma{{Nom: "Fournisseur A", Montant: 900, Validated: true}}

	_, err := ValidatedProformaSet(proformas, 0, "admin", time.Now())
	require.NoError(t, err)
	assert.Empty(t, proformas[0].ValidatedBy)
}

func TestValidatedProformaSetIndexOutOfRange(t *testing.T) {
	proformas := []models.Proforma{{Nom: "Fournisseur A", Montant: 900}}

	_, err := ValidatedProformaSet(proformas, 1, "admin", time.Now())
	assert.ErrorIs(t, err, models.ErrProformaNotFound)

	_, err = ValidatedProformaSet(proformas, -1, "admin", time.Now())
	assert.ErrorIs(t, err, models.ErrProformaNotFound)
}

func TestPaymentAppendFilterPinsLedgerAndProforma(t *testing.T) {
	filter := PaymentAppendFilter("CMD/2026/08/0001", 400, 1000)

	assert.Equal(t, "CMD/2026/08/0001", filter["id_commande"])
	assert.Equal(t, 400.0, filter["amount_paid"])
	assert.Equal(t, models.StatusApproved, filter["statut"])

	// The append only lands while the validated proforma still carries the
	// montant the ledger was computed against.
	assert.Equal(t, bson.M{"$elemMatch": bson.M{"validated": true, "montant": 1000.0}}, filter["proformas"])
}

func TestRecordOrderPaymentRequiresCaisseForCash(t *testing.T) {
	params := gin.Params{{Key: "id", Value: "CMD/2026/08/0001"}}

	for _, mode := range []string{models.PaymentModeCash, models.PaymentModeMobileMoney} {
		body := `{"payment_mode":"` + mode + `","amount_paid":100}`
		w := postJSON(t, RecordOrderPayment, params, body)

		assert.Equal(t, http.StatusBadRequest, w.Code, mode)
		assert.Contains(t, w.Body.String(), "caisse", mode)
	}
}

func TestGetOrderRejectsForeignIdentifier(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, id := range []string{"PAY/2026/08/0001", "garbage", ""} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: id}}

		GetOrder(c)
		assert.Equal(t, http.StatusBadRequest, w.Code, id)
	}
}

func TestAdjustmentTransactionType(t *testing.T) {
	tx := AdjustmentTransaction("CMD/2026/08/0001", "pay-1", "finance1")

	assert.Equal(t, models.TxAdjustment, tx.Type)
	assert.Equal(t, "CMD/2026/08/0001", tx.ReferenceID)
	assert.Contains(t, tx.Details, "pay-1")
}

func TestIsCashEquivalent(t *testing.T) {
	assert.True(t, IsCashEquivalent(models.PaymentModeCash))
	assert.True(t, IsCashEquivalent(models.PaymentModeMobileMoney))
	assert.False(t, IsCashEquivalent(models.PaymentModeCheque))
	assert.False(t, IsCashEquivalent(models.PaymentModeVirement))
}
