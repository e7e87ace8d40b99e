package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"tresorerie/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRecordRequestPaymentRequiresCaisseForCash(t *testing.T) {
	params := gin.Params{{Key: "id", Value: "PAY/2026/08/0001"}}

	for _, mode := range []string{models.PaymentModeCash, models.PaymentModeMobileMoney} {
		body := `{"payment_mode":"` + mode + `","amount_paid":100}`
		w := postJSON(t, RecordRequestPayment, params, body)

		assert.Equal(t, http.StatusBadRequest, w.Code, mode)
		assert.Contains(t, w.Body.String(), "caisse", mode)
	}
}

func TestGetPaymentRequestRejectsForeignIdentifier(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, id := range []string{"CMD/2026/08/0001", "garbage", ""} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: id}}

		GetPaymentRequest(c)
		assert.Equal(t, http.StatusBadRequest, w.Code, id)
	}
}
