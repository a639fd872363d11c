package services

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

const receiptQuery = "SELECT f.name, t.total_amount::text, t.total_deduction::text, t.created_at FROM transactions t INNER JOIN farmers f ON f.id = t.farmer_id WHERE t.id = \\$1 AND t.merchant_id = \\$2"

func newReceiptRouter(service *ReceiptService) *chi.Mux {
	router := chi.NewRouter()
	router.Get("/transactions/{txId}/receipt", service.Receipt)
	return router
}

func TestReceiptService_Receipt(t *testing.T) {
	t.Run("issues a decodable QR receipt", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewReceiptService(db, nil)

		mock.ExpectQuery(receiptQuery).
			WithArgs("tx-1", "merchant-1").
			WillReturnRows(sqlmock.NewRows([]string{"name", "total_amount", "total_deduction", "created_at"}).
				AddRow("Wanjiku Kamau", "200", "20", time.Now()))

		r := withTestSession(httptest.NewRequest("GET", "/transactions/tx-1/receipt", nil))
		w := httptest.NewRecorder()

		newReceiptRouter(service).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			ReceiptCode string `json:"receiptCode"`
			QRImage     string `json:"qrImage"`
		}
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.NotEmpty(t, resp.QRImage)

		// The opaque code carries the receipt payload.
		raw, err := base64.URLEncoding.DecodeString(resp.ReceiptCode)
		assert.NoError(t, err)

		var payload map[string]any
		assert.NoError(t, json.Unmarshal(raw, &payload))
		assert.Equal(t, "tx-1", payload["transactionId"])
		assert.Equal(t, "Wanjiku Kamau", payload["farmer"])
		assert.Equal(t, "200", payload["totalAmount"])
		assert.Equal(t, "20", payload["totalDeduction"])
		assert.NotEmpty(t, payload["nonce"])

		img, err := base64.StdEncoding.DecodeString(resp.QRImage)
		assert.NoError(t, err)
		assert.NotEmpty(t, img)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("foreign transaction is a 404", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewReceiptService(db, nil)

		mock.ExpectQuery(receiptQuery).
			WithArgs("tx-other", "merchant-1").
			WillReturnRows(sqlmock.NewRows([]string{"name", "total_amount", "total_deduction", "created_at"}))

		r := withTestSession(httptest.NewRequest("GET", "/transactions/tx-other/receipt", nil))
		w := httptest.NewRecorder()

		newReceiptRouter(service).ServeHTTP(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no session", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewReceiptService(db, nil)

		r := httptest.NewRequest("GET", "/transactions/tx-1/receipt", nil)
		w := httptest.NewRecorder()

		newReceiptRouter(service).ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestReceiptService_VerifyReceipt(t *testing.T) {
	t.Run("valid code is resolved once", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		service := NewReceiptService(db, redisClient)

		payload := map[string]any{"transactionId": "tx-1", "farmer": "Wanjiku Kamau"}
		data, err := json.Marshal(payload)
		assert.NoError(t, err)

		code := base64.URLEncoding.EncodeToString(data)
		redisMock.ExpectGet("receipt:" + code).SetVal(string(data))
		redisMock.ExpectDel("receipt:" + code).SetVal(1)

		body, err := json.Marshal(map[string]string{"receiptCode": code})
		assert.NoError(t, err)

		r := httptest.NewRequest("POST", "/receipts/verify", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.VerifyReceipt(w, r)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data map[string]any `json:"data"`
		}
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "tx-1", resp.Data["transactionId"])
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("unknown or expired code", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		service := NewReceiptService(db, redisClient)

		redisMock.ExpectGet("receipt:bogus").RedisNil()

		r := httptest.NewRequest("POST", "/receipts/verify", bytes.NewBufferString(`{"receiptCode":"bogus"}`))
		w := httptest.NewRecorder()

		service.VerifyReceipt(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "Invalid or expired receipt", resp.Message)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("verification needs redis", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewReceiptService(db, nil)

		r := httptest.NewRequest("POST", "/receipts/verify", bytes.NewBufferString(`{"receiptCode":"abc"}`))
		w := httptest.NewRecorder()

		service.VerifyReceipt(w, r)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("missing code fails validation", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewReceiptService(db, nil)

		r := httptest.NewRequest("POST", "/receipts/verify", bytes.NewBufferString(`{}`))
		w := httptest.NewRecorder()

		service.VerifyReceipt(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
