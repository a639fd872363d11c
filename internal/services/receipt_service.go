package services

import (
	"bytes"
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

// ReceiptService renders scannable receipts for committed purchases. The
// receipt payload is held in Redis for a short window so a scanned code can
// be verified once.
type ReceiptService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *ValidationHelper
}

const receiptTTL = 5 * time.Minute

func NewReceiptService(db *sql.DB, redisClient *redis.Client) *ReceiptService {
	return &ReceiptService{
		db:        db,
		redis:     redisClient,
		validator: NewValidationHelper(),
	}
}

// Receipt generates a QR receipt for a transaction
// @Summary Transaction receipt QR
// @Description Generate a single-use QR receipt for a committed transaction
// @Tags transactions
// @Produce json
// @Param txId path string true "Transaction ID"
// @Success 200 {object} object{receiptCode=string,qrImage=string}
// @Failure 404 {object} ErrorResponse "Unknown transaction"
// @Failure 401 {object} ErrorResponse "No session"
// @Router /transactions/{txId}/receipt [get]
func (s *ReceiptService) Receipt(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	if session == nil {
		HandleServiceError(w, "RECEIPT", ErrUnauthorized)
		return
	}

	txID := chi.URLParam(r, "txId")

	var farmerName, totalAmount, totalDeduction string
	var createdAt time.Time
	err := s.db.QueryRowContext(r.Context(), `
		SELECT f.name, t.total_amount::text, t.total_deduction::text, t.created_at
		FROM transactions t
		INNER JOIN farmers f ON f.id = t.farmer_id
		WHERE t.id = $1 AND t.merchant_id = $2
	`, txID, session.Merchant.ID).Scan(&farmerName, &totalAmount, &totalDeduction, &createdAt)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		HandleServiceError(w, "RECEIPT", err)
		return
	}

	payload := map[string]any{
		"transactionId":  txID,
		"merchant":       session.Merchant.Name,
		"farmer":         farmerName,
		"totalAmount":    totalAmount,
		"totalDeduction": totalDeduction,
		"issuedAt":       createdAt.Unix(),
		"nonce":          generateNonce(),
	}

	receiptCode, qrImage, err := s.encodeReceipt(r.Context(), payload)
	if err != nil {
		HandleServiceError(w, "RECEIPT", err)
		return
	}

	log.Printf("[RECEIPT] Issued receipt for transaction %s", txID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"receiptCode": receiptCode,
		"qrImage":     qrImage,
	})
}

// VerifyReceipt resolves a scanned receipt code
// @Summary Verify receipt
// @Description Resolve a scanned receipt code to its payload; single use
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body object{receiptCode=string} true "Receipt verification request"
// @Success 200 {object} object{data=object}
// @Failure 400 {object} ErrorResponse "Invalid or expired receipt"
// @Router /receipts/verify [post]
func (s *ReceiptService) VerifyReceipt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReceiptCode string `json:"receiptCode" validate:"required"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if s.redis == nil {
		SendErrorResponse(w, "Receipt verification is unavailable", http.StatusServiceUnavailable, nil)
		return
	}

	key := receiptCacheKey(req.ReceiptCode)
	data, err := s.redis.Get(r.Context(), key).Bytes()
	if err == redis.Nil {
		SendErrorResponse(w, "Invalid or expired receipt", http.StatusBadRequest, nil)
		return
	}
	if err != nil {
		HandleServiceError(w, "RECEIPT", err)
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		HandleServiceError(w, "RECEIPT", err)
		return
	}

	s.redis.Del(r.Context(), key)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": payload})
}

// encodeReceipt turns a payload into an opaque code plus a base64 QR PNG.
// Without Redis the code is still issued, it just cannot be verified later.
func (s *ReceiptService) encodeReceipt(ctx context.Context, payload map[string]any) (string, string, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", "", err
	}

	receiptCode := base64.URLEncoding.EncodeToString(jsonData)

	if s.redis != nil {
		if err := s.redis.Set(ctx, receiptCacheKey(receiptCode), jsonData, receiptTTL).Err(); err != nil {
			return "", "", err
		}
	}

	qr, err := qrcode.New(receiptCode, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	return receiptCode, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func receiptCacheKey(code string) string {
	return fmt.Sprintf("receipt:%s", code)
}

func generateNonce() string {
	b := make([]byte, 16)
	cryptorand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
