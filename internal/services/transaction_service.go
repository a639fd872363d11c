package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agrisubsidy/backend/internal/models"
)

// TransactionService serves the read-only purchase history, always scoped to
// the authenticated merchant.
type TransactionService struct {
	db *sql.DB
}

func NewTransactionService(db *sql.DB) *TransactionService {
	return &TransactionService{db: db}
}

// ListTransactions lists the merchant's purchase history
// @Summary List transactions
// @Description Get the authenticated merchant's transactions, newest first
// @Tags transactions
// @Produce json
// @Success 200 {array} models.TransactionSummary
// @Failure 401 {object} ErrorResponse "No session"
// @Router /transactions [get]
func (s *TransactionService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	if session == nil {
		HandleServiceError(w, "TRANSACTIONS", ErrUnauthorized)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT t.id, t.total_amount, t.total_deduction, t.created_at, f.id, f.name
		FROM transactions t
		INNER JOIN farmers f ON f.id = t.farmer_id
		WHERE t.merchant_id = $1
		ORDER BY t.created_at DESC
	`, session.Merchant.ID)
	if err != nil {
		HandleServiceError(w, "TRANSACTIONS", err)
		return
	}
	defer rows.Close()

	transactions := []models.TransactionSummary{}
	for rows.Next() {
		var t models.TransactionSummary
		if err := rows.Scan(&t.ID, &t.TotalAmount, &t.TotalDeduction, &t.CreatedAt, &t.Farmer.ID, &t.Farmer.Name); err != nil {
			HandleServiceError(w, "TRANSACTIONS", err)
			return
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		HandleServiceError(w, "TRANSACTIONS", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions)
}

// GetTransaction fetches one transaction with its line items
// @Summary Get transaction by ID
// @Description Retrieve a single transaction owned by the authenticated merchant
// @Tags transactions
// @Produce json
// @Param txId path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} ErrorResponse "Unknown or foreign transaction"
// @Failure 401 {object} ErrorResponse "No session"
// @Router /transactions/{txId} [get]
func (s *TransactionService) GetTransaction(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	if session == nil {
		HandleServiceError(w, "TRANSACTIONS", ErrUnauthorized)
		return
	}

	txID := chi.URLParam(r, "txId")
	transaction, err := s.fetchTransaction(r.Context(), session.Merchant.ID, txID)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		HandleServiceError(w, "TRANSACTIONS", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transaction)
}

// fetchTransaction loads a transaction and its lines, scoped to a merchant.
// Transactions of other merchants are indistinguishable from missing ones.
func (s *TransactionService) fetchTransaction(ctx context.Context, merchantID, txID string) (*models.Transaction, error) {
	var transaction models.Transaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, merchant_id, farmer_id, total_amount, total_deduction, created_at
		FROM transactions
		WHERE id = $1 AND merchant_id = $2
	`, txID, merchantID).Scan(
		&transaction.ID, &transaction.MerchantID, &transaction.FarmerID,
		&transaction.TotalAmount, &transaction.TotalDeduction, &transaction.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, product_id, quantity
		FROM transaction_products
		WHERE transaction_id = $1
	`, txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item models.TransactionProduct
		if err := rows.Scan(&item.ID, &item.TransactionID, &item.ProductID, &item.Quantity); err != nil {
			return nil, err
		}
		transaction.Products = append(transaction.Products, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &transaction, nil
}
