package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/agrisubsidy/backend/internal/models"
)

var oneHundred = decimal.NewFromInt(100)

// PurchaseService runs the validate-then-commit purchase flow. Every check
// and write happens inside one database transaction; the stock decrement and
// wallet debit are conditional updates whose affected rows are verified, so
// a concurrent purchase racing past the initial reads fails the whole
// operation instead of over-selling.
type PurchaseService struct {
	db         *sql.DB
	settlement *SettlementService
	validator  *ValidationHelper
}

// PurchaseLine is one requested basket entry.
type PurchaseLine struct {
	ProductID string `json:"productId" validate:"required" example:"prod-a"` // Product ID
	Quantity  int    `json:"quantity" validate:"required,min=1" example:"2"` // Requested quantity
}

// PurchaseRequest represents the purchase payload
// @Description Purchase request structure
type PurchaseRequest struct {
	FarmerID string         `json:"farmerId" validate:"required" example:"farmer-1"` // Beneficiary farmer
	Products []PurchaseLine `json:"products" validate:"required,min=1,dive"`         // Requested basket
}

func NewPurchaseService(db *sql.DB, settlement *SettlementService) *PurchaseService {
	return &PurchaseService{
		db:         db,
		settlement: settlement,
		validator:  NewValidationHelper(),
	}
}

// Purchase records a subsidized purchase
// @Summary Record a purchase
// @Description Validate the basket against catalog stock and the merchant wallet, then persist the transaction atomically
// @Tags products
// @Accept json
// @Produce json
// @Param request body PurchaseRequest true "Purchase request"
// @Success 200 {object} models.Transaction
// @Failure 400 {object} ErrorResponse "Validation or business-rule failure"
// @Failure 401 {object} ErrorResponse "No session"
// @Router /products/purchase [post]
func (s *PurchaseService) Purchase(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	if session == nil {
		HandleServiceError(w, "PURCHASE", ErrUnauthorized)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req PurchaseRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[PURCHASE] Invalid request body: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[PURCHASE] Multiple JSON objects detected")
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		log.Printf("[PURCHASE] Validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	transaction, err := s.execute(r.Context(), &session.Merchant, &req)
	if err != nil {
		HandleServiceError(w, "PURCHASE", err)
		return
	}

	log.Printf("[PURCHASE] Transaction %s committed for merchant %s (total: %s, deduction: %s)",
		transaction.ID, session.Merchant.ID, transaction.TotalAmount, transaction.TotalDeduction)

	// Settlement is best-effort; a committed purchase never fails here.
	if err := s.settlement.QueueForSettlement(r.Context(), transaction); err != nil {
		log.Printf("[PURCHASE] Failed to queue transaction %s for settlement: %v", transaction.ID, err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transaction)
}

func (s *PurchaseService) execute(ctx context.Context, merchant *models.Merchant, req *PurchaseRequest) (*models.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.checkFarmer(ctx, tx, req.FarmerID); err != nil {
		return nil, err
	}

	products, err := s.lockProducts(ctx, tx, req)
	if err != nil {
		return nil, err
	}

	totalAmount, totalDeduction, err := consolidate(products, req.Products)
	if err != nil {
		return nil, err
	}

	balance, err := s.lockMerchantBalance(ctx, tx, merchant.ID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(totalDeduction) {
		return nil, ErrInsufficientBalance
	}

	transaction := &models.Transaction{
		ID:             uuid.New().String(),
		MerchantID:     merchant.ID,
		FarmerID:       req.FarmerID,
		TotalAmount:    totalAmount,
		TotalDeduction: totalDeduction,
		CreatedAt:      time.Now(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, merchant_id, farmer_id, total_amount, total_deduction, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, transaction.ID, transaction.MerchantID, transaction.FarmerID,
		transaction.TotalAmount, transaction.TotalDeduction, transaction.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store transaction: %w", err)
	}

	for _, line := range req.Products {
		item := models.TransactionProduct{
			ID:            uuid.New().String(),
			TransactionID: transaction.ID,
			ProductID:     line.ProductID,
			Quantity:      line.Quantity,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transaction_products (id, transaction_id, product_id, quantity)
			VALUES ($1, $2, $3, $4)
		`, item.ID, item.TransactionID, item.ProductID, item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("failed to store transaction line: %w", err)
		}
		transaction.Products = append(transaction.Products, item)
	}

	// Conditional writes re-validate stock and balance at the commit point.
	for _, line := range req.Products {
		if err := s.decrementStock(ctx, tx, line.ProductID, line.Quantity); err != nil {
			return nil, err
		}
	}
	if err := s.debitBalance(ctx, tx, merchant.ID, totalDeduction); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return transaction, nil
}

func (s *PurchaseService) checkFarmer(ctx context.Context, tx *sql.Tx, farmerID string) error {
	var farmer models.Farmer
	err := tx.QueryRowContext(ctx, `SELECT id, name FROM farmers WHERE id = $1`, farmerID).
		Scan(&farmer.ID, &farmer.Name)
	if err == sql.ErrNoRows {
		return ErrFarmerNotFound
	}
	if err != nil {
		return fmt.Errorf("farmer lookup failed: %w", err)
	}
	return nil
}

// lockProducts resolves the requested products in one read and locks their
// rows for the rest of the transaction. Fewer resolved rows than requested
// lines means an unknown or duplicated product id.
func (s *PurchaseService) lockProducts(ctx context.Context, tx *sql.Tx, req *PurchaseRequest) (map[string]*models.Product, error) {
	ids := make([]string, 0, len(req.Products))
	for _, line := range req.Products {
		ids = append(ids, line.ProductID)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, price, subsidy_percent, quantity, created_at
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("product lookup failed: %w", err)
	}
	defer rows.Close()

	products := make(map[string]*models.Product)
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.SubsidyPercent, &p.Quantity, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("product scan failed: %w", err)
		}
		products[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("product lookup failed: %w", err)
	}

	if len(products) < len(req.Products) {
		return nil, ErrInvalidSelection
	}
	return products, nil
}

// consolidate verifies stock and computes basket totals with decimal
// arithmetic. Floating point is never involved in currency math.
func consolidate(products map[string]*models.Product, lines []PurchaseLine) (totalAmount, totalDeduction decimal.Decimal, err error) {
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return decimal.Zero, decimal.Zero, ErrInvalidSelection
		}
		if product.Quantity < line.Quantity {
			return decimal.Zero, decimal.Zero, ErrInsufficientStock
		}

		lineTotal := product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		lineDeduction := lineTotal.Mul(decimal.NewFromInt(int64(product.SubsidyPercent))).Div(oneHundred)

		totalAmount = totalAmount.Add(lineTotal)
		totalDeduction = totalDeduction.Add(lineDeduction)
	}
	return totalAmount, totalDeduction, nil
}

func (s *PurchaseService) lockMerchantBalance(ctx context.Context, tx *sql.Tx, merchantID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRowContext(ctx, `
		SELECT balance FROM merchants WHERE id = $1 FOR UPDATE
	`, merchantID).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("merchant lookup failed: %w", err)
	}
	return balance, nil
}

func (s *PurchaseService) decrementStock(ctx context.Context, tx *sql.Tx, productID string, quantity int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - $1
		WHERE id = $2 AND quantity >= $1
	`, quantity, productID)
	if err != nil {
		return fmt.Errorf("stock decrement failed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("stock decrement failed: %w", err)
	}
	if rowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (s *PurchaseService) debitBalance(ctx context.Context, tx *sql.Tx, merchantID string, deduction decimal.Decimal) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE merchants
		SET balance = balance - $1
		WHERE id = $2 AND balance >= $1
	`, deduction, merchantID)
	if err != nil {
		return fmt.Errorf("wallet debit failed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("wallet debit failed: %w", err)
	}
	if rowsAffected == 0 {
		return ErrInsufficientBalance
	}
	return nil
}
