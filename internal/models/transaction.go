package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a committed subsidized purchase. Created atomically with
// its line items and immutable thereafter.
type Transaction struct {
	ID             string               `json:"id"`
	MerchantID     string               `json:"merchantId"`
	FarmerID       string               `json:"farmerId"`
	TotalAmount    decimal.Decimal      `json:"totalAmount"`
	TotalDeduction decimal.Decimal      `json:"totalDeduction"`
	CreatedAt      time.Time            `json:"createdAt"`
	Products       []TransactionProduct `json:"products,omitempty"`
}

// TransactionProduct is one purchase line: a product reference and the
// quantity taken from its stock.
type TransactionProduct struct {
	ID            string `json:"id"`
	TransactionID string `json:"transactionId"`
	ProductID     string `json:"productId"`
	Quantity      int    `json:"quantity"`
}

// TransactionSummary is the history projection returned to merchants:
// totals plus the farmer the purchase was recorded for.
type TransactionSummary struct {
	ID             string          `json:"id"`
	Farmer         Farmer          `json:"farmer"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	TotalDeduction decimal.Decimal `json:"totalDeduction"`
	CreatedAt      time.Time       `json:"createdAt"`
}
