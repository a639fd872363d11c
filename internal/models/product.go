package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry purchasable under the subsidy program.
type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name" example:"DAP Fertilizer 50kg"`
	Price          decimal.Decimal `json:"price" example:"100"` // unit price
	SubsidyPercent int             `json:"subsidyPercent" example:"10"`
	Quantity       int             `json:"quantity" example:"5"` // available stock
	CreatedAt      time.Time       `json:"createdAt"`
}
