package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Merchant is the authenticated actor recording purchases on behalf of farmers.
type Merchant struct {
	ID        string          `json:"id" example:"8a1f2c64-1b2d-4c3e-9f10-2d5b8e7a6c01"`
	Username  string          `json:"username" example:"agrovet-nakuru"`
	Password  string          `json:"-"` // bcrypt hash, never serialized
	Name      string          `json:"name" example:"Nakuru Agrovet Ltd"`
	Balance   decimal.Decimal `json:"balance" example:"1000"` // wallet covering subsidy deductions
	CreatedAt time.Time       `json:"createdAt"`
}
