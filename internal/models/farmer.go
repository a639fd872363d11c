package models

// Farmer is the beneficiary of a subsidized purchase. Referenced by
// transactions, never mutated by them.
type Farmer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
