package models

import "time"

// Session is an opaque, time-limited credential proving merchant identity
// across requests. Expiry is honored lazily on read.
type Session struct {
	Token      string    `json:"token"`
	MerchantID string    `json:"merchantId"`
	Expires    time.Time `json:"expires"`
}

// SessionWithMerchant is the session joined with its owning merchant, the
// unit every authenticated request resolves.
type SessionWithMerchant struct {
	Session
	Merchant Merchant `json:"merchant"`
}

// Expired reports whether the session's expiry instant has passed.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.Expires)
}
