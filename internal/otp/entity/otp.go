package entity

import "time"

// Request is a row of `otp_requests`: one code sent to one mobile number.
// Only the bcrypt hash of the code is kept.
type Request struct {
	ID           string     `db:"id" json:"id"`
	MobileNumber string     `db:"mobile_number" json:"mobile_number"`
	CodeHash     string     `db:"code_hash" json:"-"`
	Attempts     int        `db:"attempts" json:"attempts"`
	ExpiresAt    time.Time  `db:"expires_at" json:"expires_at"`
	ConsumedAt   *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Usable reports whether the code can still be verified at now.
func (r *Request) Usable(now time.Time, maxAttempts int) bool {
	return r.ConsumedAt == nil && now.Before(r.ExpiresAt) && r.Attempts < maxAttempts
}
