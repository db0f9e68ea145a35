package models

import "time"

// PendingVerification is the single live OTP for an email.
// Only the bcrypt hash of the code is kept.
type PendingVerification struct {
	Email     string    `json:"email"`
	CodeHash  string    `json:"code_hash"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
	UserType  string    `json:"user_type"`
}

func (p *PendingVerification) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
