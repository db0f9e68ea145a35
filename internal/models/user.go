package models

import "time"

// Account is a login identity. Accounts are created on first OTP request and never deleted.
type Account struct {
	ID        int        `json:"id"`
	Email     string     `json:"email"`
	UserType  string     `json:"user_type"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type SendOTPRequest struct {
	Email    string `json:"email"`
	UserType string `json:"user_type"`
}

type VerifyOTPRequest struct {
	Email    string `json:"email"`
	OTP      string `json:"otp"`
	UserType string `json:"user_type"`
}
