package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// NewOTPCode returns a uniformly random 6-digit code in 100000-999999.
func NewOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// NewReferenceNumber builds "ID-<last 6 digits of unix millis>-<3 random digits>".
func NewReferenceNumber(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		return "", err
	}
	ms := fmt.Sprintf("%d", now.UnixMilli())
	if len(ms) > 6 {
		ms = ms[len(ms)-6:]
	}
	return fmt.Sprintf("ID-%s-%03d", ms, n.Int64()), nil
}
