package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"medicare/internal/models"
)

var ErrTokenInvalid = errors.New("invalid or expired token")

// SessionClaims is the payload of a session token. Validity is decided by signature and exp only.
type SessionClaims struct {
	AccountID int    `json:"id"`
	Email     string `json:"email"`
	UserType  string `json:"user_type"`
	LoginTime int64  `json:"login_time"`
	jwt.RegisteredClaims
}

type TokenService interface {
	Mint(account *models.Account, issuedAt time.Time) (string, time.Time, error)
	Parse(token string) (*SessionClaims, error)
}

type tokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret string, ttl time.Duration) TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &tokenService{secret: []byte(secret), ttl: ttl}
}

func (s *tokenService) Mint(account *models.Account, issuedAt time.Time) (string, time.Time, error) {
	expiresAt := issuedAt.Add(s.ttl)
	claims := &SessionClaims{
		AccountID: account.ID,
		Email:     account.Email,
		UserType:  account.UserType,
		LoginTime: issuedAt.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *tokenService) Parse(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// HMAC only
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
