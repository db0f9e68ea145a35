package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"medicare/internal/authz"
	"medicare/internal/metrics"
	"medicare/internal/models"
	"medicare/internal/repositories"
	"medicare/internal/utils"
)

var (
	ErrInvalidEmail   = errors.New("valid email address is required")
	ErrOTPRequired    = errors.New("email and otp are required")
	ErrOTPNotFound    = errors.New("no otp found for this email")
	ErrOTPExpired     = errors.New("otp has expired")
	ErrOTPLocked      = errors.New("too many failed attempts")
	ErrOTPInvalid     = errors.New("invalid verification code")
	ErrDispatchFailed = errors.New("failed to send verification code")
	ErrDependency     = errors.New("dependency failure")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	defaultOTPTTL      = 10 * time.Minute
	defaultMaxAttempts = 3
)

type OTPConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

// LoginResult is returned by a successful verification.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Account   *models.Account
}

// OTPService issues, verifies and expires one-time login codes.
//
// Per email: NoCode -> CodeIssued -> Verified | Expired | Locked. Issuing again replaces the
// pending code and resets its attempt counter.
type OTPService struct {
	store    repositories.OTPStore
	accounts repositories.AccountRepository
	mailer   EmailService
	tokens   TokenService
	metrics  *metrics.Metrics
	log      *zap.Logger
	cfg      OTPConfig

	// serializes Verify and the Put in Issue
	mu sync.Mutex

	now      func() time.Time
	newCode  func() (string, error)
	hashCost int
}

func NewOTPService(
	store repositories.OTPStore,
	accounts repositories.AccountRepository,
	mailer EmailService,
	tokens TokenService,
	cfg OTPConfig,
	m *metrics.Metrics,
	log *zap.Logger,
) *OTPService {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultOTPTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OTPService{
		store:    store,
		accounts: accounts,
		mailer:   mailer,
		tokens:   tokens,
		metrics:  m,
		log:      log,
		cfg:      cfg,
		now:      time.Now,
		newCode:  utils.NewOTPCode,
		hashCost: bcrypt.DefaultCost,
	}
}

// Issue sends a fresh code to email. The code only becomes live once the email went out.
func (s *OTPService) Issue(ctx context.Context, email, userTypeHint string) error {
	email = strings.TrimSpace(email)
	if !emailPattern.MatchString(email) {
		s.countIssue("invalid_email")
		return ErrInvalidEmail
	}
	userType := authz.NormalizeRole(userTypeHint)

	if _, err := s.accounts.Upsert(ctx, email, userType); err != nil {
		s.log.Error("[otp][issue] account upsert failed", zap.String("email", email), zap.Error(err))
		s.countIssue("store_error")
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}

	code, err := s.newCode()
	if err != nil {
		s.countIssue("internal_error")
		return fmt.Errorf("%w: generate code: %v", ErrDependency, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.hashCost)
	if err != nil {
		s.countIssue("internal_error")
		return fmt.Errorf("%w: bcrypt generate: %v", ErrDependency, err)
	}

	if err := s.mailer.SendOTPEmail(email, code); err != nil {
		s.log.Error("[otp][issue] dispatch failed", zap.String("email", email), zap.Error(err))
		s.countIssue("dispatch_failed")
		return ErrDispatchFailed
	}

	pending := &models.PendingVerification{
		Email:     email,
		CodeHash:  string(hash),
		ExpiresAt: s.now().Add(s.cfg.TTL),
		Attempts:  0,
		UserType:  userType,
	}
	s.mu.Lock()
	err = s.store.Put(ctx, pending)
	s.mu.Unlock()
	if err != nil {
		s.log.Error("[otp][issue] store pending code failed", zap.String("email", email), zap.Error(err))
		s.countIssue("store_error")
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}

	s.log.Info("[otp][issue] code sent", zap.String("email", email), zap.Time("expires_at", pending.ExpiresAt))
	s.countIssue("ok")
	return nil
}

// Verify checks code against the pending entry for email and, on a match, logs the account in.
// Attempts are counted before comparison: once MaxAttempts failures are recorded the next call
// is rejected as locked without looking at the code.
func (s *OTPService) Verify(ctx context.Context, email, code string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		s.countVerify("missing")
		return nil, ErrOTPRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.store.Get(ctx, email)
	if err != nil {
		s.countVerify("store_error")
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	if pending == nil {
		s.countVerify("not_found")
		return nil, ErrOTPNotFound
	}

	now := s.now()
	if pending.Expired(now) {
		_ = s.store.Delete(ctx, email)
		s.countVerify("expired")
		return nil, ErrOTPExpired
	}
	if pending.Attempts >= s.cfg.MaxAttempts {
		_ = s.store.Delete(ctx, email)
		s.log.Warn("[otp][verify] locked", zap.String("email", email), zap.Int("attempts", pending.Attempts))
		s.countVerify("locked")
		return nil, ErrOTPLocked
	}

	// the attempt is spent before comparing, against the exact code that was read
	attempts, err := s.store.ConsumeAttempt(ctx, email, pending.CodeHash, s.cfg.MaxAttempts)
	switch {
	case errors.Is(err, repositories.ErrOTPReplaced):
		s.log.Info("[otp][verify] code replaced during verification", zap.String("email", email))
		s.countVerify("invalid")
		return nil, ErrOTPInvalid
	case errors.Is(err, repositories.ErrOTPExhausted):
		_ = s.store.Delete(ctx, email)
		s.log.Warn("[otp][verify] locked", zap.String("email", email), zap.Int("attempts", attempts))
		s.countVerify("locked")
		return nil, ErrOTPLocked
	case err != nil:
		s.countVerify("store_error")
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(pending.CodeHash), []byte(code)); err != nil {
		s.log.Info("[otp][verify] mismatch", zap.String("email", email), zap.Int("attempts", attempts))
		s.countVerify("invalid")
		return nil, ErrOTPInvalid
	}

	// single use
	if err := s.store.Delete(ctx, email); err != nil {
		s.countVerify("store_error")
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	account, err := s.accounts.RecordLogin(ctx, email, pending.UserType, now)
	if err != nil {
		s.countVerify("store_error")
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	token, expiresAt, err := s.tokens.Mint(account, now)
	if err != nil {
		s.countVerify("internal_error")
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	s.log.Info("[otp][verify] login ok", zap.Int("account_id", account.ID), zap.String("user_type", account.UserType))
	s.countVerify("ok")
	return &LoginResult{Token: token, ExpiresAt: expiresAt, Account: account}, nil
}

// Sweep drops expired pending codes. Verify checks expiry on its own, so this only bounds memory.
func (s *OTPService) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return n, err
	}
	if n > 0 {
		s.log.Debug("[otp][sweep] removed expired codes", zap.Int("count", n))
		if s.metrics != nil {
			s.metrics.OTPSwept.Add(float64(n))
		}
	}
	return n, nil
}

func (s *OTPService) countIssue(result string) {
	if s.metrics != nil {
		s.metrics.OTPIssued.WithLabelValues(result).Inc()
	}
}

func (s *OTPService) countVerify(result string) {
	if s.metrics != nil {
		s.metrics.OTPVerified.WithLabelValues(result).Inc()
	}
}
