package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// EmailService is the outbound notification channel.
type EmailService interface {
	SendOTPEmail(email, code string) error
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromEmail    string
	FromName     string
	DryRun       bool
}

type emailService struct {
	dialer  *gomail.Dialer
	from    string
	name    string
	dryRun  bool
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewEmailService(cfg EmailConfig, log *zap.Logger) EmailService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &emailService{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		from:   cfg.FromEmail,
		name:   cfg.FromName,
		dryRun: cfg.DryRun,
		log:    log,
	}
	// a dead SMTP relay fails OTP requests immediately instead of hanging each one
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("[email] circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return s
}

func (s *emailService) SendOTPEmail(email, code string) error {
	if s.dryRun {
		s.log.Info("[email][dry-run] otp email", zap.String("to", email), zap.String("code", code))
		return nil
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.name)
	m.SetHeader("To", email)
	m.SetHeader("Subject", s.name+" - Login Verification Code")
	m.SetBody("text/plain", otpPlainBody(code))
	m.AddAlternative("text/html", otpHTMLBody(s.name, code))

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.dialer.DialAndSend(m)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("email channel unavailable: %w", err)
		}
		return fmt.Errorf("failed to send otp email: %w", err)
	}
	return nil
}

func otpPlainBody(code string) string {
	return fmt.Sprintf(`Hello Doctor,

Your verification code is: %s

This code will expire in 10 minutes and can only be used once.
If you didn't request this code, please ignore this email.
`, code)
}

func otpHTMLBody(clinic, code string) string {
	return fmt.Sprintf(`
		<div style="font-family: Segoe UI, Tahoma, sans-serif; max-width: 600px; margin: 0 auto;">
			<h2>%s</h2>
			<p>Hello Doctor,<br>Please use the verification code below to access your account.</p>
			<h1 style="letter-spacing: 8px; font-family: Courier New, monospace;">%s</h1>
			<ul>
				<li>This code will expire in <strong>10 minutes</strong></li>
				<li>Do not share this code with anyone</li>
				<li>This code can only be used once</li>
			</ul>
			<p style="color: #999; font-size: 12px;">This is an automated message. Please do not reply.</p>
		</div>
	`, clinic, code)
}
