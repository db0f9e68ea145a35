package repositories

import (
	"context"
	"errors"
	"sync"
	"time"

	"medicare/internal/models"
)

var (
	// ErrOTPReplaced means the entry is gone or now holds a different code.
	ErrOTPReplaced = errors.New("pending verification replaced")
	// ErrOTPExhausted means the attempt budget was already spent.
	ErrOTPExhausted = errors.New("pending verification attempts exhausted")
)

// OTPStore keeps at most one pending verification per email. Put replaces any prior entry.
// Get returns nil, nil when nothing is pending.
//
// ConsumeAttempt atomically bumps the attempt counter of the entry holding codeHash and
// returns the new count. It never resurrects a replaced entry.
type OTPStore interface {
	Put(ctx context.Context, v *models.PendingVerification) error
	Get(ctx context.Context, email string) (*models.PendingVerification, error)
	ConsumeAttempt(ctx context.Context, email, codeHash string, maxAttempts int) (int, error)
	Delete(ctx context.Context, email string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// MemoryOTPStore is the single-instance store. It is safe for concurrent use.
type MemoryOTPStore struct {
	mu      sync.Mutex
	entries map[string]models.PendingVerification
}

func NewMemoryOTPStore() *MemoryOTPStore {
	return &MemoryOTPStore{entries: make(map[string]models.PendingVerification)}
}

func (s *MemoryOTPStore) Put(_ context.Context, v *models.PendingVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[v.Email] = *v
	return nil
}

func (s *MemoryOTPStore) Get(_ context.Context, email string) (*models.PendingVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[email]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *MemoryOTPStore) ConsumeAttempt(_ context.Context, email, codeHash string, maxAttempts int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[email]
	if !ok || v.CodeHash != codeHash {
		return 0, ErrOTPReplaced
	}
	if v.Attempts >= maxAttempts {
		return v.Attempts, ErrOTPExhausted
	}
	v.Attempts++
	s.entries[email] = v
	return v.Attempts, nil
}

func (s *MemoryOTPStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, email)
	return nil
}

func (s *MemoryOTPStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for email, v := range s.entries {
		if v.Expired(now) {
			delete(s.entries, email)
			n++
		}
	}
	return n, nil
}

// Len reports the number of pending entries, expired or not.
func (s *MemoryOTPStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
