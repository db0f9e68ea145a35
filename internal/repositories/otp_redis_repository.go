package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"medicare/internal/models"
)

const (
	otpKeyPrefix = "medicare:otp:"
	// optimistic transaction retries under WATCH contention
	consumeRetries = 5
)

// RedisOTPStore shares pending codes across instances. Entries carry a native TTL so
// Redis expires them on its own; DeleteExpired only catches stragglers.
type RedisOTPStore struct {
	c *redis.Client
}

func NewRedisOTPStore(c *redis.Client) *RedisOTPStore { return &RedisOTPStore{c: c} }

func otpKey(email string) string { return otpKeyPrefix + email }

func (s *RedisOTPStore) Put(ctx context.Context, v *models.PendingVerification) error {
	ttl := time.Until(v.ExpiresAt)
	if ttl <= 0 {
		return s.Delete(ctx, v.Email)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode pending verification: %w", err)
	}
	if err := s.c.Set(ctx, otpKey(v.Email), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set otp: %w", err)
	}
	return nil
}

func (s *RedisOTPStore) Get(ctx context.Context, email string) (*models.PendingVerification, error) {
	raw, err := s.c.Get(ctx, otpKey(email)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get otp: %w", err)
	}
	var v models.PendingVerification
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode pending verification: %w", err)
	}
	return &v, nil
}

// ConsumeAttempt runs as a WATCH/MULTI transaction so instances sharing the key cannot
// both spend the same attempt.
func (s *RedisOTPStore) ConsumeAttempt(ctx context.Context, email, codeHash string, maxAttempts int) (int, error) {
	key := otpKey(email)
	var attempts int
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrOTPReplaced
		}
		if err != nil {
			return err
		}
		var v models.PendingVerification
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode pending verification: %w", err)
		}
		if v.CodeHash != codeHash {
			return ErrOTPReplaced
		}
		attempts = v.Attempts
		if v.Attempts >= maxAttempts {
			return ErrOTPExhausted
		}
		v.Attempts++
		enc, err := json.Marshal(&v)
		if err != nil {
			return fmt.Errorf("encode pending verification: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, enc, redis.KeepTTL)
			return nil
		})
		if err == nil {
			attempts = v.Attempts
		}
		return err
	}

	for i := 0; i < consumeRetries; i++ {
		err := s.c.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return attempts, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrOTPReplaced), errors.Is(err, ErrOTPExhausted):
			return attempts, err
		default:
			return 0, fmt.Errorf("redis consume otp attempt: %w", err)
		}
	}
	return 0, fmt.Errorf("redis consume otp attempt: %w", redis.TxFailedErr)
}

func (s *RedisOTPStore) Delete(ctx context.Context, email string) error {
	if err := s.c.Del(ctx, otpKey(email)).Err(); err != nil {
		return fmt.Errorf("redis del otp: %w", err)
	}
	return nil
}

func (s *RedisOTPStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := s.c.Scan(ctx, cursor, otpKeyPrefix+"*", 200).Result()
		if err != nil {
			return n, fmt.Errorf("redis scan otp: %w", err)
		}
		for _, key := range keys {
			raw, err := s.c.Get(ctx, key).Bytes()
			if err != nil {
				continue
			}
			var v models.PendingVerification
			if json.Unmarshal(raw, &v) != nil || v.Expired(now) {
				if s.c.Del(ctx, key).Err() == nil {
					n++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return n, nil
}
