package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"medicare/internal/models"
)

// AccountRepository stores login identities. Both writes are upserts keyed by email so
// repeated OTP requests never create duplicate accounts.
type AccountRepository interface {
	Upsert(ctx context.Context, email, userType string) (*models.Account, error)
	RecordLogin(ctx context.Context, email, userType string, at time.Time) (*models.Account, error)
	GetByID(ctx context.Context, id int) (*models.Account, error)
}

type accountRepository struct {
	DB *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{DB: db}
}

const accountColumns = `id, email, user_type, last_login, created_at`

func (r *accountRepository) Upsert(ctx context.Context, email, userType string) (*models.Account, error) {
	const q = `
		INSERT INTO accounts (email, user_type)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING ` + accountColumns
	a, err := scanAccount(r.DB.QueryRowContext(ctx, q, email, userType))
	if err != nil {
		return nil, fmt.Errorf("upsert account: %w", err)
	}
	return a, nil
}

func (r *accountRepository) RecordLogin(ctx context.Context, email, userType string, at time.Time) (*models.Account, error) {
	const q = `
		INSERT INTO accounts (email, user_type, last_login)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET last_login = EXCLUDED.last_login
		RETURNING ` + accountColumns
	a, err := scanAccount(r.DB.QueryRowContext(ctx, q, email, userType, at))
	if err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	return a, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id int) (*models.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	a, err := scanAccount(r.DB.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	var (
		a         models.Account
		lastLogin sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.Email, &a.UserType, &lastLogin, &a.CreatedAt); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLogin = &t
	}
	return &a, nil
}
