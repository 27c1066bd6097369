// README: Monthly AI-call allowance per chef, stored in ai_usage.
package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Quota meters oracle calls. Consume returns ErrQuotaExceeded when the allowance is spent.
type Quota interface {
	Consume(ctx context.Context, uid string) error
}

type QuotaStore struct {
	db        *pgxpool.Pool
	allowance int
	now       func() time.Time
}

func NewQuotaStore(db *pgxpool.Pool, monthlyAllowance int) *QuotaStore {
	return &QuotaStore{db: db, allowance: monthlyAllowance, now: time.Now}
}

// Consume deducts one call, initialising the row on first use.
func (s *QuotaStore) Consume(ctx context.Context, uid string) error {
	err := s.useToken(ctx, uid)
	if !errors.Is(err, ErrQuotaExceeded) {
		return err
	}
	// Row may be missing: create it, then retry the deduction once.
	if err := s.ensureUser(ctx, uid); err != nil {
		return err
	}
	return s.useToken(ctx, uid)
}

// useToken checks the monthly quota and deducts one call in a single conditional update,
// resetting the allowance when last_reset_month is behind the current month.
func (s *QuotaStore) useToken(ctx context.Context, uid string) error {
	month := s.now().UTC().Format("2006-01")
	tag, err := s.db.Exec(ctx, `
		UPDATE ai_usage SET
			tokens_remaining = CASE WHEN last_reset_month != $1 THEN $2 - 1 ELSE tokens_remaining - 1 END,
			last_reset_month = $1
		WHERE uid = $3 AND (last_reset_month < $1 OR tokens_remaining > 0)
	`, month, s.allowance, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQuotaExceeded
	}
	return nil
}

func (s *QuotaStore) ensureUser(ctx context.Context, uid string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ai_usage (uid, tokens_remaining, last_reset_month)
		VALUES ($1, $2, $3)
		ON CONFLICT (uid) DO NOTHING
	`, uid, s.allowance, s.now().UTC().Format("2006-01"))
	return err
}
