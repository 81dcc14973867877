package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wakala/payments/internal/domain"
	"github.com/wakala/payments/internal/idempotency"
)

// completedAtLayout is fixed width so completed_at sorts as text.
const completedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// OutcomeRepo is the SQLite idempotency store. The full outcome is kept as
// its canonical JSON in body; the other columns exist for querying.
type OutcomeRepo struct {
	db *sql.DB
}

func NewOutcomeRepo(db *sql.DB) *OutcomeRepo {
	return &OutcomeRepo{db: db}
}

func (r *OutcomeRepo) Lookup(ctx context.Context, key domain.IdempotencyKey) (*domain.Outcome, error) {
	var body string
	err := r.db.QueryRowContext(ctx,
		"SELECT body FROM outcomes WHERE idempotency_key = ?", string(key),
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select outcome: %w", err)
	}
	return idempotency.Decode([]byte(body))
}

// Put relies on INSERT OR IGNORE: zero affected rows means another writer
// got there first.
func (r *OutcomeRepo) Put(ctx context.Context, key domain.IdempotencyKey, o *domain.Outcome) error {
	body, err := idempotency.Encode(o)
	if err != nil {
		return err
	}

	var reason any
	if o.Reason != "" {
		reason = string(o.Reason)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO outcomes
		(idempotency_key, status, reason, card_id, amount, needs_reconciliation, body, completed_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		string(key), string(o.Status), reason, int64(o.CardID), int64(o.Amount),
		boolToInt(o.NeedsReconciliation), string(body), o.CompletedAt.UTC().Format(completedAtLayout),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if ra == 0 {
		return idempotency.ErrExists
	}
	return nil
}

// PendingReconciliation returns capture failures, oldest first.
func (r *OutcomeRepo) PendingReconciliation(ctx context.Context) ([]idempotency.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT idempotency_key, body FROM outcomes
		WHERE needs_reconciliation = 1 ORDER BY completed_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query reconciliation: %w", err)
	}
	defer rows.Close()

	entries := []idempotency.Entry{}
	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, err
		}
		o, err := idempotency.Decode([]byte(body))
		if err != nil {
			return nil, err
		}
		entries = append(entries, idempotency.Entry{Key: domain.IdempotencyKey(key), Outcome: o})
	}
	return entries, rows.Err()
}

// CountByStatus backs the startup summary log line.
func (r *OutcomeRepo) CountByStatus(ctx context.Context) (map[domain.OutcomeStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM outcomes GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.OutcomeStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.OutcomeStatus(status)] = n
	}
	return counts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
