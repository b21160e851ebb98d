package wallet

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the following tables exist:
// - wallet_ledger (immutable append-only)
// - wallet_balances (projection, one row per user)

func getBalance(ctx context.Context, db *sql.DB, userID string) (Balance, error) {
	const q = `
SELECT user_id, points, updated_at
FROM wallet_balances
WHERE user_id = $1
`
	var b Balance
	if err := db.QueryRowContext(ctx, q, userID).Scan(
		&b.UserID,
		&b.Points,
		&b.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{}, ErrNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func insertLedger(ctx context.Context, tx *sql.Tx, e LedgerEntry) error {
	const q = `
INSERT INTO wallet_ledger (id, user_id, delta, external_ref, created_at)
VALUES ($1,$2,$3,$4,$5)
`
	_, err := tx.ExecContext(ctx, q,
		e.ID,
		e.UserID,
		e.Delta,
		e.ExternalRef,
		e.CreatedAt,
	)
	return err
}

func applyBalanceDelta(ctx context.Context, tx *sql.Tx, userID string, delta int64, now time.Time) (Balance, error) {
	// Upsert keeps the projection in lockstep with the ledger append.
	const q = `
INSERT INTO wallet_balances (user_id, points, updated_at)
VALUES ($1,$2,$3)
ON CONFLICT (user_id)
DO UPDATE SET points = wallet_balances.points + EXCLUDED.points,
              updated_at = EXCLUDED.updated_at
RETURNING user_id, points, updated_at
`
	var b Balance
	if err := tx.QueryRowContext(ctx, q, userID, delta, now).Scan(
		&b.UserID,
		&b.Points,
		&b.UpdatedAt,
	); err != nil {
		return Balance{}, err
	}
	return b, nil
}

func listLedger(ctx context.Context, db *sql.DB, userID string, limit int) ([]LedgerEntry, error) {
	const q = `
SELECT id, user_id, delta, external_ref, created_at
FROM wallet_ledger
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.ExternalRef, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
