package billing

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// Unit is the immutable record of one completed charge. Append-only; exactly
// one row per completed tick, in strictly increasing MinuteIndex order per
// call.
type Unit struct {
	ID            string    `json:"id" db:"id"`
	CallID        string    `json:"call_id" db:"call_id"`
	MinuteIndex   int       `json:"minute_index" db:"minute_index"`
	ChargedPoints int64     `json:"charged_points" db:"charged_points"`
	Timestamp     time.Time `json:"timestamp" db:"created_at"`
}

// UnitStore records billing units.
type UnitStore interface {
	Append(ctx context.Context, u Unit) error
	ListByCall(ctx context.Context, callID string) ([]Unit, error)
}

// MemoryUnitStore keeps units in memory for tests and single-process use.
type MemoryUnitStore struct {
	mu    sync.Mutex
	units map[string][]Unit
}

func NewMemoryUnitStore() *MemoryUnitStore {
	return &MemoryUnitStore{units: make(map[string][]Unit)}
}

func (m *MemoryUnitStore) Append(ctx context.Context, u Unit) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units[u.CallID] = append(m.units[u.CallID], u)
	return nil
}

func (m *MemoryUnitStore) ListByCall(ctx context.Context, callID string) ([]Unit, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Unit, len(m.units[callID]))
	copy(out, m.units[callID])
	return out, nil
}

// PostgresUnitStore appends to a `billing_units` table.
//
// NOTE: assumes UNIQUE (call_id, minute_index) so a replayed tick cannot
// produce a second row.
type PostgresUnitStore struct {
	db *sql.DB
}

func NewPostgresUnitStore(db *sql.DB) *PostgresUnitStore {
	return &PostgresUnitStore{db: db}
}

func (p *PostgresUnitStore) Append(ctx context.Context, u Unit) error {
	const q = `
INSERT INTO billing_units (id, call_id, minute_index, charged_points, created_at)
VALUES ($1,$2,$3,$4,$5)
`
	_, err := p.db.ExecContext(ctx, q, u.ID, u.CallID, u.MinuteIndex, u.ChargedPoints, u.Timestamp)
	return err
}

func (p *PostgresUnitStore) ListByCall(ctx context.Context, callID string) ([]Unit, error) {
	const q = `
SELECT id, call_id, minute_index, charged_points, created_at
FROM billing_units
WHERE call_id = $1
ORDER BY minute_index
`
	rows, err := p.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.CallID, &u.MinuteIndex, &u.ChargedPoints, &u.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
