package accounts

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

// Directory abstracts participant persistence.
type Directory interface {
	GetCaller(ctx context.Context, id string) (Caller, error)
	GetOtomo(ctx context.Context, id string) (Otomo, error)
	SetOtomoAvailability(ctx context.Context, id string, available bool) error
}

// MemoryDirectory is an in-memory Directory for tests and early development.
type MemoryDirectory struct {
	mu      sync.Mutex
	callers map[string]Caller
	otomos  map[string]Otomo
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		callers: make(map[string]Caller),
		otomos:  make(map[string]Otomo),
	}
}

func (m *MemoryDirectory) PutCaller(c Caller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callers[c.ID] = c
}

func (m *MemoryDirectory) PutOtomo(o Otomo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.otomos[o.ID] = o
}

func (m *MemoryDirectory) GetCaller(ctx context.Context, id string) (Caller, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.callers[id]
	if !ok {
		return Caller{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryDirectory) GetOtomo(ctx context.Context, id string) (Otomo, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.otomos[id]
	if !ok {
		return Otomo{}, ErrNotFound
	}
	return o, nil
}

func (m *MemoryDirectory) SetOtomoAvailability(ctx context.Context, id string, available bool) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.otomos[id]
	if !ok {
		return ErrNotFound
	}
	o.Available = available
	o.UpdatedAt = time.Now().UTC()
	m.otomos[id] = o
	return nil
}

// PostgresDirectory reads participants from `callers` and `otomos` tables.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (p *PostgresDirectory) GetCaller(ctx context.Context, id string) (Caller, error) {
	const q = `SELECT id, display_name, created_at FROM callers WHERE id = $1`
	var c Caller
	if err := p.db.QueryRowContext(ctx, q, id).Scan(&c.ID, &c.DisplayName, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Caller{}, ErrNotFound
		}
		return Caller{}, err
	}
	return c, nil
}

func (p *PostgresDirectory) GetOtomo(ctx context.Context, id string) (Otomo, error) {
	const q = `SELECT id, display_name, available, created_at, updated_at FROM otomos WHERE id = $1`
	var o Otomo
	if err := p.db.QueryRowContext(ctx, q, id).Scan(&o.ID, &o.DisplayName, &o.Available, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Otomo{}, ErrNotFound
		}
		return Otomo{}, err
	}
	return o, nil
}

func (p *PostgresDirectory) SetOtomoAvailability(ctx context.Context, id string, available bool) error {
	const q = `UPDATE otomos SET available = $2, updated_at = NOW() WHERE id = $1`
	res, err := p.db.ExecContext(ctx, q, id, available)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
