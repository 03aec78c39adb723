// Package audit keeps a trail of ledger mutations.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one recorded mutation.
type Entry struct {
	ID     uuid.UUID
	At     time.Time
	Action string
	Entity string
	Ref    string
}

// Service persists and reads audit entries.
type Service struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewService constructs the audit service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool, now: time.Now}
}

// Record appends one entry to the trail. Failures are reported to the
// caller, who decides whether they are fatal; the ledger treats them as
// log-only.
func (s *Service) Record(ctx context.Context, action, entity, ref string) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (id, at, action, entity, ref)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), s.now().UTC(), action, entity, ref)
	return err
}

// Recent returns the latest entries, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, at, action, entity, ref
		FROM audit_log ORDER BY at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.At, &e.Action, &e.Entity, &e.Ref); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
