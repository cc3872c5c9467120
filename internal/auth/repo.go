package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the session audit trail.
type Repository interface {
	RecordEvent(ctx context.Context, event SessionEvent) error
}

// NopRepository discards events; used when no database is configured.
type NopRepository struct{}

// RecordEvent implements Repository.
func (NopRepository) RecordEvent(context.Context, SessionEvent) error {
	return nil
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// RecordEvent appends a session event to portal_session_events.
func (r *PGRepository) RecordEvent(ctx context.Context, event SessionEvent) error {
	if r == nil || r.pool == nil {
		return errors.New("auth: session repository not initialised")
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO portal_session_events (session_id, subject_id, role, kind, occurred_at) VALUES ($1, $2, $3, $4, $5)`,
		event.SessionID, event.SubjectID, event.Role, string(event.Kind), event.At)
	return err
}

var (
	_ Repository = (*PGRepository)(nil)
	_ Repository = NopRepository{}
)
