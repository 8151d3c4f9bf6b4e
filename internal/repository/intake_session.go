package repository

import (
	"context"
	"database/sql"
	"time"

	"asklegal/internal/database"
)

type IntakeSessionRepositoryInterface interface {
	Get(ctx context.Context, userID, id string) (string, bool, error)
	Upsert(ctx context.Context, userID, id, state string) error
	Delete(ctx context.Context, userID, id string) error
	// Take deletes the row and returns the state it held, in one statement.
	Take(ctx context.Context, userID, id string) (string, bool, error)
}

var _ IntakeSessionRepositoryInterface = (*IntakeSessionRepository)(nil)

// IntakeSessionRepository stores serialized intake state blobs. It does not
// interpret them.
type IntakeSessionRepository struct {
	db *database.DB
}

func NewIntakeSessionRepository(db *database.DB) *IntakeSessionRepository {
	return &IntakeSessionRepository{db: db}
}

func (r *IntakeSessionRepository) Get(ctx context.Context, userID, id string) (string, bool, error) {
	var state string
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind(`SELECT state FROM intake_sessions WHERE user_id = ? AND id = ?`),
		userID, id,
	).Scan(&state)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return state, true, nil
}

func (r *IntakeSessionRepository) Upsert(ctx context.Context, userID, id, state string) error {
	_, err := r.db.ExecContext(ctx,
		r.db.Rebind(`INSERT INTO intake_sessions (id, user_id, state, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`),
		id, userID, state, time.Now().UTC(),
	)
	return err
}

func (r *IntakeSessionRepository) Delete(ctx context.Context, userID, id string) error {
	_, err := r.db.ExecContext(ctx,
		r.db.Rebind(`DELETE FROM intake_sessions WHERE user_id = ? AND id = ?`),
		userID, id,
	)
	return err
}

func (r *IntakeSessionRepository) Take(ctx context.Context, userID, id string) (string, bool, error) {
	var state string
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind(`DELETE FROM intake_sessions WHERE user_id = ? AND id = ? RETURNING state`),
		userID, id,
	).Scan(&state)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return state, true, nil
}
