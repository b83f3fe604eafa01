// ==============================================================================
// PENDING REGISTRATION REPOSITORY - internal/repository/postgres/pending.go
// ==============================================================================
package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"opns/internal/domain"
	"opns/internal/store"
	opnserrors "opns/pkg/errors"
)

// PendingRepository is a store.PendingStore backed by one table row.
type PendingRepository struct {
	db *sqlx.DB
}

var _ store.PendingStore = (*PendingRepository)(nil)

func NewPendingRepository(db *sqlx.DB) *PendingRepository {
	return &PendingRepository{db: db}
}

func (r *PendingRepository) Save(ctx context.Context, p domain.PendingRegistration) error {
	query := `
		INSERT INTO pending_registrations (slot, handle, address, state, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (slot) DO UPDATE SET
			handle = EXCLUDED.handle,
			address = EXCLUDED.address,
			state = EXCLUDED.state,
			created_at = EXCLUDED.created_at
	`

	_, err := r.db.ExecContext(ctx, query, store.Slot, p.Handle, p.Address, p.State, p.CreatedAt)
	return opnserrors.Wrap(err, "failed to save pending registration")
}

func (r *PendingRepository) Take(ctx context.Context) (*domain.PendingRegistration, error) {
	query := `
		DELETE FROM pending_registrations
		WHERE slot = $1
		RETURNING handle, address, state, created_at
	`
	return r.get(ctx, query, "failed to take pending registration")
}

func (r *PendingRepository) Peek(ctx context.Context) (*domain.PendingRegistration, error) {
	query := `
		SELECT handle, address, state, created_at
		FROM pending_registrations
		WHERE slot = $1
	`
	return r.get(ctx, query, "failed to read pending registration")
}

func (r *PendingRepository) get(ctx context.Context, query, msg string) (*domain.PendingRegistration, error) {
	var p domain.PendingRegistration
	err := r.db.GetContext(ctx, &p, query, store.Slot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, opnserrors.Wrap(err, msg)
	}
	return &p, nil
}
