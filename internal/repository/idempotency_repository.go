package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nano-pos/internal/domain"
	"nano-pos/internal/idempotency"

	"github.com/google/uuid"
)

type idempotencyRepository struct {
	db    *sql.DB
	lease time.Duration
	now   func() time.Time
}

// NewIdempotencyRepository creates the durable Postgres idempotency store.
// Records survive restarts; an in-flight record left behind by a crash blocks
// its key for at most one lease.
func NewIdempotencyRepository(db *sql.DB, lease time.Duration) idempotency.Store {
	return &idempotencyRepository{db: db, lease: lease, now: time.Now}
}

// Begin inserts an in-flight record. ON CONFLICT only takes over a record that
// is still in flight, whose lease has expired and that carries the same
// fingerprint; anything else is returned untouched to the caller.
func (r *idempotencyRepository) Begin(ctx context.Context, key, fingerprint string) (*domain.IdempotencyRecord, bool, error) {
	for attempt := 0; attempt < 3; attempt++ {
		now := r.now()
		owner := uuid.NewString()
		lockedUntil := now.Add(r.lease)

		var returnedOwner string
		err := r.db.QueryRowContext(ctx, `
			INSERT INTO idempotency_keys (key, fingerprint, status, owner, locked_until, created_at)
			VALUES ($1, $2, 'in_flight', $3, $4, $5)
			ON CONFLICT (key) DO UPDATE
				SET owner = EXCLUDED.owner,
				    locked_until = EXCLUDED.locked_until
				WHERE idempotency_keys.status = 'in_flight'
				  AND idempotency_keys.locked_until < EXCLUDED.created_at
				  AND idempotency_keys.fingerprint = EXCLUDED.fingerprint
			RETURNING owner
		`, key, fingerprint, owner, lockedUntil, now).Scan(&returnedOwner)

		switch {
		case err == nil:
			return &domain.IdempotencyRecord{
				Key:         key,
				Fingerprint: fingerprint,
				Status:      domain.IdempotencyInFlight,
				Owner:       returnedOwner,
				LockedUntil: lockedUntil,
				CreatedAt:   now,
			}, true, nil
		case !errors.Is(err, sql.ErrNoRows):
			return nil, false, fmt.Errorf("failed to begin idempotency key: %w", err)
		}

		rec, err := r.Lookup(ctx, key)
		if errors.Is(err, idempotency.ErrKeyNotFound) {
			// Released between the insert and the read; try again.
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return rec, false, nil
	}

	return nil, false, fmt.Errorf("failed to begin idempotency key %q: record keeps disappearing", key)
}

// Complete stores the terminal outcome if the caller still owns the key
func (r *idempotencyRepository) Complete(ctx context.Context, key, owner string, outcome domain.Outcome) error {
	var failure []byte
	if outcome.Failure != nil {
		raw, err := json.Marshal(outcome.Failure)
		if err != nil {
			return fmt.Errorf("failed to encode failure: %w", err)
		}
		failure = raw
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET status = $3, sale_id = $4, failure = $5, completed_at = $6
		WHERE key = $1 AND owner = $2 AND status = 'in_flight'
	`, key, owner, string(outcome.Status()), outcome.SaleID, nullableJSON(failure), r.now())
	if err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return idempotency.ErrLeaseLost
	}
	return nil
}

// Release deletes an in-flight record owned by the caller
func (r *idempotencyRepository) Release(ctx context.Context, key, owner string) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM idempotency_keys
		WHERE key = $1 AND owner = $2 AND status = 'in_flight'
	`, key, owner)
	if err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return idempotency.ErrLeaseLost
	}
	return nil
}

// Lookup retrieves a record by key
func (r *idempotencyRepository) Lookup(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	rec := &domain.IdempotencyRecord{}
	var (
		status      string
		saleID      sql.NullInt64
		failure     []byte
		completedAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT key, fingerprint, status, sale_id, failure, owner, locked_until, created_at, completed_at
		FROM idempotency_keys
		WHERE key = $1
	`, key).Scan(
		&rec.Key,
		&rec.Fingerprint,
		&status,
		&saleID,
		&failure,
		&rec.Owner,
		&rec.LockedUntil,
		&rec.CreatedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, idempotency.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}

	rec.Status = domain.IdempotencyStatus(status)
	if saleID.Valid {
		rec.SaleID = &saleID.Int64
	}
	if len(failure) > 0 {
		var f domain.Failure
		if err := json.Unmarshal(failure, &f); err != nil {
			return nil, fmt.Errorf("corrupt failure for idempotency key %q: %w", key, err)
		}
		rec.Failure = &f
	}
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}

	return rec, nil
}

// Purge deletes completed records and expired in-flight records created before the cutoff
func (r *idempotencyRepository) Purge(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM idempotency_keys
		WHERE created_at < $1
		  AND (status <> 'in_flight' OR locked_until < $2)
	`, before, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge idempotency keys: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return removed, nil
}

func nullableJSON(raw []byte) any {
	if raw == nil {
		return nil
	}
	return string(raw)
}
