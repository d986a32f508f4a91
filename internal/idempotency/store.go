// Package idempotency records the outcome of requests by client-supplied key
// so that a retried request has at most one effect.
package idempotency

import (
	"context"
	"errors"
	"time"

	"nano-pos/internal/domain"
)

var (
	ErrKeyNotFound = errors.New("idempotency key not found")
	// ErrLeaseLost means the in-flight record is no longer owned by the caller,
	// either because it expired and was reclaimed or because it was purged.
	ErrLeaseLost = errors.New("idempotency lease lost")
)

// Store is the idempotency key store. Begin establishes a single writer per
// key: only the caller that receives acquired == true may process the request,
// and only that owner may Complete or Release the key.
type Store interface {
	// Begin atomically moves an absent key to in-flight. When the key exists
	// the current record is returned with acquired == false. An in-flight
	// record whose lease expired is reclaimed when the fingerprint matches.
	Begin(ctx context.Context, key, fingerprint string) (rec *domain.IdempotencyRecord, acquired bool, err error)
	// Complete stores a terminal outcome for a key the caller owns.
	Complete(ctx context.Context, key, owner string, outcome domain.Outcome) error
	// Release drops an in-flight key after a retryable failure.
	Release(ctx context.Context, key, owner string) error
	// Lookup returns the record for key or ErrKeyNotFound.
	Lookup(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	// Purge deletes records created before the cutoff and reports how many
	// were removed. Live in-flight records are kept.
	Purge(ctx context.Context, before time.Time) (int64, error)
}
