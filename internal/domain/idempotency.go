package domain

import "time"

// IdempotencyStatus is the lifecycle state of an idempotency key
type IdempotencyStatus string

const (
	IdempotencyInFlight  IdempotencyStatus = "in_flight"
	IdempotencySucceeded IdempotencyStatus = "succeeded"
	IdempotencyFailed    IdempotencyStatus = "failed"
)

// IdempotencyRecord maps a client-supplied key to the outcome of the first
// request that carried it.
type IdempotencyRecord struct {
	Key         string            `json:"key"`
	Fingerprint string            `json:"fingerprint"`
	Status      IdempotencyStatus `json:"status"`
	SaleID      *int64            `json:"sale_id,omitempty"`
	Failure     *Failure          `json:"failure,omitempty"`
	Owner       string            `json:"owner"`
	LockedUntil time.Time         `json:"locked_until"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Terminal reports whether the record holds a final outcome.
func (r *IdempotencyRecord) Terminal() bool {
	return r.Status == IdempotencySucceeded || r.Status == IdempotencyFailed
}

// Outcome is the terminal result stored against a key: exactly one of SaleID
// or Failure is set.
type Outcome struct {
	SaleID  *int64
	Failure *Failure
}

// SucceededWith builds a success outcome for the given sale.
func SucceededWith(saleID int64) Outcome {
	return Outcome{SaleID: &saleID}
}

// FailedWith builds a failure outcome.
func FailedWith(f *Failure) Outcome {
	return Outcome{Failure: f}
}

// Status returns the record status this outcome resolves to.
func (o Outcome) Status() IdempotencyStatus {
	if o.SaleID != nil {
		return IdempotencySucceeded
	}
	return IdempotencyFailed
}
