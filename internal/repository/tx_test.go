package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		data      bool
	}{
		{"deadlock", &pgconn.PgError{Code: pgDeadlockDetected}, true, false},
		{"lock timeout", &pgconn.PgError{Code: pgLockNotAvailable}, true, false},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true, false},
		{"context canceled", fmt.Errorf("tx: %w", context.Canceled), true, false},
		{"numeric overflow", &pgconn.PgError{Code: "22003"}, false, true},
		{"invalid byte sequence", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "22021"}), false, true},
		{"unique violation", &pgconn.PgError{Code: pgUniqueViolation}, false, false},
		{"plain error", errors.New("boom"), false, false},
		{"nil", nil, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
			assert.Equal(t, tt.data, IsDataException(tt.err))
		})
	}
}
