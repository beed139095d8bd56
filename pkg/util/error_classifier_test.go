package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"mockupreview/pkg/circuitbreaker"
)

func TestIsRetryableError(t *testing.T) {
	var syntaxErr error = &json.SyntaxError{}

	tests := []struct {
		name      string
		err       error
		retryable bool
		errType   string
	}{
		{"nil", nil, false, ""},
		{"json", syntaxErr, false, "json_decode_error"},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"unique violation", &pgconn.PgError{Code: PgUniqueViolation}, false, "duplicate_key"},
		{"serialization", &pgconn.PgError{Code: PgSerializationFailure}, true, "tx_conflict"},
		{"lock timeout", &pgconn.PgError{Code: PgLockNotAvailable}, true, "lock_timeout"},
		{"other pg", &pgconn.PgError{Code: "42601"}, false, "db_error"},
		{"breaker open", fmt.Errorf("send: %w", circuitbreaker.ErrCircuitBreakerOpen), true, "circuit_open"},
		{"webhook 503", errors.New("webhook returned status 503"), true, "webhook_server_error"},
		{"webhook 400", errors.New("webhook returned status 400"), false, "unknown_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, errType := IsRetryableError(tt.err)
			assert.Equal(t, tt.retryable, retryable)
			assert.Equal(t, tt.errType, errType)
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: PgUniqueViolation})))
	assert.False(t, IsUniqueViolation(errors.New("duplicate")))
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(1, 3, true))
	assert.True(t, ShouldRetry(3, 3, true))
	assert.False(t, ShouldRetry(4, 3, true))
	assert.False(t, ShouldRetry(1, 3, false))
}
