package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		errType   string
	}{
		{"nil", nil, false, ""},
		{"json syntax", jsonErr(), false, "json_decode_error"},
		{"no rows", fmt.Errorf("find: %w", pgx.ErrNoRows), false, "entity_not_found"},
		{"duplicate key", errors.New(`ERROR: duplicate key value violates unique constraint`), false, "duplicate_key"},
		{"connection refused", errors.New("failed to connect to database: connection refused"), true, "db_connection_error"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"unknown", errors.New("something odd"), false, "unknown_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			retryable, errType := IsRetryableError(tc.err)
			assert.Equal(t, tc.retryable, retryable)
			assert.Equal(t, tc.errType, errType)
		})
	}
}

func jsonErr() error {
	var v map[string]any
	return json.Unmarshal([]byte("{not json"), &v)
}

func TestShouldRetry(t *testing.T) {
	assert.False(t, ShouldRetry(1, 5, false))
	assert.True(t, ShouldRetry(1, 5, true))
	assert.True(t, ShouldRetry(5, 5, true))
	assert.False(t, ShouldRetry(6, 5, true))
}
