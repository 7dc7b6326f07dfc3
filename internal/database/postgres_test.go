package database

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func Test_mapError(t *testing.T) {
	other := errors.New("boom")

	tcases := []struct {
		name     string
		err      error
		expected error
	}{
		{name: "nil", err: nil, expected: nil},
		{name: "no rows", err: sql.ErrNoRows, expected: ErrNotFound},
		{name: "wrapped no rows", err: fmt.Errorf("scan: %w", sql.ErrNoRows), expected: ErrNotFound},
		{name: "unique violation", err: &pq.Error{Code: uniqueViolation, Constraint: "chat_rooms_order_id_key"}, expected: ErrConflict},
		{name: "other pq error", err: &pq.Error{Code: "57014"}, expected: nil},
		{name: "other error", err: other, expected: other},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapError(tc.err)
			switch {
			case tc.err == nil:
				assert.NoError(t, got)
			case tc.expected == nil:
				assert.Equal(t, tc.err, got, "expected error to pass through unchanged")
			default:
				assert.ErrorIs(t, got, tc.expected)
			}
		})
	}
}

func Test_nullString(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.Equal(t, sql.NullString{String: "x", Valid: true}, nullString("x"))
}
