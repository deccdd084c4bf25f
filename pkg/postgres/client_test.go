package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		unique    bool
		transient bool
	}{
		{"unique violation", &pq.Error{Code: "23505"}, true, false},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), true, false},
		{"serialization failure", &pq.Error{Code: "40001"}, false, true},
		{"deadlock", &pq.Error{Code: "40P01"}, false, true},
		{"connection failure", &pq.Error{Code: "08006"}, false, true},
		{"too many connections", &pq.Error{Code: "53300"}, false, true},
		{"admin shutdown", &pq.Error{Code: "57P01"}, false, true},
		{"syntax error", &pq.Error{Code: "42601"}, false, false},
		{"conn done", sql.ErrConnDone, false, true},
		{"plain error", errors.New("boom"), false, false},
		{"nil", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unique, IsUniqueViolation(tt.err))
			assert.Equal(t, tt.transient, IsTransient(tt.err))
		})
	}
}
