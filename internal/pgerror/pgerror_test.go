package pgerror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestGetConstraintName(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
		ok   bool
	}{
		{name: "nil error", err: nil},
		{name: "plain error", err: errors.New("boom")},
		{
			name: "unique violation",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: "bindings_pkey"},
			want: "bindings_pkey",
			ok:   true,
		},
		{
			name: "wrapped foreign key violation",
			err:  fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503", ConstraintName: "bindings_agent_fkey"}),
			want: "bindings_agent_fkey",
			ok:   true,
		},
		{name: "constraint code without name", err: &pgconn.PgError{Code: "23505"}},
		{name: "unrelated code", err: &pgconn.PgError{Code: "42P01", ConstraintName: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := GetConstraintName(tt.err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsLockConflict(t *testing.T) {
	assert.False(t, IsLockConflict(nil))
	assert.False(t, IsLockConflict(errors.New("boom")))
	assert.False(t, IsLockConflict(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsLockConflict(&pgconn.PgError{Code: "55P03"}))
	assert.True(t, IsLockConflict(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, IsLockConflict(fmt.Errorf("lease: %w", &pgconn.PgError{Code: "55P03"})))
}
