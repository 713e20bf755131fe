package repository

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		target error
	}{
		{"no rows", pgx.ErrNoRows, ErrNotFound},
		{"unique", &pgconn.PgError{Code: pgUniqueViolation}, ErrConflict},
		{"foreign key", &pgconn.PgError{Code: pgForeignKeyViolation}, ErrInvalidReference},
		{"check", &pgconn.PgError{Code: pgCheckViolation}, ErrInvalidValue},
	}
	for _, tc := range cases {
		got := mapError(tc.err)
		if !errors.Is(got, tc.target) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.target, got)
		}
		if !errors.Is(got, tc.err) {
			t.Fatalf("%s: expected original error kept in chain", tc.name)
		}
	}

	other := errors.New("boom")
	if got := mapError(other); got != other {
		t.Fatalf("expected passthrough, got %v", got)
	}
	if mapError(nil) != nil {
		t.Fatalf("expected nil")
	}
}
