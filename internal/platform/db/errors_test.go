package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"}

	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"nil", nil, "", false},
		{"plain error", errors.New("boom"), "", false},
		{"other sqlstate", &pgconn.PgError{Code: "23502"}, "", false},
		{"any constraint", dup, "", true},
		{"matching constraint", dup, "accounts_email_key", true},
		{"other constraint", dup, "patient_records_pkey", false},
		{"wrapped", fmt.Errorf("insert account: %w", dup), "accounts_email_key", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err, tt.constraint); got != tt.want {
				t.Errorf("IsUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("find: %w", pgx.ErrNoRows)) {
		t.Error("expected wrapped pgx.ErrNoRows to match")
	}
	if IsNoRows(errors.New("other")) {
		t.Error("expected unrelated error not to match")
	}
}
