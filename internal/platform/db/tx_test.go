package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestTxFromContext_Nil(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), TxKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil tx for wrong type")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "patients_email_key"})
	name, ok := IsUniqueViolation(err)
	if !ok || name != "patients_email_key" {
		t.Errorf("expected unique violation on patients_email_key, got %q %v", name, ok)
	}
	if _, ok := IsUniqueViolation(errors.New("boom")); ok {
		t.Error("expected plain error not to be a unique violation")
	}
}
