package roadmap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	CodeNotFound  = "not_found"
	CodeConflict  = "conflict"
	CodeRetryable = "retryable"
	CodeInvalid   = "invalid"
	CodeInternal  = "internal"
)

// StoreError classifies a store failure for callers that branch on it.
type StoreError struct {
	Op    string
	Code  string
	Cause error
}

func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Cause)
}

func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func IsNotFound(err error) bool { return codeOf(err) == CodeNotFound }

func codeOf(err error) string {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

func invalid(op, msg string) error {
	return &StoreError{Op: op, Code: CodeInvalid, Cause: errors.New(msg)}
}

// mapError wraps infrastructure failures with a stable code.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &StoreError{Op: op, Code: CodeNotFound, Cause: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &StoreError{Op: op, Code: CodeRetryable, Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			return &StoreError{Op: op, Code: CodeConflict, Cause: err} // unique_violation
		case "22000", "22P02", "XX000":
			// pgvector reports dimension mismatches as data_exception / internal_error.
			if strings.Contains(strings.ToLower(pgErr.Message), "dimension") {
				return &StoreError{Op: op, Code: CodeInvalid, Cause: err}
			}
		case "40001", "40P01", "55P03", "57P01":
			return &StoreError{Op: op, Code: CodeRetryable, Cause: err}
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "unique constraint"):
		return &StoreError{Op: op, Code: CodeConflict, Cause: err}
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "timeout"):
		return &StoreError{Op: op, Code: CodeRetryable, Cause: err}
	default:
		return &StoreError{Op: op, Code: CodeInternal, Cause: err}
	}
}
