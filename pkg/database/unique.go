package database

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

var (
	// ErrDuplicateKey is returned when a write hits a unique constraint on a
	// natural key (phone, citizen id, serial, IMEI, username).
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrIDCollision is returned when a generated identifier (policy number,
	// claim id, member code) already exists. InsertWithRetry retries on it.
	ErrIDCollision = errors.New("generated identifier collision")

	// ErrRetriesExhausted means every generated identifier collided.
	ErrRetriesExhausted = errors.New("unique identifier retries exhausted")
)

// IsUniqueViolation reports whether err is a Postgres unique violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

// ConstraintName returns the violated constraint for a Postgres error, or "".
func ConstraintName(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}

// ClassifyUnique maps a unique violation onto ErrIDCollision when the
// violated constraint guards a generated identifier, and onto ErrDuplicateKey
// otherwise. Other errors pass through untouched.
func ClassifyUnique(err error, idConstraints ...string) error {
	if !IsUniqueViolation(err) {
		return err
	}
	name := ConstraintName(err)
	if slices.Contains(idConstraints, name) {
		return fmt.Errorf("%w: %s", ErrIDCollision, name)
	}
	return fmt.Errorf("%w: %s", ErrDuplicateKey, name)
}

// InsertWithRetry calls insert up to attempts times. Each call is expected to
// generate a fresh identifier; only ErrIDCollision is retried.
func InsertWithRetry(ctx context.Context, attempts int, insert func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := insert(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrIDCollision) {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, attempts)
}
