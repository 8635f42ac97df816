package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyUnique(t *testing.T) {
	idErr := &pq.Error{Code: "23505", Constraint: "warranties_policy_number_key"}
	keyErr := &pq.Error{Code: "23505", Constraint: "warranties_imei_key"}
	other := errors.New("boom")

	assert.ErrorIs(t, ClassifyUnique(idErr, "warranties_policy_number_key"), ErrIDCollision)
	assert.ErrorIs(t, ClassifyUnique(keyErr, "warranties_policy_number_key"), ErrDuplicateKey)
	assert.Equal(t, other, ClassifyUnique(other))
	assert.Nil(t, ClassifyUnique(nil))
}

func TestInsertWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after collisions", func(t *testing.T) {
		calls := 0
		err := InsertWithRetry(ctx, 5, func(context.Context) error {
			calls++
			if calls < 3 {
				return fmt.Errorf("insert: %w", ErrIDCollision)
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("bounded", func(t *testing.T) {
		calls := 0
		err := InsertWithRetry(ctx, 4, func(context.Context) error {
			calls++
			return ErrIDCollision
		})
		require.ErrorIs(t, err, ErrRetriesExhausted)
		assert.Equal(t, 4, calls)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		err := InsertWithRetry(ctx, 4, func(context.Context) error {
			calls++
			return ErrDuplicateKey
		})
		require.ErrorIs(t, err, ErrDuplicateKey)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := InsertWithRetry(cctx, 4, func(context.Context) error { return nil })
		require.ErrorIs(t, err, context.Canceled)
	})
}
