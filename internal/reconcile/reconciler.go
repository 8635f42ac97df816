// Package reconcile keeps a warranty's used coverage equal to the sum of
// its claims' cost totals.
package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/warranty/entity"
)

// CoverageStore recomputes used coverage from the claims table and stores it
// in one unit, so interleaved recomputes cannot leave a stale sum behind.
type CoverageStore interface {
	RecomputeUsedCoverage(ctx context.Context, warrantyID string) (*entity.Warranty, error)
}

// Reconciler recomputes used coverage from every claim on a warranty. The
// recompute is idempotent and can be re-run at any time.
type Reconciler struct {
	store  CoverageStore
	logger *zap.SugaredLogger
}

func NewReconciler(store CoverageStore, logger *zap.SugaredLogger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Reconciler{store: store, logger: logger}
}

// Reconcile sums all claim totals for warrantyID and persists the result.
func (r *Reconciler) Reconcile(ctx context.Context, warrantyID string) (*entity.Warranty, error) {
	w, err := r.store.RecomputeUsedCoverage(ctx, warrantyID)
	if err != nil {
		return nil, fmt.Errorf("recompute used coverage for %s: %w", warrantyID, err)
	}
	r.logger.Debugw("coverage reconciled", "warranty_id", warrantyID, "used_coverage", w.UsedCoverage.Decimal.String())
	return w, nil
}

// ReconcileBestEffort runs Reconcile and logs instead of returning failures.
// Claim writes call this after they commit.
func (r *Reconciler) ReconcileBestEffort(ctx context.Context, warrantyID string) {
	if _, err := r.Reconcile(ctx, warrantyID); err != nil {
		r.logger.Warnw("coverage reconcile failed", "warranty_id", warrantyID, "err", err)
	}
}
