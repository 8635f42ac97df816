package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Async emits on a background goroutine with a deadline so a slow or broken
// sink never blocks the caller. Failures are logged.
type Async struct {
	next    Sink
	timeout time.Duration
	logger  *zap.SugaredLogger
	wg      sync.WaitGroup
}

func NewAsync(next Sink, timeout time.Duration, logger *zap.SugaredLogger) *Async {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Async{next: next, timeout: timeout, logger: logger}
}

// Emit always returns nil.
func (a *Async) Emit(ctx context.Context, ev Event) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		// detach from the request so a finished response does not cancel delivery
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		if err := a.next.Emit(ctx, ev); err != nil {
			a.logger.Warnw("notification failed", "event", ev.Name, "event_id", ev.ID, "err", err)
		}
	}()
	return nil
}

// Wait blocks until in-flight emits finish or ctx is done.
func (a *Async) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
