package pipeline

import (
	"context"
	"time"

	"github.com/use-agent/harvest/models"
)

// Abort is the single cancellation coordinator for one request. It
// composes the externally supplied context (job cancellation) with an
// internally owned deadline timer, and classifies expiry as a
// scrape-tier timeout so callers can tell it apart from sub-operation
// deadlines.
//
// Cancellation is cooperative: every stage calls Check before starting
// and after any blocking operation; in-flight work is expected to
// observe the shared context at its own check points.
type Abort struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewAbort builds a coordinator from the caller's context and an
// optional overall timeout (0 = no internal deadline).
func NewAbort(parent context.Context, timeout time.Duration) *Abort {
	a := &Abort{}
	if timeout > 0 {
		a.ctx, a.cancel = context.WithTimeoutCause(parent, timeout,
			&models.TimeoutError{Tier: models.TierScrape})
	} else {
		a.ctx, a.cancel = context.WithCancel(parent)
	}
	return a
}

// Context returns the composed context to thread through blocking calls.
func (a *Abort) Context() context.Context { return a.ctx }

// Check returns nil while the request may proceed. Once cancellation
// has fired it returns the classifying cause: the scrape-tier timeout
// for the internal deadline, or the external cancellation's original
// cause verbatim so the caller's own handling is preserved.
func (a *Abort) Check() error {
	select {
	case <-a.ctx.Done():
	default:
		return nil
	}
	if cause := context.Cause(a.ctx); cause != nil {
		return cause
	}
	return a.ctx.Err()
}

// Remaining reports the time left until the deadline, and whether a
// deadline exists at all.
func (a *Abort) Remaining() (time.Duration, bool) {
	deadline, ok := a.ctx.Deadline()
	if !ok {
		return 0, false
	}
	return time.Until(deadline), true
}

// Close releases the deadline timer. It must run on every exit path and
// is safe to call more than once.
func (a *Abort) Close() { a.cancel() }
