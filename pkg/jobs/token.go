package jobs

import "sync/atomic"

// CancelToken is the cooperative cancellation flag handed to an import worker.
// The worker checks it between rows; the registry sets it on Cancel.
type CancelToken struct {
	cancelled atomic.Bool
}

// Cancel requests cancellation. Safe to call more than once.
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether cancellation was requested.
func (t *CancelToken) Cancelled() bool {
	return t.cancelled.Load()
}
