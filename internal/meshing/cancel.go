package meshing

import "sync/atomic"

// CancellationToken is polled by a running task to stop early. One token
// belongs to exactly one task; only the scheduler cancels it.
type CancellationToken struct {
	cancelled atomic.Bool
}

// NewCancellationToken returns an uncancelled token.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{}
}

// Cancel flips the token. Calling it more than once is harmless.
func (t *CancellationToken) Cancel() {
	t.cancelled.Store(true)
}

// IsCancelled reports whether Cancel has been called. A nil token is never
// cancelled.
func (t *CancellationToken) IsCancelled() bool {
	return t != nil && t.cancelled.Load()
}
