package ledger

import "context"

// SyncResult reports the outcome of one write-through. It always resolves,
// either when the collaborator answers or when the sync timeout expires.
type SyncResult struct {
	done chan struct{}
	err  error
}

func newSyncResult() *SyncResult {
	return &SyncResult{done: make(chan struct{})}
}

func resolved(err error) *SyncResult {
	r := newSyncResult()
	r.resolve(err)
	return r
}

func (r *SyncResult) resolve(err error) {
	r.err = err
	close(r.done)
}

// Done is closed once the sync has finished.
func (r *SyncResult) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the sync finishes or ctx ends.
func (r *SyncResult) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the sync error, or nil while the sync is still pending.
func (r *SyncResult) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}
