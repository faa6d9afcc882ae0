package connection

import (
	"sync"
	"time"
)

// ReconnectTimer is a single-shot delayed callback with cancel semantics.
// Arming always replaces any previously armed callback. The zero value is
// ready to use.
type ReconnectTimer struct {
	mu sync.Mutex
	t  *time.Timer
}

// Arm schedules fn to run once after delay, canceling any previously
// armed callback first. fn runs on its own goroutine.
func (rt *ReconnectTimer) Arm(delay time.Duration, fn func()) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.t != nil {
		rt.t.Stop()
	}
	rt.t = time.AfterFunc(delay, fn)
}

// Cancel stops the armed callback, if any. It is idempotent and safe to
// call with nothing armed. A callback that has already started is not
// interrupted; callers re-check their own state when it runs.
func (rt *ReconnectTimer) Cancel() {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.t != nil {
		rt.t.Stop()
		rt.t = nil
	}
}
