// File: internal/usecase/request_coordinator.go
package usecase

import "sync"

// requestCoordinator enforces the at-most-one-outstanding-request rule and
// tags every outbound call with a session epoch. The epoch moves whenever the
// session identity changes (new chat, load), so a response that comes back
// after such a change is detected as stale and discarded instead of being
// appended to a log it no longer belongs to. The in-flight call itself is
// never cancelled.
type requestCoordinator struct {
	mu    sync.Mutex
	busy  bool
	epoch int64
}

// begin claims the in-flight slot. Returns the epoch the request belongs to,
// or ok=false when another request already holds the slot.
func (rc *requestCoordinator) begin() (epoch int64, ok bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.busy {
		return 0, false
	}
	rc.busy = true
	return rc.epoch, true
}

// finish releases the slot. Returns false when the epoch moved while the
// request was in flight; the caller must then discard the response. A stale
// finish never touches the busy flag — it belongs to a newer epoch by now.
func (rc *requestCoordinator) finish(epoch int64) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if epoch != rc.epoch {
		return false
	}
	rc.busy = false
	return true
}

// invalidate bumps the epoch and frees the slot, orphaning any request still
// in flight.
func (rc *requestCoordinator) invalidate() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.epoch++
	rc.busy = false
}

func (rc *requestCoordinator) isBusy() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.busy
}

func (rc *requestCoordinator) current() int64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.epoch
}
