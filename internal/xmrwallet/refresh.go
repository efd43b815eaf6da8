package xmrwallet

import (
	"context"
	"sync"
	"time"
)

// refreshScheduler is the state of the background refresh loop. mu guards
// the flags; passMu allows one synchronization pass at a time, whether it
// comes from the loop or from Refresh.
type refreshScheduler struct {
	mu           sync.Mutex
	enabled      bool
	shuttingDown bool
	interval     time.Duration

	wake chan struct{}
	done chan struct{}

	passMu sync.Mutex
}

func newRefreshScheduler(interval time.Duration) *refreshScheduler {
	return &refreshScheduler{
		interval: interval,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// signal wakes the loop without blocking; pending wakes coalesce.
func (r *refreshScheduler) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *refreshScheduler) state() (enabled, shuttingDown bool, interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled, r.shuttingDown, r.interval
}

func (w *Wallet) refreshLoop() {
	r := w.refresh
	defer close(r.done)
	w.log.Debug("starting refresh loop")

	_, _, interval := r.state()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-r.wake:
		case <-timer.C:
		}
		enabled, shuttingDown, interval := r.state()
		if shuttingDown {
			break
		}
		if enabled {
			w.log.Debug("refreshing")
			_ = w.doRefresh(context.Background())
		}
		timer.Reset(interval)
	}
	w.log.Debug("refresh loop stopped")
}

// doRefresh runs one synchronization pass and returns its outcome. Refreshed
// is delivered whether or not the pass failed, while still holding the pass
// lock.
func (w *Wallet) doRefresh(ctx context.Context) error {
	w.refresh.passMu.Lock()
	defer w.refresh.passMu.Unlock()

	var passErr error
	err := guardEngine(func() error {
		return w.engine.Refresh(ctx)
	})
	if err != nil {
		w.log.Warn("refresh failed", "err", err)
		passErr = w.fail(lifecycleError(err))
	}
	if l := w.currentListener(); l != nil {
		l.Refreshed()
	}
	return passErr
}

// Refresh runs one synchronization pass on the calling goroutine, waiting
// for any pass already in flight. The result is that of this pass, not of a
// background pass finishing around it.
func (w *Wallet) Refresh(ctx context.Context) error {
	w.clearStatus()
	return w.doRefresh(ctx)
}

// RefreshAsync wakes the loop for an immediate pass if refresh is enabled.
func (w *Wallet) RefreshAsync() {
	w.clearStatus()
	w.refresh.signal()
}

func (w *Wallet) StartRefresh() {
	r := w.refresh
	r.mu.Lock()
	if r.enabled || r.shuttingDown {
		r.mu.Unlock()
		return
	}
	r.enabled = true
	r.mu.Unlock()
	r.signal()
}

func (w *Wallet) PauseRefresh() {
	r := w.refresh
	r.mu.Lock()
	if !r.shuttingDown {
		r.enabled = false
	}
	r.mu.Unlock()
}

// StopRefresh ends the loop and waits for it to exit, letting an in-flight
// pass complete first. Further calls return immediately.
func (w *Wallet) StopRefresh() {
	r := w.refresh
	r.mu.Lock()
	if !r.shuttingDown {
		r.shuttingDown = true
		r.enabled = false
		r.signal()
	}
	r.mu.Unlock()
	<-r.done
}

func (w *Wallet) RefreshEnabled() bool {
	enabled, _, _ := w.refresh.state()
	return enabled
}

func (w *Wallet) RefreshInterval() time.Duration {
	_, _, interval := w.refresh.state()
	return interval
}

// SetRefreshInterval takes effect after the current wait.
func (w *Wallet) SetRefreshInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	r := w.refresh
	r.mu.Lock()
	r.interval = interval
	r.mu.Unlock()
}
