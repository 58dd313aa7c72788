// Package watchdog detects stalled long-running operations. A watchdog is
// scoped to exactly one operation: start it, feed it progress signals, stop
// it when the operation ends, then discard it.
package watchdog

import (
	"sync"
	"time"
)

// Callbacks are supplied by the caller. The watchdog itself never returns
// errors; everything it knows is delivered through these hooks.
type Callbacks struct {
	// OnWarning fires when no progress was recorded for the warning
	// threshold, at most once per progress window.
	OnWarning func(sinceLastProgress time.Duration)

	// OnTimeout fires exactly once per session when no progress was
	// recorded for the full timeout.
	OnTimeout func(sinceLastProgress time.Duration)

	// Cancel aborts the monitored operation, e.g. a context.CancelFunc
	// covering an in-flight synthesis call. Invoked right before OnTimeout.
	Cancel func()
}

// Watchdog monitors a single operation for liveness. The contract is "no
// progress for timeout", not "total duration exceeds timeout": every
// RecordProgress re-arms both timers.
type Watchdog struct {
	timeout time.Duration
	warning time.Duration
	cb      Callbacks

	mu           sync.Mutex
	running      bool
	timedOut     bool
	warningFired bool
	lastProgress time.Time
	warnTimer    *time.Timer
	hardTimer    *time.Timer
}

// New creates a watchdog. warning must be shorter than timeout; a zero
// warning disables the warning signal.
func New(timeout, warning time.Duration, cb Callbacks) *Watchdog {
	if warning >= timeout {
		warning = 0
	}
	return &Watchdog{timeout: timeout, warning: warning, cb: cb}
}

// Start arms the timers. Calling Start on a running or already timed-out
// watchdog is a no-op.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running || w.timedOut {
		return
	}
	w.running = true
	w.lastProgress = time.Now()
	w.armLocked()
}

// RecordProgress resets the elapsed-time clock and re-arms both timers,
// clearing any pending warning for the new window.
func (w *Watchdog) RecordProgress() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.lastProgress = time.Now()
	w.warningFired = false
	w.disarmLocked()
	w.armLocked()
}

// Stop tears the session down. All pending timers are canceled so nothing
// fires late; a timeout that already fired stays fired.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = false
	w.disarmLocked()
}

// TimedOut reports whether the hard timeout fired during this session.
func (w *Watchdog) TimedOut() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timedOut
}

func (w *Watchdog) armLocked() {
	if w.warning > 0 {
		w.warnTimer = time.AfterFunc(w.warning, w.fireWarning)
	}
	w.hardTimer = time.AfterFunc(w.timeout, w.fireTimeout)
}

func (w *Watchdog) disarmLocked() {
	if w.warnTimer != nil {
		w.warnTimer.Stop()
		w.warnTimer = nil
	}
	if w.hardTimer != nil {
		w.hardTimer.Stop()
		w.hardTimer = nil
	}
}

func (w *Watchdog) fireWarning() {
	w.mu.Lock()
	if !w.running || w.warningFired {
		w.mu.Unlock()
		return
	}
	// A timer that fired just as RecordProgress re-armed slips past
	// Timer.Stop; it delivers here with a fresh window and must be ignored.
	if time.Since(w.lastProgress) < w.warning {
		w.mu.Unlock()
		return
	}
	w.warningFired = true
	since := time.Since(w.lastProgress)
	cb := w.cb.OnWarning
	w.mu.Unlock()

	if cb != nil {
		cb(since)
	}
}

func (w *Watchdog) fireTimeout() {
	w.mu.Lock()
	if !w.running || w.timedOut {
		w.mu.Unlock()
		return
	}
	// Same late-delivery guard as fireWarning.
	if time.Since(w.lastProgress) < w.timeout {
		w.mu.Unlock()
		return
	}
	w.timedOut = true
	w.running = false
	since := time.Since(w.lastProgress)
	w.disarmLocked()
	cancel := w.cb.Cancel
	onTimeout := w.cb.OnTimeout
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if onTimeout != nil {
		onTimeout(since)
	}
}
