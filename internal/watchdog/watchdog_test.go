package watchdog

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNoTimeoutWhileProgressFlows(t *testing.T) {
	var timeouts int32
	wd := New(200*time.Millisecond, 0, Callbacks{
		OnTimeout: func(time.Duration) { atomic.AddInt32(&timeouts, 1) },
	})
	wd.Start()
	defer wd.Stop()

	// Progress every half-timeout keeps the watchdog quiet.
	for i := 0; i < 6; i++ {
		time.Sleep(100 * time.Millisecond)
		wd.RecordProgress()
	}

	if n := atomic.LoadInt32(&timeouts); n != 0 {
		t.Fatalf("timeout fired %d times despite steady progress", n)
	}
	if wd.TimedOut() {
		t.Fatal("TimedOut reported true despite steady progress")
	}
}

func TestTimeoutFiresExactlyOnce(t *testing.T) {
	var timeouts int32
	var canceled int32
	wd := New(100*time.Millisecond, 0, Callbacks{
		Cancel:    func() { atomic.AddInt32(&canceled, 1) },
		OnTimeout: func(time.Duration) { atomic.AddInt32(&timeouts, 1) },
	})
	wd.Start()

	time.Sleep(300 * time.Millisecond)

	if n := atomic.LoadInt32(&timeouts); n != 1 {
		t.Fatalf("expected exactly one timeout, got %d", n)
	}
	if n := atomic.LoadInt32(&canceled); n != 1 {
		t.Fatalf("expected cancel hook invoked once, got %d", n)
	}
	if !wd.TimedOut() {
		t.Fatal("TimedOut should report true after the hard timeout")
	}

	// Stop after a timeout must not fire anything further.
	wd.Stop()
	time.Sleep(150 * time.Millisecond)
	if n := atomic.LoadInt32(&timeouts); n != 1 {
		t.Fatalf("timeout refired after Stop, count=%d", n)
	}
}

func TestStopSuppressesPendingTimers(t *testing.T) {
	var timeouts int32
	var warnings int32
	wd := New(100*time.Millisecond, 50*time.Millisecond, Callbacks{
		OnWarning: func(time.Duration) { atomic.AddInt32(&warnings, 1) },
		OnTimeout: func(time.Duration) { atomic.AddInt32(&timeouts, 1) },
	})
	wd.Start()
	wd.Stop()

	time.Sleep(200 * time.Millisecond)

	if n := atomic.LoadInt32(&timeouts); n != 0 {
		t.Fatalf("timeout fired after Stop, count=%d", n)
	}
	if n := atomic.LoadInt32(&warnings); n != 0 {
		t.Fatalf("warning fired after Stop, count=%d", n)
	}
}

func TestWarningFiresBeforeTimeout(t *testing.T) {
	warned := make(chan struct{}, 1)
	var timeouts int32
	wd := New(300*time.Millisecond, 80*time.Millisecond, Callbacks{
		OnWarning: func(time.Duration) {
			select {
			case warned <- struct{}{}:
			default:
			}
		},
		OnTimeout: func(time.Duration) { atomic.AddInt32(&timeouts, 1) },
	})
	wd.Start()
	defer wd.Stop()

	select {
	case <-warned:
	case <-time.After(250 * time.Millisecond):
		t.Fatal("warning did not fire before the hard timeout window")
	}
	if n := atomic.LoadInt32(&timeouts); n != 0 {
		t.Fatal("hard timeout fired during the warning window")
	}
}

func TestProgressReArmsWarningWindow(t *testing.T) {
	var warnings int32
	wd := New(500*time.Millisecond, 100*time.Millisecond, Callbacks{
		OnWarning: func(time.Duration) { atomic.AddInt32(&warnings, 1) },
	})
	wd.Start()
	defer wd.Stop()

	// Each progress signal opens a fresh window, so the warning can fire
	// again after a later stall.
	time.Sleep(150 * time.Millisecond) // first warning
	wd.RecordProgress()
	time.Sleep(150 * time.Millisecond) // second warning, new window

	if n := atomic.LoadInt32(&warnings); n != 2 {
		t.Fatalf("expected one warning per stalled window, got %d", n)
	}
}

func TestLateTimerDeliveryAfterProgressIsIgnored(t *testing.T) {
	// Timer.Stop cannot cancel a timer whose callback has already fired
	// and is waiting on the mutex. Simulate that delivery landing right
	// after RecordProgress: the window is fresh, so nothing may fire.
	var timeouts int32
	var warnings int32
	wd := New(time.Hour, time.Minute, Callbacks{
		OnWarning: func(time.Duration) { atomic.AddInt32(&warnings, 1) },
		OnTimeout: func(time.Duration) { atomic.AddInt32(&timeouts, 1) },
	})
	wd.Start()
	defer wd.Stop()

	wd.RecordProgress()
	wd.fireTimeout()
	wd.fireWarning()

	if n := atomic.LoadInt32(&timeouts); n != 0 {
		t.Fatalf("timeout fired %d time(s) despite a fresh progress window", n)
	}
	if n := atomic.LoadInt32(&warnings); n != 0 {
		t.Fatalf("warning fired %d time(s) despite a fresh progress window", n)
	}
	if wd.TimedOut() {
		t.Fatal("TimedOut reported true despite a fresh progress window")
	}
}

func TestStartAfterTimeoutIsNoOp(t *testing.T) {
	var timeouts int32
	wd := New(80*time.Millisecond, 0, Callbacks{
		OnTimeout: func(time.Duration) { atomic.AddInt32(&timeouts, 1) },
	})
	wd.Start()
	time.Sleep(150 * time.Millisecond)

	// A watchdog is single-use; restarting a timed-out session does nothing.
	wd.Start()
	time.Sleep(150 * time.Millisecond)

	if n := atomic.LoadInt32(&timeouts); n != 1 {
		t.Fatalf("expected single-use session, got %d timeouts", n)
	}
}
