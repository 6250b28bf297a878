package orchestrator

import (
	"sync/atomic"
	"testing"
	"time"

	"concierge/backend/internal/state"
)

func TestScheduler_ScheduleOnce(t *testing.T) {
	s := NewScheduler()
	const u = state.UserID("u1")
	s.Track(u)

	var fired int32
	s.ScheduleOnce(u, 10*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&fired) == 1 })
}

func TestScheduler_TrackReportsNewUsers(t *testing.T) {
	s := NewScheduler()
	const u = state.UserID("u1")

	if !s.Track(u) {
		t.Fatal("first Track should report a new user")
	}
	if s.Track(u) {
		t.Error("Track of a live user should report it as existing")
	}

	s.CancelAll(u)
	if !s.Track(u) {
		t.Error("Track after teardown should report a new user")
	}
}

func TestScheduler_UntrackedUserIsNoop(t *testing.T) {
	s := NewScheduler()

	var fired int32
	s.ScheduleOnce("ghost", time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	s.ScheduleRecurring("ghost", time.Millisecond, func() bool {
		atomic.AddInt32(&fired, 1)
		return true
	})

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Error("untracked user's timers must not fire")
	}
}

func TestScheduler_RecurringSelfCancel(t *testing.T) {
	s := NewScheduler()
	const u = state.UserID("u1")
	s.Track(u)

	var ticks int32
	s.ScheduleRecurring(u, 10*time.Millisecond, func() bool {
		return atomic.AddInt32(&ticks, 1) < 3
	})

	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&ticks) == 3 })
	time.Sleep(60 * time.Millisecond)
	if n := atomic.LoadInt32(&ticks); n != 3 {
		t.Errorf("ticker kept firing after self-cancel: %d ticks", n)
	}
}

func TestScheduler_CancelAllStopsEverything(t *testing.T) {
	s := NewScheduler()
	const u = state.UserID("u1")
	s.Track(u)

	var fired int32
	s.ScheduleRecurring(u, 10*time.Millisecond, func() bool {
		atomic.AddInt32(&fired, 1)
		return true
	})
	s.ScheduleOnce(u, 30*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	s.ScheduleOnce(u, 50*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	s.CancelAll(u)
	if s.Alive(u) {
		t.Error("user should not be alive after CancelAll")
	}

	before := atomic.LoadInt32(&fired)
	time.Sleep(120 * time.Millisecond)
	if after := atomic.LoadInt32(&fired); after != before {
		t.Errorf("timers fired after teardown: %d -> %d", before, after)
	}
}

func TestScheduler_ScheduleAfterCancelIsNoop(t *testing.T) {
	s := NewScheduler()
	const u = state.UserID("u1")
	s.Track(u)
	s.CancelAll(u)

	var fired int32
	s.ScheduleOnce(u, time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Error("timer scheduled after teardown must not fire")
	}
}
