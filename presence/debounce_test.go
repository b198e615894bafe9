package presence

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"chat-app/domain"

	"github.com/stretchr/testify/require"
)

type recordingTracker struct {
	mu      sync.Mutex
	records []domain.PresenceRecord
}

func (r *recordingTracker) Track(record domain.PresenceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *recordingTracker) all() []domain.PresenceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.PresenceRecord(nil), r.records...)
}

// fakeTimer captures the expiry callback so tests can fire the quiet interval
// deterministically.
type fakeTimer struct {
	stopped bool
}

func (f *fakeTimer) Stop() bool {
	f.stopped = true
	return true
}

func newTestDebouncer(tracker Tracker) (*Debouncer, *[]*fakeTimer, *[]func()) {
	debouncer := NewDebouncer(tracker, "alice", time.Second, slog.Default())
	var timers []*fakeTimer
	var callbacks []func()
	debouncer.newTimer = func(_ time.Duration, f func()) timerHandle {
		timer := &fakeTimer{}
		timers = append(timers, timer)
		callbacks = append(callbacks, f)
		return timer
	}
	return debouncer, &timers, &callbacks
}

func TestDebouncer_BurstEmitsOneTypingTransition(t *testing.T) {
	req := require.New(t)
	tracker := &recordingTracker{}
	debouncer, timers, callbacks := newTestDebouncer(tracker)

	debouncer.Touch()
	debouncer.Touch()
	debouncer.Touch()

	records := tracker.all()
	req.Len(records, 1)
	req.True(records[0].IsTyping)
	req.Equal("alice", records[0].Username)

	// Each keystroke re-armed the timer: the previous ones were stopped.
	req.Len(*timers, 3)
	req.True((*timers)[0].stopped)
	req.True((*timers)[1].stopped)
	req.False((*timers)[2].stopped)

	// Quiet interval elapses: exactly one isTyping=false transition.
	(*callbacks)[2]()
	records = tracker.all()
	req.Len(records, 2)
	req.False(records[1].IsTyping)
}

func TestDebouncer_NewBurstAfterIdleEmitsAgain(t *testing.T) {
	req := require.New(t)
	tracker := &recordingTracker{}
	debouncer, _, callbacks := newTestDebouncer(tracker)

	debouncer.Touch()
	(*callbacks)[0]()
	debouncer.Touch()

	records := tracker.all()
	req.Len(records, 3)
	req.True(records[0].IsTyping)
	req.False(records[1].IsTyping)
	req.True(records[2].IsTyping)
}

func TestDebouncer_StopSuppressesPendingTransition(t *testing.T) {
	req := require.New(t)
	tracker := &recordingTracker{}
	debouncer, timers, callbacks := newTestDebouncer(tracker)

	debouncer.Touch()
	debouncer.Stop()
	req.True((*timers)[0].stopped)

	// A late callback on a torn-down debouncer must not publish anything.
	(*callbacks)[0]()
	records := tracker.all()
	req.Len(records, 1)
	req.True(records[0].IsTyping)
}

func TestDebouncer_RealTimerFires(t *testing.T) {
	req := require.New(t)
	tracker := &recordingTracker{}
	debouncer := NewDebouncer(tracker, "alice", 30*time.Millisecond, slog.Default())

	debouncer.Touch()
	// Waiting for the quiet interval with a margin
	time.Sleep(150 * time.Millisecond)

	records := tracker.all()
	req.Len(records, 2)
	req.True(records[0].IsTyping)
	req.False(records[1].IsTyping)
}
