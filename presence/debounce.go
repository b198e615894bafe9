package presence

import (
	"log/slog"
	"sync"
	"time"

	"chat-app/domain"
)

// Tracker publishes this connection's presence record on the live channel.
type Tracker interface {
	Track(record domain.PresenceRecord) error
}

// timerHandle abstracts time.Timer so tests can fire the quiet interval
// without sleeping.
type timerHandle interface {
	Stop() bool
}

// Debouncer turns raw input events into isTyping transitions: the first
// keystroke marks the user typing immediately, and the user goes idle once a
// full quiet interval elapses with no further input. At most one timer is
// pending; every keystroke re-arms it (debounce, not throttle).
type Debouncer struct {
	mu       sync.Mutex
	tracker  Tracker
	username string
	quiet    time.Duration
	log      *slog.Logger

	newTimer func(d time.Duration, f func()) timerHandle
	now      func() time.Time
	timer    timerHandle
	typing   bool
}

func NewDebouncer(tracker Tracker, username string, quiet time.Duration, log *slog.Logger) *Debouncer {
	return &Debouncer{
		tracker:  tracker,
		username: username,
		quiet:    quiet,
		log:      log,
		newTimer: func(d time.Duration, f func()) timerHandle { return time.AfterFunc(d, f) },
		now:      time.Now,
	}
}

// Touch records one local input event. The Idle -> Typing transition emits an
// isTyping=true update; further touches within the quiet interval only re-arm
// the timer.
func (d *Debouncer) Touch() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	wasIdle := !d.typing
	d.typing = true
	d.timer = d.newTimer(d.quiet, d.expire)
	d.mu.Unlock()

	if wasIdle {
		d.publish(true)
	}
}

// expire fires when the quiet interval elapses with no further input.
func (d *Debouncer) expire() {
	d.mu.Lock()
	if !d.typing {
		d.mu.Unlock()
		return
	}
	d.typing = false
	d.timer = nil
	d.mu.Unlock()

	d.publish(false)
}

// Stop cancels any pending transition without emitting further updates.
// Called on session teardown before presence is untracked.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.typing = false
}

func (d *Debouncer) publish(typing bool) {
	record := domain.PresenceRecord{
		Username:    d.username,
		IsTyping:    typing,
		LastUpdated: d.now().UTC(),
	}
	if err := d.tracker.Track(record); err != nil {
		d.log.Warn("Typing update failed", "typing", typing, "error", err)
	}
}
