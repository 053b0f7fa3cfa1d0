package reactor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrLoopClosed indicates the loop no longer accepts tasks.
	ErrLoopClosed = errors.New("reactor loop closed")

	// ErrLoopFull indicates the task queue is at capacity.
	ErrLoopFull = errors.New("reactor task queue full")
)

const (
	// DefaultQueueSize is the task queue capacity of a new Loop.
	DefaultQueueSize = 4096

	// DefaultResolution is how often a running Loop checks its timers.
	DefaultResolution = 10 * time.Millisecond
)

// Loop is a single-goroutine task and timer executor.
type Loop struct {
	tp         TimeProvider
	resolution time.Duration
	tasks      chan func()

	mu     sync.Mutex
	timers []*Timer
	closed bool
	done   chan struct{}
}

// Timer is a periodic callback registered with Every.
type Timer struct {
	loop     *Loop
	interval time.Duration
	next     time.Time
	fn       func()
	stopped  bool
}

// NewLoop creates a loop using tp for time (RealTimeProvider when nil).
func NewLoop(tp TimeProvider) *Loop {
	return NewLoopWithQueue(tp, DefaultQueueSize, DefaultResolution)
}

// NewLoopWithQueue creates a loop with an explicit queue size and timer resolution.
func NewLoopWithQueue(tp TimeProvider, queueSize int, resolution time.Duration) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &Loop{
		tp:         orDefault(tp),
		resolution: resolution,
		tasks:      make(chan func(), queueSize),
		done:       make(chan struct{}),
	}
}

// Now returns the loop's notion of the current time.
func (l *Loop) Now() time.Time {
	return l.tp.Now()
}

// TimeProvider returns the time source of the loop.
func (l *Loop) TimeProvider() TimeProvider {
	return l.tp
}

// Post queues fn to run on the loop goroutine. It never blocks.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrLoopClosed
	}

	select {
	case l.tasks <- fn:
		return nil
	default:
		logrus.WithFields(logrus.Fields{
			"function":   "Loop.Post",
			"queue_size": cap(l.tasks),
		}).Warn("Reactor task queue full, dropping task")
		return ErrLoopFull
	}
}

// Every registers fn to run every interval on the loop goroutine.
// The first call happens one interval from now.
func (l *Loop) Every(interval time.Duration, fn func()) *Timer {
	t := &Timer{
		loop:     l,
		interval: interval,
		next:     l.tp.Now().Add(interval),
		fn:       fn,
	}

	l.mu.Lock()
	l.timers = append(l.timers, t)
	l.mu.Unlock()
	return t
}

// Stop cancels the timer. After Stop returns the callback is not invoked
// again, provided Stop is called from the loop goroutine.
func (t *Timer) Stop() {
	l := t.loop
	l.mu.Lock()
	defer l.mu.Unlock()

	t.stopped = true
	for i, other := range l.timers {
		if other == t {
			l.timers = append(l.timers[:i], l.timers[i+1:]...)
			break
		}
	}
}

// Advance fires every timer that is due at the current time. A timer that
// fell behind by several intervals fires once and is rescheduled from now.
func (l *Loop) Advance() int {
	now := l.tp.Now()

	l.mu.Lock()
	due := make([]*Timer, 0, len(l.timers))
	for _, t := range l.timers {
		if !now.Before(t.next) {
			due = append(due, t)
			t.next = t.next.Add(t.interval)
			if t.next.Before(now) {
				t.next = now.Add(t.interval)
			}
		}
	}
	l.mu.Unlock()

	fired := 0
	for _, t := range due {
		// A timer earlier in this batch may have stopped a later one.
		l.mu.Lock()
		stopped := t.stopped
		l.mu.Unlock()
		if stopped {
			continue
		}
		t.fn()
		fired++
	}
	return fired
}

// Drain runs queued tasks on the calling goroutine until the queue is empty.
func (l *Loop) Drain() int {
	n := 0
	for {
		select {
		case fn := <-l.tasks:
			fn()
			n++
		default:
			return n
		}
	}
}

// Run executes tasks and timers until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.tp.NewTicker(l.resolution)
	defer ticker.Stop()

	logrus.WithFields(logrus.Fields{
		"function":   "Loop.Run",
		"resolution": l.resolution.String(),
	}).Info("Reactor loop started")

	for {
		select {
		case <-ctx.Done():
			logrus.WithFields(logrus.Fields{
				"function": "Loop.Run",
			}).Info("Reactor loop stopped")
			return ctx.Err()
		case <-l.done:
			l.Drain()
			return nil
		case fn := <-l.tasks:
			fn()
		case <-ticker.C:
			l.Advance()
		}
	}
}

// Close stops accepting tasks and ends Run after the queue has been drained.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
}
