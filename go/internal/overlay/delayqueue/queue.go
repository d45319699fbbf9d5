package delayqueue

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultTickInterval is how often buffered entries are checked for release.
const DefaultTickInterval = 300 * time.Millisecond

// Entry is a buffered message together with its arrival time.
type Entry[T any] struct {
	Message    T
	EnqueuedAt time.Time
}

// ListenerID identifies a registered listener so it can be removed again.
type ListenerID uint64

type listener[T any] struct {
	id ListenerID
	fn func(T)
}

// Config holds configuration for a Queue
type Config struct {
	Clock        clockwork.Clock
	TickInterval time.Duration
}

// Queue holds messages until a configurable delay has elapsed since their
// arrival and then hands them to every listener in arrival order.
//
// Until SetDelay is called the delay is infinite and nothing is released.
// Listeners run synchronously on the releasing goroutine and must not call
// SetDelay.
type Queue[T any] struct {
	clock clockwork.Clock
	tick  time.Duration

	mu        sync.Mutex
	entries   deque.Deque[Entry[T]]
	delay     time.Duration
	delaySet  bool
	listeners []listener[T]
	nextID    ListenerID

	// serializes release passes so delivery stays FIFO across the ticker and SetDelay
	releaseMu sync.Mutex
}

// New creates a queue. Zero values in cfg fall back to the defaults.
func New[T any](cfg Config) *Queue[T] {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}

	return &Queue[T]{
		clock: cfg.Clock,
		tick:  cfg.TickInterval,
	}
}

// Write appends a message stamped with the current time.
func (q *Queue[T]) Write(msg T) {
	q.WriteAt(msg, q.clock.Now())
}

// WriteAt appends a message with an explicit arrival time. Entries are always
// appended to the tail, so an early arrival time behind a later one waits for
// its predecessor.
func (q *Queue[T]) WriteAt(msg T, arrivedAt time.Time) {
	q.mu.Lock()
	q.entries.PushBack(Entry[T]{Message: msg, EnqueuedAt: arrivedAt})
	q.mu.Unlock()
}

// SetDelay sets the release threshold and immediately releases everything that
// is already old enough. Negative delays are treated as zero.
func (q *Queue[T]) SetDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}

	q.mu.Lock()
	q.delay = d
	q.delaySet = true
	q.mu.Unlock()

	log.Debug().Dur("delay", d).Msg("delay queue threshold updated")

	q.Release()
}

// Delay returns the current threshold and whether one has been set.
func (q *Queue[T]) Delay() (time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.delay, q.delaySet
}

// Listen registers fn to receive released messages.
func (q *Queue[T]) Listen(fn func(T)) ListenerID {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	q.listeners = append(q.listeners, listener[T]{id: q.nextID, fn: fn})
	return q.nextID
}

// Unlisten removes a listener. Unknown ids are ignored.
func (q *Queue[T]) Unlisten(id ListenerID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.listeners = slices.DeleteFunc(q.listeners, func(l listener[T]) bool {
		return l.id == id
	})
}

// Len returns the number of buffered entries.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries.Len()
}

// Run performs a release pass on every tick until ctx is cancelled.
func (q *Queue[T]) Run(ctx context.Context) error {
	ticker := q.clock.NewTicker(q.tick)
	defer ticker.Stop()

	log.Debug().Dur("tick", q.tick).Msg("delay queue started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Int("buffered", q.Len()).Msg("delay queue stopped")
			return nil
		case <-ticker.Chan():
			q.Release()
		}
	}
}

// Release pops every entry whose arrival time is at or before now - delay and
// delivers it to the listeners, head first. Run calls it on every tick.
func (q *Queue[T]) Release() {
	q.releaseMu.Lock()
	defer q.releaseMu.Unlock()

	q.mu.Lock()
	if !q.delaySet {
		q.mu.Unlock()
		return
	}
	cutoff := q.clock.Now().Add(-q.delay)
	q.mu.Unlock()

	for {
		q.mu.Lock()
		if q.entries.Len() == 0 || q.entries.Front().EnqueuedAt.After(cutoff) {
			q.mu.Unlock()
			return
		}
		entry := q.entries.PopFront()
		listeners := slices.Clone(q.listeners)
		q.mu.Unlock()

		for _, l := range listeners {
			l.fn(entry.Message)
		}
	}
}
