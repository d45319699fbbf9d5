package board

import (
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/deckoverlay/go/internal/models"
	"github.com/mcdev12/deckoverlay/go/internal/overlay/broadcast"
	"github.com/rs/zerolog/log"
)

// DefaultStaleAfter is how long the board state survives without any message
const DefaultStaleAfter = 120 * time.Second

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) clockwork.Timer
}

// State is the read-only view handed to consumers. BoardState and Config are
// shared and must not be modified.
type State struct {
	BoardState *models.BoardStateData `json:"board_state"`
	Config     models.Configuration   `json:"config"`
}

type subscriber struct {
	id uint64
	fn func(State)
}

// Config holds configuration for the reconciler
type Config struct {
	Clock      Clock
	StaleAfter time.Duration
}

// Reconciler applies released broadcast messages to the authoritative board
// state and clears it when the broadcaster goes quiet.
type Reconciler struct {
	clock      Clock
	staleAfter time.Duration

	mu          sync.Mutex
	state       State
	staleTimer  clockwork.Timer
	generation  uint64
	lastMessage time.Time
	stopped     bool

	subscribers []subscriber
	nextSubID   uint64

	// held across a change and its notification so subscribers see changes in order;
	// subscribers must not call Apply
	notifyMu sync.Mutex
}

// NewReconciler creates a reconciler with no board state.
func NewReconciler(cfg Config) *Reconciler {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}

	return &Reconciler{
		clock:       cfg.Clock,
		staleAfter:  cfg.StaleAfter,
		state:       State{Config: models.Configuration{}},
	}
}

// Apply processes one released message. Every message, recognized or not,
// restarts the staleness window.
func (r *Reconciler) Apply(msg broadcast.Message) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}

	r.restartStaleTimerLocked()

	changed := false
	switch m := msg.(type) {
	case *broadcast.BoardStateMessage:
		data := m.Data
		r.state.BoardState = &data
		r.applyConfigLocked(m.Config)
		changed = true

	case *broadcast.GameEndMessage:
		r.state.BoardState = nil
		r.applyConfigLocked(m.Config)
		changed = true

	case *broadcast.GameStartMessage:
		log.Debug().Msg("game started")

	default:
		log.Warn().
			Str("message_type", string(msg.Type())).
			Msg("ignoring unrecognized broadcast message")
	}

	snapshot := r.state
	r.mu.Unlock()

	if changed {
		r.notify(snapshot)
	}
}

// Snapshot returns the current state
func (r *Reconciler) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastMessageAt returns when the last message was applied, zero if none.
func (r *Reconciler) LastMessageAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastMessage
}

// Subscribe registers fn to be called with the new state after every change.
// The returned function removes the subscription.
func (r *Reconciler) Subscribe(fn func(State)) (unsubscribe func()) {
	r.mu.Lock()
	r.nextSubID++
	id := r.nextSubID
	r.subscribers = append(r.subscribers, subscriber{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		r.subscribers = slices.DeleteFunc(r.subscribers, func(s subscriber) bool {
			return s.id == id
		})
		r.mu.Unlock()
	}
}

// Stop cancels the staleness timer. Messages applied afterwards are ignored.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	if r.staleTimer != nil {
		r.staleTimer.Stop()
		r.staleTimer = nil
	}
}

// applyConfigLocked replaces the configuration wholesale when the message carried one
func (r *Reconciler) applyConfigLocked(cfg models.Configuration) {
	if cfg == nil {
		return
	}
	r.state.Config = cfg
	log.Debug().
		Int("keys", len(cfg)).
		Str("deck_position", cfg.Text(models.ConfigDeckPosition)).
		Msg("overlay configuration replaced")
}

// restartStaleTimerLocked replaces any pending staleness timer with a fresh one
func (r *Reconciler) restartStaleTimerLocked() {
	if r.staleTimer != nil {
		r.staleTimer.Stop()
	}

	r.generation++
	gen := r.generation
	r.lastMessage = r.clock.Now()
	r.staleTimer = r.clock.AfterFunc(r.staleAfter, func() {
		r.expire(gen)
	})
}

// expire clears the board state unless a newer message restarted the window
func (r *Reconciler) expire(gen uint64) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	if r.stopped || gen != r.generation {
		r.mu.Unlock()
		return
	}

	r.staleTimer = nil
	hadState := r.state.BoardState != nil
	r.state.BoardState = nil
	snapshot := r.state
	r.mu.Unlock()

	log.Info().
		Dur("stale_after", r.staleAfter).
		Bool("had_state", hadState).
		Msg("no broadcast within staleness window, clearing board state")

	if hadState {
		r.notify(snapshot)
	}
}

// notify must be called with notifyMu held
func (r *Reconciler) notify(snapshot State) {
	r.mu.Lock()
	subscribers := slices.Clone(r.subscribers)
	r.mu.Unlock()

	for _, s := range subscribers {
		s.fn(snapshot)
	}
}
