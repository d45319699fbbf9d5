package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/deckoverlay/go/internal/overlay/board"
	"github.com/mcdev12/deckoverlay/go/internal/overlay/broadcast"
	"github.com/mcdev12/deckoverlay/go/internal/overlay/delayqueue"
	"github.com/rs/zerolog/log"
)

// PipelineConfig holds configuration for the intake pipeline
type PipelineConfig struct {
	Clock        clockwork.Clock
	TickInterval time.Duration
	StaleAfter   time.Duration
}

// DefaultPipelineConfig returns default intake pipeline configuration
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Clock:        clockwork.NewRealClock(),
		TickInterval: delayqueue.DefaultTickInterval,
		StaleAfter:   board.DefaultStaleAfter,
	}
}

// PipelineStats reports intake counters
type PipelineStats struct {
	Received uint64        `json:"received"`
	Dropped  uint64        `json:"dropped"`
	Released uint64        `json:"released"`
	Buffered int           `json:"buffered"`
	Delay    time.Duration `json:"delay_ns"`
	DelaySet bool          `json:"delay_set"`
}

// MaxLatency caps broadcaster latency reported by context updates
const MaxLatency = time.Hour

// contextUpdate is the platform context payload carrying the stream latency
type contextUpdate struct {
	HLSLatencyBroadcaster *float64 `json:"hlsLatencyBroadcaster"`
}

// Pipeline decodes broadcast payloads, holds them in the delay queue until the
// viewer's video has caught up and then applies them to the board state.
type Pipeline struct {
	queue      *delayqueue.Queue[broadcast.Message]
	reconciler *board.Reconciler
	listenerID delayqueue.ListenerID

	received atomic.Uint64
	dropped  atomic.Uint64
	released atomic.Uint64
}

// NewPipeline creates a pipeline. Nothing is released until a latency is set.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	p := &Pipeline{
		queue: delayqueue.New[broadcast.Message](delayqueue.Config{
			Clock:        cfg.Clock,
			TickInterval: cfg.TickInterval,
		}),
		reconciler: board.NewReconciler(board.Config{
			Clock:      cfg.Clock,
			StaleAfter: cfg.StaleAfter,
		}),
	}
	p.listenerID = p.queue.Listen(p.apply)

	return p
}

// HandleBroadcast accepts one (target, contentType, payload) tuple from the
// broadcast channel. Payloads that cannot be decoded are logged and dropped.
func (p *Pipeline) HandleBroadcast(target, contentType string, payload []byte) error {
	p.received.Add(1)

	msg, err := broadcast.Decode(payload, contentType)
	if err != nil {
		p.dropped.Add(1)
		log.Warn().
			Err(err).
			Str("target", target).
			Str("content_type", contentType).
			Int("size", len(payload)).
			Msg("dropping broadcast payload")
		return err
	}

	log.Debug().
		Str("target", target).
		Str("message_type", string(msg.Type())).
		Msg("broadcast message queued")

	p.queue.Write(msg)
	return nil
}

// HandleContext applies a platform context update. Updates without a latency
// value are ignored.
func (p *Pipeline) HandleContext(payload []byte) error {
	var update contextUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		log.Warn().Err(err).Msg("dropping malformed context update")
		return fmt.Errorf("unmarshal context update: %w", err)
	}
	if update.HLSLatencyBroadcaster == nil {
		return nil
	}

	p.SetLatency(latencyFromSeconds(*update.HLSLatencyBroadcaster))
	return nil
}

// latencyFromSeconds converts a latency in seconds, clamped to [0, MaxLatency]
// before the conversion can overflow.
func latencyFromSeconds(seconds float64) time.Duration {
	switch {
	case seconds <= 0:
		return 0
	case seconds >= MaxLatency.Seconds():
		return MaxLatency
	default:
		return time.Duration(seconds * float64(time.Second))
	}
}

// SetLatency keeps the delay queue in step with the broadcaster latency. Every
// call runs a release pass, changed or not.
func (p *Pipeline) SetLatency(latency time.Duration) {
	if current, ok := p.queue.Delay(); !ok || current != latency {
		log.Info().Dur("latency", latency).Msg("broadcaster latency changed")
	}
	p.queue.SetDelay(latency)
}

// Run drives the delay queue until ctx is cancelled
func (p *Pipeline) Run(ctx context.Context) error {
	return p.queue.Run(ctx)
}

// Close detaches the reconciler from the queue and cancels its staleness timer
func (p *Pipeline) Close() {
	p.queue.Unlisten(p.listenerID)
	p.reconciler.Stop()
}

// Snapshot returns the current board state and configuration
func (p *Pipeline) Snapshot() board.State {
	return p.reconciler.Snapshot()
}

// LastMessageAt returns when a broadcast message was last applied
func (p *Pipeline) LastMessageAt() time.Time {
	return p.reconciler.LastMessageAt()
}

// Subscribe registers fn for every board state change
func (p *Pipeline) Subscribe(fn func(board.State)) (unsubscribe func()) {
	return p.reconciler.Subscribe(fn)
}

// Stats returns intake counters
func (p *Pipeline) Stats() PipelineStats {
	delay, delaySet := p.queue.Delay()
	return PipelineStats{
		Received: p.received.Load(),
		Dropped:  p.dropped.Load(),
		Released: p.released.Load(),
		Buffered: p.queue.Len(),
		Delay:    delay,
		DelaySet: delaySet,
	}
}

func (p *Pipeline) apply(msg broadcast.Message) {
	p.released.Add(1)
	p.reconciler.Apply(msg)
}
