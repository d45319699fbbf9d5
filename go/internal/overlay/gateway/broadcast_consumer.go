package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultTarget is used when a broadcast carries no Target header
	DefaultTarget = "broadcast"

	contentTypeHeader = "Content-Type"
	targetHeader      = "Target"
)

// Intake is what the consumer feeds broadcast and context messages into
type Intake interface {
	HandleBroadcast(target, contentType string, payload []byte) error
	HandleContext(payload []byte) error
}

// NATSConsumerConfig holds configuration for the broadcast consumer
type NATSConsumerConfig struct {
	URL           string
	SubjectPrefix string // e.g., "overlay"
	ChannelID     string
	MaxReconnects int
	ReconnectWait time.Duration
	BufferSize    int
}

// DefaultNATSConsumerConfig returns default broadcast consumer configuration
func DefaultNATSConsumerConfig() NATSConsumerConfig {
	return NATSConsumerConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "overlay",
		ChannelID:     "default",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		BufferSize:    256,
	}
}

// BroadcastSubject is the subject carrying game state broadcasts for a channel
func BroadcastSubject(prefix, channelID string) string {
	return fmt.Sprintf("%s.%s.broadcast", prefix, channelID)
}

// ContextSubject is the subject carrying platform context updates for a channel
func ContextSubject(prefix, channelID string) string {
	return fmt.Sprintf("%s.%s.context", prefix, channelID)
}

// BroadcastConsumer subscribes to a channel's broadcast and context subjects and
// hands every message to the intake one at a time, in arrival order.
type BroadcastConsumer struct {
	intake Intake
	nc     *nats.Conn
	config NATSConsumerConfig
}

// NewBroadcastConsumer connects to NATS
func NewBroadcastConsumer(intake Intake, config NATSConsumerConfig) (*BroadcastConsumer, error) {
	opts := []nats.Option{
		nats.Name("deckoverlay-" + config.ChannelID),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &BroadcastConsumer{
		intake: intake,
		nc:     nc,
		config: config,
	}, nil
}

// Start subscribes and processes messages until ctx is cancelled
func (c *BroadcastConsumer) Start(ctx context.Context) error {
	bufferSize := c.config.BufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultNATSConsumerConfig().BufferSize
	}

	// One channel for both subjects keeps processing on a single goroutine
	messageCh := make(chan *nats.Msg, bufferSize)

	broadcastSubject := BroadcastSubject(c.config.SubjectPrefix, c.config.ChannelID)
	contextSubject := ContextSubject(c.config.SubjectPrefix, c.config.ChannelID)

	var subs []*nats.Subscription
	for _, subject := range []string{broadcastSubject, contextSubject} {
		sub, err := c.nc.ChanSubscribe(subject, messageCh)
		if err != nil {
			for _, s := range subs {
				s.Unsubscribe()
			}
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}
	defer func() {
		for _, s := range subs {
			if err := s.Unsubscribe(); err != nil {
				log.Error().Err(err).Str("subject", s.Subject).Msg("failed to unsubscribe")
			}
		}
	}()

	log.Info().
		Str("broadcast_subject", broadcastSubject).
		Str("context_subject", contextSubject).
		Msg("starting broadcast consumer")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("broadcast consumer shutting down")
			return nil
		case msg := <-messageCh:
			c.processMessage(msg, contextSubject)
		}
	}
}

func (c *BroadcastConsumer) processMessage(msg *nats.Msg, contextSubject string) {
	if msg.Subject == contextSubject {
		// malformed updates are logged by the intake
		_ = c.intake.HandleContext(msg.Data)
		return
	}

	target := DefaultTarget
	contentType := ""
	if msg.Header != nil {
		if t := strings.TrimSpace(msg.Header.Get(targetHeader)); t != "" {
			target = t
		}
		contentType = msg.Header.Get(contentTypeHeader)
	}

	// rejected payloads are logged and counted by the intake
	_ = c.intake.HandleBroadcast(target, contentType, msg.Data)
}

// IsConnected reports whether the NATS connection is up
func (c *BroadcastConsumer) IsConnected() bool {
	return c.nc != nil && c.nc.IsConnected()
}

// Stop closes the NATS connection
func (c *BroadcastConsumer) Stop() error {
	log.Info().Msg("stopping broadcast consumer")

	if c.nc != nil {
		c.nc.Close()
	}

	return nil
}
