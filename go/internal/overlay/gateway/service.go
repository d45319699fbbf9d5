package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mcdev12/deckoverlay/go/internal/overlay/stats"
	"github.com/rs/zerolog/log"
)

// Service is the overlay gateway: it consumes the broadcast channel, runs the
// delay-synchronized intake pipeline and serves the resulting state to viewers.
type Service struct {
	pipeline          *Pipeline
	statsCache        *stats.Cache
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	consumer          *BroadcastConsumer
	health            *HealthChecker

	unsubscribe func()
	stopOnce    sync.Once
}

// Config holds configuration for the overlay gateway service
type Config struct {
	PipelineConfig   PipelineConfig
	ConnectionConfig ConnectionConfig
	NATSConfig       NATSConsumerConfig
}

// DefaultConfig returns default configuration for the overlay gateway
func DefaultConfig() Config {
	return Config{
		PipelineConfig:   DefaultPipelineConfig(),
		ConnectionConfig: DefaultConnectionConfig(),
		NATSConfig:       DefaultNATSConsumerConfig(),
	}
}

// NewService creates a new overlay gateway service
func NewService(config Config, fetcher stats.Fetcher) (*Service, error) {
	pipeline := NewPipeline(config.PipelineConfig)

	consumer, err := NewBroadcastConsumer(pipeline, config.NATSConfig)
	if err != nil {
		pipeline.Close()
		return nil, fmt.Errorf("failed to create broadcast consumer: %w", err)
	}

	connectionManager := NewConnectionManager(config.ConnectionConfig)
	statsCache := stats.NewCache(fetcher)

	s := &Service{
		pipeline:          pipeline,
		statsCache:        statsCache,
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, pipeline),
		stateHandler:      NewStateHandler(pipeline, statsCache),
		consumer:          consumer,
		health:            NewHealthChecker(pipeline, consumer),
	}

	// Push every board state change to connected viewers
	s.unsubscribe = pipeline.Subscribe(connectionManager.BroadcastState)

	return s, nil
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting overlay gateway service")

	go s.connectionManager.Start(ctx)

	go func() {
		if err := s.pipeline.Run(ctx); err != nil {
			log.Error().Err(err).Msg("intake pipeline failed")
		}
	}()

	go func() {
		if err := s.consumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("broadcast consumer failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("overlay gateway service shutting down")
	return s.Stop()
}

// Stop tears the gateway down: no callbacks reach viewers after it returns
func (s *Service) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		if err = s.consumer.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop broadcast consumer")
		}

		s.unsubscribe()
		s.pipeline.Close()

		log.Info().Msg("overlay gateway service stopped")
	})
	return err
}

// RegisterRoutes registers the WebSocket, REST and Connect routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	mux.Handle("/health", s.health)
	log.Info().Msg("overlay gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"service":           "overlay_gateway",
		"total_connections": s.connectionManager.ConnectionCount(),
		"cached_statistics": s.statsCache.Len(),
		"intake":            s.pipeline.Stats(),
		"nats_connected":    s.consumer.IsConnected(),
	}
}

// SetLatency overrides the broadcaster latency, useful when no platform context is published
func (s *Service) SetLatency(latency time.Duration) {
	s.pipeline.SetLatency(latency)
}
