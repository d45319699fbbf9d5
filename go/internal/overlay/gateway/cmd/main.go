package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/deckoverlay/go/clients/hsreplay_client"
	"github.com/mcdev12/deckoverlay/go/internal/overlay/gateway"
	"github.com/mcdev12/deckoverlay/go/internal/overlayconfig"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func main() {
	configPath := flag.String("config", os.Getenv("OVERLAY_CONFIG"), "path to YAML config file")
	flag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := overlayconfig.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("nats_url", cfg.NATS.URL).
		Str("channel_id", cfg.NATS.ChannelID).
		Str("port", cfg.Port).
		Dur("stale_after", cfg.Intake.StaleAfter).
		Msg("starting overlay gateway")

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.PipelineConfig.TickInterval = cfg.Intake.TickInterval
	gatewayConfig.PipelineConfig.StaleAfter = cfg.Intake.StaleAfter
	gatewayConfig.NATSConfig.URL = cfg.NATS.URL
	gatewayConfig.NATSConfig.SubjectPrefix = cfg.NATS.SubjectPrefix
	gatewayConfig.NATSConfig.ChannelID = cfg.NATS.ChannelID
	gatewayConfig.NATSConfig.MaxReconnects = cfg.NATS.MaxReconnects
	gatewayConfig.NATSConfig.ReconnectWait = cfg.NATS.ReconnectWait

	statsClient := hsreplay_client.NewHSReplayClient(cfg.Stats.BaseURL, cfg.Stats.Timeout)

	gatewayService, err := gateway.NewService(gatewayConfig, statsClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway service")
	}

	if cfg.Intake.InitialLatency != nil {
		gatewayService.SetLatency(*cfg.Intake.InitialLatency)
	}

	// Setup HTTP server
	mux := http.NewServeMux()
	gatewayService.RegisterRoutes(mux)

	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(gatewayService.GetStats()); err != nil {
			log.Error().Err(err).Msg("failed to write info response")
		}
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()

	select {
	case <-serviceDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("gateway service did not stop in time")
	}

	log.Info().Msg("overlay gateway shutdown complete")
}
