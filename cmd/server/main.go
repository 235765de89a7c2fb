package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"clanwatch/internal/app"
	"clanwatch/internal/feed"
	"clanwatch/internal/ingestion"
	"clanwatch/internal/lifecycle"
	"clanwatch/internal/observability"
	"clanwatch/internal/ranking"
	"clanwatch/internal/server"
	"clanwatch/internal/service"
)

func main() {
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of the configured backend")
	withIngest := flag.Bool("ingest", false, "Also run the ingestion loop in this process")
	flag.Parse()

	app.SetupEnvironment()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Load configuration")
	}
	if *useMemory {
		cfg.Backend = "memory"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Open storage")
	}
	defer stores.Close()

	client := feed.NewHTTPClient(
		feed.WithLeaderboardURL(cfg.LeaderboardURL),
		feed.WithTimingURL(cfg.TimingURL),
	)

	detector := lifecycle.NewDetector(client, stores.Snapshots, stores.Battles, cfg.SentinelClan)
	ingestor := ingestion.NewIngestor(ingestion.Options{
		Leaderboard:  client,
		Detector:     detector,
		Snapshots:    stores.Snapshots,
		SentinelClan: cfg.SentinelClan,
		Interval:     cfg.PollInterval,
		CycleTimeout: cfg.CycleTimeout,
	})

	engine := ranking.NewEngine(stores.Snapshots)
	svc := service.New(service.Options{
		Snapshots: stores.Snapshots,
		Battles:   stores.Battles,
		Timing:    client,
		Engine:    engine,
		Solver:    ranking.NewSolver(engine),
		Ingestor:  ingestor,
	})

	if *withIngest {
		go func() {
			if err := ingestor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Ingestion loop failed")
			}
		}()
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.New(svc).Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Forced server shutdown")
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("Starting API server")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("API server failed")
	}
	log.Info().Msg("Shutdown complete")
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	log.Info().Str("addr", addr).Msg("Starting metrics server")
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Metrics server failed")
	}
}
