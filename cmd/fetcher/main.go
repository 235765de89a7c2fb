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
)

func main() {
	once := flag.Bool("once", false, "Run a single ingestion cycle and exit")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of the configured backend")
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

	if *once {
		result, err := ingestor.RunCycle(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Ingestion cycle failed")
		}
		log.Info().
			Str("reason", result.Decision.Reason).
			Int("written", result.Written).
			Msg("Cycle complete")
		return
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	done := make(chan struct{})
	go handleSignals(cancel, done)

	err = ingestor.Run(ctx)
	close(done)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Ingestion loop failed")
	}
	log.Info().Msg("Shutdown complete")
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	log.Info().Str("addr", addr).Msg("Starting metrics server")
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Metrics server failed")
	}
}

// handleSignals cancels the run context on the first signal and forces exit
// on a second signal or after a 30 second grace period.
func handleSignals(cancel context.CancelFunc, done <-chan struct{}) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")
	cancel()

	select {
	case sig := <-sigCh:
		log.Warn().Str("signal", sig.String()).Msg("Forcing immediate shutdown")
		os.Exit(1)
	case <-time.After(30 * time.Second):
		log.Warn().Msg("Graceful shutdown timed out, forcing exit")
		os.Exit(1)
	case <-done:
	}
}
