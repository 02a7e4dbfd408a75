// Command beal is the voice-review conversation server for the
// language-documentation platform.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teangalab/beal/internal/config"
	"github.com/teangalab/beal/internal/conversation"
	"github.com/teangalab/beal/internal/diarize"
	"github.com/teangalab/beal/internal/health"
	"github.com/teangalab/beal/internal/observe"
	"github.com/teangalab/beal/internal/record"
	"github.com/teangalab/beal/internal/record/postgres"
	"github.com/teangalab/beal/internal/review"
	"github.com/teangalab/beal/internal/schedule"
	"github.com/teangalab/beal/internal/server"
	"github.com/teangalab/beal/pkg/speech"
	"github.com/teangalab/beal/pkg/speech/abair"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "beal: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "beal: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("beal starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics provider with Prometheus bridge.
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "beal"})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	// Entity store: Postgres when a DSN is configured, in-memory otherwise.
	var store record.Store
	var pinger health.Pinger
	if dsn := cfg.Database.PostgresDSN; dsn != "" {
		pg, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		defer pg.Close()
		store, pinger = pg, pg
		slog.Info("using postgres store")
	} else {
		mem := record.NewMemStore()
		store, pinger = mem, mem
		slog.Warn("no postgres_dsn configured; sessions and entries will not survive restarts")
	}

	// Speech gateway. Invalid dialect/gender pairings already failed in
	// config validation.
	gateway, err := newGateway(cfg.Speech)
	if err != nil {
		slog.Error("failed to build speech gateway", "err", err)
		return 1
	}
	gateway = observe.InstrumentGateway(gateway, observe.DefaultMetrics(), "abair")

	// Diarization job client, only when a provider is configured.
	var diarizer schedule.JobStarter
	if cfg.Diarization.BaseURL != "" {
		client, err := diarize.NewClient(diarize.ClientConfig{
			BaseURL:         cfg.Diarization.BaseURL,
			APIKey:          cfg.Diarization.APIKey,
			CallbackBaseURL: cfg.Server.PublicBaseURL,
			Timeout:         cfg.Diarization.Timeout.Std(),
		})
		if err != nil {
			slog.Error("failed to build diarization client", "err", err)
			return 1
		}
		diarizer = client
	}

	queue := review.New(store, rand.New(rand.NewSource(time.Now().UnixNano())))
	engine := conversation.NewEngine(store, queue, gateway, logger)
	manager := conversation.NewManager(store, engine, observe.DefaultMetrics(), logger)
	reconciler := diarize.NewReconciler(store, observe.DefaultMetrics(), logger)

	srv := server.New(server.Options{
		ListenAddr: cfg.Server.ListenAddr,
		Store:      store,
		Manager:    manager,
		Reconciler: reconciler,
		Queue:      queue,
		Health: health.New(
			health.StoreChecker(pinger),
			health.SpeechChecker(gateway),
		),
		Metrics: observe.DefaultMetrics(),
		Log:     logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})

	if !cfg.Schedule.Disabled {
		sched, err := schedule.New(schedule.Options{
			ProbeSpec:       cfg.Schedule.ProbeSpec,
			AutoDiarizeSpec: cfg.Schedule.AutoDiarizeSpec,
			Store:           store,
			Gateway:         gateway,
			Diarizer:        diarizer,
			Log:             logger,
		})
		if err != nil {
			slog.Error("failed to build scheduler", "err", err)
			return 1
		}
		sched.Start()
		defer sched.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// newGateway builds the ABAIR client from the speech config block.
func newGateway(cfg config.SpeechConfig) (speech.Gateway, error) {
	opts := []abair.Option{
		abair.WithTimeouts(cfg.SynthesisTimeout.Std(), cfg.RecognitionTimeout.Std()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, abair.WithBaseURL(cfg.BaseURL))
	}
	if cfg.InsecureTLS {
		opts = append(opts, abair.WithInsecureTLS())
	}
	if cfg.TempDir != "" {
		opts = append(opts, abair.WithTempDir(cfg.TempDir))
	}
	return abair.New(cfg.Dialect, cfg.Gender, opts...)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
