package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/likeli/config"
	"github.com/alejandrodnm/likeli/internal/adapters/lock"
	"github.com/alejandrodnm/likeli/internal/adapters/metrics"
	"github.com/alejandrodnm/likeli/internal/adapters/notify"
	"github.com/alejandrodnm/likeli/internal/adapters/storage"
	"github.com/alejandrodnm/likeli/internal/application/engine"
	"github.com/alejandrodnm/likeli/internal/domain"
	"github.com/alejandrodnm/likeli/internal/ports"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one expiry sweep and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full tables (default: compact 1-line)")
	demo := flag.Bool("demo", false, "run the demo scenarios against the configured store")
	report := flag.Bool("report", false, "print markets, positions, balances and price history")
	importPath := flag.String("import", "", "import market accounts from a JSON dump")
	resolveID := flag.String("resolve", "", "fetch the oracle resolution for a market and apply it")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("likeli starting",
		"config", *configPath,
		"storage", cfg.Storage.Driver,
		"lock", cfg.Lock.Driver,
		"sweep_interval", cfg.SweepInterval(),
		"once", *once,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(cfg.Storage)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "driver", cfg.Storage.Driver, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	locker, closeLocker, err := openLocker(ctx, cfg)
	if err != nil {
		slog.Error("failed to set up lock", "err", err, "driver", cfg.Lock.Driver)
		os.Exit(1)
	}
	defer closeLocker()

	rec := metrics.NewPrometheus(cfg.Metrics.Namespace)
	eng := engine.New(store, locker, engineConfig(cfg.Engine), engine.WithRecorder(rec))
	notifier := notify.NewConsole(*table)

	switch {
	case *importPath != "":
		err = runImport(ctx, eng, *importPath, cfg.Chain.Decimals, notifier)
	case *resolveID != "":
		err = runResolve(ctx, eng, store, cfg.Oracle, *resolveID, notifier)
	case *demo:
		err = runDemo(ctx, eng, notifier)
	case *report:
		err = runReport(ctx, store, notifier)
	default:
		err = serve(ctx, eng, rec, cfg, *once)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("likeli exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("likeli stopped cleanly")
}

// serve corre el sweeper de órdenes y, si hay dirección, el endpoint de métricas.
func serve(ctx context.Context, eng *engine.Engine, rec *metrics.Prometheus, cfg *config.Config, once bool) error {
	if once {
		_, err := sweep(ctx, eng)
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux(rec), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			slog.Info("metrics listening", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error { return runSweeper(ctx, eng, cfg.SweepInterval()) })
	return g.Wait()
}

func metricsMux(rec *metrics.Prometheus) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// runSweeper expira órdenes en cada tick hasta que se cancele el contexto.
func runSweeper(ctx context.Context, eng *engine.Engine, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := sweep(ctx, eng); err != nil {
		slog.Warn("sweep failed", "err", err)
	}
	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper stopped (signal)")
			return ctx.Err()
		case <-ticker.C:
			if _, err := sweep(ctx, eng); err != nil {
				slog.Warn("sweep failed", "err", err)
			}
		}
	}
}

func sweep(ctx context.Context, eng *engine.Engine) (engine.ExpireResult, error) {
	res, err := eng.ExpireOrders(ctx)
	if err != nil {
		return res, err
	}
	slog.Debug("sweep done", "markets", res.Markets, "expired", res.Expired, "refunded", res.Refunded)
	return res, nil
}

func openStore(cfg config.StorageConfig) (ports.Store, error) {
	if cfg.Driver == "sqlite" {
		s, err := storage.NewSQLiteStorage(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return storage.NewMemoryStorage(), nil
}

func openLocker(ctx context.Context, cfg *config.Config) (ports.Locker, func(), error) {
	if cfg.Lock.Driver != "redis" {
		return lock.NewLocal(), func() {}, nil
	}
	r, err := lock.NewRedis(ctx, lock.RedisConfig{
		Addr:     cfg.Lock.RedisAddr,
		Password: cfg.Lock.RedisPass,
		DB:       cfg.Lock.RedisDB,
		Prefix:   cfg.Lock.Prefix,
		TTL:      cfg.LockTTL(),
	})
	if err != nil {
		return nil, nil, err
	}
	return r, func() {
		if err := r.Close(); err != nil {
			slog.Warn("redis close failed", "err", err)
		}
	}, nil
}

func engineConfig(c config.EngineConfig) engine.Config {
	return engine.Config{
		StartingBalance:     c.StartingBalance,
		MinAnte:             c.MinAnte,
		LiquidityMultiplier: c.LiquidityMultiplier,
		MaxAnswers:          c.MaxAnswers,
		MaxQuestionLength:   c.MaxQuestionLength,
		UniqueBettorBonus:   c.UniqueBettorBonus,
		DefaultPhase:        domain.Phase(c.DefaultPhase),
		DefaultFees:         c.Fees,
		FundsOnFill:         c.FundsOnFill,
		SweepConcurrency:    c.SweepConcurrency,
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
