package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/ladderbot/config"
	"github.com/alejandrodnm/ladderbot/internal/adapters/exchange"
	"github.com/alejandrodnm/ladderbot/internal/adapters/notify"
	"github.com/alejandrodnm/ladderbot/internal/adapters/storage"
	"github.com/alejandrodnm/ladderbot/internal/application/engine"
	"github.com/alejandrodnm/ladderbot/internal/domain"
	"github.com/alejandrodnm/ladderbot/internal/ports"
)

const pidFile = "ladderbot.pid"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	venue := flag.String("venue", "paper", "venue adapter: paper (real venues link in their own adapter)")
	stop := flag.Bool("stop", false, "cancel all orders, close the position, report PnL and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full cycle tables (default: compact 1-line)")
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

	slog.Info("ladderbot starting",
		"config", *configPath,
		"pair", cfg.Exchange.Pair,
		"venue", *venue,
		"interval", cfg.CycleInterval(),
		"stop", *stop,
	)

	gateway, err := newGateway(*venue, cfg)
	if err != nil {
		slog.Error("gateway setup failed", "err", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	notifier := notify.NewConsole(*table)
	e := engine.New(cfg, gateway, store, notifier, notify.NewStdinOperator())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *stop {
		report, err := e.Stop(ctx)
		if err != nil {
			slog.Error("stop failed", "err", err)
			os.Exit(1)
		}
		slog.Info("stopped",
			"cancelled_orders", report.CancelledOrders,
			"closed_qty", report.ClosedQty,
			"unrealised_pnl", report.UnrealisedPnl,
			"final_balance", report.FinalBalance)
		return
	}

	markerPath := filepath.Join(cfg.Engine.DataDir, pidFile)
	if err := writePIDFile(markerPath); err != nil {
		slog.Error("failed to write pid marker", "err", err, "path", markerPath)
		os.Exit(1)
	}
	defer os.Remove(markerPath)

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr)
	}

	if err := e.Reconcile(ctx); err != nil {
		deactivate(ctx, e, markerPath, err)
	}
	if err := e.Run(ctx, cfg.CycleInterval()); err != nil {
		deactivate(ctx, e, markerPath, err)
	}

	slog.Info("ladderbot stopped cleanly")
}

// deactivate is the orderly exit on a fatal condition: remove the
// liveness marker, alert the operator, terminate non-zero. Orders
// already on the venue stay untouched.
func deactivate(ctx context.Context, e *engine.Engine, markerPath string, cause error) {
	os.Remove(markerPath)
	e.Deactivate(ctx, cause)
	os.Exit(1)
}

// newGateway builds the venue adapter wrapped in the retry decorator.
func newGateway(venue string, cfg *config.Config) (ports.Exchange, error) {
	var inner ports.Exchange
	switch venue {
	case "paper":
		inner = exchange.NewPaper(50000, domain.Balance{Free: 0.8, Used: 0.2, Total: 1.0})
	default:
		return nil, fmt.Errorf("unsupported venue %q", venue)
	}
	return exchange.WrapRetry(inner, exchange.RetryConfig{Delay: cfg.RetryDelay()}), nil
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Warn("metrics server exited", "err", err)
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
