package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/alejandrodnm/ladderbot/config"
	"github.com/alejandrodnm/ladderbot/internal/adapters/storage"
	"github.com/alejandrodnm/ladderbot/internal/advisor"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	rate := flag.Float64("rate", 0, "current market rate to fold into the history")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *rate <= 0 {
		fmt.Fprintln(os.Stderr, "usage: advisor -rate <current market rate> [-config path]")
		os.Exit(2)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	a := advisor.New(store, cfg.Engine.MAShortDays, cfg.Engine.MALongDays, cfg.Engine.DataDir)
	adv, err := a.Run(context.Background(), *rate)
	if err != nil {
		slog.Error("advisor run failed", "err", err)
		os.Exit(1)
	}

	fmt.Println(adv.Text)
}
