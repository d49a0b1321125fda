package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/afflo/tasksync/internal/connectivity"
	"github.com/afflo/tasksync/internal/identity"
	"github.com/afflo/tasksync/internal/model"
	"github.com/afflo/tasksync/internal/remote/supabase"
	"github.com/afflo/tasksync/internal/store"
	"github.com/afflo/tasksync/internal/sync"
	"github.com/afflo/tasksync/internal/task"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "afflosync: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is not configured (edit %s)", configPath)
	}

	logger := newLogger(cfg.Log)

	st, err := store.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	client := supabase.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey)

	probeURL := cfg.Remote.ProbeURL
	if probeURL == "" {
		probeURL = cfg.Remote.BaseURL
	}
	monitor := connectivity.NewProbeMonitor(
		probeURL,
		time.Duration(cfg.Sync.ProbeIntervalSec)*time.Second,
		logger,
	)

	engine := sync.NewEngine(
		st, client, monitor, logger,
		time.Duration(cfg.Sync.RetryIntervalSec)*time.Second,
	)

	controller := task.NewController(engine, identity.KeyringProvider{}, monitor, logger)
	controller.OnChange(func() {
		logger.Debug("task list changed", "count", len(controller.Tasks()))
	})

	monitor.Start()
	defer monitor.Stop()

	controller.Start(ctx)
	controller.LoadTasks(ctx)

	logger.Info("session started",
		"tasks", len(controller.Tasks()), "online", monitor.Connected())

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// newLogger writes to stderr and to a size-rotated log file.
func newLogger(cfg model.LogConfig) *slog.Logger {
	var w io.Writer = os.Stderr
	if cfg.Path != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
	}
	return slog.New(slog.NewTextHandler(w, nil))
}
