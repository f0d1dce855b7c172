package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/axssbug/twitter-plugin/internal/filter/common/clock"
	"github.com/axssbug/twitter-plugin/internal/filter/common/log"
	"github.com/axssbug/twitter-plugin/internal/filter/config"
	"github.com/axssbug/twitter-plugin/internal/filter/gateways/control"
	"github.com/axssbug/twitter-plugin/internal/filter/gateways/report"
	"github.com/axssbug/twitter-plugin/internal/filter/gateways/source"
	"github.com/axssbug/twitter-plugin/internal/filter/gateways/stream"
	"github.com/axssbug/twitter-plugin/internal/filter/repos/index"
	"github.com/axssbug/twitter-plugin/internal/filter/repos/rulestore"
	"github.com/axssbug/twitter-plugin/internal/filter/repos/rulestore/bolt"
	"github.com/axssbug/twitter-plugin/internal/filter/services/command"
	"github.com/axssbug/twitter-plugin/internal/filter/services/engine"
	"github.com/axssbug/twitter-plugin/internal/filter/services/processor"
	"github.com/axssbug/twitter-plugin/internal/filter/services/syncer"
)

const (
	version = "0.1.0-dev"
	appName = "tweetfilterd"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the filter daemon.
type Application struct {
	config     *config.AppConfig
	kv         *bolt.KV
	store      *rulestore.Store
	syncer     *syncer.Syncer
	refresher  *syncer.Refresher
	subscriber *stream.Subscriber
	control    *control.Server
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info(map[string]any{
		"version":    version,
		"env":        cfg.Env,
		"log_level":  cfg.LogLevel,
		"store_path": cfg.StorePath,
		"stream_url": cfg.StreamURL,
	}, "Starting "+appName)

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal(map[string]any{"error": err}, "Daemon failed")
	}

	log.Info(nil, appName+" stopped gracefully")
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := clock.RealClock{}
	logger := log.GetLogger()

	kv, err := bolt.New(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	store := rulestore.New(kv, clk, logger)
	store.Load()

	ix := index.New(logger)

	eng, err := engine.New(store, ix, cfg.NameCacheSize)
	if err != nil {
		return nil, fmt.Errorf("building engine: %w", err)
	}

	proc := processor.New(eng, store, nil, logger)

	syn := syncer.New(store, proc, time.Duration(cfg.DebounceMillis)*time.Millisecond, logger)
	syn.Start()

	src := source.NewClient(source.Options{
		AccountURL: cfg.AccountSourceURL,
		KeywordURL: cfg.KeywordSourceURL,
		Attempts:   cfg.RetryAttempts,
		Logger:     logger,
	})

	refresher := syncer.NewRefresher(store, ix, src,
		clk, time.Duration(cfg.RefreshMinutes)*time.Minute, logger)

	reporter, err := report.NewClient(report.Options{
		BaseURL: cfg.ReportURL,
		Key:     []byte(cfg.ReportKey),
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("building report client: %w", err)
	}

	dispatcher := command.NewDispatcher(store, proc, reporter, refresher, logger)
	ctrl := control.NewServer(cfg.ControlAddr, dispatcher, logger)

	subscriber := stream.NewSubscriber(cfg.StreamURL, proc.Observe, logger)

	return &Application{
		config:     cfg,
		kv:         kv,
		store:      store,
		syncer:     syn,
		refresher:  refresher,
		subscriber: subscriber,
		control:    ctrl,
	}, nil
}

// Run starts the refresh scheduler and the record feed, blocking until the
// context is cancelled.
func (app *Application) Run(ctx context.Context) error {
	defer func() {
		app.syncer.Stop()
		app.store.Close()
		if err := app.kv.Close(); err != nil {
			log.Warn(map[string]any{"error": err}, "Error closing state store")
		}
	}()

	go app.refresher.Run(ctx)

	go func() {
		if err := app.control.Start(); err != nil && err != http.ErrServerClosed {
			log.Error(map[string]any{"error": err}, "Control server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := app.control.Shutdown(shutdownCtx); err != nil {
			log.Warn(map[string]any{"error": err}, "Error during control server shutdown")
		}
	}()

	// The record feed blocks until shutdown; an index load is not a
	// precondition, classification degrades to user-origin lists until the
	// first refresh lands.
	if err := app.subscriber.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("record feed stopped: %w", err)
	}
	return nil
}
