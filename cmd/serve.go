package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tinychat-dev/tinychat/internal/admission"
	"github.com/tinychat-dev/tinychat/internal/chatlog"
	"github.com/tinychat-dev/tinychat/internal/config"
	"github.com/tinychat-dev/tinychat/internal/httpapi"
	"github.com/tinychat-dev/tinychat/internal/imagegen"
	"github.com/tinychat-dev/tinychat/internal/llm"
	"github.com/tinychat-dev/tinychat/internal/rlm"
	"github.com/tinychat-dev/tinychat/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if debugFlag {
		cfg.Debug = true
	}
	setupLogging(cfg.Debug)

	slog.Info("tinychat starting",
		"version", Version,
		"listen", cfg.Listen,
		"rlm_enabled", cfg.RLM.Enabled,
		"default_model", cfg.API.DefaultModel)

	store := config.NewStore(cfg)

	sink, err := chatlog.Open(cfg.Log.ChatLog)
	if err != nil {
		return fmt.Errorf("open chat log: %w", err)
	}
	defer sink.Close()

	collector := tracing.NewCollector()
	collector.Start()
	defer collector.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initOTelExporter(ctx, cfg, collector)

	client := llm.NewClient(cfg.API.BaseURL, cfg.API.Key)
	ctrl := admission.NewController(cfg.RLM.MaxConcurrent)
	sessions := admission.NewSessionTracker(cfg.SessionTTL())
	rlmSvc := rlm.NewService(store, client, ctrl, sink, collector)
	images := imagegen.NewService(store)

	server := httpapi.NewServer(store, client, rlmSvc, images, sink, ctrl, sessions, Version)
	handler := server.Handler()

	// Hot reload: handlers read config through the store, so a swap is
	// all a file edit needs.
	watcher, err := config.NewWatcher(cfgPath)
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
	} else {
		watcher.OnChange(func(next *config.Config) {
			store.Swap(next)
			slog.Info("config reloaded", "path", cfgPath)
		})
		if err := watcher.Start(); err != nil {
			slog.Warn("config watcher failed to start", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	stopTailscale := initTailscale(ctx, cfg, handler)
	if stopTailscale != nil {
		defer stopTailscale()
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", cfg.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	slog.Info("tinychat stopped")
	return nil
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
