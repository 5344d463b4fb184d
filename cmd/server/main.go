package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hlsgate/hlsgate/internal/api"
	"github.com/hlsgate/hlsgate/internal/app"
	"github.com/hlsgate/hlsgate/internal/handlers"
	"github.com/hlsgate/hlsgate/internal/manifest"
	"github.com/hlsgate/hlsgate/internal/store"
	"github.com/hlsgate/hlsgate/internal/token"
	"github.com/hlsgate/hlsgate/internal/upstream"
	"github.com/hlsgate/hlsgate/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("hlsgate-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	fallbacks, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")
	if fallbacks["proxy.secret"] {
		log.Warn("no signing secret configured; using the insecure development default",
			zap.String("key", "proxy.secret"),
		)
	}

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	resourceStore := store.New(store.WithTTL(cfg.Proxy.StoreTTL))

	sweeper := store.NewSweeper(resourceStore, store.WithSchedule(cfg.Proxy.SweepSchedule))
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start store sweeper: %w", err)
	}
	defer func() {
		stopCtx := sweeper.Stop()
		if err := sweeper.RunOnce(stopCtx); err != nil {
			log.Warn("final store sweep failed", zap.Error(err))
		}
	}()

	codec, err := token.NewCodec([]byte(cfg.Proxy.Secret), token.WithValidity(cfg.Proxy.TokenTTL))
	if err != nil {
		return fmt.Errorf("initialise token codec: %w", err)
	}

	rewriter, err := manifest.NewRewriter(resourceStore, codec)
	if err != nil {
		return fmt.Errorf("initialise manifest rewriter: %w", err)
	}

	fetchHandler, err := handlers.NewFetchHandler(rewriter, resourceStore, codec, upstream.NewClient(cfg.Proxy.FetchTimeout))
	if err != nil {
		return fmt.Errorf("initialise fetch handler: %w", err)
	}

	router, err := api.NewRouter(cfg, fetchHandler)
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}
