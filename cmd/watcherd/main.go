package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/park285/duel-referee/internal/config"
	"github.com/park285/duel-referee/internal/obslog"
	"github.com/park285/duel-referee/internal/refclient"
	"github.com/park285/duel-referee/internal/watcher"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.RefereeBaseURL == "" {
		log.Fatal("REFEREE_BASE_URL is required")
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}
	defer obslog.Sync()

	client := refclient.NewClient(cfg.RefereeBaseURL, refclient.WithTimeout(10*time.Second))
	poller := watcher.NewPoller(client, cfg.WatchInterval, cfg.JoinTimeout, cfg.MoveTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		obslog.L().Info("shutting_down")
		cancel()
	}()

	obslog.L().Info("watcher_started",
		zap.String("referee", cfg.RefereeBaseURL),
		zap.Duration("interval", cfg.WatchInterval))
	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		obslog.L().Error("watcher_stopped", zap.Error(err))
	}
}
