package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/park285/duel-referee/internal/archive"
	"github.com/park285/duel-referee/internal/boardcat"
	appcfg "github.com/park285/duel-referee/internal/config"
	"github.com/park285/duel-referee/internal/engine"
	"github.com/park285/duel-referee/internal/eventfeed"
	"github.com/park285/duel-referee/internal/events"
	"github.com/park285/duel-referee/internal/gateway"
	"github.com/park285/duel-referee/internal/obslog"
	"github.com/park285/duel-referee/internal/referee"
	"github.com/park285/duel-referee/internal/registry"
	"github.com/park285/duel-referee/internal/treasury"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}
	defer obslog.Sync()

	cat, err := boardcat.Load(cfg.BoardFile)
	if err != nil {
		log.Fatalf("board catalog error: %v", err)
	}
	rules := engine.NewRuleSet(cat)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	var (
		store   registry.Store
		custody treasury.Custody
		pub     events.Publisher = events.Nop{}
		feed    *eventfeed.Feed
	)
	if cfg.RedisURL != "" {
		rdb, err := registry.NewRedisClient(rootCtx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis init error: %v", err)
		}
		defer rdb.Close()
		store = registry.NewRedisStore(rdb)
		custody = treasury.NewRedisLedger(rdb)
		pub = events.NewRedisPublisher(rdb)
		feed = eventfeed.NewFeed(rdb)
	} else {
		// 단독 실행 모드: 전부 메모리
		store = registry.NewMemoryStore()
		custody = treasury.NewMemoryLedger()
		obslog.L().Warn("running_without_redis")
	}

	var arch referee.Archiver
	if cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive init error: %v", err)
		}
		defer repo.Close()
		arch = repo
	}

	svc := referee.NewService(store, custody, rules, pub, arch, referee.Options{
		Stake:       cfg.Stake,
		Fee:         cfg.Fee,
		TreasuryID:  cfg.TreasuryID,
		JoinTimeout: cfg.JoinTimeout,
		MoveTimeout: cfg.MoveTimeout,
	})
	srv := gateway.NewServer(svc)

	if feed != nil {
		go func() {
			if err := feed.Run(rootCtx, cfg.EventsAddr); err != nil && rootCtx.Err() == nil {
				obslog.L().Error("eventfeed_stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		if err := srv.ListenAndServe(cfg.ListenAddr); err != nil {
			obslog.L().Fatal("gateway_stopped", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	obslog.L().Info("shutting_down")
	rootCancel()
	_ = srv.Shutdown()
}
