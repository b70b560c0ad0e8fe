package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/application"
	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	rediscache "github.com/cristianortiz/liveAuction/internal/auction/infra/cache/redis"
	natsarchive "github.com/cristianortiz/liveAuction/internal/auction/infra/messaging/nats"
	"github.com/cristianortiz/liveAuction/internal/auction/infra/repository/memory"
	"github.com/cristianortiz/liveAuction/internal/auction/infra/repository/postgres"
	"github.com/cristianortiz/liveAuction/internal/auction/infra/rest"
	auctionws "github.com/cristianortiz/liveAuction/internal/auction/infra/websocket"
	"github.com/cristianortiz/liveAuction/internal/shared/config"
	"github.com/cristianortiz/liveAuction/internal/shared/db"
	"github.com/cristianortiz/liveAuction/internal/shared/db/migrations"
	"github.com/cristianortiz/liveAuction/internal/shared/httpserver"
	"github.com/cristianortiz/liveAuction/internal/shared/logger"
	"github.com/cristianortiz/liveAuction/internal/shared/metrics"
	"github.com/cristianortiz/liveAuction/internal/shared/pubsub"
	"github.com/cristianortiz/liveAuction/internal/shared/websocket"
	userapp "github.com/cristianortiz/liveAuction/internal/user/application"
	userpg "github.com/cristianortiz/liveAuction/internal/user/infra/repository/postgres"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := logger.GetLogger()
	defer logger.Sync()

	logger.Info("Starting live auction server...")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	clock := clockwork.NewRealClock()

	var (
		store    domain.AuctionStore
		standing domain.StandingChecker
		viewers  domain.ViewerRegistry
		collab   application.Collaborators
	)

	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("Using the in-memory store, state is lost on restart")
		store = memory.NewAuctionStore()
		viewers = memory.NewViewerRegistry()
	default:
		dsn := cfg.DB.PostgresDSN()
		logger.Info("Running database migrations...")
		if err := migrations.RunMigrations(dsn); err != nil {
			logger.Fatal("Database migration failed", zap.Error(err))
		}
		logger.Info("Database migrations completed successfully.")

		pool, err := db.NewPostgresPool(ctx, dsn, db.PoolConfig{MaxConns: cfg.DB.MaxConns})
		if err != nil {
			logger.Fatal("Database connection failed", zap.Error(err))
		}
		defer pool.Close()

		store = postgres.NewAuctionStore(pool)
		if cfg.Policy.RequireStanding {
			standing = userapp.NewStandingChecker(userpg.NewUserRepository(pool), cfg.Policy.MinStandingPoints)
		}
	}

	if cfg.Redis.Addr != "" {
		rdb, err := rediscache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Redis connection failed", zap.Error(err))
		}
		defer rdb.Close()
		viewers = rediscache.NewViewerRegistry(rdb, cfg.Policy.ViewerRegistration)
		collab.Prices = rediscache.NewPriceBoard(rdb, cfg.Policy.ViewerRegistration)
	}

	if cfg.NATSURL != "" {
		nc, err := natsarchive.Connect(cfg.NATSURL)
		if err != nil {
			logger.Fatal("NATS connection failed", zap.Error(err))
		}
		defer nc.Drain()
		archiver, err := natsarchive.NewArchiver(ctx, nc)
		if err != nil {
			logger.Fatal("History stream setup failed", zap.Error(err))
		}
		collab.Archiver = archiver
	}

	if cfg.Policy.RequireStanding && standing == nil {
		logger.Warn("Standing check requires the postgres store, policy disabled")
	}

	broker := pubsub.NewBroker(pubsub.Config{
		HistorySize:      cfg.Policy.ReplayBuffer,
		SubscriberBuffer: cfg.Policy.SubscriberBuffer,
		MaxPending:       pubsub.DefaultConfig().MaxPending,
	}, m)
	engine := application.NewEngine(clock, store, broker, m, application.EngineConfig{
		Policy: domain.Policy{
			MaxBidAmount:    cfg.Policy.MaxBidAmount,
			AllowSelfOutbid: cfg.Policy.AllowSelfOutbid,
		},
		OvertimeWindow: time.Duration(cfg.Policy.OvertimeSeconds) * time.Second,
		QueueDepth:     cfg.Policy.QueueDepth,
		AdmissionWait:  cfg.Policy.AdmissionWait,
		StoreTimeout:   cfg.Policy.StoreTimeout,
		ArchiveTimeout: cfg.Policy.ArchiveTimeout,
		SweepInterval:  cfg.Policy.SweepInterval,
		Retention:      cfg.Policy.ClosedRetention,
	}, collab)
	defer engine.Close()

	recovered, err := engine.Recover(ctx)
	if err != nil {
		logger.Fatal("Failed to load live auctions", zap.Error(err))
	}
	logger.Info("Live auctions loaded", zap.Int("count", recovered))

	auctionService := application.NewAuctionService(engine,
		application.NewUseCases(engine, store, viewers, standing, cfg.Policy.RequireStanding))

	g, gctx := errgroup.WithContext(ctx)

	hub := websocket.NewHub()
	restHandler := rest.NewAuctionHandler(auctionService, clock, cfg.Policy.SSEHeartbeat)
	wsHandler := auctionws.NewAuctionWSHandler(gctx, auctionService, hub)

	server := httpserver.NewServer(m)
	restHandler.RegisterRoutes(server.App())
	wsHandler.RegisterRoutes(server.App())

	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		wsHandler.ListenForMessages(gctx)
		return nil
	})
	g.Go(func() error { return server.Start(cfg.HTTPAddr) })
	g.Go(func() error {
		<-gctx.Done()
		restHandler.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
	logger.Info("Server stopped")
}
