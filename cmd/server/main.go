// Package main provides the relay server binary: it binds the game port,
// brokers client sessions, and relays match traffic between players and
// spectators.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/GiulianoVenturo/TicTacToeServer/internal/broker"
	"github.com/GiulianoVenturo/TicTacToeServer/internal/config"
	"github.com/GiulianoVenturo/TicTacToeServer/internal/game/rng"
	"github.com/GiulianoVenturo/TicTacToeServer/internal/game/rooms"
	"github.com/GiulianoVenturo/TicTacToeServer/internal/observability"
	"github.com/GiulianoVenturo/TicTacToeServer/internal/server"
	"github.com/GiulianoVenturo/TicTacToeServer/internal/storage/accounts"
	"github.com/GiulianoVenturo/TicTacToeServer/internal/storage/postgres"
	"github.com/GiulianoVenturo/TicTacToeServer/internal/storage/redisstore"
	"github.com/GiulianoVenturo/TicTacToeServer/internal/transport"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting relay server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("accounts_backend", cfg.Accounts.Backend),
	)

	store, pool, err := openAccountStore(ctx, cfg.Accounts, logger)
	if err != nil {
		logger.Fatal("opening account store", zap.Error(err))
	}

	registry := rooms.NewRegistry(rng.NewCryptoSource())
	events := make(chan transport.Event)
	b := broker.New(events, registry, store, logger)
	acceptor := transport.NewAcceptor(cfg.Server, events, logger)

	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("broker", b)

	lifecycle.Add("acceptor", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})

	lifecycle.Add("accounts", &server.FuncService{
		StartFn: func() error {
			if pool == nil {
				return nil
			}
			for {
				time.Sleep(30 * time.Second)
				if err := pool.Health(ctx, 5*time.Second); err != nil {
					logger.Warn("database health check failed", zap.Error(err))
				}
			}
		},
		StopFn: func() {
			if err := store.Close(); err != nil {
				logger.Warn("closing account store", zap.Error(err))
			}
		},
	})

	logger.Info("relay server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// openAccountStore builds the configured account backend. The returned pool
// is non-nil only for the postgres backend, which exposes a health check.
func openAccountStore(ctx context.Context, cfg config.AccountsConfig, logger *zap.Logger) (accounts.Store, *postgres.Pool, error) {
	switch cfg.Backend {
	case config.BackendFile:
		store, err := accounts.NewFileStore(cfg.FilePath, logger)
		return store, nil, err
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewAccountStore(pool), pool, nil
	case config.BackendRedis:
		store, err := redisstore.New(cfg.RedisURL)
		return store, nil, err
	default:
		// Unreachable after config validation.
		store, err := accounts.NewFileStore(cfg.FilePath, logger)
		return store, nil, err
	}
}
