//go:generate go tool swag init --parseInternal -o api_specs --outputTypes json,yaml

// @title						Gift Auction API
// @version					1.0
// @description				Round-based auctions for numbered gifts with anti-sniping.
// @BasePath					/
// @securityDefinitions.apikey	Bearer
// @in							header
// @name						Authorization
// @description				"Bearer <user id>"
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"giftauction/internal/config"
	"giftauction/internal/database/db_client"
	"giftauction/internal/http/auctionhandler"
	"giftauction/internal/http/gifthandler"
	"giftauction/internal/http/http_server"
	"giftauction/internal/http/userhandler"
	"giftauction/internal/lifecycle"
	"giftauction/internal/redis/events"
	"giftauction/internal/redis/redis_client"
	"giftauction/internal/redis/redis_functions"
	"giftauction/internal/redis/roundlock"
	"giftauction/internal/services/auction"
	"giftauction/internal/services/gift"
	"giftauction/internal/services/user"
	"giftauction/internal/worker/roundreaper"
	"giftauction/internal/ws"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "giftauction:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	giftFlag := func() cli.Flag {
		return &cli.StringSliceFlag{
			Name:  "gift",
			Usage: "gift catalog row as id=name (repeatable)",
		}
	}
	return &cli.App{
		Name:   "giftauction",
		Usage:  "round-based gift auction server",
		Flags:  []cli.Flag{giftFlag()},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP/WS API and the round reaper",
				Flags:  []cli.Flag{giftFlag()},
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply the Postgres schema and upsert gift rows",
				Flags:  []cli.Flag{giftFlag()},
				Action: migrate,
			},
		},
	}
}

// setup loads the config and installs the global logger.
func setup() (*config.Config, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.AppEnv)
	if err != nil {
		return nil, nil, err
	}
	zap.ReplaceGlobals(logger)
	zap.L().Debug("config.loaded",
		zap.String("app_env", cfg.AppEnv),
		zap.String("store_driver", cfg.StoreDriver),
		zap.Bool("redis_enabled", cfg.RedisEnabled),
		zap.Uint16("http_port", cfg.HttpServerPort),
	)
	return cfg, func() { _ = logger.Sync() }, nil
}

func newLogger(appEnv string) (*zap.Logger, error) {
	if appEnv == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func migrate(c *cli.Context) error {
	cfg, done, err := setup()
	if err != nil {
		return err
	}
	defer done()
	if cfg.StoreDriver != config.StoreDriverPostgres {
		return fmt.Errorf("migrate needs STORE_DRIVER=%s", config.StoreDriverPostgres)
	}
	seeds, err := parseGiftSeeds(c.StringSlice("gift"))
	if err != nil {
		return err
	}

	lc := lifecycle.New()
	defer lc.Stop(context.Background())

	b, err := openBackend(cfg, lc)
	if err != nil {
		return err
	}
	err = b.tx.RunTx(c.Context, func(ctx context.Context, q db_client.Querier) error {
		return db_client.ApplySchema(ctx, q)
	})
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if err := b.seedGifts(c.Context, seeds); err != nil {
		return err
	}
	zap.L().Info("migrate.done", zap.Int("gifts", len(seeds)))
	return nil
}

func serve(c *cli.Context) error {
	cfg, done, err := setup()
	if err != nil {
		return err
	}
	defer done()
	seeds, err := parseGiftSeeds(c.StringSlice("gift"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lc := lifecycle.New()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := lc.Stop(sctx); err != nil {
			zap.L().Error("shutdown", zap.Error(err))
		}
	}()

	// 1. Storage
	b, err := openBackend(cfg, lc)
	if err != nil {
		return err
	}
	if err := b.seedGifts(ctx, seeds); err != nil {
		return err
	}

	// 2. Event transport: Redis pub/sub across instances, or the local hub.
	hub := ws.NewHub()
	var (
		rdc    *redis.Client
		pub    events.Publisher = hub
		locker roundlock.Locker = roundlock.Nop{}
	)
	if cfg.RedisEnabled {
		rdc, err = redis_client.NewRedisClient(ctx, cfg.RedisAuctionsHost, cfg.RedisAuctionsPort)
		if err != nil {
			return err
		}
		lc.OnStop("redis", func(context.Context) error { return rdc.Close() })
		if err := redis_functions.LoadAll(ctx, rdc); err != nil {
			return err
		}
		pub = events.NewRedisPublisher(rdc)
		locker = roundlock.NewRedisLocker(rdc, cfg.ReaperLockTTL)
	}

	// 3. Services
	auctionSvc := auction.NewAuctionService(b.tx, b.auctions, pub)
	userSvc := user.NewUserService(b.tx, b.users)
	giftSvc := gift.NewGiftService(b.tx, b.gifts)

	// 4. Round reaper
	reaper := roundreaper.New(b.tx, b.reaper, locker, pub, roundreaper.Config{
		PollInterval: cfg.ReaperPollInterval,
		Concurrency:  cfg.ReaperConcurrency,
	})
	reaperCtx, stopReaper := context.WithCancel(context.WithoutCancel(ctx))
	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		reaper.Run(reaperCtx)
	}()
	lc.OnStop("reaper", func(ctx context.Context) error {
		stopReaper()
		select {
		case <-reaperDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	// 5. WS + HTTP
	wsSrv := ws.NewWsServer(hub, rdc, auctionSvc)
	lc.OnStop("ws", func(context.Context) error { wsSrv.Close(); return nil })

	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, userSvc,
		auctionhandler.New(auctionSvc),
		userhandler.New(userSvc),
		gifthandler.New(giftSvc),
	)
	if err := httpServer.Listen(); err != nil {
		return err
	}
	lc.OnStop("http", func(context.Context) error { return httpServer.Dispose() })

	errc := make(chan error, 1)
	go func() { errc <- httpServer.Start() }()

	select {
	case <-ctx.Done():
		zap.L().Info("shutdown.signal")
		return nil
	case err := <-errc:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}
