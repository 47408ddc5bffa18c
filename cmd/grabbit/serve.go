package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/grabbitapp/grabbit/internal/bot"
	"github.com/grabbitapp/grabbit/internal/config"
	"github.com/grabbitapp/grabbit/internal/db"
	"github.com/grabbitapp/grabbit/internal/delivery"
	"github.com/grabbitapp/grabbit/internal/extractor"
	"github.com/grabbitapp/grabbit/internal/handlers"
	"github.com/grabbitapp/grabbit/internal/keepalive"
	"github.com/grabbitapp/grabbit/internal/logger"
	"github.com/grabbitapp/grabbit/internal/pipeline"
	"github.com/grabbitapp/grabbit/internal/queue"
	"github.com/grabbitapp/grabbit/internal/resolver"
	"github.com/grabbitapp/grabbit/internal/server"
	"github.com/grabbitapp/grabbit/internal/store"
	"github.com/grabbitapp/grabbit/internal/users"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			users.NewService,
			provideResolver,
			provideExtractor,
			provideStore,
			provideBot,
			provideDelivery,
			providePipeline,
			provideDispatcher,
			provideKeepalive,
			provideServer,
		),
		fx.Invoke(
			ensureSchema,
			startBot,
			startKeepalive,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideResolver(log *slog.Logger, cfg config.Config) *resolver.Resolver {
	return resolver.New(log, cfg.Telegram.Hosts)
}

func provideExtractor(log *slog.Logger, cfg config.Config) *extractor.Client {
	return extractor.New(log, cfg.Extract.Endpoint, cfg.Extract.Attempts, cfg.Extract.RetryDelay(), cfg.Extract.RetryJitter())
}

func provideStore(log *slog.Logger, cfg config.Config) (*store.Store, error) {
	return store.New(log, cfg.Download.Dir, cfg.Download.Attempts, cfg.Download.RetryDelay(), cfg.Download.Retention())
}

func provideBot(log *slog.Logger, cfg config.Config, res *resolver.Resolver, usersSvc *users.Service) (*bot.Bot, error) {
	return bot.New(log, cfg.Telegram.BotToken, res, usersSvc)
}

func provideDelivery(log *slog.Logger, cfg config.Config, b *bot.Bot, artifacts *store.Store) *delivery.Dispatcher {
	return delivery.NewDispatcher(log, b, artifacts, delivery.Options{
		BaseURL:       cfg.Public.BaseURL,
		InlineLimit:   cfg.Delivery.InlineLimitBytes,
		Attempts:      cfg.Delivery.Attempts,
		Backoff:       cfg.Delivery.RetryBackoff(),
		FrameInterval: cfg.Delivery.FrameInterval(),
		InlineCleanup: delivery.CleanupPolicy(cfg.Delivery.InlineCleanup),
		LinkRetention: cfg.Delivery.LinkRetention(),
	})
}

func providePipeline(log *slog.Logger, res *resolver.Resolver, ext *extractor.Client, artifacts *store.Store, disp *delivery.Dispatcher) *pipeline.Runner {
	return pipeline.NewRunner(log, res, ext, artifacts, disp)
}

func provideDispatcher(log *slog.Logger, cfg config.Config, runner *pipeline.Runner) *queue.Dispatcher {
	return queue.NewDispatcher(log, runner.Run, cfg.Queue.GlobalLimit, cfg.Queue.IdleTTL())
}

func provideKeepalive(log *slog.Logger, cfg config.Config) *keepalive.Pinger {
	return keepalive.New(log, cfg.Public.BaseURL, cfg.Public.KeepAliveSpec())
}

func provideServer(log *slog.Logger, cfg config.Config, usersSvc *users.Service, artifacts *store.Store) *server.Server {
	return server.New(log, cfg.Server.Addr,
		handlers.NewPingHandler(log),
		handlers.NewVideoHandler(log, artifacts.Dir()),
		handlers.NewUsersHandler(log, usersSvc),
	)
}

func ensureSchema(lc fx.Lifecycle, usersSvc *users.Service) {
	lc.Append(fx.Hook{OnStart: func(ctx context.Context) error {
		return usersSvc.EnsureSchema(ctx)
	}})
}

func startBot(lc fx.Lifecycle, b *bot.Bot, dispatcher *queue.Dispatcher) {
	b.SetSubmitter(dispatcher)
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go b.Run(ctx)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			return dispatcher.Shutdown(stopCtx)
		},
	})
}

func startKeepalive(lc fx.Lifecycle, pinger *keepalive.Pinger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return pinger.Start() },
		OnStop:  func(ctx context.Context) error { pinger.Stop(); return nil },
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
