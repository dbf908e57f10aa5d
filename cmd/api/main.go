package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	"nfccheckin/internal/auth"
	"nfccheckin/internal/checkin"
	"nfccheckin/internal/config"
	"nfccheckin/internal/handler"
	"nfccheckin/internal/queue"
	"nfccheckin/internal/store"
	"nfccheckin/internal/terminal"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg, "api")
	slog.SetDefault(logger)

	root := &cli.Command{
		Name:  "checkin-api",
		Usage: "Badge check-in HTTP service",
		Commands: []*cli.Command{
			serveCommand(cfg, logger),
			migrateCommand(cfg, logger),
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			return runHTTP(ctx, cfg, logger)
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func serveCommand(cfg config.App, logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API (default)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Value: cfg.HTTPPort, Usage: "HTTP listen port"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.HTTPPort = c.String("port")
			return runHTTP(ctx, cfg, logger)
		},
	}
}

func migrateCommand(cfg config.App, logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply schema migrations and exit",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "seed", Value: cfg.SeedRegistry, Usage: "insert sample registrants into an empty registry"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			db, err := openStore(ctx, cfg, logger, c.Bool("seed"))
			if err != nil {
				return err
			}
			defer db.Close()

			version, err := store.SchemaVersion(ctx, db)
			if err != nil {
				return err
			}
			logger.Info("schema up to date", "dialect", string(db.Dialect), "version", version)
			return nil
		},
	}
}

// openStore connects, migrates and optionally seeds the registry.
func openStore(ctx context.Context, cfg config.App, logger *slog.Logger, seed bool) (*store.DB, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	db, err := store.NewDB(ctx, store.Options{
		Driver:          cfg.DBDriver,
		URL:             cfg.DatabaseURL,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		Name:            cfg.DBName,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		PingTimeout:     cfg.DBPingTimeout,
		Location:        loc,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	if seed {
		n, err := store.Seed(ctx, db, store.DefaultRegistrants)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if n > 0 {
			logger.Info("seeded empty registry", "rows", n)
		}
	}
	return db, nil
}

func runHTTP(ctx context.Context, cfg config.App, logger *slog.Logger) error {
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg, logger, cfg.SeedRegistry)
	if err != nil {
		return err
	}
	defer db.Close()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	checks := map[string]handler.HealthCheck{"db": db.Ping}
	opts := checkin.Options{
		RoleOrder: cfg.RoleOrder,
		Location:  loc,
		DumpLimit: cfg.VisitDumpLimit,
		Logger:    logger,
	}

	switch cfg.QueueBackend {
	case "redis":
		redisClient, err := store.NewRedis(cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		checks["redis"] = redisClient.Healthy
		opts.Events = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
		opts.Live = store.NewRedisCounters(redisClient.Client, cfg.LiveCounterKey)
	case "memory":
		q := queue.NewInMemory(1024)
		counters := store.NewMemoryCounters()
		opts.Events, opts.Live = q, counters
		go func() {
			if err := checkin.ConsumeVisits(ctx, q, counters, logger.With("component", "consumer")); err != nil {
				logger.Error("in-process consumer stopped", "error", err)
			}
		}()
	case "none", "":
	default:
		return fmt.Errorf("unsupported QUEUE_BACKEND %q", cfg.QueueBackend)
	}

	svc := checkin.NewService(checkin.NewRepository(db), opts)
	terminals := terminal.NewService(
		terminal.NewRepository(db),
		auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
	)
	router := handler.NewRouter(svc, handler.RouterOptions{
		Terminals:       terminals,
		AuthRequired:    cfg.AuthRequired,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Logger:          logger,
		Checks:          checks,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "db", string(db.Dialect), "queue", cfg.QueueBackend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	// give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", "error", err)
	}
	logger.Info("server exited")
	return nil
}
