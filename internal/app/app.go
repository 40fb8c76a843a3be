package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sundayezeilo/shorturl/internal/cache"
	"github.com/sundayezeilo/shorturl/internal/config"
	"github.com/sundayezeilo/shorturl/internal/db"
	"github.com/sundayezeilo/shorturl/internal/idgen"
	"github.com/sundayezeilo/shorturl/internal/ratelimit"
	"github.com/sundayezeilo/shorturl/internal/server"
	"github.com/sundayezeilo/shorturl/internal/shortener"
)

// App holds the application dependencies and configuration.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Store    shortener.Store
	Server   *server.Server
	Handler  *shortener.Handler

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// New loads the environment and configuration and wires up every dependency.
func New(ctx context.Context) (*App, error) {
	if err := loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(os.Stdout, cfg.App.LogLevel, cfg.App.LogFormat)

	return Build(ctx, cfg, logger)
}

// Build wires up the application from an already loaded configuration.
// On error everything opened so far is closed again.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	logger.Info("starting application",
		"env", cfg.App.Environment,
		"driver", cfg.Database.Driver,
	)

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			_ = a.Shutdown()
		}
	}()

	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics := shortener.NewMetrics(a.Registry)

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.Store = shortener.Instrument(store, metrics)

	var (
		linkCache shortener.LinkCache
		limiter   *ratelimit.Limiter
	)
	if cfg.Redis.Enabled {
		rdb, err := cache.Connect(ctx, logger, cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.addCloser("redis", rdb.Close)
		logger.Info("redis connection established", "addr", cfg.Redis.Addr)

		linkCache = cache.NewLinkCache(rdb, logger, cache.Config{
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.CacheTTL,
		}, a.Registry)

		if cfg.RateLimit.Enabled {
			limiter = ratelimit.New(logger, rdb, ratelimit.Config{
				KeyPrefix:    cfg.RateLimit.KeyPrefix,
				Capacity:     cfg.RateLimit.MaxRequests,
				RefillRate:   cfg.RateLimit.MaxRequests,
				RefillPeriod: cfg.RateLimit.Window,
			})
		}
	}

	allocator := shortener.NewAllocator(a.Store, shortener.AllocatorConfig{
		CodeLength:  cfg.Shortener.CodeLength,
		MaxAttempts: cfg.Shortener.MaxAttempts,
		Metrics:     metrics,
		// A custom metrics path must not be claimable as a code either.
		ReservedCodes: reservedCodes(cfg.Metrics.Path),
	})
	registry := shortener.NewRegistry(a.Store, shortener.RegistryConfig{
		Cache:   linkCache,
		Metrics: metrics,
	})
	svc := shortener.NewService(allocator, registry, shortener.ServiceConfig{
		DefaultExpirationDays: cfg.Shortener.DefaultExpirationDays,
		Logger:                logger,
		Metrics:               metrics,
	})
	a.Handler = shortener.NewHandler(shortener.HandlerConfig{
		Service: svc,
		Logger:  logger,
		BaseURL: cfg.Server.BaseURL,
	})

	opts := server.Options{
		Handler:    a.Handler,
		Store:      a.Store,
		Gatherer:   a.Registry,
		Registerer: a.Registry,
	}
	// A nil *ratelimit.Limiter must not end up in the interface.
	if limiter != nil {
		opts.Limiter = limiter
	}
	a.Server = server.New(cfg, logger, opts)

	logger.Info("application initialized",
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"cache", linkCache != nil,
		"rate_limit", limiter != nil,
	)

	return a, nil
}

// openStore connects the configured storage driver and applies migrations.
func (a *App) openStore(ctx context.Context) (shortener.Store, error) {
	cfg := a.Config.Database
	ids := idgen.NewV7()

	switch cfg.Driver {
	case config.DriverPostgres:
		a.Logger.Info("connecting to database",
			"host", cfg.Host,
			"port", cfg.Port,
			"database", cfg.Name,
		)
		pool, err := db.OpenPostgres(ctx, a.Logger, db.PostgresOptions{
			ConnString: cfg.ConnectionString(),
			MaxConns:   cfg.MaxConns,
			MinConns:   cfg.MinConns,
		})
		if err != nil {
			return nil, err
		}
		a.addCloser("database", func() error { pool.Close(); return nil })
		a.Registry.MustRegister(db.NewPoolStatsCollector(pool, cfg.Name))
		a.Logger.Info("database connection established")

		if cfg.AutoMigrate {
			if err := db.MigratePostgres(cfg.ConnectionString()); err != nil {
				return nil, err
			}
			a.Logger.Info("database migrations applied")
		}

		return shortener.NewPostgresStore(pool, ids), nil

	case config.DriverSQLite:
		sqlDB, err := db.OpenSQLite(ctx, a.Logger, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.addCloser("database", sqlDB.Close)

		if cfg.AutoMigrate {
			if err := db.MigrateSQLite(sqlDB); err != nil {
				return nil, err
			}
			a.Logger.Info("database migrations applied")
		}
		a.Logger.Info("sqlite database opened", "path", cfg.SQLitePath)

		return shortener.NewSQLiteStore(sqlDB, ids), nil

	case config.DriverMemory:
		a.Logger.Warn("using in-memory store, links are lost on restart")
		return shortener.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// reservedCodes returns the first segment of metricsPath when that segment
// alone would route like a short code.
func reservedCodes(metricsPath string) []string {
	segment, _, _ := strings.Cut(strings.TrimPrefix(metricsPath, "/"), "/")
	if segment == "" {
		return nil
	}
	return []string{segment}
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// Start starts the application server.
func (a *App) Start(ctx context.Context) error {
	a.Logger.Info("server starting",
		"port", a.Config.Server.Port,
		"base_url", a.Config.Server.BaseURL,
	)

	if err := a.Server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown releases connections in the reverse order they were opened.
func (a *App) Shutdown() error {
	a.Logger.Info("shutting down application")

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
			continue
		}
		a.Logger.Info("connection closed", "name", c.name)
	}
	a.closers = nil

	return errors.Join(errs...)
}

// loadEnv loads .env file only in non-production environments.
func loadEnv() error {
	env := os.Getenv("APP_ENV")
	if env == "development" || env == "test" {
		if err := godotenv.Load(); err != nil {
			log.Println("no .env file found.")
		}
	}
	return nil
}

// setupLogger creates a structured logger based on the log level and format.
func setupLogger(w io.Writer, level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}
