package main

import (
	"context"
	"fmt"

	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"KBPortal/internal/auth"
	"KBPortal/internal/catalog"
	"KBPortal/internal/config"
	"KBPortal/internal/migrations"
	"KBPortal/internal/portal"
	"KBPortal/internal/storage"
	"KBPortal/pkg/kit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := kit.NewLogger(cfg.App.Name, cfg.Log.Level, cfg.Log.Pretty)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer func() { _ = log.Sync() }()

		return serve(cmd.Context(), cfg, log)
	},
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	policies, err := cfg.Auth.Policies()
	if err != nil {
		return err
	}

	identities, entries, closeStores, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStores()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)
	authSvc := auth.NewService(log, identities, tokens, auth.ServiceOptions{
		FreshCacheSize: cfg.Auth.FreshCacheSize,
		FreshCacheTTL:  cfg.Auth.FreshCacheTTL,
	})
	catalogSvc := catalog.NewService(entries, log, catalog.NewMetrics(reg))

	limiter, closeLimiter := loginLimiter(ctx, cfg, log)
	defer closeLimiter()

	h := portal.NewHandler(portal.Deps{
		Auth:         authSvc,
		Tokens:       tokens,
		Catalog:      catalogSvc,
		WritePolicy:  policies.Write,
		BatchPolicy:  policies.Batch,
		LoginLimiter: limiter,
		Ready: map[string]portal.Pinger{
			"identity": identities,
			"catalog":  catalogSvc,
		},
	}, portal.HTTPDeps{
		Log:            log,
		Service:        cfg.App.Name,
		Registry:       reg,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsToken:   cfg.Metrics.Token,
		Debug:          !cfg.App.IsProduction(),
		TrustProxy:     cfg.Server.TrustProxy,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORS: cors.Options{
			AllowedOrigins:   config.SplitList(cfg.CORS.AllowedOrigins),
			AllowedMethods:   config.SplitList(cfg.CORS.AllowedMethods),
			AllowedHeaders:   config.SplitList(cfg.CORS.AllowedHeaders),
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		},
	})

	log.Info("starting",
		zap.String("env", cfg.App.Env),
		zap.String("write_policy", policies.Write.String()),
		zap.String("batch_policy", policies.Batch.String()),
	)

	return kit.RunHTTPServer(ctx, kit.ServerOptions{
		Addr:            cfg.Server.Addr(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, h, log)
}

// openStores connects to Postgres when a DSN is configured and falls back to
// in-memory stores seeded from AUTH_SEED_ACCOUNTS otherwise.
func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (auth.IdentityStore, catalog.Store, func(), error) {
	if cfg.Database.DSN == "" {
		seed, err := auth.ParseSeedAccounts(cfg.Auth.SeedAccounts)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Warn("DATABASE_DSN not set, using in-memory stores", zap.Int("seed_accounts", len(seed)))
		return auth.NewMemStore(seed...), catalog.NewMemStore(), func() {}, nil
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	if cfg.Database.AutoMigrate {
		db := storage.OpenSQL(pool)
		applied, err := migrations.Up(ctx, db)
		_ = db.Close()
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		log.Info("migrations applied", zap.Int64s("versions", applied))
	}

	log.Info("connected to database")
	return auth.NewPostgresStore(pool), catalog.NewPostgresStore(pool), pool.Close, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return storage.NewPool(ctx, storage.PoolOptions{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
}

// loginLimiter shares the login budget across replicas through Redis when
// configured, and keeps it per process otherwise.
func loginLimiter(ctx context.Context, cfg *config.Config, log *zap.Logger) (kit.Limiter, func()) {
	if cfg.Auth.LoginRateLimit == 0 {
		return nil, func() {}
	}

	if cfg.Redis.Addr == "" {
		return kit.NewIPRateLimiter(cfg.Auth.LoginRateLimit, cfg.Auth.LoginWindow), func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := storage.WithTimeout(ctx, storage.PingTimeout, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}); err != nil {
		log.Warn("redis unreachable, login limiter will fail open until it recovers", zap.Error(err))
	}

	l := kit.NewRedisRateLimiter(rdb, cfg.Redis.Prefix, cfg.Auth.LoginRateLimit, cfg.Auth.LoginWindow)
	return l, func() { _ = rdb.Close() }
}
