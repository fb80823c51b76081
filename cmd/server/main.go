package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	specpkg "github.com/daap14/askdb/api"
	"github.com/daap14/askdb/internal/api"
	"github.com/daap14/askdb/internal/api/middleware"
	"github.com/daap14/askdb/internal/auth"
	"github.com/daap14/askdb/internal/catalog"
	"github.com/daap14/askdb/internal/config"
	"github.com/daap14/askdb/internal/engine"
	"github.com/daap14/askdb/internal/generator"
	"github.com/daap14/askdb/internal/migrations"
	"github.com/daap14/askdb/internal/nlsql"
	"github.com/daap14/askdb/internal/permission"
	"github.com/daap14/askdb/internal/report"
	"github.com/daap14/askdb/internal/schema"
	"github.com/daap14/askdb/internal/sqlguard"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	if err := run(cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := engine.New(ctx, cfg.DatabaseURL, engine.Options{
		MaxConns:         cfg.DBMaxConns,
		StatementTimeout: cfg.DBStatementTimeout,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := migrations.RunOnPool(ctx, db.Pool()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	grantStore := permission.NewPostgresStore(db.Pool())
	resolver := permission.NewResolver(grantStore, permission.NewAllowlist(cfg.AdminAllowlist...))

	authService := auth.NewService(auth.NewRepository(db.Pool()), cfg.BcryptCost)
	if len(cfg.AdminAllowlist) > 0 {
		admin := strings.ToLower(strings.TrimSpace(cfg.AdminAllowlist[0]))
		if _, err := authService.BootstrapAdminKey(ctx, admin); err != nil {
			return fmt.Errorf("bootstrapping admin key: %w", err)
		}
	} else {
		slog.Warn("ADMIN_ALLOWLIST is empty; grants can only be managed with askdbctl")
	}

	cat, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("loading catalogue: %w", err)
	}
	holder := catalog.NewHolder(cat)
	refresher := catalog.NewRefresher(holder, func() (*catalog.Catalogue, error) {
		return catalog.LoadFile(cfg.CatalogPath)
	}, cfg.CatalogRefreshInterval)
	go refresher.Start(ctx)

	cache := newSchemaCache(ctx, cfg.RedisURL)
	if closer, ok := cache.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	describer := schema.NewDescriber(db, func() []string { return catalog.Tables(holder) }, cache, cfg.SchemaCacheTTL)

	if cfg.GeneratorURL == "" {
		slog.Warn("GENERATOR_URL is not set; questions will report a configuration problem")
	}
	gen := generator.NewClient(generator.Options{
		BaseURL:        cfg.GeneratorURL,
		APIKey:         cfg.GeneratorAPIKey,
		Model:          cfg.GeneratorModel,
		Timeout:        cfg.GeneratorTimeout,
		MaxConcurrency: cfg.GeneratorMaxConcurrency,
	})

	validator := sqlguard.New(sqlguard.PolicyV1)
	orchestrator := nlsql.New(holder, describer, gen, validator, db)
	reports := report.NewService(report.NewBuilder(holder, db), db)

	limiter := middleware.NewRateLimiter(ctx, middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	})

	router := api.NewRouter(api.RouterDeps{
		DBPinger:           db,
		Catalog:            holder,
		Version:            cfg.Version,
		OpenAPISpec:        specpkg.OpenAPISpec,
		Authenticator:      authService,
		Resolver:           resolver,
		GrantStore:         grantStore,
		Asker:              orchestrator,
		Reports:            reports,
		Introspector:       db,
		RateLimiter:        limiter,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting askdb server",
			"port", cfg.Port,
			"version", cfg.Version,
			"datasets", len(holder.Datasets()),
			"policy", validator.Policy().Version,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newSchemaCache prefers Redis when configured and falls back to an
// in-process cache if it cannot be reached.
func newSchemaCache(ctx context.Context, redisURL string) schema.Cache {
	if redisURL == "" {
		return schema.NewMemoryCache()
	}
	rc, err := schema.NewRedisCache(ctx, redisURL)
	if err != nil {
		slog.Warn("redis schema cache unavailable; using in-process cache", "error", err)
		return schema.NewMemoryCache()
	}
	slog.Info("using redis schema cache")
	return rc
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
