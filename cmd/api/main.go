package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/auth-service/internal/api/http"
	"github.com/spec-kit/auth-service/internal/api/http/handlers"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/observability"
	"github.com/spec-kit/auth-service/internal/persistence"
	"github.com/spec-kit/auth-service/internal/repository"
	"github.com/spec-kit/auth-service/internal/service"
	"github.com/spec-kit/auth-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if pg.PoolHandle() == nil {
		logger.Fatal("postgres is required for the principal store")
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var (
		redis       *persistence.Redis
		revocations auth.RevocationStore
	)
	switch cfg.Auth.RevocationBackend {
	case config.RevocationBackendMemory:
		logger.Warn("using in-process revocation store; logouts are not shared across replicas")
		revocations = auth.NewMemoryRevocationStore(nil)
	default:
		redis = persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
		revocations = auth.NewRedisRevocationStore(redis.Client, cfg.Auth.RevocationTimeout)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	dispatcher := events.NewInMemoryDispatcher(logger)
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger))

	pool := pg.PoolHandle()
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:       repository.NewUserRepository(pool),
		SubmissionRepo: repository.NewSubmissionRepository(pool),
		TxManager:      persistence.NewTxManager(pool),
		Revocations:    revocations,
		Dispatcher:     dispatcher,
		Logger:         logger,
		Metrics:        metrics,
	})

	if cfg.Auth.BootstrapAdminEmail != "" {
		created, err := authService.EnsureBootstrapAdmin(ctx, service.RegisterInput{
			FirstName: cfg.Auth.BootstrapAdminName,
			Email:     cfg.Auth.BootstrapAdminEmail,
			Password:  cfg.Auth.BootstrapAdminPassword,
		})
		if err != nil {
			logger.Fatal("failed to bootstrap admin", zap.Error(err))
		}
		logger.Info("bootstrap admin checked", zap.Bool("created", created))
	}

	cookies := auth.NewCookieTransport(cfg.Cookie)
	gate := auth.NewAuthGate(authService.Tokens(), revocations, cookies, cfg.Auth.RevocationFailPolicy, logger, metrics)
	logger.Info("auth gate configured", zap.String("revocation_fail_policy", string(gate.Policy())))

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.App.RequestTimeout(),
		ProxyHeader:           cfg.App.ProxyHeader,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:      handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:       handlers.NewUsersHandler(authService, cookies, gate),
		AuthGate:    gate,
		RateLimiter: httptransport.NewClientRateLimiter(cfg.Auth.LoginRatePerSecond, cfg.Auth.LoginRateBurst),
		Metrics:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
