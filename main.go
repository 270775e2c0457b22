package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agrimarket-backend/config"
	"agrimarket-backend/database"
	"agrimarket-backend/internal/api"
	"agrimarket-backend/internal/logging"
	"agrimarket-backend/internal/middleware"
	"agrimarket-backend/internal/services"
	"agrimarket-backend/internal/utils"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "agrimarket",
		Short:         "Farmer and buyer crop marketplace backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newSweepCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app holds the process-wide wiring shared by every command
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sql.DB
	store  *database.Store
	redis  *redis.Client

	users        *services.UserService
	auth         *services.AuthService
	crops        *services.CropService
	transactions *services.TransactionService
	feed         *services.MarketFeed
}

// newApp loads configuration, opens and migrates the database and builds
// the service layer
func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile, cfg.Environment)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	logger.Info("configuration loaded", zap.Stringer("config", cfg))

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, db: db, store: database.NewStore(db)}

	var revocations services.RevocationStore
	if cfg.RedisURL != "" {
		a.redis, err = services.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			a.Close()
			return nil, err
		}
		revocations = services.NewRedisRevocationStore(a.redis)
		logger.Info("session revocation backed by redis")
	}

	var publisher services.EventPublisher
	if cfg.MarketFeedEnabled {
		a.feed = services.NewMarketFeed(originChecker(cfg), logger.Named("feed"))
		publisher = a.feed
	}

	location := utils.LoadLocation(cfg.Timezone)

	a.users = services.NewUserService(a.store, logger.Named("users"))
	a.auth = services.NewAuthService(cfg.JWTSecret, cfg.JWTExpiration, a.users, revocations, logger.Named("auth"))
	a.crops = services.NewCropService(a.store, publisher, location, logger.Named("crops"))
	a.transactions = services.NewTransactionService(a.store, publisher, logger.Named("transactions"))
	return a, nil
}

// Close releases everything newApp opened
func (a *app) Close() {
	if a.feed != nil {
		a.feed.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	a.logger.Sync()
}

func originChecker(cfg *config.Config) func(r *http.Request) bool {
	if cfg.AllowAllOrigins {
		return nil
	}
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

func corsHandler(cfg *config.Config, next http.Handler) http.Handler {
	origins := cfg.AllowedOrigins
	if cfg.AllowAllOrigins {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         86400,
	})
	return c.Handler(next)
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	security := middleware.DefaultSecurityConfig()
	security.RateLimitRequests = cfg.RateLimitRequests
	security.RateLimitWindow = time.Duration(cfg.RateLimitWindow) * time.Second

	router := api.SetupRouter(api.Dependencies{
		Users:               a.users,
		Auth:                a.auth,
		Crops:               a.crops,
		Transactions:        a.transactions,
		Feed:                a.feed,
		Logger:              a.logger.Named("http"),
		Security:            security,
		AuthRateLimit:       10,
		AuthRateLimitWindow: time.Minute,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsHandler(cfg, router),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var metricsServer *http.Server
	if cfg.EnableMetrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			a.logger.Info("metrics server listening", zap.String("addr", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	var scheduler *services.HarvestScheduler
	if cfg.HarvestSweepEnabled {
		scheduler = services.NewHarvestScheduler(a.crops, a.logger.Named("scheduler"))
		scheduler.Start(time.Duration(cfg.HarvestSweepInterval) * time.Second)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", zap.String("addr", server.Addr), zap.String("environment", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		a.logger.Info("shutdown signal received, shutting down gracefully")
	}

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.feed != nil {
		a.feed.Close()
	}
	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.logger.Info("server exited")
	return nil
}
