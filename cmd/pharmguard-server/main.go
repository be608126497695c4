package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pharmguard/pharmguard/internal/config"
	"github.com/pharmguard/pharmguard/internal/domain/catalog"
	"github.com/pharmguard/pharmguard/internal/domain/nlu"
	"github.com/pharmguard/pharmguard/internal/domain/order"
	"github.com/pharmguard/pharmguard/internal/domain/refill"
	"github.com/pharmguard/pharmguard/internal/domain/safety"
	"github.com/pharmguard/pharmguard/internal/domain/trace"
	"github.com/pharmguard/pharmguard/internal/platform/db"
	"github.com/pharmguard/pharmguard/internal/platform/llm"
	"github.com/pharmguard/pharmguard/internal/platform/middleware"
	"github.com/pharmguard/pharmguard/internal/platform/sandbox"
	"github.com/pharmguard/pharmguard/internal/platform/webhook"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pharmguard-server",
		Short: "PharmGuard pharmacy assistant API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the demo catalog and purchase history",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			seeder := sandbox.NewSeeder(
				catalog.NewInventoryRepoPG(pool),
				order.NewHistoryRepoPG(pool),
				sandbox.DefaultSeedConfig(),
				logger,
			)
			return seeder.Run(ctx)
		},
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	logger := newLogger()

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Catalog: durable store plus the in-memory index every request reads.
	catalogSvc := catalog.NewService(catalog.NewInventoryRepoPG(pool), logger)
	if err := catalogSvc.LoadFromStore(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to load catalog")
	}

	// Slot extraction, with the hosted model as optional disambiguator.
	var disamb nlu.Disambiguator
	if cfg.LLMEnabled() {
		chooser, err := llm.NewGoogleChooser(ctx, cfg.LLMAPIKey, cfg.LLMModel, logger,
			llm.WithTimeout(cfg.LLMTimeout()))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init disambiguation model")
		}
		disamb = chooser
		logger.Info().Str("model", cfg.LLMModel).Msg("llm disambiguation enabled")
	} else {
		logger.Info().Msg("llm disambiguation disabled, ambiguous turns surface candidates")
	}
	extractor := nlu.NewExtractor(catalogSvc.Index(), disamb, logger)

	// Trace recording with optional external shipping.
	var shipper trace.Shipper
	if cfg.TraceShipURL != "" {
		shipper = trace.NewHTTPShipper(cfg.TraceShipURL)
	}
	tracer := trace.NewRecorder(trace.NewRepoPG(pool), shipper, logger)

	// Fulfillment partner notifications.
	notifier := webhook.NewNotifier(cfg.FulfillmentURL, cfg.WebhookSecret,
		webhook.NewInMemoryDeliveryStore(), logger)

	// Order pipeline.
	orderRepo := order.NewRepoPG(pool)
	historyRepo := order.NewHistoryRepoPG(pool)
	orch := order.NewOrchestrator(
		extractor,
		safety.NewEngine(),
		catalogSvc,
		orderRepo,
		historyRepo,
		order.NewProcurementRepoPG(pool),
		db.NewTxManager(pool),
		tracer,
		notifier,
		logger,
	)

	refillSvc := refill.NewService(historyRepo)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Admin-Token"},
	}))

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.Audit(logger))

	// Domain routes. Inventory reads get ETag and conditional request support.
	adminAuth := middleware.AdminAuth(cfg.AdminToken)
	catalog.NewHandler(catalogSvc).RegisterRoutes(apiV1,
		middleware.ETagMiddleware(middleware.DefaultCacheConfig()))
	order.NewHandler(orch, order.NewFulfillmentEventRepoPG(pool), cfg.WebhookSecret).
		RegisterRoutes(apiV1, adminAuth)
	refill.NewHandler(refillSvc).RegisterRoutes(apiV1)
	trace.NewHandler(tracer).RegisterRoutes(apiV1)
	webhook.NewHandler(notifier).RegisterRoutes(apiV1, adminAuth)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Demo dataset for development environments.
	if cfg.SeedDemo && cfg.IsDev() {
		seeder := sandbox.NewSeeder(
			catalog.NewInventoryRepoPG(pool), historyRepo,
			sandbox.DefaultSeedConfig(), logger)
		if err := seeder.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("demo seed failed")
		} else if err := catalogSvc.LoadFromStore(ctx); err != nil {
			logger.Error().Err(err).Msg("catalog reload after seed failed")
		}
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
