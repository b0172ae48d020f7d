package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/cohortreports/internal/config"
	"github.com/ehr/cohortreports/internal/domain/reportrun"
	"github.com/ehr/cohortreports/internal/platform/auth"
	"github.com/ehr/cohortreports/internal/platform/cache"
	"github.com/ehr/cohortreports/internal/platform/db"
	"github.com/ehr/cohortreports/internal/platform/events"
	"github.com/ehr/cohortreports/internal/platform/export"
	"github.com/ehr/cohortreports/internal/platform/metrics"
	"github.com/ehr/cohortreports/internal/platform/middleware"
	"github.com/ehr/cohortreports/internal/platform/reporting"
	"github.com/ehr/cohortreports/internal/platform/warehouse"
	"github.com/ehr/cohortreports/internal/reporting/builder/hiv"
	"github.com/ehr/cohortreports/internal/reporting/builder/mchms"
	"github.com/ehr/cohortreports/internal/reporting/engine"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
	"github.com/ehr/cohortreports/internal/reporting/report"
	"github.com/ehr/cohortreports/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "report-server",
		Short:        "Cohort reporting server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(reportsCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the report API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <report-id>",
		Short: "Evaluate a report once and write it as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := runParams(cmd)
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			whDB, err := openWarehouse(ctx, cfg)
			if err != nil {
				return err
			}
			defer whDB.Close()

			persistent, err := openCache(cfg, logger)
			if err != nil {
				return err
			}
			if persistent != nil {
				defer persistent.Close()
			}

			eng := newEngine(whDB, cfg, persistent, logger)
			if cfg.QueryTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.QueryTimeout)
				defer cancel()
			}

			started := time.Now()
			data, err := eng.Runner.Run(ctx, args[0], params)
			if err != nil {
				return err
			}
			logger.Info().
				Str("report", args[0]).
				Int("cohort", data.CohortSize).
				Int("rows", data.RowCount()).
				Dur("elapsed", time.Since(started)).
				Msg("report evaluated")

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return export.WriteCSV(w, data.DataSets...)
		},
	}
	cmd.Flags().String("start", "", "Start date (yyyy-MM-dd)")
	cmd.Flags().String("end", "", "End date (yyyy-MM-dd)")
	cmd.Flags().StringSlice("param", nil, "Extra report parameter as name=value (repeatable)")
	cmd.Flags().String("out", "", "Write the CSV to this file instead of stdout")
	return cmd
}

// runParams collects --start, --end and every --param name=value pair.
func runParams(cmd *cobra.Command) (map[string]string, error) {
	params := map[string]string{}
	if v, _ := cmd.Flags().GetString("start"); v != "" {
		params["startDate"] = v
	}
	if v, _ := cmd.Flags().GetString("end"); v != "" {
		params["endDate"] = v
	}
	extra, _ := cmd.Flags().GetStringSlice("param")
	for _, kv := range extra {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param %q, expected name=value", kv)
		}
		params[name] = value
	}
	return params, nil
}

func reportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect the report catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the reports this server can evaluate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printReports(cmd.OutOrStdout(), catalog())
		},
	})
	return cmd
}

// catalog builds the report registry without any warehouse connection.
func catalog() *report.Registry {
	reg := report.NewRegistry()
	hiv.Register(reg)
	mchms.Register(reg)
	return reg
}

func printReports(w io.Writer, reg *report.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tNAME")
	for _, d := range reg.List() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Kind, d.Name)
	}
	return tw.Flush()
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run run-store migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, pool *pgxpool.Pool) error {
				count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, pool *pgxpool.Pool) error {
				statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrations(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	})

	return cmd
}

func withPool(fn func(ctx context.Context, pool *pgxpool.Pool) error) error {
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
	return fn(ctx, pool)
}

func printMigrations(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func openWarehouse(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	return warehouse.Open(ctx, warehouse.Config{
		DSN:             cfg.WarehouseDSN,
		MaxOpenConns:    cfg.WarehouseMaxOpenConns,
		MaxIdleConns:    cfg.WarehouseMaxIdleConns,
		ConnMaxLifetime: 30 * time.Minute,
	})
}

// openCache returns nil when CACHE_DIR is unset.
func openCache(cfg *config.Config, logger zerolog.Logger) (*cache.LevelCache, error) {
	if cfg.CacheDir == "" {
		return nil, nil
	}
	lc, err := cache.Open(cfg.CacheDir, cfg.CacheTTL, logger)
	if err != nil {
		return nil, err
	}
	if n, err := lc.Sweep(); err != nil {
		logger.Warn().Err(err).Msg("cache sweep failed")
	} else if n > 0 {
		logger.Info().Int("removed", n).Msg("expired cache entries removed")
	}
	return lc, nil
}

func newEngine(whDB *sql.DB, cfg *config.Config, persistent *cache.LevelCache, logger zerolog.Logger) *engine.Engine {
	wh := warehouse.NewService(whDB, warehouse.WithLogger(logger), warehouse.WithQueryTimeout(cfg.QueryTimeout))
	var pc evaluation.Cache
	if persistent != nil {
		pc = persistent
	}
	return engine.New(wh, pc, logger)
}

func newPublisher(cfg *config.Config, logger zerolog.Logger) events.Publisher {
	if !cfg.EventsEnabled() {
		return events.NoopPublisher{}
	}
	logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing run events")
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Logger
	logger := newLogger(cfg.Env)

	// Run store
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Warehouse
	whDB, err := openWarehouse(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to warehouse")
	}
	defer whDB.Close()
	logger.Info().Msg("connected to warehouse")

	persistent, err := openCache(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open evaluation cache")
	}
	if persistent != nil {
		defer persistent.Close()
	}

	eng := newEngine(whDB, cfg, persistent, logger)

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	runSvc := reportrun.NewService(reportrun.NewRepoPG(pool), eng.Runner, publisher, logger)
	runSvc.SetTimeout(cfg.QueryTimeout)

	if cfg.ArchiveEnabled() {
		s3Client, sqsClient, err := export.NewAWSClients(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load AWS configuration")
		}
		runSvc.SetArchiver(export.NewS3Archiver(s3Client, cfg.ExportBucket, cfg.ExportPrefix))
		if cfg.ExportQueue != "" {
			runSvc.SetNotifier(export.NewSQSNotifier(sqsClient, cfg.ExportQueue))
		}
		logger.Info().Str("bucket", cfg.ExportBucket).Msg("report export archive enabled")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Metrics())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	// Auth middleware
	if cfg.ResolvedAuthMode() == "development" {
		logger.Warn().Msg("authentication disabled, every request runs as the development admin")
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
			Skipper:  auth.AuthSkipper,
		}))
	}

	// Infrastructure endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/ready", db.ReadyHandler(map[string]db.Check{
		"postgres":  pool.Ping,
		"warehouse": whDB.PingContext,
	}))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// API
	apiV1 := e.Group("/api/v1")
	reporting.NewHandler(eng.Reports).RegisterRoutes(apiV1)
	reportrun.NewHandler(runSvc).RegisterRoutes(apiV1)
	admin := apiV1.Group("/stats", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/db", db.StatsHandler(pool))
	admin.GET("/warehouse", warehouse.HealthHandler(whDB))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Int("reports", len(eng.Reports.List())).Msg("starting server")
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
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	runSvc.Wait()
	logger.Info().Msg("server stopped")
	return nil
}
