package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medassist/medassist/internal/config"
	"github.com/medassist/medassist/internal/domain/account"
	"github.com/medassist/medassist/internal/domain/assistant"
	"github.com/medassist/medassist/internal/domain/patient"
	"github.com/medassist/medassist/internal/platform/auth"
	"github.com/medassist/medassist/internal/platform/cache"
	"github.com/medassist/medassist/internal/platform/db"
	"github.com/medassist/medassist/internal/platform/hipaa"
	"github.com/medassist/medassist/internal/platform/middleware"
	"github.com/medassist/medassist/migrations"
)

const recordListCacheKey = "medassist:patient_records:list"

func main() {
	rootCmd := &cobra.Command{
		Use:   "medassist-server",
		Short: "Clinical assistant API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

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

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
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
			})
		},
	})

	return cmd
}

func withMigrator(fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, migrationFiles(cfg.MigrationsDir)))
}

// migrationFiles returns the embedded migrations unless dir names an override.
func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnIdleTime: cfg.DBMaxConnIdleTime,
		MaxConnLifetime: cfg.DBMaxConnLifetime,
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		bootLogger := newLogger(os.Getenv("ENV"))
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if cfg.AutoMigrate {
		count, err := db.NewMigrator(pool, migrationFiles(cfg.MigrationsDir)).Up(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to apply migrations")
		}
		logger.Info().Int("applied", count).Msg("migrations up to date")
	}

	d, cleanup, err := buildDeps(ctx, cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize dependencies")
	}
	defer cleanup()

	e, err := newServer(cfg, logger, d)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
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

// serverDeps are the storage collaborators behind the HTTP server.
type serverDeps struct {
	accounts    account.Repository
	records     patient.Repository
	recordCache patient.RecordCache
	pinger      db.Pinger
}

func buildDeps(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (serverDeps, func(), error) {
	cleanup := func() {}

	phiKey, err := cfg.PHIKey()
	if err != nil {
		return serverDeps{}, cleanup, err
	}
	var enc *hipaa.PHIEncryptor
	if phiKey != nil {
		if enc, err = hipaa.NewPHIEncryptor(phiKey); err != nil {
			return serverDeps{}, cleanup, err
		}
		logger.Info().Msg("PHI column encryption enabled")
	}

	d := serverDeps{
		accounts: account.NewRepo(pool),
		records:  patient.NewRepo(pool, enc),
		pinger:   pool,
	}

	if cfg.RedisURL != "" {
		rdb, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return serverDeps{}, cleanup, err
		}
		cleanup = func() { rdb.Close() }
		d.recordCache = cache.NewListCache[patient.Record](rdb, recordListCacheKey, cfg.RecordCacheTTL)
		logger.Info().Dur("ttl", cfg.RecordCacheTTL).Msg("record list cache enabled")
	}

	return d, cleanup, nil
}

func newServer(cfg *config.Config, logger zerolog.Logger, d serverDeps) (*echo.Echo, error) {
	issuer, err := auth.NewIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL)
	if err != nil {
		return nil, err
	}
	requireToken := auth.RequireToken(issuer)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	// Credentials
	accountSvc := account.NewService(d.accounts, auth.NewBcryptHasher(cfg.BcryptCost), issuer, logger)
	account.NewHandler(accountSvc, requireToken).RegisterRoutes(e.Group("/api/auth"))

	// Patient records
	patientSvc := patient.NewService(d.records, d.recordCache, logger)
	var recordGuard []echo.MiddlewareFunc
	if cfg.RequireAuthForRecords {
		recordGuard = append(recordGuard, requireToken)
	}
	patient.NewHandler(patientSvc).RegisterRoutes(e.Group("/api/patients"), recordGuard...)

	// Recommendations
	recommender := assistant.NewClient(cfg.RecommendationURL, cfg.RecommendationTimeout)
	assistant.NewHandler(recommender, patientSvc, logger).
		RegisterRoutes(e.Group("/api/recommendations"), requireToken)

	// Health
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(d.pinger, logger))

	return e, nil
}
