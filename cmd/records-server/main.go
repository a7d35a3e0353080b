package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/records/internal/config"
	"github.com/ehr/records/internal/domain/clinical"
	"github.com/ehr/records/internal/domain/identity"
	"github.com/ehr/records/internal/domain/medication"
	"github.com/ehr/records/internal/domain/patient"
	"github.com/ehr/records/internal/domain/scheduling"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/blobstore"
	"github.com/ehr/records/internal/platform/db"
	"github.com/ehr/records/internal/platform/messaging"
	"github.com/ehr/records/internal/platform/middleware"
	"github.com/ehr/records/internal/platform/openapi"
	"github.com/ehr/records/internal/platform/records"
	"github.com/ehr/records/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "records-server",
		Short: "Clinical records API server",
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
		Short: "Start the records API server",
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
			ctx := context.Background()
			pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.Files).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.Files).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
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
	})

	return cmd
}

// connect loads config and opens a pool for the one-shot commands.
func connect(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return db.NewPool(ctx, poolConfig(cfg))
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// tokenCodec both mints tokens at login and verifies them on each request.
type tokenCodec interface {
	auth.TokenParser
	identity.TokenIssuer
}

func newTokenCodec(cfg *config.Config) tokenCodec {
	if cfg.AuthSigningKey == "" {
		return auth.OpaqueTokens{}
	}
	return auth.NewJWTCodec([]byte(cfg.AuthSigningKey), cfg.AuthIssuer, cfg.AuthTokenTTL)
}

// newUserLookup wraps the repository lookup in a redis cache when REDIS_URL
// is set and USER_CACHE_TTL is positive. The returned func closes the redis
// client.
func newUserLookup(cfg *config.Config, users identity.UserRepository, logger zerolog.Logger) (auth.UserLookup, func(), error) {
	lookup := identity.NewLookup(users)
	if cfg.RedisURL == "" || cfg.UserCacheTTL <= 0 {
		return lookup, func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return identity.NewCachedLookup(lookup, client, cfg.UserCacheTTL, logger), func() { client.Close() }, nil
}

func newResolver(cfg *config.Config, lookup auth.UserLookup, tokens auth.TokenParser, logger zerolog.Logger) auth.Resolver {
	var resolver auth.Resolver = auth.NewResolver(lookup, tokens)
	if cfg.DevAuthBypass {
		logger.Warn().Msg("DEV_AUTH_BYPASS enabled: unauthenticated requests act as administrator")
		resolver = auth.NewHarnessResolver(resolver, logger)
	}
	return resolver
}

func newBlobStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (blobstore.Uploader, error) {
	if !cfg.MinioEnabled() {
		logger.Warn().Msg("MINIO_ENDPOINT not set; images are kept in memory")
		return blobstore.NewInMemoryStore(), nil
	}
	store, err := blobstore.NewMinioStore(blobstore.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
		PublicURL: cfg.MinioPublicURL,
	})
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func healthHandler(pool *pgxpool.Pool, blobs blobstore.Uploader) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		checks := map[string]string{"database": "ok", "storage": "ok"}
		status := http.StatusOK
		if err := db.Ping(ctx, pool); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := blobs.Ping(ctx); err != nil {
			checks["storage"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		state := "healthy"
		if status != http.StatusOK {
			state = "unhealthy"
		}
		return c.JSON(status, map[string]interface{}{
			"status": state,
			"checks": checks,
		})
	}
}

const apiVersion = "1.0.0"

func apiDocs(cfg *config.Config) *openapi.Generator {
	patientFilter := openapi.Param{Name: "patientId", Description: "Only records of this patient", Format: "uuid"}
	return openapi.NewGenerator(apiVersion, "http://localhost:"+cfg.Port,
		openapi.Resource{
			Name: "Patient", Path: "/patients", Model: patient.Patient{}, Create: patient.CreateRequest{},
			Filters: []openapi.Param{{Name: "search", Description: "Case-insensitive match on name or email"}},
		},
		openapi.Resource{
			Name: "Appointment", Path: "/appointments", Model: scheduling.Appointment{}, Create: scheduling.CreateRequest{},
			Filters: []openapi.Param{{Name: "date", Description: "Appointment date", Format: "date"}, patientFilter},
		},
		openapi.Resource{
			Name: "Medication", Path: "/medications", Model: medication.Medication{}, Create: medication.CreateRequest{},
			Filters: []openapi.Param{patientFilter},
		},
		openapi.Resource{
			Name: "MedicalRecord", Path: "/medical-records", Model: clinical.MedicalRecord{}, Create: clinical.CreateRequest{},
			Filters: []openapi.Param{patientFilter},
		},
	)
}

// services bundles the domain services shared by serve and seed.
type services struct {
	identity   *identity.Service
	patients   *patient.Service
	schedule   *scheduling.Service
	medication *medication.Service
	clinical   *clinical.Service
}

func newServices(pool *pgxpool.Pool, tokens identity.TokenIssuer, blobs blobstore.Uploader, logger zerolog.Logger) services {
	tx := db.NewTransactor(pool)
	medicalRecords := clinical.NewMedicalRecordRepo(pool)

	return services{
		identity: identity.NewService(identity.NewUserRepo(pool), tokens),
		patients: patient.NewService(
			patient.NewPatientRepo(pool),
			patient.NewImageRepo(pool),
			blobs, tx, logger,
			records.WithCascade[*patient.Patient]("medical_records", medicalRecords.DeleteByPatient),
		),
		schedule:   scheduling.NewService(scheduling.NewAppointmentRepo(pool), tx, logger),
		medication: medication.NewService(medication.NewMedicationRepo(pool), tx, logger),
		clinical:   clinical.NewService(medicalRecords, tx, logger),
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := newLogger(nil)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	blobs, err := newBlobStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise image storage")
	}

	tokens := newTokenCodec(cfg)
	users := identity.NewUserRepo(pool)
	lookup, closeLookup, err := newUserLookup(cfg, users, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise user cache")
	}
	defer closeLookup()
	resolver := newResolver(cfg, lookup, tokens, logger)

	var recorders []middleware.AuditRecorder
	if cfg.AMQPURL != "" {
		broker, err := messaging.Dial(cfg.AMQPURL, cfg.AMQPAuditExchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to audit broker")
		}
		defer broker.Close()
		recorders = append(recorders, messaging.NewAuditPublisher(broker.Channel, cfg.AMQPAuditExchange))
		logger.Info().Str("exchange", cfg.AMQPAuditExchange).Msg("publishing audit events")
	}

	svcs := newServices(pool, tokens, blobs, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID, auth.UserIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(auth.Authenticate(resolver))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           middleware.DefaultRateLimitConfig().IdleTTL,
	}))
	e.Use(middleware.Audit(logger, recorders...))

	e.GET("/health", healthHandler(pool, blobs))
	e.GET("/health/db", db.HealthHandler(pool))

	api := e.Group("/api")
	identity.NewHandler(svcs.identity).RegisterRoutes(api)
	patient.NewHandler(svcs.patients).RegisterRoutes(api)
	scheduling.NewHandler(svcs.schedule).RegisterRoutes(api)
	medication.NewHandler(svcs.medication).RegisterRoutes(api)
	clinical.NewHandler(svcs.clinical).RegisterRoutes(api)
	apiDocs(cfg).RegisterRoutes(api)

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
