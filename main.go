package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/smartfix-dev/smartfix-api/config"
	"github.com/smartfix-dev/smartfix-api/models"
	"github.com/smartfix-dev/smartfix-api/routes"
	"github.com/smartfix-dev/smartfix-api/services"
	"github.com/smartfix-dev/smartfix-api/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.SetConfig(cfg)
	utils.InitLogger(cfg.LogLevel, cfg.GoEnv)
	log.Info().Str("env", cfg.GoEnv).Msg("Starting SmartFix API server...")

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	// Connect to database
	if err := config.ConnectDatabase(cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	// Auto-migrate database models
	db := config.GetDB()
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}
	log.Info().Msg("Database migration completed successfully")

	setupNotifier(cfg)
	setupDenylist(ctx, cfg)
	setupImageStorage(ctx, cfg)
	setupSheetsExporter(ctx, cfg)
	seedAdmin(ctx, cfg)

	router := setupRouter(cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Msgf("Server is running on http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if closer, ok := services.GetNotifier().(*services.AMQPNotifier); ok {
		if err := closer.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close RabbitMQ connection")
		}
	}
	log.Info().Msg("Server exited")
}

// setupNotifier publishes events to RabbitMQ when AMQP_URL is set, otherwise logs them
func setupNotifier(cfg *config.Config) {
	if cfg.AMQPURL == "" {
		log.Warn().Msg("AMQP_URL not set, notifications are only logged")
		services.SetNotifier(services.LogNotifier{})
		return
	}
	notifier, err := services.NewAMQPNotifier(cfg.AMQPURL)
	if err != nil {
		log.Error().Err(err).Msg("RabbitMQ unavailable, notifications are only logged")
		services.SetNotifier(services.LogNotifier{})
		return
	}
	services.SetNotifier(notifier)
}

// setupDenylist enables logout through Redis when REDIS_ADDR is set
func setupDenylist(ctx context.Context, cfg *config.Config) {
	if cfg.RedisAddr == "" {
		log.Warn().Msg("REDIS_ADDR not set, logout cannot revoke tokens")
		services.SetDenylist(nil)
		return
	}
	rdb, err := config.InitRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	services.SetDenylist(services.NewRedisDenylist(rdb))
	log.Info().Str("addr", cfg.RedisAddr).Msg("Token denylist connected")
}

// setupImageStorage stores avatars in S3 when a bucket is configured, otherwise on disk
func setupImageStorage(ctx context.Context, cfg *config.Config) {
	if !cfg.UsesS3() {
		services.SetImageService(services.NewLocalImageService(utils.UploadDir))
		log.Info().Str("dir", utils.UploadDir).Msg("Avatars stored locally")
		return
	}
	s3Service, err := services.InitS3Service(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize S3 service")
	}
	services.SetImageService(services.NewS3ImageService(s3Service))
	log.Info().Str("bucket", cfg.AWSS3Bucket).Msg("Avatars stored in S3")
}

// setupSheetsExporter enables POST /reports/sheets when SPREADSHEET_ID is set
func setupSheetsExporter(ctx context.Context, cfg *config.Config) {
	if cfg.SpreadsheetID == "" {
		return
	}
	exporter, err := services.NewSheetsExporter(ctx, cfg.GoogleCredentialsPath, cfg.SpreadsheetID)
	if err != nil {
		log.Error().Err(err).Msg("Spreadsheet export disabled")
		return
	}
	services.SetRequestExporter(exporter)
}

// seedAdmin creates the first administrator from ADMIN_EMAIL and ADMIN_PASSWORD
func seedAdmin(ctx context.Context, cfg *config.Config) {
	store := services.NewIdentityStore(config.GetDB(), services.IdentityOptions{Timeout: cfg.StoreTimeout})
	created, err := store.SeedAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed administrator")
	}
	if created {
		log.Info().Str("email", cfg.AdminEmail).Msg("Administrator account created")
	}
}

// setupRouter builds the HTTP handler for cfg
func setupRouter(cfg *config.Config) *gin.Engine {
	return routes.NewRouter(cfg)
}
