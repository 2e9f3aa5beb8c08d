package main

import (
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"kvartometr/server/config"
	"kvartometr/server/internal/aggregate"
	"kvartometr/server/internal/api"
	"kvartometr/server/internal/database"
	"kvartometr/server/internal/districts"
	"kvartometr/server/internal/fetch"
	"kvartometr/server/internal/geocoding"
	"kvartometr/server/internal/normalize"
	"kvartometr/server/internal/notify"
	"kvartometr/server/internal/pipeline"
	"kvartometr/server/internal/processor"
	"kvartometr/server/internal/queue"
	"kvartometr/server/internal/scheduler"
	"kvartometr/server/internal/sources"
	"kvartometr/server/internal/telegram"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// A missing .env is fine: the environment may carry everything.
	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	logger.Infof("Using database at: %s", cfg.DatabasePath)
	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	gdb, err := database.OpenGorm(cfg.DatabasePath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open write connection")
	}

	boundaries, err := config.LoadBoundaries(cfg.BoundaryDir)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load district boundaries")
	}
	resolver := districts.NewResolver(logger, boundaries)

	controller := fetch.NewController(fetch.Options{
		Politeness:       time.Duration(cfg.Fetch.PolitenessMs) * time.Millisecond,
		Timeout:          time.Duration(cfg.Fetch.TimeoutSec) * time.Second,
		MaxAttempts:      cfg.Fetch.MaxAttempts,
		BackoffBase:      time.Duration(cfg.Fetch.BackoffBaseMs) * time.Millisecond,
		BreakerThreshold: cfg.Fetch.BreakerThreshold,
	}, logger)

	registry := sources.NewRegistry(
		sources.NewDomofond(controller, logger, cfg.Fetch.MaxPages),
		sources.NewCian(controller, logger, cfg.Fetch.MaxPages),
		sources.NewAvito(controller, logger, cfg.Fetch.MaxPages),
	)

	var channels pipeline.MultiNotifier
	if cfg.Notify.AmqpURL != "" {
		n := notify.NewNotifier(cfg.Notify.AmqpURL, cfg.Notify.Exchange, logger)
		defer n.Close()
		channels = append(channels, n)
	}
	if cfg.Notify.TelegramBotToken != "" && cfg.Notify.TelegramChatID != "" {
		channels = append(channels, telegram.NewService(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID, logger))
	}
	var notifier pipeline.Notifier
	if len(channels) > 0 {
		notifier = channels
	}

	committer := func(stats processor.Stats) queue.Handler {
		return processor.NewBatchProcessor(gdb, cfg, stats, logger).HandleBatch
	}
	pipe := pipeline.NewService(cfg, registry, normalize.New(logger), resolver,
		db, committer, notifier, logger)

	var geocoder database.AddressGeocoder
	if cfg.Geocoding.Enabled {
		cacheDir := cfg.Geocoding.CacheDir
		if cacheDir == "" {
			cacheDir = os.TempDir() + "/kvartometr/geocode_cache"
		}
		geocoder = geocoding.NewGeocoder(logger, cacheDir)
	}

	if cfg.Schedule.Enabled {
		sched := scheduler.NewScheduler(pipe, cfg.Schedule.Hour, logger)
		sched.Start()
		defer sched.Stop()
	}

	aggregator := aggregate.NewAggregator(db, logger)
	handler := api.NewHandler(db, pipe, aggregator, geocoder, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	api.SetupRoutes(router, handler)

	logger.Infof("Starting server on %s", cfg.ListenAddr)
	if err := router.Run(cfg.ListenAddr); err != nil {
		logger.WithError(err).Fatal("Server failed to start")
	}
}
