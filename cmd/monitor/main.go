package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"arbtrack/internal/config"
	cronrunner "arbtrack/internal/cron"
	"arbtrack/internal/db"
	"arbtrack/internal/detector"
	"arbtrack/internal/drift"
	"arbtrack/internal/fees"
	"arbtrack/internal/handler"
	"arbtrack/internal/ingest"
	"arbtrack/internal/logger"
	"arbtrack/internal/marketplace"
	"arbtrack/internal/opportunity"
	"arbtrack/internal/publisher"
	gormrepository "arbtrack/internal/repository/gorm"
	"arbtrack/internal/service"

	_ "arbtrack/docs"
)

func main() {
	cfgPath := os.Getenv("ARB_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("ARB_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	registry := marketplace.NewRegistry(cfg.Marketplaces)
	feeModel := fees.NewModel(cfg.Marketplaces)

	events := publisher.New(cfg.Publisher, logger)
	defer events.Close()

	ratesSvc := &service.RateSyncService{
		Repo:   store,
		Cfg:    cfg.FX,
		HTTP:   &http.Client{Timeout: cfg.FX.Timeout},
		Logger: logger,
	}
	det := detector.New(feeModel, cfg.Detector)
	opps := opportunity.New(store, logger)
	tracker := drift.New(store, cfg.Drift, logger)
	detectionSvc := &service.DetectionService{
		Repo:          store,
		Rates:         ratesSvc,
		Detector:      det,
		Opportunities: opps,
		Publisher:     events,
		Cfg:           cfg.Detector,
		Logger:        logger,
	}
	intakeSvc := &service.IntakeService{
		Repo:          store,
		Normalizer:    &marketplace.Normalizer{Registry: registry},
		Tracker:       tracker,
		Rates:         ratesSvc,
		Detector:      det,
		Opportunities: opps,
		Publisher:     events,
		Logger:        logger,
	}
	retentionSvc := &service.RetentionService{Repo: store, Cfg: cfg.Retention, Logger: logger}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	oppHandler := &handler.OpportunityHandler{Repo: store, Store: opps, Logger: logger}
	oppHandler.Register(engine)
	listingHandler := &handler.ListingHandler{Repo: store}
	listingHandler.Register(engine)
	runHandler := &handler.RunHandler{Repo: store, Detection: detectionSvc, Logger: logger}
	runHandler.Register(engine)
	intakeHandler := &handler.IntakeHandler{Intake: intakeSvc}
	intakeHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Seed a rate snapshot so the first detection pass has something to pin.
	if _, err := ratesSvc.Refresh(ctx); err != nil {
		logger.Warn("initial rate refresh failed (continuing)", zap.Error(err))
	}

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add(cfg.Cron.DetectionPass, func(ctx context.Context) {
			run, err := detectionSvc.RunPass(ctx)
			if err != nil {
				logger.Warn("cron detection pass failed", zap.Error(err))
				return
			}
			logger.Info("cron detection pass ok",
				zap.String("run", run.ID),
				zap.String("status", run.Status),
				zap.Int("qualified", run.PairsQualified),
			)
		})
		if err != nil {
			logger.Warn("cron register detection pass failed", zap.Error(err))
		}

		_, err = cronRunner.Add(cfg.Cron.FXRefresh, func(ctx context.Context) {
			if _, err := ratesSvc.Refresh(ctx); err != nil {
				logger.Warn("rate refresh failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register fx refresh failed", zap.Error(err))
		}

		_, err = cronRunner.Add(cfg.Cron.StaleSweep, func(ctx context.Context) {
			if _, err := detectionSvc.ExpireStale(ctx); err != nil {
				logger.Warn("stale sweep failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register stale sweep failed", zap.Error(err))
		}

		_, err = cronRunner.Add(cfg.Cron.HistoryCleanup, func(ctx context.Context) {
			if _, err := retentionSvc.SweepHistory(ctx); err != nil {
				logger.Warn("history cleanup failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register history cleanup failed", zap.Error(err))
		}

		cronRunner.Start()
		defer cronRunner.Stop()
	}

	if cfg.Feed.Enabled {
		feed := &ingest.FeedConsumer{Intake: intakeSvc, Cfg: cfg.Feed, Logger: logger}
		go func() {
			if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("feed consumer stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
