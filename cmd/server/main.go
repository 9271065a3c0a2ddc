package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autoflow/internal/collab"
	"autoflow/internal/config"
	"autoflow/internal/engine"
	"autoflow/internal/handlers"
	"autoflow/internal/middleware"
	"autoflow/internal/models"
	"autoflow/internal/observability"
	"autoflow/internal/services"
	"autoflow/pkg/webhook"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	// 读取配置文件（默认 ./config.yml）并初始化日志
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()

	var (
		flagDSN string
		srvHost string
		srvPort int
	)
	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(os.Stdout)
	flagSet.StringVar(&flagDSN, "dsn", os.Getenv("DB_DSN"), "Postgres DSN, if set overrides config database settings")
	flagSet.StringVar(&srvHost, "host", getenvDefault("AUTOFLOW_HOST", cfg.Server.Host), "server host (listen)")
	flagSet.IntVar(&srvPort, "port", cfg.Server.Port, "server port (listen)")
	_ = flagSet.Parse(os.Args[1:])

	dsn := flagDSN
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
			cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name,
			cfg.Database.Port, getenvDefault("DB_SSLMODE", "disable"), getenvDefault("DB_TIMEZONE", "UTC"))
	}

	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	shutdownOTel, err := observability.SetupTracing(context.Background(), cfg)
	if err != nil {
		appLogger.Warnf("init tracing: %v", err)
	} else {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		_ = db.Use(gormtracing.NewPlugin())
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(
		&models.User{}, &models.Organization{}, &models.Person{}, &models.Opportunity{},
		&models.Task{}, &models.Activity{}, &models.OutboundEmail{},
		&models.SequenceEnrollment{}, &models.ResearchJob{},
		&models.Automation{}, &models.AutomationExecution{}, &models.AutomationFireMark{},
	); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	// 组装协作方与引擎
	store := collab.NewStore(db, appLogger)
	hub := services.NewNotificationHub(appLogger)
	webhookClient := webhook.NewClient(&webhook.Config{
		URL:        cfg.Webhook.URL,
		Secret:     cfg.Webhook.Secret,
		Timeout:    cfg.Webhook.Timeout,
		MaxRetries: cfg.Webhook.MaxRetries,
		RetryDelay: cfg.Webhook.RetryDelay,
	}, appLogger)

	executor := engine.NewExecutor(engine.Collaborators{
		Tasks:      store,
		Fields:     store,
		Stages:     store,
		Owners:     store,
		Notifier:   hub,
		Mailer:     store,
		Sequences:  store,
		Tags:       store,
		Research:   store,
		Activities: store,
		Webhooks:   webhookClient,
	}, appLogger)

	matcher := engine.NewMatcher(db, appLogger)
	orchestrator := engine.NewOrchestrator(executor, appLogger)
	recorder := engine.NewRecorder(db, appLogger)
	eng := engine.New(engine.Config{
		QueueSize: cfg.Engine.QueueSize,
		Workers:   cfg.Engine.Workers,
	}, matcher, orchestrator, recorder, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)

	scanner := engine.NewScanner(db, eng, engine.ScannerConfig{
		Interval:     cfg.Scanner.Interval,
		FireCooldown: cfg.Scanner.FireCooldown,
	}, appLogger)
	if cfg.Scanner.Enabled {
		if err := scanner.Start(ctx); err != nil {
			appLogger.Fatalf("Failed to start scanner: %v", err)
		}
	}

	automationService := services.NewAutomationService(db, appLogger)
	automationHandler := handlers.NewAutomationHandler(automationService, eng)
	healthHandler := handlers.NewHealthHandler(db, hub)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Monitoring.Tracing.Enabled {
		r.Use(otelgin.Middleware("autoflow"))
	}
	r.Use(middleware.RateLimitMiddleware(cfg))

	r.GET("/health", healthHandler.Health)
	r.GET("/stats", healthHandler.Stats)
	r.GET("/ws/notifications", hub.HandleWebSocket)
	api := r.Group("/api")
	handlers.RegisterAutomationRoutes(api, automationHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", srvHost, srvPort),
		Handler: r,
	}
	go func() {
		appLogger.Infof("autoflow listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Warnf("server shutdown: %v", err)
	}
	if cfg.Scanner.Enabled {
		scanner.Stop()
	}
	eng.Stop()
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
