package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/vetclinic-platform/cmd/mainconfig"
	"github.com/wolfman30/vetclinic-platform/internal/api/router"
	"github.com/wolfman30/vetclinic-platform/internal/app/bootstrap"
	"github.com/wolfman30/vetclinic-platform/internal/billing"
	"github.com/wolfman30/vetclinic-platform/internal/catalog"
	"github.com/wolfman30/vetclinic-platform/internal/clinic"
	appconfig "github.com/wolfman30/vetclinic-platform/internal/config"
	"github.com/wolfman30/vetclinic-platform/internal/directory"
	"github.com/wolfman30/vetclinic-platform/internal/followup"
	"github.com/wolfman30/vetclinic-platform/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-platform/internal/reminders"
	"github.com/wolfman30/vetclinic-platform/internal/scheduling"
	"github.com/wolfman30/vetclinic-platform/pkg/logging"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting vetclinic-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool, err := bootstrap.BuildPgxPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// The follow-up queue runs on database/sql over the same database.
	sqlDB, err := bootstrap.BuildSQLDB(cfg)
	if err != nil {
		logger.Error("failed to open postgres", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)

	var sesClient *sesv2.Client
	if cfg.EmailProvider == "ses" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		sesClient = sesv2.NewFromConfig(awsCfg)
	}

	schedulingMetrics := metrics.NewSchedulingMetrics(nil)
	reminderMetrics := metrics.NewReminderMetrics(nil)

	catalogStore := catalog.NewStore(pool)
	calendarStore := scheduling.NewStore(pool)
	directoryStore := directory.NewStore(pool)
	recordStore := reminders.NewStore(pool)
	invoiceStore := billing.NewStore(pool)

	locker := bootstrap.BuildLocker(cfg, redisClient, logger)
	dispatcher := bootstrap.BuildDispatcher(cfg, logger, reminderMetrics, sesClient)

	schedulingService := scheduling.NewService(calendarStore, catalogStore, locker, invoiceStore, recordStore, schedulingMetrics, logger)
	scanner := reminders.NewScanner(calendarStore, directoryStore, recordStore, dispatcher, cfg.ReminderLeadHours, reminderMetrics, logger)
	engine := reminders.NewEngine(recordStore, recordStore, directoryStore, dispatcher, reminderMetrics, logger)
	followupService := followup.NewService(sqlDB, logger)

	tz, err := time.LoadLocation(cfg.ClinicTZ)
	if err != nil {
		logger.Warn("invalid CLINIC_TIMEZONE, using UTC", "tz", cfg.ClinicTZ)
		tz = time.UTC
	}

	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; staff endpoints will reject all requests")
	}

	routerCfg := &router.Config{
		Logger:             logger,
		Catalog:            catalog.NewHandler(catalogStore, logger),
		Scheduling:         scheduling.NewHandler(schedulingService, calendarStore, tz, logger),
		Reminders:          reminders.NewHandler(scanner, engine, recordStore, recordStore, directoryStore, logger),
		Followups:          followup.NewHandler(followupService, logger),
		AdminJWTSecret:     cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: strings.Split(cfg.CORSAllowedOrigins, ","),
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
		ReadyCheck:         pool.Ping,
	}

	dashboardRepo := clinic.NewDashboardRepository(pool)
	if profileStore := bootstrap.BuildProfileStore(redisClient); profileStore != nil {
		routerCfg.Clinic = clinic.NewHandler(profileStore, logger)
		routerCfg.Dashboard = clinic.NewDashboardHandler(dashboardRepo, profileStore, nil, logger)
	} else {
		logger.Warn("redis unavailable; clinic profile endpoints disabled, dashboard uses defaults")
		routerCfg.Dashboard = clinic.NewDashboardHandler(dashboardRepo, nil, nil, logger)
	}

	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
