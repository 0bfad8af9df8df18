package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/joho/godotenv"

	"github.com/wolfman30/vetclinic-platform/cmd/mainconfig"
	"github.com/wolfman30/vetclinic-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/vetclinic-platform/internal/config"
	"github.com/wolfman30/vetclinic-platform/internal/directory"
	"github.com/wolfman30/vetclinic-platform/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-platform/internal/reminders"
	"github.com/wolfman30/vetclinic-platform/internal/scheduling"
	reminderworker "github.com/wolfman30/vetclinic-platform/internal/worker/reminders"
	"github.com/wolfman30/vetclinic-platform/pkg/logging"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("starting vetclinic-platform reminder worker",
		"env", cfg.Env,
		"scan_schedule", cfg.ReminderScanSchedule,
		"tick_schedule", cfg.EscalationTickSchedule,
	)

	pool, err := bootstrap.BuildPgxPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var sesClient *sesv2.Client
	if cfg.EmailProvider == "ses" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		sesClient = sesv2.NewFromConfig(awsCfg)
	}

	reminderMetrics := metrics.NewReminderMetrics(nil)

	calendarStore := scheduling.NewStore(pool)
	directoryStore := directory.NewStore(pool)
	recordStore := reminders.NewStore(pool)
	dispatcher := bootstrap.BuildDispatcher(cfg, logger, reminderMetrics, sesClient)

	scanner := reminders.NewScanner(calendarStore, directoryStore, recordStore, dispatcher, cfg.ReminderLeadHours, reminderMetrics, logger)
	engine := reminders.NewEngine(recordStore, recordStore, directoryStore, dispatcher, reminderMetrics, logger)

	worker := reminderworker.New(scanner, engine, cfg.ReminderLeadHours, logger)
	if err := worker.Start(cfg.ReminderScanSchedule, cfg.EscalationTickSchedule); err != nil {
		logger.Error("failed to start reminder worker", "error", err)
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("reminder worker shutting down")
	worker.Stop()
	cancel()
}
