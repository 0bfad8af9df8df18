// Package reminderworker schedules the reminder scan and the escalation tick
// for the background binary.
package reminderworker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wolfman30/vetclinic-platform/internal/reminders"
	"github.com/wolfman30/vetclinic-platform/pkg/logging"
)

type scanRunner interface {
	Scan(ctx context.Context, leadHours int) (reminders.ScanSummary, error)
}

type tickRunner interface {
	Tick(ctx context.Context) (reminders.TickSummary, error)
}

// Worker drives the two periodic jobs on cron schedules. Both passes are
// idempotent, so an overlapping or repeated run is safe.
type Worker struct {
	cron       *cron.Cron
	scanner    scanRunner
	escalator  tickRunner
	logger     *logging.Logger
	leadHours  int
	jobTimeout time.Duration
}

func New(scanner scanRunner, escalator tickRunner, leadHours int, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		cron:       cron.New(),
		scanner:    scanner,
		escalator:  escalator,
		logger:     logger,
		leadHours:  leadHours,
		jobTimeout: 5 * time.Minute,
	}
}

func (w *Worker) WithJobTimeout(d time.Duration) *Worker {
	if d > 0 {
		w.jobTimeout = d
	}
	return w
}

// Start registers both jobs and starts the scheduler. Specs use the robfig
// cron grammar, including descriptors like "@hourly" and "@every 5m".
func (w *Worker) Start(scanSpec, tickSpec string) error {
	if _, err := w.cron.AddFunc(scanSpec, w.runScan); err != nil {
		return fmt.Errorf("reminder worker: scan schedule %q: %w", scanSpec, err)
	}
	if _, err := w.cron.AddFunc(tickSpec, w.runTick); err != nil {
		return fmt.Errorf("reminder worker: tick schedule %q: %w", tickSpec, err)
	}
	w.cron.Start()
	w.logger.Info("reminder worker started", "scan_schedule", scanSpec, "tick_schedule", tickSpec)
	return nil
}

// Stop halts scheduling and waits for any running job to finish.
func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
	w.logger.Info("reminder worker stopped")
}

func (w *Worker) runScan() {
	if w.scanner == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	defer cancel()

	summary, err := w.scanner.Scan(ctx, w.leadHours)
	if err != nil {
		w.logger.Error("reminder scan failed", "error", err)
		return
	}
	w.logger.Info("reminder scan finished",
		"checked", summary.TotalChecked,
		"sent", summary.Sent,
		"errors", summary.Errors,
	)
}

func (w *Worker) runTick() {
	if w.escalator == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	defer cancel()

	summary, err := w.escalator.Tick(ctx)
	if err != nil {
		w.logger.Error("escalation tick failed", "error", err)
		return
	}
	w.logger.Info("escalation tick finished",
		"attempted", summary.Attempted,
		"confirmed_skips", summary.ConfirmedSkips,
		"exhausted", summary.Exhausted,
		"errors", summary.Errors,
	)
}
