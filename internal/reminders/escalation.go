package reminders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/vetclinic-platform/internal/directory"
	"github.com/wolfman30/vetclinic-platform/internal/notify"
	"github.com/wolfman30/vetclinic-platform/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-platform/pkg/logging"
)

var escalationTracer = otel.Tracer("vetclinic/escalation")

// RecordSource is the record-side store surface the engine drives.
type RecordSource interface {
	ListDue(ctx context.Context, now time.Time) ([]Record, error)
	ClaimStep(ctx context.Context, id uuid.UUID, channel string, expectedAttempts int, at time.Time) (bool, error)
	ReleaseStep(ctx context.Context, id uuid.UUID, channel string, at time.Time) error
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkExhausted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	GetRecord(ctx context.Context, id uuid.UUID) (*Record, error)
}

// RuleSource loads a reminder type's ladder ordered by step.
type RuleSource interface {
	ListRules(ctx context.Context, t ReminderType) ([]EscalationRule, error)
}

// RecipientResolver turns a polymorphic target into someone reachable.
// Satisfied by *directory.Store.
type RecipientResolver interface {
	ResolveRecipient(ctx context.Context, kind string, id uuid.UUID) (*directory.Recipient, error)
}

// Engine climbs escalation ladders. Each tick visits every due record,
// claims the next unattempted step whose wait has elapsed, and sends on that
// step's channel. Confirmation halts a record's ladder immediately; records
// that run out of steps are marked exhausted and kept for staff follow-up.
type Engine struct {
	records  RecordSource
	rules    RuleSource
	resolver RecipientResolver
	sender   Sender
	metrics  *metrics.ReminderMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// NewEngine creates the escalation engine.
func NewEngine(records RecordSource, rules RuleSource, resolver RecipientResolver, sender Sender, m *metrics.ReminderMetrics, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		records:  records,
		rules:    rules,
		resolver: resolver,
		sender:   sender,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Tick processes every due record once. Safe to run from multiple scheduler
// instances: the per-record claim keeps a step from being sent twice.
func (e *Engine) Tick(ctx context.Context) (TickSummary, error) {
	ctx, span := escalationTracer.Start(ctx, "escalation.tick")
	defer span.End()

	now := e.now()
	due, err := e.records.ListDue(ctx, now)
	if err != nil {
		span.RecordError(err)
		return TickSummary{}, err
	}

	rulesByType := map[ReminderType][]EscalationRule{}
	var summary TickSummary
	for i := range due {
		rec := &due[i]
		rules, ok := rulesByType[rec.Type]
		if !ok {
			rules, err = e.rules.ListRules(ctx, rec.Type)
			if err != nil {
				summary.Errors++
				e.logger.Error("escalation rules load failed", "reminder_type", rec.Type, "error", err)
				continue
			}
			rulesByType[rec.Type] = rules
		}
		e.step(ctx, rec, rules, now, &summary)
	}

	e.logger.Info("escalation tick finished",
		"due", len(due), "attempted", summary.Attempted, "confirmed_skips", summary.ConfirmedSkips,
		"exhausted", summary.Exhausted, "errors", summary.Errors)
	return summary, nil
}

func (e *Engine) step(ctx context.Context, rec *Record, rules []EscalationRule, now time.Time, summary *TickSummary) {
	ctx, span := escalationTracer.Start(ctx, "escalation.step")
	defer span.End()
	span.SetAttributes(
		attribute.String("reminder.id", rec.ID.String()),
		attribute.String("reminder.type", string(rec.Type)),
	)

	next := nextRule(rec, rules)
	if next == nil {
		marked, err := e.records.MarkExhausted(ctx, rec.ID, now.UTC())
		if err != nil {
			summary.Errors++
			span.RecordError(err)
			return
		}
		if marked {
			summary.Exhausted++
			e.metrics.ObserveExhausted()
			e.logger.Info("reminder ladder exhausted", "reminder_id", rec.ID, "reminder_type", rec.Type)
		}
		return
	}
	span.SetAttributes(
		attribute.Int("reminder.step", next.Step),
		attribute.String("reminder.channel", next.Channel),
	)

	since := rec.CreatedAt
	if rec.LastAttemptAt != nil {
		since = *rec.LastAttemptAt
	}
	if now.Sub(since) < time.Duration(next.WaitHours)*time.Hour {
		return
	}

	claimed, err := e.records.ClaimStep(ctx, rec.ID, next.Channel, len(rec.ChannelsAttempted), now.UTC())
	if err != nil {
		summary.Errors++
		span.RecordError(err)
		return
	}
	if !claimed {
		// Another tick took the step, or the target confirmed under us.
		if cur, err := e.records.GetRecord(ctx, rec.ID); err == nil && cur.Confirmed {
			summary.ConfirmedSkips++
		}
		return
	}

	if err := e.deliver(ctx, rec, next); err != nil {
		summary.Errors++
		e.metrics.ObserveAttempt(next.Channel, "error")
		span.RecordError(err)
		e.logger.Warn("escalation send failed",
			"reminder_id", rec.ID, "step", next.Step, "channel", next.Channel, "error", err)
		if relErr := e.records.ReleaseStep(ctx, rec.ID, next.Channel, e.now().UTC()); relErr != nil {
			e.logger.Error("escalation claim release failed",
				"reminder_id", rec.ID, "channel", next.Channel, "error", relErr)
		}
		return
	}

	summary.Attempted++
	e.metrics.ObserveAttempt(next.Channel, "sent")
	if err := e.records.MarkSent(ctx, rec.ID, e.now().UTC()); err != nil {
		e.logger.Error("mark sent failed", "reminder_id", rec.ID, "error", err)
	}
	e.logger.Info("escalation step sent",
		"reminder_id", rec.ID, "reminder_type", rec.Type, "step", next.Step, "channel", next.Channel)
}

func (e *Engine) deliver(ctx context.Context, rec *Record, rule *EscalationRule) error {
	recipient, err := e.resolver.ResolveRecipient(ctx, rec.TargetKind, rec.TargetID)
	if err != nil {
		return err
	}
	msg := RenderMessage(rec.Type, notify.Channel(rule.Channel), recipient.Name, rec.ScheduledFor, rec.Message)
	return e.sender.Send(ctx, *recipient, notify.Channel(rule.Channel), msg)
}

// nextRule returns the lowest active step whose channel hasn't been tried.
// Rules arrive ordered by step.
func nextRule(rec *Record, rules []EscalationRule) *EscalationRule {
	for i := range rules {
		r := &rules[i]
		if !r.Active {
			continue
		}
		if rec.Attempted(r.Channel) {
			continue
		}
		return r
	}
	return nil
}
