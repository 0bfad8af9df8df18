// Package followup is the staff queue over reminders that exhausted their
// escalation ladder without a confirmation. Records are surfaced for manual
// outreach, acknowledged while a staff member works them, and resolved with a
// note. Nothing here deletes a record.
package followup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/vetclinic-platform/pkg/logging"
)

var followupTracer = otel.Tracer("vetclinic/followup")

// Status tracks how far staff have taken one follow-up.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusAcknowledged Status = "ACKNOWLEDGED"
	StatusResolved     Status = "RESOLVED"
)

var (
	// ErrNotFound means the record is missing or never exhausted its ladder.
	ErrNotFound = errors.New("followup: item not found")
	// ErrNotPending means another staff member already claimed the item.
	ErrNotPending = errors.New("followup: item already acknowledged")
	// ErrAlreadyResolved means the item was already closed.
	ErrAlreadyResolved = errors.New("followup: item already resolved")
)

// Item is one exhausted reminder awaiting manual outreach.
type Item struct {
	ID                uuid.UUID  `json:"id"`
	ReminderType      string     `json:"reminder_type"`
	TargetKind        string     `json:"target_kind"`
	TargetID          uuid.UUID  `json:"target_id"`
	ScheduledFor      time.Time  `json:"scheduled_for"`
	ChannelsAttempted []string   `json:"channels_attempted"`
	LastAttemptAt     *time.Time `json:"last_attempt_at,omitempty"`
	ExhaustedAt       time.Time  `json:"exhausted_at"`
	Message           string     `json:"message,omitempty"`
	Status            Status     `json:"status"`
	AcknowledgedAt    *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy    string     `json:"acknowledged_by,omitempty"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy        string     `json:"resolved_by,omitempty"`
	Resolution        string     `json:"resolution,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Service reads and transitions the follow-up queue.
type Service struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewService creates a follow-up queue service.
func NewService(db *sql.DB, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{db: db, logger: logger}
}

const itemColumns = `id, reminder_type, target_kind, target_id, scheduled_for,
		channels_attempted, last_attempt_at, exhausted_at, message,
		followup_status, acknowledged_at, acknowledged_by,
		resolved_at, resolved_by, resolution, created_at`

// ListOpen returns unresolved queue items, oldest exhaustion first.
// reminderType narrows the list when non-empty.
func (s *Service) ListOpen(ctx context.Context, reminderType string) ([]*Item, error) {
	ctx, span := followupTracer.Start(ctx, "followup.list")
	defer span.End()

	query := `
		SELECT ` + itemColumns + `
		FROM reminders
		WHERE exhausted_at IS NOT NULL AND confirmed = false AND followup_status != $1
		ORDER BY exhausted_at ASC`
	args := []any{StatusResolved}
	if reminderType != "" {
		span.SetAttributes(attribute.String("reminder.type", reminderType))
		query = `
		SELECT ` + itemColumns + `
		FROM reminders
		WHERE exhausted_at IS NOT NULL AND confirmed = false AND followup_status != $1
		  AND reminder_type = $2
		ORDER BY exhausted_at ASC`
		args = append(args, reminderType)
	}

	items, err := s.queryItems(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("followup: list open: %w", err)
	}
	return items, nil
}

// GetItem fetches one queue item. Records that never exhausted their ladder
// are not queue members.
func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM reminders
		WHERE id = $1 AND exhausted_at IS NOT NULL`, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("followup: get item: %w", err)
	}
	return item, nil
}

// Acknowledge claims a pending item for a staff member. The guard keeps two
// staff members from claiming the same item.
func (s *Service) Acknowledge(ctx context.Context, id uuid.UUID, staff string) error {
	ctx, span := followupTracer.Start(ctx, "followup.acknowledge")
	defer span.End()
	span.SetAttributes(attribute.String("reminder.id", id.String()))

	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE reminders
		SET followup_status = $1, acknowledged_at = $2, acknowledged_by = $3, updated_at = $2
		WHERE id = $4 AND exhausted_at IS NOT NULL AND followup_status = $5`,
		StatusAcknowledged, now, staff, id, StatusPending)
	if err != nil {
		return fmt.Errorf("followup: acknowledge: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return s.transitionMiss(ctx, id, ErrNotPending)
	}

	s.logger.Info("follow-up acknowledged", "reminder_id", id, "by", staff)
	return nil
}

// Resolve closes an item with a note. Acknowledgement is not a prerequisite;
// staff can resolve straight from pending.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, staff, note string) error {
	ctx, span := followupTracer.Start(ctx, "followup.resolve")
	defer span.End()
	span.SetAttributes(attribute.String("reminder.id", id.String()))

	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE reminders
		SET followup_status = $1, resolved_at = $2, resolved_by = $3, resolution = $4, updated_at = $2
		WHERE id = $5 AND exhausted_at IS NOT NULL AND followup_status != $1`,
		StatusResolved, now, staff, note, id)
	if err != nil {
		return fmt.Errorf("followup: resolve: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return s.transitionMiss(ctx, id, ErrAlreadyResolved)
	}

	s.logger.Info("follow-up resolved", "reminder_id", id, "by", staff)
	return nil
}

// transitionMiss tells a missing item apart from a lost transition race.
func (s *Service) transitionMiss(ctx context.Context, id uuid.UUID, raced error) error {
	if _, err := s.GetItem(ctx, id); err != nil {
		return err
	}
	return raced
}

func (s *Service) queryItems(ctx context.Context, query string, args ...any) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	var lastAttempt, ackAt, resAt sql.NullTime
	var ackBy, resBy, resolution sql.NullString

	err := row.Scan(
		&item.ID, &item.ReminderType, &item.TargetKind, &item.TargetID, &item.ScheduledFor,
		pq.Array(&item.ChannelsAttempted), &lastAttempt, &item.ExhaustedAt, &item.Message,
		&item.Status, &ackAt, &ackBy,
		&resAt, &resBy, &resolution, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.AcknowledgedBy = ackBy.String
	item.ResolvedBy = resBy.String
	item.Resolution = resolution.String
	if lastAttempt.Valid {
		item.LastAttemptAt = &lastAttempt.Time
	}
	if ackAt.Valid {
		item.AcknowledgedAt = &ackAt.Time
	}
	if resAt.Valid {
		item.ResolvedAt = &resAt.Time
	}
	return &item, nil
}
