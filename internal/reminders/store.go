package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/vetclinic-platform/internal/directory"
	"github.com/wolfman30/vetclinic-platform/internal/notify"
	"github.com/wolfman30/vetclinic-platform/internal/scheduling"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides persistence for reminder records and escalation rules.
type Store struct {
	db DB
}

// NewStore creates a new reminders store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Store doubles as the lifecycle sink: confirm on appointment confirmation,
// supersede on reschedule.
var _ scheduling.ReminderSink = (*Store)(nil)

const recordColumns = `id, reminder_type, target_kind, target_id, scheduled_for, sent,
		channels_attempted, last_attempt_at, confirmed, confirmed_at, exhausted_at,
		message, metadata, created_at, updated_at`

// CreateRecord inserts a reminder record. ID and timestamps are filled in
// when zero.
func (s *Store) CreateRecord(ctx context.Context, r *Record) error {
	if !ValidReminderType(r.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidType, r.Type)
	}
	if r.TargetKind == "" || r.TargetID == uuid.Nil {
		return ErrInvalidTarget
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.ChannelsAttempted == nil {
		r.ChannelsAttempted = []string{}
	}
	if r.Metadata == nil {
		r.Metadata = map[string]string{}
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	meta, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("reminders: create record: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO reminders (id, reminder_type, target_kind, target_id, scheduled_for, sent,
			channels_attempted, last_attempt_at, confirmed, message, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, string(r.Type), r.TargetKind, r.TargetID, r.ScheduledFor, r.Sent,
		r.ChannelsAttempted, r.LastAttemptAt, r.Confirmed, r.Message, meta, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("reminders: create record: %w", err)
	}
	return nil
}

// GetRecord fetches one reminder record.
func (s *Store) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := s.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM reminders WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("reminders: get record: %w", err)
	}
	return rec, nil
}

// ListDue returns unconfirmed, unexhausted records whose scheduled_for has
// passed, oldest first.
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM reminders
		WHERE confirmed = false AND exhausted_at IS NULL AND scheduled_for <= $1
		ORDER BY scheduled_for ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("reminders: list due: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ClaimStep atomically appends channel to the attempted list. The guard
// requires the record to still be unconfirmed, the channel unattempted, and
// the attempted count unchanged since the caller read the record, so two
// concurrent ticks cannot claim the same step. Returns false when the claim
// was lost.
func (s *Store) ClaimStep(ctx context.Context, id uuid.UUID, channel string, expectedAttempts int, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE reminders
		SET channels_attempted = array_append(channels_attempted, $1), last_attempt_at = $2, updated_at = $2
		WHERE id = $3 AND confirmed = false
		  AND NOT ($1 = ANY (channels_attempted))
		  AND cardinality(channels_attempted) = $4`,
		channel, at, id, expectedAttempts)
	if err != nil {
		return false, fmt.Errorf("reminders: claim step: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseStep removes a claimed channel after a failed send so the next tick
// can retry the step.
func (s *Store) ReleaseStep(ctx context.Context, id uuid.UUID, channel string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reminders
		SET channels_attempted = array_remove(channels_attempted, $1), updated_at = $2
		WHERE id = $3`,
		channel, at, id)
	if err != nil {
		return fmt.Errorf("reminders: release step: %w", err)
	}
	return nil
}

// MarkSent flags the record as having had at least one successful send.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reminders SET sent = true, updated_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("reminders: mark sent: %w", err)
	}
	return nil
}

// MarkExhausted records that the ladder ran out of steps without a
// confirmation. Guarded so the transition, and its metric, fire once.
func (s *Store) MarkExhausted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE reminders SET exhausted_at = $1, updated_at = $1
		WHERE id = $2 AND exhausted_at IS NULL AND confirmed = false`, at, id)
	if err != nil {
		return false, fmt.Errorf("reminders: mark exhausted: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Confirm halts escalation for one record. Returns false when the record was
// already confirmed, which callers treat as an idempotent no-op.
func (s *Store) Confirm(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE reminders SET confirmed = true, confirmed_at = $1, updated_at = $1
		WHERE id = $2 AND confirmed = false`, at, id)
	if err != nil {
		return false, fmt.Errorf("reminders: confirm: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ConfirmForAppointment closes every open record targeting the appointment.
// Called when the appointment itself is confirmed.
func (s *Store) ConfirmForAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		UPDATE reminders SET confirmed = true, confirmed_at = $1, updated_at = $1
		WHERE target_kind = $2 AND target_id = $3 AND confirmed = false`,
		now, directory.KindAppointment, appointmentID)
	if err != nil {
		return fmt.Errorf("reminders: confirm for appointment: %w", err)
	}
	return nil
}

// SupersedeForAppointment closes open records for a rescheduled appointment,
// tagging them so the audit trail distinguishes them from real confirmations.
// The next scan starts a fresh ladder for the new time.
func (s *Store) SupersedeForAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		UPDATE reminders
		SET confirmed = true, confirmed_at = $1,
		    metadata = metadata || '{"superseded_by_reschedule": "true"}'::jsonb, updated_at = $1
		WHERE target_kind = $2 AND target_id = $3 AND confirmed = false`,
		now, directory.KindAppointment, appointmentID)
	if err != nil {
		return fmt.Errorf("reminders: supersede for appointment: %w", err)
	}
	return nil
}

// CreateRule inserts an escalation rule. A duplicate (reminder_type, step)
// fails with ErrRuleConflict; the unique index backs the check up under
// concurrent writes.
func (s *Store) CreateRule(ctx context.Context, r *EscalationRule) error {
	if err := validateRule(r); err != nil {
		return err
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = time.Now().UTC()

	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM escalation_rules WHERE reminder_type = $1 AND step = $2)`,
		string(r.Type), r.Step).Scan(&exists)
	if err != nil {
		return fmt.Errorf("reminders: create rule: %w", err)
	}
	if exists {
		return ErrRuleConflict
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO escalation_rules (id, reminder_type, step, channel, wait_hours, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, string(r.Type), r.Step, r.Channel, r.WaitHours, r.Active, r.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRuleConflict
		}
		return fmt.Errorf("reminders: create rule: %w", err)
	}
	return nil
}

// UpdateRule rewrites an existing rule.
func (s *Store) UpdateRule(ctx context.Context, r *EscalationRule) error {
	if err := validateRule(r); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE escalation_rules
		SET reminder_type = $1, step = $2, channel = $3, wait_hours = $4, active = $5
		WHERE id = $6`,
		string(r.Type), r.Step, r.Channel, r.WaitHours, r.Active, r.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRuleConflict
		}
		return fmt.Errorf("reminders: update rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// DeleteRule removes a rule from the ladder.
func (s *Store) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM escalation_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("reminders: delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// ListRules returns every rule for a reminder type ordered by step, inactive
// ones included; the engine skips those when climbing.
func (s *Store) ListRules(ctx context.Context, t ReminderType) ([]EscalationRule, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, reminder_type, step, channel, wait_hours, active, created_at
		FROM escalation_rules
		WHERE reminder_type = $1
		ORDER BY step ASC`, string(t))
	if err != nil {
		return nil, fmt.Errorf("reminders: list rules: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

// ListAllRules returns the whole rule table for the admin surface.
func (s *Store) ListAllRules(ctx context.Context) ([]EscalationRule, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, reminder_type, step, channel, wait_hours, active, created_at
		FROM escalation_rules
		ORDER BY reminder_type, step ASC`)
	if err != nil {
		return nil, fmt.Errorf("reminders: list all rules: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

func validateRule(r *EscalationRule) error {
	if !ValidReminderType(r.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidType, r.Type)
	}
	if r.Step < 1 {
		return ErrInvalidStep
	}
	if r.WaitHours < 0 {
		return ErrInvalidWait
	}
	if !notify.ValidChannel(notify.Channel(r.Channel)) {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, r.Channel)
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	var meta []byte
	err := row.Scan(&r.ID, &r.Type, &r.TargetKind, &r.TargetID, &r.ScheduledFor, &r.Sent,
		&r.ChannelsAttempted, &r.LastAttemptAt, &r.Confirmed, &r.ConfirmedAt, &r.ExhaustedAt,
		&r.Message, &meta, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &r, nil
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var result []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("reminders: scan record: %w", err)
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

func scanRules(rows pgx.Rows) ([]EscalationRule, error) {
	var result []EscalationRule
	for rows.Next() {
		var r EscalationRule
		if err := rows.Scan(&r.ID, &r.Type, &r.Step, &r.Channel, &r.WaitHours, &r.Active, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("reminders: scan rule: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
