package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides persistence for work blocks and appointments.
type Store struct {
	db DB
}

// NewStore creates a new scheduling store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const appointmentColumns = `id, owner_id, pet_id, service_id, staff_id, scheduled_start, scheduled_end,
		status, notes, cancellation_reason, confirmed_at, completed_at, cancelled_at,
		reminder_sent, reminder_sent_at, created_at, updated_at`

// CreateWorkBlock inserts a weekly availability window.
func (s *Store) CreateWorkBlock(ctx context.Context, b *WorkBlock) error {
	if b.StartMinutes >= b.EndMinutes {
		return ErrInvalidWorkBlock
	}
	if b.Weekday < 0 || b.Weekday > 6 {
		return fmt.Errorf("scheduling: create work block: weekday %d out of range", b.Weekday)
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(ctx, `
		INSERT INTO work_blocks (id, staff_id, weekday, start_minutes, end_minutes, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.StaffID, b.Weekday, b.StartMinutes, b.EndMinutes, b.Active, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("scheduling: create work block: %w", err)
	}
	return nil
}

// ListWorkBlocks returns all work blocks, optionally filtered by staff.
func (s *Store) ListWorkBlocks(ctx context.Context, staffID *uuid.UUID) ([]WorkBlock, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, staff_id, weekday, start_minutes, end_minutes, active, created_at
		FROM work_blocks
		WHERE $1::uuid IS NULL OR staff_id = $1
		ORDER BY staff_id, weekday, start_minutes`, staffID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list work blocks: %w", err)
	}
	defer rows.Close()
	return scanWorkBlocks(rows)
}

// ActiveBlocksForWeekday returns the active blocks for one clinic weekday
// (0 = Monday), optionally filtered by staff.
func (s *Store) ActiveBlocksForWeekday(ctx context.Context, weekday int, staffID *uuid.UUID) ([]WorkBlock, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, staff_id, weekday, start_minutes, end_minutes, active, created_at
		FROM work_blocks
		WHERE weekday = $1 AND active = true AND ($2::uuid IS NULL OR staff_id = $2)
		ORDER BY staff_id, start_minutes`, weekday, staffID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: active blocks for weekday: %w", err)
	}
	defer rows.Close()
	return scanWorkBlocks(rows)
}

// DeleteWorkBlock removes an availability window.
func (s *Store) DeleteWorkBlock(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM work_blocks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("scheduling: delete work block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWorkBlockNotFound
	}
	return nil
}

// CreateAppointment inserts a new appointment in scheduled status. A calendar
// conflict detected by the storage layer surfaces as ErrSlotTaken.
func (s *Store) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = StatusScheduled
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (id, owner_id, pet_id, service_id, staff_id, scheduled_start, scheduled_end, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.OwnerID, a.PetID, a.ServiceID, a.StaffID,
		a.ScheduledStart, a.ScheduledEnd, string(a.Status), a.Notes, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isExclusionViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("scheduling: create appointment: %w", err)
	}
	return nil
}

// GetAppointment loads one appointment by id.
func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("scheduling: get appointment: %w", err)
	}
	defer rows.Close()
	appts, err := scanAppointments(rows)
	if err != nil {
		return nil, err
	}
	if len(appts) == 0 {
		return nil, ErrAppointmentNotFound
	}
	return &appts[0], nil
}

// BlockingIntervals returns the calendar intervals occupied by blocking-status
// appointments intersecting [from, to), grouped by staff.
func (s *Store) BlockingIntervals(ctx context.Context, from, to time.Time, staffID *uuid.UUID) (map[uuid.UUID][]Interval, error) {
	rows, err := s.db.Query(ctx, `
		SELECT staff_id, scheduled_start, scheduled_end
		FROM appointments
		WHERE status IN ('scheduled', 'confirmed', 'in_progress')
		  AND scheduled_start < $2 AND scheduled_end > $1
		  AND ($3::uuid IS NULL OR staff_id = $3)
		ORDER BY staff_id, scheduled_start`, from, to, staffID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: blocking intervals: %w", err)
	}
	defer rows.Close()

	busy := make(map[uuid.UUID][]Interval)
	for rows.Next() {
		var staff uuid.UUID
		var iv Interval
		if err := rows.Scan(&staff, &iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("scheduling: scan blocking interval: %w", err)
		}
		busy[staff] = append(busy[staff], iv)
	}
	return busy, rows.Err()
}

// HasBlockingOverlap reports whether any blocking-status appointment for the
// staff member overlaps the half-open interval. excludeID skips the
// appointment's own row when validating a reschedule.
func (s *Store) HasBlockingOverlap(ctx context.Context, staffID uuid.UUID, iv Interval, excludeID *uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE staff_id = $1
			  AND status IN ('scheduled', 'confirmed', 'in_progress')
			  AND scheduled_start < $3 AND scheduled_end > $2
			  AND ($4::uuid IS NULL OR id <> $4)
		)`, staffID, iv.Start, iv.End, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("scheduling: overlap check: %w", err)
	}
	return exists, nil
}

// MarkConfirmed transitions scheduled → confirmed.
func (s *Store) MarkConfirmed(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = 'confirmed', confirmed_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'scheduled'`, at, id)
	if err != nil {
		return fmt.Errorf("scheduling: mark confirmed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIllegalTransition
	}
	return nil
}

// MarkInProgress transitions scheduled/confirmed → in_progress.
func (s *Store) MarkInProgress(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = 'in_progress', updated_at = $1
		WHERE id = $2 AND status IN ('scheduled', 'confirmed')`, at, id)
	if err != nil {
		return fmt.Errorf("scheduling: mark in progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIllegalTransition
	}
	return nil
}

// MarkCompleted transitions a blocking status → completed.
func (s *Store) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = 'completed', completed_at = $1, updated_at = $1
		WHERE id = $2 AND status IN ('scheduled', 'confirmed', 'in_progress')`, at, id)
	if err != nil {
		return fmt.Errorf("scheduling: mark completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIllegalTransition
	}
	return nil
}

// MarkCancelled transitions scheduled/confirmed → cancelled with a reason.
func (s *Store) MarkCancelled(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = 'cancelled', cancellation_reason = $1, cancelled_at = $2, updated_at = $2
		WHERE id = $3 AND status IN ('scheduled', 'confirmed')`, reason, at, id)
	if err != nil {
		return fmt.Errorf("scheduling: mark cancelled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIllegalTransition
	}
	return nil
}

// MarkNoShow transitions any blocking status → no_show.
func (s *Store) MarkNoShow(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = 'no_show', updated_at = $1
		WHERE id = $2 AND status IN ('scheduled', 'confirmed', 'in_progress')`, at, id)
	if err != nil {
		return fmt.Errorf("scheduling: mark no show: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIllegalTransition
	}
	return nil
}

// Reschedule moves an appointment to a new window, reusing the same row. The
// appointment re-enters scheduled and its reminder flag is cleared so the next
// scan picks it up again. A storage-detected conflict surfaces as ErrSlotTaken.
func (s *Store) Reschedule(ctx context.Context, id uuid.UUID, start, end time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET scheduled_start = $1, scheduled_end = $2, status = 'scheduled',
		    reminder_sent = false, reminder_sent_at = NULL, confirmed_at = NULL, updated_at = $3
		WHERE id = $4 AND status IN ('scheduled', 'confirmed')`,
		start, end, time.Now().UTC(), id)
	if err != nil {
		if isExclusionViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("scheduling: reschedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIllegalTransition
	}
	return nil
}

// ListDueForReminder returns appointments whose start falls inside the lead
// window, still in a reminder-eligible status with no reminder sent yet.
func (s *Store) ListDueForReminder(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('scheduled', 'confirmed')
		  AND reminder_sent = false
		  AND scheduled_start >= $1 AND scheduled_start <= $2
		ORDER BY scheduled_start ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list due for reminder: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// MarkReminderSent records the first reminder. Returns false when another scan
// already marked it, which callers treat as an idempotent no-op.
func (s *Store) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET reminder_sent = true, reminder_sent_at = $1, updated_at = $1
		WHERE id = $2 AND reminder_sent = false`, at, id)
	if err != nil {
		return false, fmt.Errorf("scheduling: mark reminder sent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanWorkBlocks(rows pgx.Rows) ([]WorkBlock, error) {
	var result []WorkBlock
	for rows.Next() {
		var b WorkBlock
		if err := rows.Scan(&b.ID, &b.StaffID, &b.Weekday, &b.StartMinutes, &b.EndMinutes, &b.Active, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scheduling: scan work block: %w", err)
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		var a Appointment
		var status string
		err := rows.Scan(
			&a.ID, &a.OwnerID, &a.PetID, &a.ServiceID, &a.StaffID,
			&a.ScheduledStart, &a.ScheduledEnd, &status, &a.Notes, &a.CancellationReason,
			&a.ConfirmedAt, &a.CompletedAt, &a.CancelledAt,
			&a.ReminderSent, &a.ReminderSentAt, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
		}
		a.Status = Status(status)
		result = append(result, a)
	}
	return result, rows.Err()
}

// isExclusionViolation matches Postgres error 23P01 (exclusion_violation),
// raised by the staff-calendar constraint when two blocking appointments touch
// the same range.
func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}
