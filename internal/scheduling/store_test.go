package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewStore(mock), mock
}

func TestCreateWorkBlockRejectsInvertedWindow(t *testing.T) {
	store := NewStore(nil)
	err := store.CreateWorkBlock(context.Background(), &WorkBlock{
		StaffID:      uuid.New(),
		Weekday:      0,
		StartMinutes: 17 * 60,
		EndMinutes:   9 * 60,
	})
	if !errors.Is(err, ErrInvalidWorkBlock) {
		t.Fatalf("expected ErrInvalidWorkBlock, got %v", err)
	}

	// Zero-length windows are invalid too.
	err = store.CreateWorkBlock(context.Background(), &WorkBlock{
		StaffID:      uuid.New(),
		StartMinutes: 9 * 60,
		EndMinutes:   9 * 60,
	})
	if !errors.Is(err, ErrInvalidWorkBlock) {
		t.Fatalf("expected ErrInvalidWorkBlock for zero-length window, got %v", err)
	}
}

func TestCreateWorkBlockRejectsBadWeekday(t *testing.T) {
	store := NewStore(nil)
	err := store.CreateWorkBlock(context.Background(), &WorkBlock{
		StaffID:      uuid.New(),
		Weekday:      7,
		StartMinutes: 9 * 60,
		EndMinutes:   17 * 60,
	})
	if err == nil {
		t.Fatal("expected error for weekday 7")
	}
}

func TestCreateWorkBlock(t *testing.T) {
	store, mock := newMockStore(t)
	staff := uuid.New()
	mock.ExpectExec("INSERT INTO work_blocks").
		WithArgs(pgxmock.AnyArg(), staff, 2, 9*60, 17*60, true, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	block := &WorkBlock{StaffID: staff, Weekday: 2, StartMinutes: 9 * 60, EndMinutes: 17 * 60, Active: true}
	if err := store.CreateWorkBlock(context.Background(), block); err != nil {
		t.Fatalf("create work block: %v", err)
	}
	if block.ID == uuid.Nil {
		t.Fatal("expected generated id")
	}
}

func TestDeleteWorkBlockNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectExec("DELETE FROM work_blocks").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := store.DeleteWorkBlock(context.Background(), id); !errors.Is(err, ErrWorkBlockNotFound) {
		t.Fatalf("expected ErrWorkBlockNotFound, got %v", err)
	}
}

func TestCreateAppointment(t *testing.T) {
	store, mock := newMockStore(t)
	petID := uuid.New()
	appt := &Appointment{
		OwnerID:        uuid.New(),
		PetID:          &petID,
		ServiceID:      uuid.New(),
		StaffID:        uuid.New(),
		ScheduledStart: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		ScheduledEnd:   time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	}
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), appt.OwnerID, appt.PetID, appt.ServiceID, appt.StaffID,
			appt.ScheduledStart, appt.ScheduledEnd, "scheduled", "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := store.CreateAppointment(context.Background(), appt); err != nil {
		t.Fatalf("create appointment: %v", err)
	}
	if appt.Status != StatusScheduled {
		t.Fatalf("expected scheduled status, got %s", appt.Status)
	}
}

func TestCreateAppointmentExclusionConflict(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO appointments").
		WillReturnError(&pgconn.PgError{Code: "23P01", ConstraintName: "appointments_staff_calendar_excl"})

	err := store.CreateAppointment(context.Background(), &Appointment{
		OwnerID:        uuid.New(),
		ServiceID:      uuid.New(),
		StaffID:        uuid.New(),
		ScheduledStart: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		ScheduledEnd:   time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestGetAppointmentNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM appointments WHERE id").
		WithArgs(id).
		WillReturnRows(appointmentRows())

	_, err := store.GetAppointment(context.Background(), id)
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestGetAppointment(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM appointments WHERE id").
		WithArgs(id).
		WillReturnRows(addAppointmentRow(appointmentRows(), id, start, "confirmed"))

	appt, err := store.GetAppointment(context.Background(), id)
	if err != nil {
		t.Fatalf("get appointment: %v", err)
	}
	if appt.Status != StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", appt.Status)
	}
	if !appt.Window().Start.Equal(start) {
		t.Fatalf("unexpected window start %s", appt.Window().Start)
	}
}

func TestHasBlockingOverlap(t *testing.T) {
	store, mock := newMockStore(t)
	staff := uuid.New()
	window := Interval{
		Start: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	}
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(staff, window.Start, window.End, (*uuid.UUID)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	taken, err := store.HasBlockingOverlap(context.Background(), staff, window, nil)
	if err != nil {
		t.Fatalf("overlap check: %v", err)
	}
	if !taken {
		t.Fatal("expected overlap")
	}
}

func TestHasBlockingOverlapExcludesSelf(t *testing.T) {
	store, mock := newMockStore(t)
	staff := uuid.New()
	self := uuid.New()
	window := Interval{
		Start: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	}
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(staff, window.Start, window.End, &self).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	taken, err := store.HasBlockingOverlap(context.Background(), staff, window, &self)
	if err != nil {
		t.Fatalf("overlap check: %v", err)
	}
	if taken {
		t.Fatal("expected no overlap once own row is excluded")
	}
}

func TestMarkConfirmedIllegalFromTerminal(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectExec("UPDATE appointments SET status = 'confirmed'").
		WithArgs(pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.MarkConfirmed(context.Background(), id, time.Now())
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
}

func TestMarkCancelled(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectExec("UPDATE appointments SET status = 'cancelled'").
		WithArgs("owner called to cancel", pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := store.MarkCancelled(context.Background(), id, "owner called to cancel", time.Now()); err != nil {
		t.Fatalf("mark cancelled: %v", err)
	}
}

func TestRescheduleConflict(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	start := time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE appointments").
		WithArgs(start, start.Add(30*time.Minute), pgxmock.AnyArg(), id).
		WillReturnError(&pgconn.PgError{Code: "23P01"})

	err := store.Reschedule(context.Background(), id, start, start.Add(30*time.Minute))
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestRescheduleGuardedByStatus(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	start := time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE appointments").
		WithArgs(start, start.Add(30*time.Minute), pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.Reschedule(context.Background(), id, start, start.Add(30*time.Minute))
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
}

func TestMarkReminderSentIdempotent(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectExec("UPDATE appointments SET reminder_sent = true").
		WithArgs(pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	updated, err := store.MarkReminderSent(context.Background(), id, time.Now())
	if err != nil {
		t.Fatalf("mark reminder sent: %v", err)
	}
	if updated {
		t.Fatal("expected no-op when reminder already sent")
	}
}

func TestBlockingIntervalsGroupsByStaff(t *testing.T) {
	store, mock := newMockStore(t)
	staffA := uuid.New()
	staffB := uuid.New()
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	mock.ExpectQuery("SELECT staff_id, scheduled_start, scheduled_end").
		WithArgs(from, to, (*uuid.UUID)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"staff_id", "scheduled_start", "scheduled_end"}).
			AddRow(staffA, from.Add(9*time.Hour), from.Add(9*time.Hour+30*time.Minute)).
			AddRow(staffA, from.Add(10*time.Hour), from.Add(10*time.Hour+30*time.Minute)).
			AddRow(staffB, from.Add(9*time.Hour), from.Add(10*time.Hour)))

	busy, err := store.BlockingIntervals(context.Background(), from, to, nil)
	if err != nil {
		t.Fatalf("blocking intervals: %v", err)
	}
	if len(busy[staffA]) != 2 || len(busy[staffB]) != 1 {
		t.Fatalf("unexpected grouping: %d/%d", len(busy[staffA]), len(busy[staffB]))
	}
}

func TestListDueForReminder(t *testing.T) {
	store, mock := newMockStore(t)
	from := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	rows := appointmentRows()
	addAppointmentRow(rows, uuid.New(), from.Add(2*time.Hour), "scheduled")
	addAppointmentRow(rows, uuid.New(), from.Add(3*time.Hour), "confirmed")
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(from, to).
		WillReturnRows(rows)

	due, err := store.ListDueForReminder(context.Background(), from, to)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due appointments, got %d", len(due))
	}
}

func appointmentRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "owner_id", "pet_id", "service_id", "staff_id", "scheduled_start", "scheduled_end",
		"status", "notes", "cancellation_reason", "confirmed_at", "completed_at", "cancelled_at",
		"reminder_sent", "reminder_sent_at", "created_at", "updated_at",
	})
}

func addAppointmentRow(rows *pgxmock.Rows, id uuid.UUID, start time.Time, status string) *pgxmock.Rows {
	petID := uuid.New()
	now := time.Now()
	return rows.AddRow(
		id, uuid.New(), &petID, uuid.New(), uuid.New(), start, start.Add(30*time.Minute),
		status, "", "", (*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil),
		false, (*time.Time)(nil), now, now,
	)
}
