package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/vetclinic-platform/internal/catalog"
	"github.com/wolfman30/vetclinic-platform/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-platform/pkg/logging"
)

var schedulingTracer = otel.Tracer("vetclinic/scheduling")

// CalendarStore is the storage surface the booking service needs.
type CalendarStore interface {
	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ActiveBlocksForWeekday(ctx context.Context, weekday int, staffID *uuid.UUID) ([]WorkBlock, error)
	BlockingIntervals(ctx context.Context, from, to time.Time, staffID *uuid.UUID) (map[uuid.UUID][]Interval, error)
	HasBlockingOverlap(ctx context.Context, staffID uuid.UUID, iv Interval, excludeID *uuid.UUID) (bool, error)
	MarkConfirmed(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkInProgress(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkCancelled(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	MarkNoShow(ctx context.Context, id uuid.UUID, at time.Time) error
	Reschedule(ctx context.Context, id uuid.UUID, start, end time.Time) error
}

var _ CalendarStore = (*Store)(nil)

// ServiceCatalog resolves the service being booked.
type ServiceCatalog interface {
	GetService(ctx context.Context, id uuid.UUID) (*catalog.Service, error)
}

// Locker serializes booking operations per staff member. WithLock runs fn
// while holding the exclusive lock for key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Invoicer is the billing collaborator, signalled exactly once on completion.
type Invoicer interface {
	MaterializeInvoice(ctx context.Context, appointmentID, ownerID uuid.UUID, amountCents int64) error
}

// ReminderSink receives lifecycle events that affect open reminder records.
type ReminderSink interface {
	ConfirmForAppointment(ctx context.Context, appointmentID uuid.UUID) error
	SupersedeForAppointment(ctx context.Context, appointmentID uuid.UUID) error
}

// Service implements availability queries, the booking guard, and the
// appointment lifecycle.
type Service struct {
	store     CalendarStore
	catalog   ServiceCatalog
	locker    Locker
	invoicer  Invoicer
	reminders ReminderSink
	metrics   *metrics.SchedulingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewService creates the scheduling service. invoicer, reminders and m may be
// nil; the corresponding hooks are skipped.
func NewService(store CalendarStore, cat ServiceCatalog, locker Locker, invoicer Invoicer, reminders ReminderSink, m *metrics.SchedulingMetrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:     store,
		catalog:   cat,
		locker:    locker,
		invoicer:  invoicer,
		reminders: reminders,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Availability returns the bookable slots on a date for a service, optionally
// restricted to one staff member. day is interpreted in its own location;
// only its calendar date matters.
func (s *Service) Availability(ctx context.Context, day time.Time, serviceID uuid.UUID, staffID *uuid.UUID) ([]Slot, error) {
	svc, err := s.catalog.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if !svc.Active {
		return nil, ErrServiceInactive
	}

	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	blocks, err := s.store.ActiveBlocksForWeekday(ctx, ClinicWeekday(midnight), staffID)
	if err != nil {
		return nil, err
	}
	busy, err := s.store.BlockingIntervals(ctx, midnight, midnight.Add(24*time.Hour), staffID)
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveAvailabilityQuery()
	return GenerateSlots(midnight, svc.Duration(), blocks, busy), nil
}

// BookRequest carries the inputs of one booking call.
type BookRequest struct {
	OwnerID   uuid.UUID
	PetID     *uuid.UUID
	ServiceID uuid.UUID
	StaffID   uuid.UUID
	Start     time.Time
	Notes     string
}

// Book validates and commits a new appointment. Failures surface as
// ErrPetRequired, ErrOutsideWorkingHours or ErrSlotTaken; a storage conflict
// lost to a concurrent booking also surfaces as ErrSlotTaken.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "booking.commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.staff_id", req.StaffID.String()),
		attribute.String("booking.service_id", req.ServiceID.String()),
	)

	started := s.now()
	appt, err := s.book(ctx, req)
	s.metrics.ObserveBooking(bookOutcome(err), s.now().Sub(started).Seconds())
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment booked",
		"id", appt.ID,
		"staff_id", appt.StaffID,
		"service_id", appt.ServiceID,
		"start", appt.ScheduledStart.Format(time.RFC3339),
	)
	return appt, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (*Appointment, error) {
	svc, err := s.catalog.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if !svc.Active {
		return nil, ErrServiceInactive
	}
	if svc.RequiresPet && req.PetID == nil {
		return nil, ErrPetRequired
	}

	window := Interval{Start: req.Start, End: req.Start.Add(svc.Duration())}
	appt := &Appointment{
		OwnerID:        req.OwnerID,
		PetID:          req.PetID,
		ServiceID:      req.ServiceID,
		StaffID:        req.StaffID,
		ScheduledStart: window.Start,
		ScheduledEnd:   window.End,
		Status:         StatusScheduled,
		Notes:          req.Notes,
	}

	err = s.locker.WithLock(ctx, staffLockKey(req.StaffID), func(ctx context.Context) error {
		if err := s.ensureWithinWorkingHours(ctx, req.StaffID, window); err != nil {
			return err
		}
		taken, err := s.store.HasBlockingOverlap(ctx, req.StaffID, window, nil)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}
		return s.store.CreateAppointment(ctx, appt)
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// Confirm transitions scheduled → confirmed and closes the open reminder
// ladder for the appointment.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.transition(ctx, id, StatusConfirmed, func(at time.Time) error {
		return s.store.MarkConfirmed(ctx, id, at)
	})
	if err != nil {
		return nil, err
	}
	if s.reminders != nil {
		if err := s.reminders.ConfirmForAppointment(ctx, id); err != nil {
			s.logger.Error("confirm reminder records", "error", err, "appointment_id", id)
		}
	}
	return appt, nil
}

// Start transitions scheduled/confirmed → in_progress.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusInProgress, func(at time.Time) error {
		return s.store.MarkInProgress(ctx, id, at)
	})
}

// Complete transitions a blocking status → completed and signals billing to
// materialize the appointment's invoice. The status commit happens first: the
// invoice insert is idempotent per appointment, so a billing failure never
// double-charges and never un-completes the visit.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.transition(ctx, id, StatusCompleted, func(at time.Time) error {
		return s.store.MarkCompleted(ctx, id, at)
	})
	if err != nil {
		return nil, err
	}

	if s.invoicer != nil {
		svc, err := s.catalog.GetService(ctx, appt.ServiceID)
		if err != nil {
			s.metrics.ObserveInvoice("error")
			return appt, fmt.Errorf("scheduling: complete: load service for invoice: %w", err)
		}
		if err := s.invoicer.MaterializeInvoice(ctx, appt.ID, appt.OwnerID, svc.PriceCents); err != nil {
			s.metrics.ObserveInvoice("error")
			return appt, fmt.Errorf("scheduling: complete: materialize invoice: %w", err)
		}
		s.metrics.ObserveInvoice("created")
	}
	return appt, nil
}

// Cancel transitions scheduled/confirmed → cancelled. A reason is required
// and billing is never signalled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}
	return s.transition(ctx, id, StatusCancelled, func(at time.Time) error {
		return s.store.MarkCancelled(ctx, id, reason, at)
	})
}

// MarkNoShow transitions any blocking status → no_show.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusNoShow, func(at time.Time) error {
		return s.store.MarkNoShow(ctx, id, at)
	})
}

// Reschedule moves an appointment to a new start, reusing the same row. The
// booking guard re-runs against the new window, ignoring the appointment's own
// reservation, and the reminder state is reset so the ladder restarts.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time) (*Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled && appt.Status != StatusConfirmed {
		s.metrics.ObserveTransition(string(StatusScheduled), "illegal")
		return nil, ErrIllegalTransition
	}

	svc, err := s.catalog.GetService(ctx, appt.ServiceID)
	if err != nil {
		return nil, err
	}
	window := Interval{Start: newStart, End: newStart.Add(svc.Duration())}

	err = s.locker.WithLock(ctx, staffLockKey(appt.StaffID), func(ctx context.Context) error {
		if err := s.ensureWithinWorkingHours(ctx, appt.StaffID, window); err != nil {
			return err
		}
		taken, err := s.store.HasBlockingOverlap(ctx, appt.StaffID, window, &appt.ID)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}
		return s.store.Reschedule(ctx, id, window.Start, window.End)
	})
	if err != nil {
		s.metrics.ObserveTransition(string(StatusScheduled), rescheduleOutcome(err))
		return nil, err
	}
	s.metrics.ObserveTransition(string(StatusScheduled), "rescheduled")

	if s.reminders != nil {
		if err := s.reminders.SupersedeForAppointment(ctx, id); err != nil {
			s.logger.Error("supersede reminder records", "error", err, "appointment_id", id)
		}
	}

	s.logger.Info("appointment rescheduled", "id", id, "new_start", window.Start.Format(time.RFC3339))
	return s.store.GetAppointment(ctx, id)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, commit func(at time.Time) error) (*Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(appt.Status, to) {
		s.metrics.ObserveTransition(string(to), "illegal")
		return nil, ErrIllegalTransition
	}
	if err := commit(s.now().UTC()); err != nil {
		if errors.Is(err, ErrIllegalTransition) {
			s.metrics.ObserveTransition(string(to), "illegal")
		}
		return nil, err
	}
	s.metrics.ObserveTransition(string(to), "ok")
	s.logger.Info("appointment transition", "id", id, "from", appt.Status, "to", to)
	return s.store.GetAppointment(ctx, id)
}

func (s *Service) ensureWithinWorkingHours(ctx context.Context, staffID uuid.UUID, window Interval) error {
	start := window.Start
	midnight := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	blocks, err := s.store.ActiveBlocksForWeekday(ctx, ClinicWeekday(start), &staffID)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if b.WindowOn(midnight).Contains(window) {
			return nil
		}
	}
	return ErrOutsideWorkingHours
}

func staffLockKey(staffID uuid.UUID) string {
	return "booking:staff:" + staffID.String()
}

func bookOutcome(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, ErrPetRequired):
		return "pet_required"
	case errors.Is(err, ErrOutsideWorkingHours):
		return "outside_hours"
	case errors.Is(err, ErrSlotTaken):
		return "slot_taken"
	case errors.Is(err, ErrServiceInactive):
		return "service_inactive"
	default:
		return "error"
	}
}

func rescheduleOutcome(err error) string {
	switch {
	case errors.Is(err, ErrOutsideWorkingHours):
		return "outside_hours"
	case errors.Is(err, ErrSlotTaken):
		return "slot_taken"
	case errors.Is(err, ErrIllegalTransition):
		return "illegal"
	default:
		return "error"
	}
}
