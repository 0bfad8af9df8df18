package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status tracks the lifecycle of an appointment.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// BlockingStatuses are the statuses that occupy a calendar slot.
var BlockingStatuses = []Status{StatusScheduled, StatusConfirmed, StatusInProgress}

// Blocking reports whether an appointment in this status occupies its slot.
func (s Status) Blocking() bool {
	return s == StatusScheduled || s == StatusConfirmed || s == StatusInProgress
}

// legalTransitions maps each status to the statuses it may move to.
var legalTransitions = map[Status][]Status{
	StatusScheduled:  {StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusNoShow},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusNoShow:     {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// WorkBlock is a recurring weekly availability window for one staff member.
// Weekday follows the clinic convention: 0 = Monday .. 6 = Sunday.
// Start and end are minutes from midnight; start < end.
type WorkBlock struct {
	ID           uuid.UUID `json:"id"`
	StaffID      uuid.UUID `json:"staff_id"`
	Weekday      int       `json:"weekday"`
	StartMinutes int       `json:"start_minutes"`
	EndMinutes   int       `json:"end_minutes"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// WindowOn projects the block onto a concrete date. day must be midnight in
// the clinic timezone.
func (b WorkBlock) WindowOn(day time.Time) Interval {
	return Interval{
		Start: day.Add(time.Duration(b.StartMinutes) * time.Minute),
		End:   day.Add(time.Duration(b.EndMinutes) * time.Minute),
	}
}

// Appointment is one booked visit. scheduled_end is always derived from
// scheduled_start plus the service duration, never set independently.
type Appointment struct {
	ID                 uuid.UUID  `json:"id"`
	OwnerID            uuid.UUID  `json:"owner_id"`
	PetID              *uuid.UUID `json:"pet_id,omitempty"`
	ServiceID          uuid.UUID  `json:"service_id"`
	StaffID            uuid.UUID  `json:"staff_id"`
	ScheduledStart     time.Time  `json:"scheduled_start"`
	ScheduledEnd       time.Time  `json:"scheduled_end"`
	Status             Status     `json:"status"`
	Notes              string     `json:"notes,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	ReminderSent       bool       `json:"reminder_sent"`
	ReminderSentAt     *time.Time `json:"reminder_sent_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Window returns the appointment's half-open calendar interval.
func (a *Appointment) Window() Interval {
	return Interval{Start: a.ScheduledStart, End: a.ScheduledEnd}
}

// Slot is one bookable start time for one staff member.
type Slot struct {
	StaffID uuid.UUID `json:"staff_id"`
	Start   time.Time `json:"start_time"`
}

// ClinicWeekday converts Go's Sunday-based weekday to the clinic convention
// (0 = Monday .. 6 = Sunday).
func ClinicWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// FormatMinutes renders minutes-from-midnight as HH:MM for API responses.
func FormatMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ParseMinutes parses an HH:MM clock string into minutes from midnight.
func ParseMinutes(s string) (int, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, fmt.Errorf("scheduling: parse clock %q: %w", s, err)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("scheduling: clock %q out of range", s)
	}
	return hh*60 + mm, nil
}
