// Package reminders drives appointment reminders and the escalation ladder:
// the periodic scanner sends first reminders for upcoming appointments, and
// the engine climbs per-type channel ladders for any reminder-bearing entity
// until the target confirms or the ladder is exhausted.
package reminders

import (
	"time"

	"github.com/google/uuid"
)

// ReminderType classifies what a reminder record is about.
type ReminderType string

const (
	TypeAppointment  ReminderType = "appointment"
	TypeVaccination  ReminderType = "vaccination"
	TypePrescription ReminderType = "prescription"
	TypeFollowup     ReminderType = "followup"
)

// ValidReminderType reports whether t is a known reminder type.
func ValidReminderType(t ReminderType) bool {
	switch t {
	case TypeAppointment, TypeVaccination, TypePrescription, TypeFollowup:
		return true
	}
	return false
}

// Record is one generic reminder. The target is a polymorphic
// {kind, id} reference resolved through the contact directory, so new
// reminder-bearing entities don't grow new columns here. Records are never
// deleted; exhausted ones stay for staff follow-up.
type Record struct {
	ID                uuid.UUID         `json:"id"`
	Type              ReminderType      `json:"reminder_type"`
	TargetKind        string            `json:"target_kind"`
	TargetID          uuid.UUID         `json:"target_id"`
	ScheduledFor      time.Time         `json:"scheduled_for"`
	Sent              bool              `json:"sent"`
	ChannelsAttempted []string          `json:"channels_attempted"`
	LastAttemptAt     *time.Time        `json:"last_attempt_at,omitempty"`
	Confirmed         bool              `json:"confirmed"`
	ConfirmedAt       *time.Time        `json:"confirmed_at,omitempty"`
	ExhaustedAt       *time.Time        `json:"exhausted_at,omitempty"`
	Message           string            `json:"message,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Attempted reports whether channel is already in the attempted list.
func (r *Record) Attempted(channel string) bool {
	for _, ch := range r.ChannelsAttempted {
		if ch == channel {
			return true
		}
	}
	return false
}

// EscalationRule is one step of a reminder type's channel ladder. WaitHours
// is measured from the previous attempt, or from record creation for the
// first step. Step is unique per type.
type EscalationRule struct {
	ID        uuid.UUID    `json:"id"`
	Type      ReminderType `json:"reminder_type"`
	Step      int          `json:"step"`
	Channel   string       `json:"channel"`
	WaitHours int          `json:"wait_hours"`
	Active    bool         `json:"active"`
	CreatedAt time.Time    `json:"created_at"`
}

// ScanSummary reports one reminder scan run.
type ScanSummary struct {
	Sent         int `json:"sent"`
	Errors       int `json:"errors"`
	TotalChecked int `json:"total_checked"`
}

// TickSummary reports one escalation tick run.
type TickSummary struct {
	Attempted      int `json:"attempted"`
	ConfirmedSkips int `json:"confirmed_skips"`
	Exhausted      int `json:"exhausted"`
	Errors         int `json:"errors"`
}
