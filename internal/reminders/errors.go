package reminders

import "errors"

var (
	// ErrRecordNotFound is returned when a reminder record does not exist.
	ErrRecordNotFound = errors.New("reminders: record not found")
	// ErrRuleNotFound is returned when an escalation rule does not exist.
	ErrRuleNotFound = errors.New("reminders: escalation rule not found")
	// ErrRuleConflict rejects a second rule for the same (reminder_type, step).
	ErrRuleConflict = errors.New("reminders: escalation rule step already configured")

	ErrInvalidType    = errors.New("reminders: unknown reminder type")
	ErrInvalidTarget  = errors.New("reminders: target kind and id are required")
	ErrInvalidStep    = errors.New("reminders: step must be >= 1")
	ErrInvalidWait    = errors.New("reminders: wait_hours must be >= 0")
	ErrInvalidChannel = errors.New("reminders: unknown channel")
)
