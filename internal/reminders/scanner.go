package reminders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/vetclinic-platform/internal/directory"
	"github.com/wolfman30/vetclinic-platform/internal/notify"
	"github.com/wolfman30/vetclinic-platform/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-platform/internal/scheduling"
	"github.com/wolfman30/vetclinic-platform/pkg/logging"
)

// AppointmentSource is the slice of the calendar the scanner reads and marks.
type AppointmentSource interface {
	ListDueForReminder(ctx context.Context, from, to time.Time) ([]scheduling.Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// OwnerSource looks up the owner behind an appointment.
type OwnerSource interface {
	GetOwner(ctx context.Context, id uuid.UUID) (*directory.Owner, error)
}

// RecordCreator persists the generic record that hands an appointment over
// to the escalation ladder.
type RecordCreator interface {
	CreateRecord(ctx context.Context, r *Record) error
}

// Sender delivers one message on one channel. Satisfied by
// *notify.Dispatcher.
type Sender interface {
	Send(ctx context.Context, rec directory.Recipient, channel notify.Channel, msg notify.Message) error
}

// Scanner finds appointments entering the reminder lead window and sends
// their first reminder. Delivery is at-least-once: the sent flag is only set
// after a successful send, so a failure leaves the appointment for the next
// scan.
type Scanner struct {
	appts     AppointmentSource
	owners    OwnerSource
	records   RecordCreator
	sender    Sender
	leadHours int
	metrics   *metrics.ReminderMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewScanner creates the reminder scanner. leadHours <= 0 falls back to 24.
func NewScanner(appts AppointmentSource, owners OwnerSource, records RecordCreator, sender Sender, leadHours int, m *metrics.ReminderMetrics, logger *logging.Logger) *Scanner {
	if leadHours <= 0 {
		leadHours = 24
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scanner{
		appts:     appts,
		owners:    owners,
		records:   records,
		sender:    sender,
		leadHours: leadHours,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Scan processes every appointment starting within the lead window that has
// no reminder yet. leadHours <= 0 uses the configured default. Per-item
// failures are counted and never abort the batch.
func (s *Scanner) Scan(ctx context.Context, leadHours int) (ScanSummary, error) {
	if leadHours <= 0 {
		leadHours = s.leadHours
	}
	started := s.now()
	from := started
	to := started.Add(time.Duration(leadHours) * time.Hour)

	due, err := s.appts.ListDueForReminder(ctx, from, to)
	if err != nil {
		return ScanSummary{}, err
	}

	var summary ScanSummary
	summary.TotalChecked = len(due)

	for i := range due {
		appt := &due[i]
		if err := s.remind(ctx, appt); err != nil {
			summary.Errors++
			s.logger.Warn("reminder send failed",
				"appointment_id", appt.ID, "owner_id", appt.OwnerID, "error", err)
			continue
		}
		summary.Sent++
	}

	s.metrics.ObserveScan(summary.TotalChecked, summary.Sent, summary.Errors, time.Since(started).Seconds())
	s.logger.Info("reminder scan finished",
		"checked", summary.TotalChecked, "sent", summary.Sent, "errors", summary.Errors,
		"lead_hours", leadHours)
	return summary, nil
}

func (s *Scanner) remind(ctx context.Context, appt *scheduling.Appointment) error {
	owner, err := s.owners.GetOwner(ctx, appt.OwnerID)
	if err != nil {
		return err
	}

	channel := preferredChannel(owner)
	rec := directory.Recipient{
		Name:     owner.Name,
		Email:    owner.Email,
		Phone:    owner.Phone,
		WhatsApp: owner.WhatsApp,
	}
	msg := RenderMessage(TypeAppointment, channel, owner.Name, appt.ScheduledStart, "")

	if err := s.sender.Send(ctx, rec, channel, msg); err != nil {
		s.metrics.ObserveAttempt(string(channel), "error")
		return err
	}
	s.metrics.ObserveAttempt(string(channel), "sent")

	now := s.now().UTC()
	marked, err := s.appts.MarkReminderSent(ctx, appt.ID, now)
	if err != nil {
		return err
	}
	if !marked {
		// Another scan got here first; it also owns the ladder record.
		return nil
	}

	record := &Record{
		Type:              TypeAppointment,
		TargetKind:        directory.KindAppointment,
		TargetID:          appt.ID,
		ScheduledFor:      appt.ScheduledStart,
		Sent:              true,
		ChannelsAttempted: []string{string(channel)},
		LastAttemptAt:     &now,
	}
	if err := s.records.CreateRecord(ctx, record); err != nil {
		// The reminder itself went out; the ladder just has no record to
		// climb. Surface it without failing the item twice.
		s.logger.Error("reminder record creation failed", "appointment_id", appt.ID, "error", err)
	}
	return nil
}

// preferredChannel returns the owner's preferred channel when it is usable,
// email otherwise.
func preferredChannel(o *directory.Owner) notify.Channel {
	ch := notify.Channel(strings.ToLower(strings.TrimSpace(o.PreferredChannel)))
	if !notify.ValidChannel(ch) {
		return notify.ChannelEmail
	}
	switch ch {
	case notify.ChannelSMS, notify.ChannelVoice:
		if o.Phone == "" {
			return notify.ChannelEmail
		}
	case notify.ChannelWhatsApp:
		if o.WhatsApp == "" && o.Phone == "" {
			return notify.ChannelEmail
		}
	}
	return ch
}
