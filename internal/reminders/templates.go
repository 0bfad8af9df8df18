package reminders

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/vetclinic-platform/internal/notify"
)

const clinicName = "Pawsitive Vet Clinic"

// RenderMessage builds the outbound notification for a reminder. name is the
// recipient's display name; custom is the record's free-form message,
// appended after the templated line when present. Voice gets a spoken
// variant without the reply hint.
func RenderMessage(t ReminderType, channel notify.Channel, name string, scheduledFor time.Time, custom string) notify.Message {
	when := scheduledFor.Format("Monday, January 2 at 3:04 PM")

	var subject, line string
	switch t {
	case TypeVaccination:
		subject = "Vaccination due"
		line = fmt.Sprintf("a vaccination is due for your pet on %s", when)
	case TypePrescription:
		subject = "Prescription refill due"
		line = fmt.Sprintf("a prescription refill is due on %s", when)
	case TypeFollowup:
		subject = "How is your pet doing?"
		line = "we'd like to check in after your recent visit"
	default:
		subject = "Appointment reminder"
		line = fmt.Sprintf("you have an appointment at %s on %s", clinicName, when)
	}

	var sb strings.Builder
	if channel == notify.ChannelVoice {
		sb.WriteString(fmt.Sprintf("This is an automated call from %s. ", clinicName))
		sb.WriteString(capitalize(line))
		sb.WriteString(".")
	} else {
		sb.WriteString(fmt.Sprintf("Hi %s, %s.", name, line))
	}
	if custom != "" {
		sb.WriteString(" ")
		sb.WriteString(custom)
	}
	if channel != notify.ChannelVoice {
		sb.WriteString(" Please reply to confirm.")
	}

	return notify.Message{Subject: subject, Body: sb.String()}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
