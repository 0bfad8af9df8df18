// Package notify delivers rendered notifications over email, SMS, WhatsApp,
// and voice. Senders are swappable per channel; the Dispatcher picks the
// recipient address, bounds each send with a timeout, and classifies failures
// as TransportError so callers can count them without aborting a batch.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/vetclinic-platform/internal/directory"
	"github.com/wolfman30/vetclinic-platform/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-platform/pkg/logging"
)

// Channel identifies a delivery route for an outbound notification.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelVoice    Channel = "voice"
)

// ValidChannel reports whether ch is a supported delivery channel.
func ValidChannel(ch Channel) bool {
	switch ch {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelVoice:
		return true
	}
	return false
}

// Message is the rendered content of a notification. Subject is only used by
// the email channel.
type Message struct {
	Subject string
	Body    string
}

// ErrNoAddress marks a recipient with no usable address on the requested
// channel. Retrying the same channel cannot succeed.
var ErrNoAddress = errors.New("notify: recipient has no address for channel")

// TransportError wraps a failed channel send so callers can count and classify
// delivery failures without losing the cause.
type TransportError struct {
	Channel Channel
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("notify: %s send failed: %v", e.Channel, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TextSender delivers SMS, WhatsApp, and voice notifications.
type TextSender interface {
	SendText(ctx context.Context, channel Channel, to, body string) error
	Call(ctx context.Context, to, body string) error
}

// Dispatcher routes a message to the sender configured for its channel.
type Dispatcher struct {
	email   EmailSender
	texts   TextSender
	timeout time.Duration
	metrics *metrics.ReminderMetrics
	logger  *logging.Logger
}

// NewDispatcher wires channel senders behind a single Send entry point.
// A nil sender disables its channels; a zero timeout defaults to 10s.
func NewDispatcher(email EmailSender, texts TextSender, timeout time.Duration, m *metrics.ReminderMetrics, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		email:   email,
		texts:   texts,
		timeout: timeout,
		metrics: m,
		logger:  logger,
	}
}

// Send delivers msg to rec over the requested channel. Any failure, including
// a missing address or an unconfigured sender, comes back as *TransportError.
func (d *Dispatcher) Send(ctx context.Context, rec directory.Recipient, channel Channel, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := d.send(ctx, rec, channel, msg)
	d.metrics.ObserveSendDuration(string(channel), time.Since(start).Seconds())
	if err == nil {
		return nil
	}
	d.logger.Warn("notification send failed", "channel", channel, "recipient", rec.Name, "error", err)
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Channel: channel, Err: err}
}

func (d *Dispatcher) send(ctx context.Context, rec directory.Recipient, channel Channel, msg Message) error {
	switch channel {
	case ChannelEmail:
		if d.email == nil {
			return &TransportError{Channel: channel, Err: errors.New("email sender not configured")}
		}
		if rec.Email == "" {
			return &TransportError{Channel: channel, Err: ErrNoAddress}
		}
		return d.email.Send(ctx, EmailMessage{
			To:      rec.Email,
			ToName:  rec.Name,
			Subject: msg.Subject,
			Body:    msg.Body,
		})
	case ChannelSMS, ChannelWhatsApp:
		if d.texts == nil {
			return &TransportError{Channel: channel, Err: errors.New("text sender not configured")}
		}
		to := rec.Phone
		if channel == ChannelWhatsApp && rec.WhatsApp != "" {
			to = rec.WhatsApp
		}
		if to == "" {
			return &TransportError{Channel: channel, Err: ErrNoAddress}
		}
		return d.texts.SendText(ctx, channel, to, msg.Body)
	case ChannelVoice:
		if d.texts == nil {
			return &TransportError{Channel: channel, Err: errors.New("text sender not configured")}
		}
		if rec.Phone == "" {
			return &TransportError{Channel: channel, Err: ErrNoAddress}
		}
		return d.texts.Call(ctx, rec.Phone, msg.Body)
	default:
		return &TransportError{Channel: channel, Err: fmt.Errorf("unknown channel %q", channel)}
	}
}
