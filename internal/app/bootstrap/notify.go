package bootstrap

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/vetclinic-platform/internal/config"
	"github.com/wolfman30/vetclinic-platform/internal/notify"
	"github.com/wolfman30/vetclinic-platform/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-platform/pkg/logging"
)

// BuildEmailSender selects the email transport from config. Misconfigured
// providers fall back to the logging stub rather than failing startup, so a
// clinic without credentials still sees reminders flow in the logs.
func BuildEmailSender(cfg *appconfig.Config, logger *logging.Logger, sesClient *sesv2.Client) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger)
	}

	switch cfg.EmailProvider {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender == nil {
			logger.Warn("EMAIL_PROVIDER=sendgrid but SENDGRID_API_KEY empty; using stub email sender")
			return notify.NewStubEmailSender(logger)
		}
		logger.Info("email sender ready", "provider", "sendgrid", "from", cfg.EmailFromAddress)
		return sender
	case "ses":
		sender := notify.NewSESSender(sesClient, notify.SESConfig{
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender == nil {
			logger.Warn("EMAIL_PROVIDER=ses but no SES client configured; using stub email sender")
			return notify.NewStubEmailSender(logger)
		}
		logger.Info("email sender ready", "provider", "ses", "from", cfg.EmailFromAddress)
		return sender
	default:
		return notify.NewStubEmailSender(logger)
	}
}

// BuildTextSender selects the SMS transport. A blank provider URL means the
// stub.
func BuildTextSender(cfg *appconfig.Config, logger *logging.Logger) notify.TextSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubTextSender(logger)
	}
	client := notify.NewProviderClient(notify.ProviderConfig{
		BaseURL:    cfg.SMSProviderURL,
		Token:      cfg.SMSProviderToken,
		FromNumber: cfg.SMSFromNumber,
	}, logger)
	if client == nil {
		return notify.NewStubTextSender(logger)
	}
	logger.Info("sms sender ready", "provider_url", cfg.SMSProviderURL, "from", cfg.SMSFromNumber)
	return client
}

// BuildDispatcher assembles the channel dispatcher both binaries send
// reminders through.
func BuildDispatcher(cfg *appconfig.Config, logger *logging.Logger, m *metrics.ReminderMetrics, sesClient *sesv2.Client) *notify.Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	timeout := 10 * time.Second
	if cfg != nil && cfg.SendTimeout > 0 {
		timeout = cfg.SendTimeout
	}
	return notify.NewDispatcher(
		BuildEmailSender(cfg, logger, sesClient),
		BuildTextSender(cfg, logger),
		timeout,
		m,
		logger,
	)
}
