package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/vetclinic-platform/pkg/logging"
)

// ProviderClient posts SMS, WhatsApp, and voice requests to a Twilio-style
// messaging provider: form-encoded POSTs to /messages and /calls under a
// configurable base URL.
type ProviderClient struct {
	baseURL    string
	token      string
	from       string
	httpClient *http.Client
	logger     *logging.Logger
}

// ProviderConfig holds the provider endpoint and credentials.
type ProviderConfig struct {
	BaseURL    string
	Token      string
	FromNumber string
}

// NewProviderClient builds a text/voice sender. It returns nil when no base
// URL is configured so callers can fall back to the stub.
func NewProviderClient(cfg ProviderConfig, logger *logging.Logger) *ProviderClient {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ProviderClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		from:       cfg.FromNumber,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

var _ TextSender = (*ProviderClient)(nil)

// SendText dispatches a single SMS or WhatsApp message, retrying transient
// failures.
func (c *ProviderClient) SendText(ctx context.Context, channel Channel, to, body string) error {
	if to == "" {
		return errors.New("notify: to required")
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("notify: body required")
	}

	from := c.from
	if channel == ChannelWhatsApp {
		to = whatsappAddr(to)
		from = whatsappAddr(from)
	}

	payload := url.Values{}
	payload.Set("To", to)
	payload.Set("From", from)
	payload.Set("Body", body)

	if err := c.post(ctx, "/messages", payload); err != nil {
		return err
	}
	c.logger.Info("provider message sent", "channel", channel, "to", to)
	return nil
}

// Call places an automated voice call that reads body to the recipient.
func (c *ProviderClient) Call(ctx context.Context, to, body string) error {
	if to == "" {
		return errors.New("notify: to required")
	}

	payload := url.Values{}
	payload.Set("To", to)
	payload.Set("From", c.from)
	payload.Set("Body", body)

	if err := c.post(ctx, "/calls", payload); err != nil {
		return err
	}
	c.logger.Info("provider call placed", "to", to)
	return nil
}

func (c *ProviderClient) post(ctx context.Context, path string, payload url.Values) error {
	endpoint := c.baseURL + path

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
		if err != nil {
			return fmt.Errorf("notify: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			lastErr = fmt.Errorf("notify: provider returned %s", formatProviderError(resp.StatusCode, respBody))
			// Don't retry non-rate-limit 4xx errors.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != 429 {
				break
			}
		}

		if attempt < 3 {
			time.Sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
		}
	}
	return lastErr
}

func formatProviderError(status int, body []byte) string {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Sprintf("status %d", status)
	}
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return fmt.Sprintf("status %d: %s", status, msg)
}

func whatsappAddr(number string) string {
	if number == "" || strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

// StubTextSender logs texts and calls without sending them.
type StubTextSender struct {
	logger *logging.Logger
}

// NewStubTextSender creates a stub text sender that logs but doesn't send.
func NewStubTextSender(logger *logging.Logger) *StubTextSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubTextSender{logger: logger}
}

// SendText logs the message but doesn't actually send it.
func (s *StubTextSender) SendText(ctx context.Context, channel Channel, to, body string) error {
	s.logger.Info("stub text sender: would send message", "channel", channel, "to", to)
	return nil
}

// Call logs the call but doesn't actually place it.
func (s *StubTextSender) Call(ctx context.Context, to, body string) error {
	s.logger.Info("stub text sender: would place call", "to", to)
	return nil
}

var _ TextSender = (*StubTextSender)(nil)
