package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/whatsapp-booking-agent/internal/conversation"
	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

var twilioSendTracer = otel.Tracer("whatsapp.internal.messaging.twilio_send")

const (
	twilioAPIBase     = "https://api.twilio.com"
	twilioMaxAttempts = 3
	whatsappPrefix    = "whatsapp:"
)

// TwilioWhatsAppSender posts WhatsApp messages using Twilio's REST API.
type TwilioWhatsAppSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	sleep      func(time.Duration)
}

// NewTwilioWhatsAppSender builds a sender with sane defaults. from is the
// WhatsApp-enabled sender number, with or without the whatsapp: prefix.
func NewTwilioWhatsAppSender(accountSID, authToken, from string, logger *logging.Logger) *TwilioWhatsAppSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioWhatsAppSender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    twilioAPIBase,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
		sleep:  time.Sleep,
	}
}

var _ conversation.Sender = (*TwilioWhatsAppSender)(nil)

func whatsappAddress(number string) string {
	number = strings.TrimSpace(number)
	if number == "" || strings.HasPrefix(number, whatsappPrefix) {
		return number
	}
	return whatsappPrefix + number
}

// Send dispatches a single WhatsApp message, retrying transient failures.
func (s *TwilioWhatsAppSender) Send(ctx context.Context, msg conversation.OutboundMessage) error {
	if s.accountSID == "" || s.authToken == "" {
		return errors.New("messaging: twilio credentials missing")
	}
	if strings.TrimSpace(msg.Phone) == "" {
		return errors.New("messaging: phone required")
	}
	if strings.TrimSpace(s.from) == "" {
		return errors.New("messaging: from required")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return errors.New("messaging: body required")
	}

	ctx, span := twilioSendTracer.Start(ctx, "messaging.twilio.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("whatsapp.contact_id", msg.ContactID),
		attribute.String("whatsapp.to", msg.Phone),
	)

	payload := url.Values{}
	payload.Set("To", whatsappAddress(msg.Phone))
	payload.Set("From", whatsappAddress(s.from))
	payload.Set("Body", msg.Text)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)

	var lastErr error
	for attempt := 1; attempt <= twilioMaxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
		if err != nil {
			lastErr = err
			break
		}
		req.SetBasicAuth(s.accountSID, s.authToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				var parsed struct {
					SID string `json:"sid"`
				}
				_ = json.Unmarshal(body, &parsed)
				s.logger.Info("twilio whatsapp sent", "contact_id", msg.ContactID, "sid", parsed.SID)
				return nil
			}
			lastErr = fmt.Errorf("messaging: twilio send failed: %s", formatTwilioError(resp.StatusCode, body))
			// Don't retry non-rate-limit 4xx errors.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				break
			}
		}

		if attempt < twilioMaxAttempts {
			if ctx.Err() != nil {
				lastErr = ctx.Err()
				break
			}
			s.sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
	}
	return lastErr
}

type twilioAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func formatTwilioError(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, trimmed)
}
