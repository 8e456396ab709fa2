// Package ghl is a small client for the GoHighLevel (LeadConnector) REST
// API covering contacts, calendar slots, appointments and WhatsApp messages.
package ghl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBaseURL = "https://services.leadconnectorhq.com"
	APIVersion     = "2021-07-28"

	maxBackoff = 5 * time.Second
	maxBody    = 1 << 20
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("ghl: not found")

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ghl: status %d: %s", e.StatusCode, e.Body)
}

// Unwrap lets errors.Is(err, ErrNotFound) match 404s.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// retryPolicy reports whether a failed attempt may be sent again.
type retryPolicy func(err error) bool

// retryTransient retries transport errors, 429s and 5xx responses.
func retryTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.retryable()
	}
	return true
}

// retryRejected retries only 429s, which GHL answers before doing any work.
// Non-idempotent writes use it so a timeout or 5xx is never replayed.
func retryRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// Config controls how the client behaves.
type Config struct {
	APIKey     string
	LocationID string
	CalendarID string
	BaseURL    string
	// Location is the business timezone used for slot lookup and labels.
	Location            *time.Location
	AppointmentDuration time.Duration
	// FieldIDs maps profile field names to GHL custom field ids.
	FieldIDs       map[string]string
	RetryAttempts  int
	RetryBaseDelay time.Duration
	HTTPClient     *http.Client
	Logger         *logging.Logger
	Now            func() time.Time
}

// Client wraps the GHL endpoints used by the booking agent.
type Client struct {
	apiKey     string
	locationID string
	calendarID string
	baseURL    string
	loc        *time.Location
	duration   time.Duration
	fieldIDs   map[string]string
	attempts   int
	baseDelay  time.Duration
	httpClient *http.Client
	logger     *logging.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// New creates a configured Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("ghl: API key is required")
	}
	if strings.TrimSpace(cfg.LocationID) == "" {
		return nil, errors.New("ghl: location id is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.AppointmentDuration <= 0 {
		cfg.AppointmentDuration = 30 * time.Minute
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 250 * time.Millisecond
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	fieldIDs := make(map[string]string, len(cfg.FieldIDs))
	for name, id := range cfg.FieldIDs {
		if id = strings.TrimSpace(id); id != "" {
			fieldIDs[name] = id
		}
	}
	return &Client{
		apiKey:     cfg.APIKey,
		locationID: cfg.LocationID,
		calendarID: cfg.CalendarID,
		baseURL:    baseURL,
		loc:        cfg.Location,
		duration:   cfg.AppointmentDuration,
		fieldIDs:   fieldIDs,
		attempts:   cfg.RetryAttempts,
		baseDelay:  cfg.RetryBaseDelay,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		tracer:     otel.Tracer("whatsapp.internal.ghl"),
		now:        cfg.Now,
	}, nil
}

// invoke performs one API call, retrying transient failures. out may be nil.
func (c *Client) invoke(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	return c.invokeWith(ctx, retryTransient, op, method, path, query, body, out)
}

func (c *Client) invokeWith(ctx context.Context, retry retryPolicy, op, method, path string, query url.Values, body, out any) error {
	ctx, span := c.tracer.Start(ctx, "ghl."+op)
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("ghl.path", path))

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ghl: marshal %s body: %w", op, err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		data, err := c.do(ctx, method, endpoint, payload)
		if err == nil {
			if out != nil && len(bytes.TrimSpace(data)) > 0 {
				if err := json.Unmarshal(data, out); err != nil {
					span.RecordError(err)
					return fmt.Errorf("ghl: decode %s response: %w", op, err)
				}
			}
			return nil
		}
		lastErr = err

		if !retry(err) || attempt == c.attempts {
			break
		}
		delay := c.backoff(attempt)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > delay {
			delay = min(apiErr.RetryAfter, maxBackoff)
		}
		c.logger.Warn("ghl call failed, retrying", "op", op, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			return fmt.Errorf("ghl: %s: %w", op, ctx.Err())
		case <-time.After(delay):
		}
	}
	span.RecordError(lastErr)
	return lastErr
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("ghl: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Version", APIVersion)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ghl: %s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("ghl: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return data, &APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return data, nil
}

// parseRetryAfter reads the delay-seconds form of Retry-After.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.baseDelay << (attempt - 1)
	if delay <= 0 || delay > maxBackoff {
		return maxBackoff
	}
	return delay
}
