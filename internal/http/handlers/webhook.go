package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wolfman30/whatsapp-booking-agent/internal/conversation"
	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

// WebhookSecretHeader carries the shared secret configured on the GHL
// workflow that calls the webhook.
const WebhookSecretHeader = "x-webhook-secret"

const maxWebhookBody = 64 << 10

type messageHandler interface {
	Handle(ctx context.Context, msg conversation.InboundMessage) (conversation.Result, error)
}

type latencyObserver interface {
	ObserveWebhookLatency(status string, seconds float64)
}

// GHLWebhookRequest is the payload posted by the GHL "inbound WhatsApp
// message" workflow.
type GHLWebhookRequest struct {
	Message        string `json:"message" validate:"required"`
	Phone          string `json:"phone" validate:"required"`
	ConversationID string `json:"conversationId"`
	Type           string `json:"type"`
	LocationID     string `json:"locationId"`
	ContactID      string `json:"contactId"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	MessageType    string `json:"messageType"`
	Direction      string `json:"direction"`
	MessageID      string `json:"messageId"`
	DateAdded      string `json:"dateAdded"`
}

// GHLWebhookResponse is returned to GHL for every accepted request.
type GHLWebhookResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	ThreadID  string    `json:"thread_id"`
	Timestamp time.Time `json:"timestamp"`
}

// WebhookConfig wires the GHL webhook handler.
type WebhookConfig struct {
	Handler    messageHandler
	Secret     string
	Region     string
	LocationID string
	Timeout    time.Duration
	Metrics    latencyObserver
	Logger     *logging.Logger
	Now        func() time.Time
}

// WebhookHandler verifies and decodes GHL webhooks and hands each inbound
// message to the orchestrator.
type WebhookHandler struct {
	handler    messageHandler
	secret     []byte
	region     string
	locationID string
	timeout    time.Duration
	metrics    latencyObserver
	validate   *validator.Validate
	logger     *logging.Logger
	now        func() time.Time
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Handler == nil {
		panic("handlers: message handler cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &WebhookHandler{
		handler:    cfg.Handler,
		secret:     []byte(cfg.Secret),
		region:     cfg.Region,
		locationID: cfg.LocationID,
		timeout:    cfg.Timeout,
		metrics:    cfg.Metrics,
		validate:   validator.New(),
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
}

// ServeHTTP handles POST /webhook/ghl.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "rejected"
	defer func() {
		if h.metrics != nil {
			h.metrics.ObserveWebhookLatency(status, time.Since(start).Seconds())
		}
	}()

	if !h.authorized(r) {
		h.logger.Warn("webhook secret mismatch", "remote_ip", r.RemoteAddr)
		jsonError(w, "invalid webhook secret", http.StatusUnauthorized)
		return
	}

	var req GHLWebhookRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody))
	if err := dec.Decode(&req); err != nil {
		jsonError(w, "invalid payload", http.StatusBadRequest)
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			jsonError(w, "invalid field: "+verrs[0].Field(), http.StatusBadRequest)
			return
		}
		jsonError(w, "invalid payload", http.StatusBadRequest)
		return
	}

	threadID := firstNonEmpty(req.ConversationID, req.ContactID, req.Phone)
	if strings.EqualFold(req.Direction, "outbound") {
		status = "ignored"
		writeJSON(w, http.StatusOK, h.response("ignored", "outbound message ignored", threadID))
		return
	}
	if h.locationID != "" && req.LocationID != "" && req.LocationID != h.locationID {
		h.logger.Warn("webhook for foreign location", "location_id", req.LocationID)
		jsonError(w, "unknown location", http.StatusForbidden)
		return
	}

	phone, err := normalizeE164(req.Phone, h.region)
	if err != nil {
		jsonError(w, "invalid field: Phone", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	result, err := h.handler.Handle(ctx, conversation.InboundMessage{
		Phone:          phone,
		Text:           req.Message,
		ContactID:      strings.TrimSpace(req.ContactID),
		ConversationID: strings.TrimSpace(req.ConversationID),
		MessageID:      deliveryID(req),
	})
	switch {
	case errors.Is(err, conversation.ErrInvalidMessage):
		jsonError(w, "invalid message", http.StatusBadRequest)
		return
	case err != nil:
		// GHL redelivers on 5xx; the orchestrator dedupes the retry.
		status = string(conversation.StatusHeld)
		h.logger.Error("webhook message held", "thread_id", threadID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, h.response(status, result.Response, threadID))
		return
	}

	status = string(result.Status)
	h.logger.Info("webhook processed",
		"thread_id", threadID,
		"contact_id", result.ContactID,
		"status", result.Status,
		"next_step", result.NextStep,
	)
	writeJSON(w, http.StatusOK, h.response(status, result.Response, threadID))
}

func (h *WebhookHandler) authorized(r *http.Request) bool {
	if len(h.secret) == 0 {
		return false
	}
	got := []byte(r.Header.Get(WebhookSecretHeader))
	return subtle.ConstantTimeCompare(got, h.secret) == 1
}

func (h *WebhookHandler) response(status, message, threadID string) GHLWebhookResponse {
	return GHLWebhookResponse{
		Status:    status,
		Message:   message,
		ThreadID:  threadID,
		Timestamp: h.now().UTC(),
	}
}

// deliveryID identifies a webhook delivery for dedupe. GHL only sometimes
// sends a message id; the conversation id plus dateAdded is stable across
// redeliveries of the same message.
func deliveryID(req GHLWebhookRequest) string {
	if id := strings.TrimSpace(req.MessageID); id != "" {
		return id
	}
	if req.ConversationID != "" && req.DateAdded != "" {
		return req.ConversationID + ":" + req.DateAdded
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
