package messaging

import (
	"context"
	"sync"

	"github.com/wolfman30/whatsapp-booking-agent/internal/conversation"
	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

// LogSender logs replies instead of delivering them. It keeps the sent
// messages for local inspection.
type LogSender struct {
	logger *logging.Logger

	mu   sync.Mutex
	sent []conversation.OutboundMessage
}

var _ conversation.Sender = (*LogSender)(nil)

func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg conversation.OutboundMessage) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	s.logger.Info("whatsapp reply (not delivered)", "contact_id", msg.ContactID, "phone", msg.Phone, "text", msg.Text)
	return nil
}

// Sent returns a copy of every message passed to Send.
func (s *LogSender) Sent() []conversation.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]conversation.OutboundMessage(nil), s.sent...)
}
