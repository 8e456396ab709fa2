package messaging

import (
	"context"
	"errors"

	"github.com/wolfman30/whatsapp-booking-agent/internal/conversation"
	"github.com/wolfman30/whatsapp-booking-agent/internal/ghl"
	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

type ghlMessageAPI interface {
	SendMessage(ctx context.Context, contactID, text string) (ghl.MessageResult, error)
}

// GHLSender delivers replies through the GHL conversations API, which
// routes them to the contact's WhatsApp thread.
type GHLSender struct {
	client ghlMessageAPI
	logger *logging.Logger
}

var _ conversation.Sender = (*GHLSender)(nil)

func NewGHLSender(client ghlMessageAPI, logger *logging.Logger) *GHLSender {
	if client == nil {
		panic("messaging: ghl client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &GHLSender{client: client, logger: logger}
}

func (s *GHLSender) Send(ctx context.Context, msg conversation.OutboundMessage) error {
	if msg.ContactID == "" {
		return errors.New("messaging: ghl sender needs a contact id")
	}
	res, err := s.client.SendMessage(ctx, msg.ContactID, msg.Text)
	if err != nil {
		return err
	}
	s.logger.Debug("ghl whatsapp sent", "contact_id", msg.ContactID, "message_id", res.MessageID)
	return nil
}
