package messaging

import (
	"context"
	"errors"

	"github.com/wolfman30/whatsapp-booking-agent/internal/conversation"
	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

// FailoverSender attempts a primary send, then falls back to a secondary provider on error.
type FailoverSender struct {
	primary       conversation.Sender
	secondary     conversation.Sender
	primaryName   string
	secondaryName string
	logger        *logging.Logger
}

// NewFailoverSender builds a failover sender with named providers.
func NewFailoverSender(primary conversation.Sender, primaryName string, secondary conversation.Sender, secondaryName string, logger *logging.Logger) *FailoverSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverSender{
		primary:       primary,
		secondary:     secondary,
		primaryName:   primaryName,
		secondaryName: secondaryName,
		logger:        logger,
	}
}

var _ conversation.Sender = (*FailoverSender)(nil)

func (f *FailoverSender) Send(ctx context.Context, msg conversation.OutboundMessage) error {
	if f == nil || f.primary == nil {
		return errors.New("messaging: failover primary sender not configured")
	}
	err := f.primary.Send(ctx, msg)
	if err == nil || f.secondary == nil {
		return err
	}
	f.logger.Warn("primary whatsapp send failed; attempting fallback",
		"provider", f.primaryName,
		"fallback", f.secondaryName,
		"contact_id", msg.ContactID,
		"error", err,
	)
	if fallbackErr := f.secondary.Send(ctx, msg); fallbackErr != nil {
		f.logger.Error("fallback whatsapp send failed",
			"provider", f.secondaryName,
			"contact_id", msg.ContactID,
			"error", fallbackErr,
		)
		return errors.Join(err, fallbackErr)
	}
	return nil
}
