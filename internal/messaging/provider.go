package messaging

import (
	"fmt"
	"strings"

	"github.com/wolfman30/whatsapp-booking-agent/internal/conversation"
	"github.com/wolfman30/whatsapp-booking-agent/internal/ghl"
	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

const (
	// ProviderGHL sends through the GHL conversations API.
	ProviderGHL = "ghl"
	// ProviderTwilio sends through Twilio's WhatsApp API.
	ProviderTwilio = "twilio"
	// ProviderFailover tries GHL first, then Twilio.
	ProviderFailover = "failover"
	// ProviderLog only logs replies.
	ProviderLog = "log"
)

// ProviderSelectionConfig captures what is needed to build a Sender.
type ProviderSelectionConfig struct {
	Preference       string
	GHL              *ghl.Client
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
}

// BuildSender instantiates the Sender named by cfg.Preference.
func BuildSender(cfg ProviderSelectionConfig, logger *logging.Logger) (conversation.Sender, error) {
	if logger == nil {
		logger = logging.Default()
	}
	preference := strings.ToLower(strings.TrimSpace(cfg.Preference))
	if preference == "" {
		preference = ProviderGHL
	}

	var ghlSender, twilioSender conversation.Sender
	if cfg.GHL != nil {
		ghlSender = NewGHLSender(cfg.GHL, logger)
	}
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioFromNumber != "" {
		twilioSender = NewTwilioWhatsAppSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	}

	switch preference {
	case ProviderLog:
		return NewLogSender(logger), nil
	case ProviderGHL:
		if ghlSender == nil {
			return nil, fmt.Errorf("messaging: %s sender needs a ghl client", preference)
		}
		return ghlSender, nil
	case ProviderTwilio:
		if twilioSender == nil {
			return nil, fmt.Errorf("messaging: %s sender needs TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_WHATSAPP_FROM", preference)
		}
		return twilioSender, nil
	case ProviderFailover:
		if ghlSender == nil || twilioSender == nil {
			return nil, fmt.Errorf("messaging: %s sender needs both ghl and twilio", preference)
		}
		return NewFailoverSender(ghlSender, ProviderGHL, twilioSender, ProviderTwilio, logger), nil
	default:
		return nil, fmt.Errorf("messaging: unknown provider %q", preference)
	}
}
