package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/whatsapp-booking-agent/internal/config"
	"github.com/wolfman30/whatsapp-booking-agent/internal/conversation"
	"github.com/wolfman30/whatsapp-booking-agent/internal/ghl"
	"github.com/wolfman30/whatsapp-booking-agent/internal/messaging"
	"github.com/wolfman30/whatsapp-booking-agent/internal/notify"
	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

// BuildSender creates the WhatsApp reply sender selected by
// MESSAGING_PROVIDER.
func BuildSender(cfg *appconfig.Config, client *ghl.Client, logger *logging.Logger) (conversation.Sender, error) {
	return messaging.BuildSender(messaging.ProviderSelectionConfig{
		Preference:       cfg.MessagingProvider,
		GHL:              client,
		TwilioAccountSID: cfg.TwilioAccountSID,
		TwilioAuthToken:  cfg.TwilioAuthToken,
		TwilioFromNumber: cfg.TwilioFromNumber,
	}, logger)
}

// BuildNotifier returns the booking email service, or nil when
// EMAIL_PROVIDER is none.
func BuildNotifier(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) *notify.Service {
	var sender notify.EmailSender
	switch cfg.EmailProvider {
	case "sendgrid":
		if sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sg != nil {
			sender = sg
		}
	case "ses":
		if ses := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.BusinessName,
		}, logger); ses != nil {
			sender = ses
		}
	case "stub":
		sender = notify.NewStubEmailSender(logger)
	}
	if sender == nil {
		return nil
	}
	return notify.NewService(sender, cfg.BusinessName, cfg.NotifyRecipients, logger)
}
