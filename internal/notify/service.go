package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

// BookingNotice describes a booked consultation.
type BookingNotice struct {
	CustomerName  string
	CustomerEmail string
	Phone         string
	Goal          string
	PainPoint     string
	Budget        string
	Day           string
	Time          string
	BookingID     string
	// Confirmation is the text already sent to the customer on WhatsApp.
	Confirmation string
}

// Service sends booking emails: a confirmation to the customer and a
// summary to the team.
type Service struct {
	email       EmailSender
	business    string
	teamInboxes []string
	logger      *logging.Logger
}

// NewService creates a notification service. A nil email sender disables
// all notifications.
func NewService(email EmailSender, business string, teamInboxes []string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:       email,
		business:    business,
		teamInboxes: append([]string(nil), teamInboxes...),
		logger:      logger,
	}
}

// NotifyBooking sends the customer confirmation and the team summary.
// Every recipient is attempted; failures are joined.
func (s *Service) NotifyBooking(ctx context.Context, n BookingNotice) error {
	if s == nil || s.email == nil {
		return nil
	}

	var errs []error
	if strings.TrimSpace(n.CustomerEmail) != "" {
		msg := EmailMessage{
			To:      n.CustomerEmail,
			ToName:  n.CustomerName,
			Subject: fmt.Sprintf("Your consultation with %s is confirmed", s.business),
			Body:    customerBody(s.business, n),
		}
		if err := s.email.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}

	if len(s.teamInboxes) > 0 {
		subject := fmt.Sprintf("New WhatsApp booking - %s", n.CustomerName)
		body := teamBody(n)
		for _, recipient := range s.teamInboxes {
			if err := s.email.Send(ctx, EmailMessage{To: recipient, Subject: subject, Body: body}); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		s.logger.Warn("notify: booking notifications failed", "failed", len(errs), "booking_id", n.BookingID)
		return fmt.Errorf("notify: %d notification(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func customerBody(business string, n BookingNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", n.CustomerName)
	if n.Confirmation != "" {
		b.WriteString(n.Confirmation)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "When: %s at %s\n", n.Day, n.Time)
	if n.Goal != "" {
		fmt.Fprintf(&b, "Topic: %s\n", n.Goal)
	}
	fmt.Fprintf(&b, "\n%s", business)
	return b.String()
}

func teamBody(n BookingNotice) string {
	return fmt.Sprintf(`A consultation was booked over WhatsApp.

Name: %s
Phone: %s
Email: %s
When: %s at %s
Goal: %s
Pain: %s
Budget: %s
Booking ID: %s`, n.CustomerName, n.Phone, n.CustomerEmail, n.Day, n.Time, n.Goal, n.PainPoint, n.Budget, n.BookingID)
}
