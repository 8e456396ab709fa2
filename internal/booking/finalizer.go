// Package booking validates a completed conversation profile and books the
// consultation in the CRM calendar.
package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/whatsapp-booking-agent/internal/catalog"
	"github.com/wolfman30/whatsapp-booking-agent/internal/conversation"
	"github.com/wolfman30/whatsapp-booking-agent/internal/notify"
	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

// Notifier sends booking emails. Failures never fail a booking.
type Notifier interface {
	NotifyBooking(ctx context.Context, n notify.BookingNotice) error
}

// Config wires the Finalizer.
type Config struct {
	Contacts      conversation.ContactService
	Calendar      conversation.CalendarService
	Catalog       *catalog.Catalog
	Notifier      Notifier
	MinimumBudget float64
	Timeout       time.Duration
	Logger        *logging.Logger
}

// Finalizer performs the single booking attempt of a conversation.
type Finalizer struct {
	contacts conversation.ContactService
	calendar conversation.CalendarService
	catalog  *catalog.Catalog
	notifier Notifier
	minimum  float64
	timeout  time.Duration
	logger   *logging.Logger
}

var _ conversation.Finalizer = (*Finalizer)(nil)

func NewFinalizer(cfg Config) *Finalizer {
	if cfg.Contacts == nil {
		panic("booking: contact service cannot be nil")
	}
	if cfg.Calendar == nil {
		panic("booking: calendar service cannot be nil")
	}
	if cfg.Catalog == nil {
		panic("booking: catalog cannot be nil")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Finalizer{
		contacts: cfg.Contacts,
		calendar: cfg.Calendar,
		catalog:  cfg.Catalog,
		notifier: cfg.Notifier,
		minimum:  cfg.MinimumBudget,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}
}

// Validate reports every field that blocks booking p.
func (f *Finalizer) Validate(p conversation.Profile) error {
	return Validate(p, f.minimum)
}

// Finalize validates p, writes the contact, creates the appointment and
// renders the confirmation. A *ValidationError is returned before any write.
func (f *Finalizer) Finalize(ctx context.Context, p conversation.Profile) (conversation.BookingResult, error) {
	if err := f.Validate(p); err != nil {
		return conversation.BookingResult{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	_, err := f.contacts.UpsertContact(callCtx, contactUpdate(p))
	cancel()
	if err != nil {
		return conversation.BookingResult{}, fmt.Errorf("booking: update contact: %w", err)
	}

	callCtx, cancel = context.WithTimeout(ctx, f.timeout)
	appt, err := f.calendar.CreateAppointment(callCtx, conversation.AppointmentRequest{
		ContactID: p.ContactID,
		Slot:      *p.SelectedSlot,
		Title:     AppointmentTitle(p),
		Notes:     AppointmentNotes(p),
	})
	cancel()
	if err != nil {
		return conversation.BookingResult{}, fmt.Errorf("booking: create appointment: %w", err)
	}
	f.logger.Info("appointment booked", "contact_id", p.ContactID, "appointment_id", appt.ID, "start", p.SelectedSlot.Start, "existing", appt.Existing)

	lang := string(p.Language.OrDefault())
	day := f.catalog.WeekdayName(lang, strings.ToLower(p.PreferredDay.String()))
	confirmation, err := f.catalog.Render(catalog.KeyAppointmentConfirmed, lang, map[string]string{
		"day":   day,
		"time":  p.SelectedSlot.Label,
		"email": p.CustomerEmail,
		"goal":  p.CustomerGoal,
	})
	if err != nil {
		// The appointment exists; the machine falls back to its own rendering.
		f.logger.Error("render confirmation", "contact_id", p.ContactID, "error", err)
	}

	result := conversation.BookingResult{Success: true, BookingID: appt.ID, Confirmation: confirmation}
	f.afterBooking(ctx, p, result, day, !appt.Existing)
	return result, nil
}

// afterBooking records the appointment id on the contact and, for a newly
// created appointment, sends the booking emails. Both are best effort.
func (f *Finalizer) afterBooking(ctx context.Context, p conversation.Profile, result conversation.BookingResult, day string, created bool) {
	if result.BookingID != "" {
		callCtx, cancel := context.WithTimeout(ctx, f.timeout)
		_, err := f.contacts.UpsertContact(callCtx, conversation.ContactUpdate{
			ContactID:    p.ContactID,
			CustomFields: map[string]string{FieldAppointmentID: result.BookingID},
		})
		cancel()
		if err != nil {
			f.logger.Warn("appointment id sync failed", "contact_id", p.ContactID, "error", err)
		}
	}

	if f.notifier == nil || !created {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	err := f.notifier.NotifyBooking(callCtx, notify.BookingNotice{
		CustomerName:  p.CustomerName,
		CustomerEmail: p.CustomerEmail,
		Phone:         p.Phone,
		Goal:          p.CustomerGoal,
		PainPoint:     p.CustomerPainPoint,
		Budget:        FormatBudget(p.CustomerBudget),
		Day:           day,
		Time:          p.SelectedSlot.Label,
		BookingID:     result.BookingID,
		Confirmation:  result.Confirmation,
	})
	if err != nil {
		f.logger.Warn("booking notification failed", "contact_id", p.ContactID, "error", err)
	}
}
