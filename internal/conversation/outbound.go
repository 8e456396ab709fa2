package conversation

import (
	"context"
	"time"
)

// OutboundMessage is a reply pushed back to the customer on WhatsApp.
type OutboundMessage struct {
	ContactID string
	Phone     string
	Text      string
}

// Sender delivers replies to the customer.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// Contact is the CRM's view of a customer.
type Contact struct {
	ID    string
	Phone string
	Name  string
	Email string
}

// ContactUpdate carries the fields written back to the CRM contact. Empty
// fields are not sent; CustomFields are keyed by profile field name.
type ContactUpdate struct {
	ContactID    string
	Name         string
	Email        string
	Tags         []string
	CustomFields map[string]string
}

// ContactService resolves and updates CRM contacts.
type ContactService interface {
	FindOrCreateContact(ctx context.Context, phone string) (Contact, error)
	UpsertContact(ctx context.Context, update ContactUpdate) (Contact, error)
}

// SlotLister returns bookable slots for the next occurrence of day.
type SlotLister interface {
	ListAvailableSlots(ctx context.Context, day time.Weekday) ([]Slot, error)
}

// AppointmentRequest describes the calendar event to create.
type AppointmentRequest struct {
	ContactID string
	Slot      Slot
	Title     string
	Notes     string
}

// Appointment is the calendar's acknowledgement of a booking.
type Appointment struct {
	ID     string
	Status string
	// Existing is set when the calendar already held this contact's event
	// for the slot and nothing new was created.
	Existing bool
}

// CalendarService lists slots and books appointments.
type CalendarService interface {
	SlotLister
	CreateAppointment(ctx context.Context, req AppointmentRequest) (Appointment, error)
}

// Finalizer validates a completed profile and books it.
type Finalizer interface {
	Finalize(ctx context.Context, profile Profile) (BookingResult, error)
}

// MissingFieldsError is implemented by validation failures that name the
// profile fields still to be collected.
type MissingFieldsError interface {
	error
	MissingFields() []string
}
