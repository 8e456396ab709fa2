package booking

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wolfman30/whatsapp-booking-agent/internal/conversation"
)

// Contact tags applied to every auto-booked lead.
const (
	TagWhatsAppLead = "whatsapp_lead"
	TagAutoBooked   = "auto_booked"
)

// FieldAppointmentID is the CRM custom field holding the booked event id.
const FieldAppointmentID = "appointment_id"

// AppointmentTitle is the calendar event title for p.
func AppointmentTitle(p conversation.Profile) string {
	return "Consultation - " + strings.TrimSpace(p.CustomerName)
}

// AppointmentNotes summarises the qualification answers for the calendar
// event.
func AppointmentNotes(p conversation.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", valueOrNA(p.CustomerGoal))
	fmt.Fprintf(&b, "Pain: %s\n", valueOrNA(p.CustomerPainPoint))
	fmt.Fprintf(&b, "Budget: %s\n", FormatBudget(p.CustomerBudget))
	fmt.Fprintf(&b, "Language: %s\n", p.Language.OrDefault())
	b.WriteString("Source: WhatsApp")
	return b.String()
}

// FormatBudget renders a budget as "$1,500" or "$99.50".
func FormatBudget(budget *float64) string {
	if budget == nil {
		return "N/A"
	}
	v := *budget
	if v == float64(int64(v)) {
		return "$" + groupThousands(strconv.FormatInt(int64(v), 10))
	}
	whole, frac, _ := strings.Cut(strconv.FormatFloat(v, 'f', 2, 64), ".")
	return "$" + groupThousands(whole) + "." + frac
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// contactUpdate is the CRM write that precedes the appointment.
func contactUpdate(p conversation.Profile) conversation.ContactUpdate {
	fields := map[string]string{
		conversation.FieldPainPoint:   p.CustomerPainPoint,
		conversation.FieldEmail:       p.CustomerEmail,
		conversation.FieldBookingStep: string(conversation.StepScheduled),
		conversation.FieldLanguage:    string(p.Language.OrDefault()),
	}
	if p.CustomerBudget != nil {
		fields[conversation.FieldBudget] = strconv.FormatFloat(*p.CustomerBudget, 'f', -1, 64)
	}
	return conversation.ContactUpdate{
		ContactID:    p.ContactID,
		Name:         p.CustomerName,
		Email:        p.CustomerEmail,
		Tags:         []string{TagWhatsAppLead, TagAutoBooked},
		CustomFields: fields,
	}
}

func valueOrNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
