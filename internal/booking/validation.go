package booking

import (
	"strings"

	"github.com/wolfman30/whatsapp-booking-agent/internal/conversation"
)

// ValidationError lists every profile field that blocks a booking.
type ValidationError struct {
	Missing []string
}

var _ conversation.MissingFieldsError = (*ValidationError)(nil)

func (e *ValidationError) Error() string {
	return "booking: missing required fields: " + strings.Join(e.Missing, ", ")
}

// MissingFields returns the blocking fields in collection order.
func (e *ValidationError) MissingFields() []string {
	return append([]string(nil), e.Missing...)
}

// Validate checks that p can be booked. A budget below minimum or an
// unparseable email count as missing.
func Validate(p conversation.Profile, minimum float64) error {
	missing := p.MissingFields()
	if p.CustomerBudget != nil && *p.CustomerBudget < minimum {
		missing = insertField(missing, conversation.FieldBudget)
	}
	if email := strings.TrimSpace(p.CustomerEmail); email != "" {
		if parsed, ok := conversation.ExtractEmail(email); !ok || parsed != strings.ToLower(email) {
			missing = insertField(missing, conversation.FieldEmail)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &ValidationError{Missing: missing}
}

var fieldOrder = []string{
	conversation.FieldName,
	conversation.FieldGoal,
	conversation.FieldPainPoint,
	conversation.FieldBudget,
	conversation.FieldEmail,
	conversation.FieldDay,
	conversation.FieldTime,
}

// insertField adds field to fields keeping collection order.
func insertField(fields []string, field string) []string {
	present := make(map[string]bool, len(fields)+1)
	for _, f := range fields {
		present[f] = true
	}
	present[field] = true
	out := make([]string, 0, len(present))
	for _, f := range fieldOrder {
		if present[f] {
			out = append(out, f)
		}
	}
	return out
}
