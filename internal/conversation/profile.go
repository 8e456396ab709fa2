package conversation

import (
	"strings"
	"time"
)

// Step is the current position in the fixed collection sequence.
type Step string

const (
	StepGreeting  Step = "greeting"
	StepName      Step = "name"
	StepGoal      Step = "goal"
	StepPain      Step = "pain"
	StepBudget    Step = "budget"
	StepEmail     Step = "email"
	StepDay       Step = "day"
	StepTime      Step = "time"
	StepScheduled Step = "scheduled"
	StepComplete  Step = "complete"
	StepSpam      Step = "spam"
)

var stepOrder = map[Step]int{
	StepGreeting:  0,
	StepName:      1,
	StepGoal:      2,
	StepPain:      3,
	StepBudget:    4,
	StepEmail:     5,
	StepDay:       6,
	StepTime:      7,
	StepScheduled: 8,
	StepComplete:  8,
	StepSpam:      8,
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	_, ok := stepOrder[s]
	return ok
}

// Terminal reports whether the conversation is over.
func (s Step) Terminal() bool {
	return s == StepScheduled || s == StepComplete || s == StepSpam
}

// Index is the position of s in the collection sequence. Terminal steps
// share the last position; unknown steps return -1.
func (s Step) Index() int {
	if idx, ok := stepOrder[s]; ok {
		return idx
	}
	return -1
}

// Language is a supported conversation language.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageSpanish Language = "es"
)

// OrDefault returns l, or English when l is unset.
func (l Language) OrDefault() Language {
	if l == "" {
		return LanguageEnglish
	}
	return l
}

// Slot is a bookable calendar window with the label shown to the customer.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// BookingResult records the outcome of the one booking attempt a
// conversation gets.
type BookingResult struct {
	Success      bool   `json:"success"`
	BookingID    string `json:"booking_id,omitempty"`
	Error        string `json:"error,omitempty"`
	Confirmation string `json:"confirmation,omitempty"`
}

// Profile is the per-contact conversation state.
type Profile struct {
	ContactID string   `json:"contact_id"`
	Phone     string   `json:"phone"`
	Version   int64    `json:"version"`
	Step      Step     `json:"step"`
	Language  Language `json:"language,omitempty"`

	CustomerName      string   `json:"customer_name,omitempty"`
	CustomerGoal      string   `json:"customer_goal,omitempty"`
	CustomerPainPoint string   `json:"customer_pain_point,omitempty"`
	CustomerBudget    *float64 `json:"customer_budget,omitempty"`
	DeclinedBudget    *float64 `json:"declined_budget,omitempty"`
	CustomerEmail     string   `json:"customer_email,omitempty"`

	PreferredDay   *time.Weekday  `json:"preferred_day,omitempty"`
	PreferredTime  string         `json:"preferred_time,omitempty"`
	AvailableSlots []Slot         `json:"available_slots,omitempty"`
	SelectedSlot   *Slot          `json:"selected_slot,omitempty"`
	BookingResult  *BookingResult `json:"booking_result,omitempty"`

	LastMessageID string `json:"last_message_id,omitempty"`
	LastResponse  string `json:"last_response,omitempty"`

	ConversationStarted time.Time `json:"conversation_started"`
	LastInteraction     time.Time `json:"last_interaction"`
}

// NewProfile seeds a profile at the greeting step.
func NewProfile(contactID, phone string, now time.Time) *Profile {
	return &Profile{
		ContactID:           contactID,
		Phone:               phone,
		Step:                StepGreeting,
		ConversationStarted: now.UTC(),
		LastInteraction:     now.UTC(),
	}
}

// Clone returns a deep copy of p.
func (p Profile) Clone() Profile {
	out := p
	if p.CustomerBudget != nil {
		v := *p.CustomerBudget
		out.CustomerBudget = &v
	}
	if p.DeclinedBudget != nil {
		v := *p.DeclinedBudget
		out.DeclinedBudget = &v
	}
	if p.PreferredDay != nil {
		v := *p.PreferredDay
		out.PreferredDay = &v
	}
	if p.AvailableSlots != nil {
		out.AvailableSlots = append([]Slot(nil), p.AvailableSlots...)
	}
	if p.SelectedSlot != nil {
		v := *p.SelectedSlot
		out.SelectedSlot = &v
	}
	if p.BookingResult != nil {
		v := *p.BookingResult
		out.BookingResult = &v
	}
	return out
}

// Update is the patch the state machine emits. Nil fields are left alone.
type Update struct {
	Language          *Language
	CustomerName      *string
	CustomerGoal      *string
	CustomerPainPoint *string
	CustomerBudget    *float64
	DeclinedBudget    *float64
	CustomerEmail     *string
	PreferredDay      *time.Weekday
	PreferredTime     *string
	// AvailableSlots replaces the offered slots when non-nil.
	AvailableSlots []Slot
	SelectedSlot   *Slot
	BookingResult  *BookingResult
	// ClearDay drops the tentative day and any slots offered for it.
	ClearDay bool
}

// Empty reports whether u changes nothing.
func (u Update) Empty() bool {
	return u.Language == nil && u.CustomerName == nil && u.CustomerGoal == nil &&
		u.CustomerPainPoint == nil && u.CustomerBudget == nil && u.DeclinedBudget == nil &&
		u.CustomerEmail == nil && u.PreferredDay == nil && u.PreferredTime == nil &&
		u.AvailableSlots == nil && u.SelectedSlot == nil && u.BookingResult == nil && !u.ClearDay
}

// Apply returns a copy of p with u applied. Language is only ever set once
// and BookingResult is only ever set once.
func (p Profile) Apply(u Update) Profile {
	out := p.Clone()
	if u.Language != nil && out.Language == "" {
		out.Language = *u.Language
	}
	if u.CustomerName != nil {
		out.CustomerName = *u.CustomerName
	}
	if u.CustomerGoal != nil {
		out.CustomerGoal = *u.CustomerGoal
	}
	if u.CustomerPainPoint != nil {
		out.CustomerPainPoint = *u.CustomerPainPoint
	}
	if u.CustomerBudget != nil {
		v := *u.CustomerBudget
		out.CustomerBudget = &v
	}
	if u.DeclinedBudget != nil {
		v := *u.DeclinedBudget
		out.DeclinedBudget = &v
	}
	if u.CustomerEmail != nil {
		out.CustomerEmail = *u.CustomerEmail
	}
	if u.ClearDay {
		out.PreferredDay = nil
		out.PreferredTime = ""
		out.AvailableSlots = nil
		out.SelectedSlot = nil
	}
	if u.PreferredDay != nil {
		v := *u.PreferredDay
		out.PreferredDay = &v
	}
	if u.PreferredTime != nil {
		out.PreferredTime = *u.PreferredTime
	}
	if u.AvailableSlots != nil {
		out.AvailableSlots = append([]Slot(nil), u.AvailableSlots...)
	}
	if u.SelectedSlot != nil {
		v := *u.SelectedSlot
		out.SelectedSlot = &v
	}
	if u.BookingResult != nil && out.BookingResult == nil {
		v := *u.BookingResult
		out.BookingResult = &v
	}
	return out
}

// Advance applies a transition and stamps the interaction time. The
// version is left for the store to bump.
func (p Profile) Advance(t Transition, now time.Time) Profile {
	out := p.Apply(t.Update)
	if t.Next.Valid() {
		out.Step = t.Next
	}
	out.LastResponse = t.Response
	out.LastInteraction = now.UTC()
	if out.ConversationStarted.IsZero() {
		out.ConversationStarted = now.UTC()
	}
	return out
}

// MissingFields lists the booking fields not yet collected, in collection
// order.
func (p Profile) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(p.CustomerName) == "" {
		missing = append(missing, FieldName)
	}
	if strings.TrimSpace(p.CustomerGoal) == "" {
		missing = append(missing, FieldGoal)
	}
	if strings.TrimSpace(p.CustomerPainPoint) == "" {
		missing = append(missing, FieldPainPoint)
	}
	if p.CustomerBudget == nil {
		missing = append(missing, FieldBudget)
	}
	if strings.TrimSpace(p.CustomerEmail) == "" {
		missing = append(missing, FieldEmail)
	}
	if p.PreferredDay == nil {
		missing = append(missing, FieldDay)
	}
	if p.SelectedSlot == nil {
		missing = append(missing, FieldTime)
	}
	return missing
}

// Profile field names, shared with the CRM field mapping and validation
// messages.
const (
	FieldName      = "customer_name"
	FieldGoal      = "customer_goal"
	FieldPainPoint = "customer_pain_point"
	FieldBudget    = "customer_budget"
	FieldEmail     = "customer_email"
	FieldDay       = "preferred_day"
	FieldTime      = "preferred_time"
)

// StepForField returns the step that collects field.
func StepForField(field string) Step {
	switch field {
	case FieldName:
		return StepName
	case FieldGoal:
		return StepGoal
	case FieldPainPoint:
		return StepPain
	case FieldBudget:
		return StepBudget
	case FieldEmail:
		return StepEmail
	case FieldDay:
		return StepDay
	case FieldTime:
		return StepTime
	}
	return StepGreeting
}
