package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/wolfman30/whatsapp-booking-agent/internal/catalog"
	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

// Input is one inbound message against the profile as loaded.
type Input struct {
	Message string
	Profile Profile
}

// Transition is the machine's decision for one message.
type Transition struct {
	Next     Step
	Update   Update
	Response string
	// Retry is set when extraction failed and the step re-prompted.
	Retry bool
	// Booked is set when the Finalizer was invoked, whatever its outcome.
	Booked bool
}

// MachineConfig wires the state machine.
type MachineConfig struct {
	Catalog       *catalog.Catalog
	Extractor     Extractor
	Detector      *LanguageDetector
	Slots         SlotLister
	Finalizer     Finalizer
	MinimumBudget float64
	BookableDays  []time.Weekday
	BusinessName  string
	MaxSlots      int
	Logger        *logging.Logger
}

// Machine is the step state machine. Step performs exactly one transition
// and never writes anything itself; the orchestrator persists the result.
type Machine struct {
	catalog   *catalog.Catalog
	extractor Extractor
	detector  *LanguageDetector
	slots     SlotLister
	finalizer Finalizer
	minimum   float64
	days      []time.Weekday
	business  string
	maxSlots  int
	logger    *logging.Logger
}

// NewMachine validates cfg and returns a machine. A nil Extractor selects
// the deterministic RuleExtractor.
func NewMachine(cfg MachineConfig) *Machine {
	if cfg.Catalog == nil {
		panic("conversation: catalog cannot be nil")
	}
	if cfg.Slots == nil {
		panic("conversation: slot lister cannot be nil")
	}
	if cfg.Finalizer == nil {
		panic("conversation: finalizer cannot be nil")
	}
	if len(cfg.BookableDays) == 0 {
		panic("conversation: at least one bookable day is required")
	}
	if cfg.Extractor == nil {
		cfg.Extractor = NewRuleExtractor(cfg.Catalog, cfg.BookableDays, cfg.MinimumBudget)
	}
	if cfg.Detector == nil {
		cfg.Detector = NewLanguageDetector(cfg.Catalog)
	}
	if cfg.MaxSlots <= 0 || cfg.MaxSlots > MaxOfferedSlots {
		cfg.MaxSlots = MaxOfferedSlots
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Machine{
		catalog:   cfg.Catalog,
		extractor: cfg.Extractor,
		detector:  cfg.Detector,
		slots:     cfg.Slots,
		finalizer: cfg.Finalizer,
		minimum:   cfg.MinimumBudget,
		days:      append([]time.Weekday(nil), cfg.BookableDays...),
		business:  cfg.BusinessName,
		maxSlots:  cfg.MaxSlots,
		logger:    cfg.Logger,
	}
}

// Step computes the transition for in. Only the value relevant to the
// current step is read from the message. Errors are collaborator or
// rendering failures; extraction misses are reported as Retry.
func (m *Machine) Step(ctx context.Context, in Input) (Transition, error) {
	p := in.Profile
	lang := p.Language.OrDefault()

	switch p.Step {
	case StepGreeting:
		return m.greeting(in)
	case StepName:
		name, ok := m.extractor.Name(ctx, in.Message)
		if !ok {
			return m.retry(p.Step, lang, catalog.KeyAskNameAgain, nil)
		}
		return m.advance(StepGoal, Update{CustomerName: &name}, lang, catalog.KeyAskGoal, map[string]string{"name": name})
	case StepGoal:
		goal, ok := m.extractor.Goal(ctx, in.Message)
		if !ok {
			return m.retry(p.Step, lang, catalog.KeyAskGoalAgain, nil)
		}
		return m.advance(StepPain, Update{CustomerGoal: &goal}, lang, catalog.KeyAskPain, nil)
	case StepPain:
		pain, ok := m.extractor.PainPoint(ctx, in.Message)
		if !ok {
			return m.retry(p.Step, lang, catalog.KeyAskPainAgain, nil)
		}
		return m.advance(StepBudget, Update{CustomerPainPoint: &pain}, lang, catalog.KeyAskBudget, nil)
	case StepBudget:
		return m.budget(ctx, in, lang)
	case StepEmail:
		email, ok := m.extractor.Email(ctx, in.Message)
		if !ok {
			return m.retry(p.Step, lang, catalog.KeyAskEmailAgain, nil)
		}
		return m.advance(StepDay, Update{CustomerEmail: &email}, lang, catalog.KeyAskDay, m.daysVars(lang))
	case StepDay:
		return m.selectDay(ctx, in, lang)
	case StepTime:
		return m.selectTime(ctx, in, lang)
	case StepScheduled, StepComplete, StepSpam:
		return m.advance(p.Step, Update{}, lang, catalog.KeyConversationComplete, nil)
	default:
		return Transition{}, fmt.Errorf("conversation: unknown step %q", p.Step)
	}
}

func (m *Machine) greeting(in Input) (Transition, error) {
	var update Update
	lang := in.Profile.Language
	if lang == "" {
		lang = m.detector.Detect(in.Message)
		update.Language = &lang
	}
	return m.advance(StepName, update, lang, catalog.KeyGreeting, map[string]string{"business": m.business})
}

func (m *Machine) budget(ctx context.Context, in Input, lang Language) (Transition, error) {
	result := m.extractor.Budget(ctx, in.Message)
	switch result.Status {
	case BudgetFound:
		amount := result.Amount
		return m.advance(StepEmail, Update{CustomerBudget: &amount}, lang, catalog.KeyAskEmail, nil)
	case BudgetBelowMinimum:
		declined := result.Amount
		return m.advance(StepComplete, Update{DeclinedBudget: &declined}, lang, catalog.KeyBudgetTooLow,
			map[string]string{"minimum": formatAmount(m.minimum)})
	default:
		return m.retry(StepBudget, lang, catalog.KeyAskBudgetAgain, nil)
	}
}

func (m *Machine) selectDay(ctx context.Context, in Input, lang Language) (Transition, error) {
	day, ok := m.extractor.Day(ctx, in.Message, lang)
	if !ok {
		return m.retry(StepDay, lang, catalog.KeyAskDayAgain, m.daysVars(lang))
	}

	slots, err := m.slots.ListAvailableSlots(ctx, day)
	if err != nil {
		return Transition{}, collaboratorError("list slots for "+day.String(), err)
	}
	dayName := m.catalog.WeekdayName(string(lang), dayKey(day))

	if len(slots) == 0 {
		vars := m.daysVars(lang)
		vars["day"] = dayName
		t, err := m.advance(StepDay, Update{ClearDay: true}, lang, catalog.KeyNoSlotsForDay, vars)
		t.Retry = true
		return t, err
	}

	if len(slots) > m.maxSlots {
		slots = slots[:m.maxSlots]
	}
	update := Update{PreferredDay: &day, AvailableSlots: slots}
	return m.advance(StepTime, update, lang, catalog.KeyAskTime, map[string]string{
		"day":   dayName,
		"times": catalog.JoinList(string(lang), SlotLabels(slots)),
	})
}

func (m *Machine) selectTime(ctx context.Context, in Input, lang Language) (Transition, error) {
	p := in.Profile
	if len(p.AvailableSlots) == 0 || p.PreferredDay == nil {
		// Slots were lost; offer the days again.
		m.logger.Warn("time step without offered slots", "contact_id", p.ContactID)
		return m.advance(StepDay, Update{ClearDay: true}, lang, catalog.KeyAskDay, m.daysVars(lang))
	}

	dayName := m.catalog.WeekdayName(string(lang), dayKey(*p.PreferredDay))
	slot, ok := m.extractor.Time(ctx, in.Message, p.AvailableSlots)
	if !ok {
		return m.retry(StepTime, lang, catalog.KeyAskTimeAgain, map[string]string{
			"day":   dayName,
			"times": catalog.JoinList(string(lang), SlotLabels(p.AvailableSlots)),
		})
	}

	label := slot.Label
	selection := Update{SelectedSlot: &slot, PreferredTime: &label}
	candidate := p.Apply(selection)
	candidate.Step = StepScheduled

	result, err := m.finalizer.Finalize(ctx, candidate)
	if err != nil {
		var missing MissingFieldsError
		if errors.As(err, &missing) {
			return m.collectMissing(missing.MissingFields(), lang)
		}
		m.logger.Error("booking failed", "contact_id", p.ContactID, "error", err)
		selection.BookingResult = &BookingResult{Success: false, Error: err.Error()}
		t, rerr := m.advance(StepComplete, selection, lang, catalog.KeyBookingFailed, nil)
		t.Booked = true
		return t, rerr
	}

	selection.BookingResult = &result
	response := result.Confirmation
	if response == "" {
		response, err = m.catalog.Render(catalog.KeyAppointmentConfirmed, string(lang), map[string]string{
			"day":   dayName,
			"time":  label,
			"email": p.CustomerEmail,
			"goal":  p.CustomerGoal,
		})
		if err != nil {
			return Transition{}, fmt.Errorf("conversation: render confirmation: %w", err)
		}
	}
	return Transition{Next: StepScheduled, Update: selection, Response: response, Booked: true}, nil
}

// collectMissing routes back to the first step whose field is missing.
func (m *Machine) collectMissing(fields []string, lang Language) (Transition, error) {
	next := StepTime
	labels := make([]string, 0, len(fields))
	for i, field := range fields {
		if i == 0 {
			next = StepForField(field)
		}
		labels = append(labels, m.catalog.FieldLabel(string(lang), field))
	}
	t, err := m.advance(next, Update{ClearDay: next == StepDay}, lang, catalog.KeyMissingInfo, map[string]string{
		"fields": catalog.JoinList(string(lang), labels),
	})
	t.Retry = true
	return t, err
}

func (m *Machine) advance(next Step, update Update, lang Language, key string, vars map[string]string) (Transition, error) {
	text, err := m.catalog.Render(key, string(lang), vars)
	if err != nil {
		return Transition{}, fmt.Errorf("conversation: render %s: %w", key, err)
	}
	return Transition{Next: next, Update: update, Response: text}, nil
}

func (m *Machine) retry(step Step, lang Language, key string, vars map[string]string) (Transition, error) {
	t, err := m.advance(step, Update{}, lang, key, vars)
	t.Retry = true
	return t, err
}

func (m *Machine) daysVars(lang Language) map[string]string {
	names := make([]string, 0, len(m.days))
	for _, day := range m.days {
		names = append(names, m.catalog.WeekdayName(string(lang), dayKey(day)))
	}
	return map[string]string{"days": catalog.JoinList(string(lang), names)}
}

func formatAmount(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
