package conversation

import (
	"fmt"

	"github.com/wolfman30/whatsapp-booking-agent/internal/catalog"
)

// SpamFilter flags off-topic or spam messages.
type SpamFilter interface {
	IsSpam(text string) bool
}

// Triage is the pre-machine spam check. It only screens the opening
// message; once a conversation is underway, answers are never re-triaged.
type Triage struct {
	filter   SpamFilter
	catalog  *catalog.Catalog
	detector *LanguageDetector
}

// NewTriage wires a spam filter to the catalog. A nil filter disables
// triage.
func NewTriage(filter SpamFilter, cat *catalog.Catalog, detector *LanguageDetector) *Triage {
	if cat == nil {
		panic("conversation: catalog cannot be nil")
	}
	if detector == nil {
		detector = NewLanguageDetector(cat)
	}
	return &Triage{filter: filter, catalog: cat, detector: detector}
}

// Check returns a terminal spam transition when the message should be
// declined.
func (t *Triage) Check(in Input) (Transition, bool, error) {
	if t == nil || t.filter == nil || in.Profile.Step != StepGreeting {
		return Transition{}, false, nil
	}
	if !t.filter.IsSpam(in.Message) {
		return Transition{}, false, nil
	}

	lang := in.Profile.Language
	var update Update
	if lang == "" {
		lang = t.detector.Detect(in.Message)
		update.Language = &lang
	}
	text, err := t.catalog.Render(catalog.KeySpamDecline, string(lang), nil)
	if err != nil {
		return Transition{}, false, fmt.Errorf("conversation: render spam decline: %w", err)
	}
	return Transition{Next: StepSpam, Update: update, Response: text}, true, nil
}
