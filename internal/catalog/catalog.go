// Package catalog holds the bilingual response templates and the tunable
// vocabulary (spam terms, Spanish lexicon, weekday names) the conversation
// engine reads. The default catalog is embedded; operators may point
// CATALOG_PATH at a replacement document without rebuilding.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultDocument []byte

// Supported language codes.
const (
	English = "en"
	Spanish = "es"
)

// Template keys.
const (
	KeyGreeting             = "greeting"
	KeyAskNameAgain         = "ask_name_again"
	KeyAskGoal              = "ask_goal"
	KeyAskGoalAgain         = "ask_goal_again"
	KeyAskPain              = "ask_pain"
	KeyAskPainAgain         = "ask_pain_again"
	KeyAskBudget            = "ask_budget"
	KeyAskBudgetAgain       = "ask_budget_again"
	KeyBudgetTooLow         = "budget_too_low"
	KeyAskEmail             = "ask_email"
	KeyAskEmailAgain        = "ask_email_again"
	KeyAskDay               = "ask_day"
	KeyAskDayAgain          = "ask_day_again"
	KeyNoSlotsForDay        = "no_slots_for_day"
	KeyAskTime              = "ask_time"
	KeyAskTimeAgain         = "ask_time_again"
	KeyAppointmentConfirmed = "appointment_confirmed"
	KeyBookingFailed        = "booking_failed"
	KeyMissingInfo          = "missing_info"
	KeyConversationComplete = "conversation_complete"
	KeySpamDecline          = "spam_decline"
	KeyHold                 = "hold"
)

type document struct {
	Version           string `yaml:"version"`
	DefaultLanguage   string `yaml:"default_language"`
	LanguageDetection struct {
		MinMatches     int      `yaml:"min_matches"`
		SpanishLexicon []string `yaml:"spanish_lexicon"`
	} `yaml:"language_detection"`
	Triage struct {
		SpamTerms []string `yaml:"spam_terms"`
	} `yaml:"triage"`
	Weekdays  map[string]map[string]weekdayEntry `yaml:"weekdays"`
	Templates map[string]map[string]string       `yaml:"templates"`
	Fields    map[string]map[string]string       `yaml:"fields"`
}

type weekdayEntry struct {
	Display string   `yaml:"display"`
	Aliases []string `yaml:"aliases"`
}

// Catalog is an immutable, parsed conversation catalog. It is safe for
// concurrent use.
type Catalog struct {
	version         string
	defaultLanguage string
	minMatches      int
	lexicon         []string
	spamTerms       []string
	weekdays        map[string]map[string]weekdayEntry
	templates       map[string]map[string]*template.Template
	fields          map[string]map[string]string
}

// Default returns the embedded catalog. It panics if the embedded document
// is invalid, which is a build defect.
func Default() *Catalog {
	c, err := Parse(defaultDocument)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded document invalid: %v", err))
	}
	return c
}

// Load returns the catalog at path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse builds a catalog from a YAML document, compiling every template up
// front so malformed wording fails at startup rather than mid-conversation.
func Parse(raw []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if len(doc.Templates) == 0 {
		return nil, errors.New("catalog: no templates defined")
	}

	c := &Catalog{
		version:         doc.Version,
		defaultLanguage: strings.ToLower(strings.TrimSpace(doc.DefaultLanguage)),
		minMatches:      doc.LanguageDetection.MinMatches,
		weekdays:        doc.Weekdays,
		templates:       make(map[string]map[string]*template.Template, len(doc.Templates)),
		fields:          doc.Fields,
	}
	if c.defaultLanguage == "" {
		c.defaultLanguage = English
	}
	if c.minMatches <= 0 {
		c.minMatches = 1
	}
	for _, term := range doc.LanguageDetection.SpanishLexicon {
		if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
			c.lexicon = append(c.lexicon, term)
		}
	}
	for _, term := range doc.Triage.SpamTerms {
		if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
			c.spamTerms = append(c.spamTerms, term)
		}
	}

	for key, byLang := range doc.Templates {
		compiled := make(map[string]*template.Template, len(byLang))
		for lang, text := range byLang {
			t, err := template.New(key + "." + lang).Option("missingkey=error").Parse(text)
			if err != nil {
				return nil, fmt.Errorf("catalog: parse %s/%s: %w", key, lang, err)
			}
			compiled[lang] = t
		}
		if _, ok := compiled[c.defaultLanguage]; !ok {
			return nil, fmt.Errorf("catalog: template %s has no %s text", key, c.defaultLanguage)
		}
		c.templates[key] = compiled
	}
	return c, nil
}

// Version identifies the loaded catalog document.
func (c *Catalog) Version() string { return c.version }

// Render returns the text for key in lang with vars substituted. Unknown
// keys yield an empty string and no error. A placeholder without a value
// in vars is an error. Languages without their own text fall back to the
// default language.
func (c *Catalog) Render(key, lang string, vars map[string]string) (string, error) {
	byLang, ok := c.templates[key]
	if !ok {
		return "", nil
	}
	t, ok := byLang[lang]
	if !ok {
		t = byLang[c.defaultLanguage]
	}
	if vars == nil {
		vars = map[string]string{}
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("catalog: render %s/%s: %w", key, lang, err)
	}
	return buf.String(), nil
}

// Has reports whether key is defined.
func (c *Catalog) Has(key string) bool {
	_, ok := c.templates[key]
	return ok
}

// SpanishLexicon returns the lowercased detection terms.
func (c *Catalog) SpanishLexicon() []string { return append([]string(nil), c.lexicon...) }

// MinLanguageMatches is the number of lexicon hits that classify a message
// as Spanish.
func (c *Catalog) MinLanguageMatches() int { return c.minMatches }

// SpamTerms returns the lowercased triage blocklist.
func (c *Catalog) SpamTerms() []string { return append([]string(nil), c.spamTerms...) }

// WeekdayAliases returns the aliases for an English weekday key
// ("tuesday") in lang.
func (c *Catalog) WeekdayAliases(lang, day string) []string {
	entry, ok := c.weekdays[lang][strings.ToLower(day)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(entry.Aliases))
	for _, alias := range entry.Aliases {
		out = append(out, strings.ToLower(alias))
	}
	return out
}

// WeekdayName returns the display name of an English weekday key in lang,
// falling back to the default language and then the key itself.
func (c *Catalog) WeekdayName(lang, day string) string {
	day = strings.ToLower(day)
	if entry, ok := c.weekdays[lang][day]; ok && entry.Display != "" {
		return entry.Display
	}
	if entry, ok := c.weekdays[c.defaultLanguage][day]; ok && entry.Display != "" {
		return entry.Display
	}
	return day
}

// Languages lists the languages with weekday vocabulary, default first.
func (c *Catalog) Languages() []string {
	out := []string{c.defaultLanguage}
	rest := make([]string, 0, len(c.weekdays))
	for lang := range c.weekdays {
		if lang != c.defaultLanguage {
			rest = append(rest, lang)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// FieldLabel returns the user-facing label for a profile field name.
func (c *Catalog) FieldLabel(lang, field string) string {
	byLang, ok := c.fields[field]
	if !ok {
		return strings.ReplaceAll(field, "_", " ")
	}
	if label, ok := byLang[lang]; ok {
		return label
	}
	if label, ok := byLang[c.defaultLanguage]; ok {
		return label
	}
	return strings.ReplaceAll(field, "_", " ")
}

// JoinList joins items as a natural-language list in lang
// ("a, b and c" / "a, b y c").
func JoinList(lang string, items []string) string {
	conj := " and "
	if lang == Spanish {
		conj = " y "
	}
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + conj + items[len(items)-1]
	}
}
