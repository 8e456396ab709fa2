package conversation

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/wolfman30/whatsapp-booking-agent/internal/catalog"
)

// MaxFreeTextRunes bounds stored goal and pain-point text.
const MaxFreeTextRunes = 200

// minFreeTextRunes is the length free text must exceed to count as an answer.
const minFreeTextRunes = 5

// BudgetStatus distinguishes "no number given" from "number below minimum".
type BudgetStatus int

const (
	BudgetMissing BudgetStatus = iota
	BudgetFound
	BudgetBelowMinimum
)

// BudgetResult is the outcome of budget extraction.
type BudgetResult struct {
	Status BudgetStatus
	Amount float64
}

// Extractor turns the latest inbound message into a typed value for one
// step. A false second return (or BudgetMissing) means "ask again".
type Extractor interface {
	Name(ctx context.Context, text string) (string, bool)
	Goal(ctx context.Context, text string) (string, bool)
	PainPoint(ctx context.Context, text string) (string, bool)
	Budget(ctx context.Context, text string) BudgetResult
	Email(ctx context.Context, text string) (string, bool)
	Day(ctx context.Context, text string, lang Language) (time.Weekday, bool)
	Time(ctx context.Context, text string, slots []Slot) (Slot, bool)
}

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	amountPattern = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)
	nameLeadIns   = regexp.MustCompile(`(?i)^(?:hi|hello|hey|hola)?[,!.\s]*(?:my name is|my name's|i am|i'm|im|this is|call me|it's|me llamo|mi nombre es|soy)\s+`)
)

// RuleExtractor is the deterministic extractor. It never calls out and
// holds no mutable state, so it is safe for concurrent use.
type RuleExtractor struct {
	catalog *catalog.Catalog
	days    []time.Weekday
	minimum float64
}

var _ Extractor = (*RuleExtractor)(nil)

// NewRuleExtractor builds a rule extractor for the bookable days and
// minimum budget.
func NewRuleExtractor(cat *catalog.Catalog, bookableDays []time.Weekday, minimumBudget float64) *RuleExtractor {
	if cat == nil {
		panic("conversation: catalog cannot be nil")
	}
	return &RuleExtractor{
		catalog: cat,
		days:    append([]time.Weekday(nil), bookableDays...),
		minimum: minimumBudget,
	}
}

// Name accepts up to four words of letters after stripping a lead-in such
// as "my name is".
func (e *RuleExtractor) Name(_ context.Context, text string) (string, bool) {
	return ExtractName(text)
}

// Goal accepts any non-trivial free text.
func (e *RuleExtractor) Goal(_ context.Context, text string) (string, bool) {
	return ExtractFreeText(text)
}

// PainPoint accepts any non-trivial free text.
func (e *RuleExtractor) PainPoint(_ context.Context, text string) (string, bool) {
	return ExtractFreeText(text)
}

// Budget reads the first number in text.
func (e *RuleExtractor) Budget(_ context.Context, text string) BudgetResult {
	return ClassifyBudget(text, e.minimum)
}

// Email returns the first email-shaped token, lowercased.
func (e *RuleExtractor) Email(_ context.Context, text string) (string, bool) {
	return ExtractEmail(text)
}

// Day matches bookable weekday names, trying lang's vocabulary first.
func (e *RuleExtractor) Day(_ context.Context, text string, lang Language) (time.Weekday, bool) {
	return MatchWeekday(e.catalog, text, lang, e.days)
}

// Time matches the first time mention against the offered slots.
func (e *RuleExtractor) Time(_ context.Context, text string, slots []Slot) (Slot, bool) {
	return MatchSlot(text, slots)
}

// ExtractName validates a name reply.
func ExtractName(text string) (string, bool) {
	name := strings.TrimSpace(text)
	name = nameLeadIns.ReplaceAllString(name, "")
	name = strings.TrimRight(strings.TrimSpace(name), ".!,?¡¿ ")
	name = strings.TrimLeft(name, "¡¿ ")
	if utf8.RuneCountInString(name) <= 1 {
		return "", false
	}
	if len(strings.Fields(name)) > 4 {
		return "", false
	}
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsMark(r), unicode.IsSpace(r):
		case r == '-' || r == '\'' || r == '.' || r == '’':
		default:
			return "", false
		}
	}
	return strings.Join(strings.Fields(name), " "), true
}

// ExtractFreeText trims and truncates a goal or pain-point answer.
func ExtractFreeText(text string) (string, bool) {
	value := strings.TrimSpace(text)
	if utf8.RuneCountInString(value) <= minFreeTextRunes {
		return "", false
	}
	return truncateRunes(value, MaxFreeTextRunes), true
}

// ClassifyBudget parses the first number in text against minimum.
func ClassifyBudget(text string, minimum float64) BudgetResult {
	match := amountPattern.FindString(text)
	if match == "" {
		return BudgetResult{Status: BudgetMissing}
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil || amount <= 0 {
		return BudgetResult{Status: BudgetMissing}
	}
	if amount < minimum {
		return BudgetResult{Status: BudgetBelowMinimum, Amount: amount}
	}
	return BudgetResult{Status: BudgetFound, Amount: amount}
}

// ExtractEmail returns the first email address in text, lowercased.
func ExtractEmail(text string) (string, bool) {
	match := emailPattern.FindString(text)
	if match == "" {
		return "", false
	}
	return strings.ToLower(match), true
}

// MatchWeekday finds the first bookable weekday mentioned in text. lang's
// vocabulary is consulted before the other catalog languages.
func MatchWeekday(cat *catalog.Catalog, text string, lang Language, days []time.Weekday) (time.Weekday, bool) {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return 0, false
	}

	langs := []string{string(lang.OrDefault())}
	for _, other := range cat.Languages() {
		if other != langs[0] {
			langs = append(langs, other)
		}
	}

	for _, l := range langs {
		best, bestPos := time.Weekday(0), -1
		for _, day := range days {
			for _, alias := range cat.WeekdayAliases(l, dayKey(day)) {
				if pos := strings.Index(lower, alias); pos >= 0 && (bestPos < 0 || pos < bestPos) {
					best, bestPos = day, pos
				}
			}
		}
		if bestPos >= 0 {
			return best, true
		}
	}
	return 0, false
}

// dayKey is the catalog key for a weekday ("tuesday").
func dayKey(day time.Weekday) string {
	return strings.ToLower(day.String())
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}
