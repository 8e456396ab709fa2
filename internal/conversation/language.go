package conversation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/wolfman30/whatsapp-booking-agent/internal/catalog"
)

// LanguageDetector classifies a message as Spanish when it contains enough
// lexicon entries; everything else is English.
type LanguageDetector struct {
	words      []string
	runes      []rune
	minMatches int
}

// NewLanguageDetector builds a detector from the catalog lexicon.
// Single-character entries (diacritics, inverted punctuation) match
// anywhere; longer entries match whole words or phrases.
func NewLanguageDetector(cat *catalog.Catalog) *LanguageDetector {
	if cat == nil {
		panic("conversation: catalog cannot be nil")
	}
	d := &LanguageDetector{minMatches: cat.MinLanguageMatches()}
	for _, term := range cat.SpanishLexicon() {
		if utf8.RuneCountInString(term) == 1 {
			r, _ := utf8.DecodeRuneInString(term)
			d.runes = append(d.runes, r)
			continue
		}
		d.words = append(d.words, " "+strings.Join(strings.Fields(term), " ")+" ")
	}
	if d.minMatches <= 0 {
		d.minMatches = 1
	}
	return d
}

// Detect returns the language of text.
func (d *LanguageDetector) Detect(text string) Language {
	if d.Matches(text) >= d.minMatches {
		return LanguageSpanish
	}
	return LanguageEnglish
}

// Matches counts distinct lexicon entries present in text.
func (d *LanguageDetector) Matches(text string) int {
	lower := strings.ToLower(text)
	padded := " " + strings.Join(strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsMark(r) && !unicode.IsDigit(r)
	}), " ") + " "

	count := 0
	for _, word := range d.words {
		if strings.Contains(padded, word) {
			count++
		}
	}
	for _, r := range d.runes {
		if strings.ContainsRune(lower, r) {
			count++
		}
	}
	return count
}
