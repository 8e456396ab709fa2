package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalogHasEveryKeyInBothLanguages(t *testing.T) {
	c := Default()
	if c.Version() == "" {
		t.Fatal("expected catalog version")
	}
	keys := []string{
		KeyGreeting, KeyAskNameAgain, KeyAskGoal, KeyAskGoalAgain, KeyAskPain, KeyAskPainAgain,
		KeyAskBudget, KeyAskBudgetAgain, KeyBudgetTooLow, KeyAskEmail, KeyAskEmailAgain,
		KeyAskDay, KeyAskDayAgain, KeyNoSlotsForDay, KeyAskTime, KeyAskTimeAgain,
		KeyAppointmentConfirmed, KeyBookingFailed, KeyMissingInfo, KeyConversationComplete,
		KeySpamDecline, KeyHold,
	}
	vars := map[string]string{
		"name": "Ana", "goal": "more leads", "day": "Tuesday", "times": "10:00 AM",
		"time": "10:00 AM", "email": "a@b.co", "minimum": "300", "days": "Tuesday",
		"fields": "your email", "business": "AI Outlet Media",
	}
	for _, key := range keys {
		if !c.Has(key) {
			t.Fatalf("missing template %s", key)
		}
		for _, lang := range []string{English, Spanish} {
			out, err := c.Render(key, lang, vars)
			if err != nil {
				t.Fatalf("render %s/%s: %v", key, lang, err)
			}
			if strings.TrimSpace(out) == "" {
				t.Fatalf("empty render for %s/%s", key, lang)
			}
		}
	}
}

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	c := Default()
	out, err := c.Render(KeyAskGoal, English, map[string]string{"name": "Jaime"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasPrefix(out, "Nice to meet you Jaime!") {
		t.Fatalf("unexpected output %q", out)
	}
	out, err = c.Render(KeyBudgetTooLow, Spanish, map[string]string{"minimum": "300"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "$300/mes") {
		t.Fatalf("expected minimum in spanish text, got %q", out)
	}
}

func TestRenderUnknownKeyIsEmpty(t *testing.T) {
	out, err := Default().Render("does_not_exist", English, nil)
	if err != nil || out != "" {
		t.Fatalf("expected empty string without error, got %q %v", out, err)
	}
}

func TestRenderMissingPlaceholderFails(t *testing.T) {
	if _, err := Default().Render(KeyAskTime, English, map[string]string{"day": "Tuesday"}); err == nil {
		t.Fatal("expected error for missing times placeholder")
	}
}

func TestRenderFallsBackToDefaultLanguage(t *testing.T) {
	c := Default()
	out, err := c.Render(KeyConversationComplete, "fr", nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	en, _ := c.Render(KeyConversationComplete, English, nil)
	if out != en {
		t.Fatalf("expected english fallback, got %q", out)
	}
}

func TestVocabulary(t *testing.T) {
	c := Default()
	if c.MinLanguageMatches() != 1 {
		t.Fatalf("expected min matches 1, got %d", c.MinLanguageMatches())
	}
	if !contains(c.SpanishLexicon(), "hola") {
		t.Fatal("expected hola in lexicon")
	}
	if !contains(c.SpamTerms(), "casino") {
		t.Fatal("expected casino in spam terms")
	}
	if !contains(c.WeekdayAliases(Spanish, "wednesday"), "miercoles") {
		t.Fatal("expected unaccented miercoles alias")
	}
	if got := c.WeekdayName(Spanish, "Friday"); got != "viernes" {
		t.Fatalf("expected viernes, got %q", got)
	}
	if got := c.WeekdayName("fr", "friday"); got != "Friday" {
		t.Fatalf("expected english fallback, got %q", got)
	}
	if langs := c.Languages(); len(langs) != 2 || langs[0] != English || langs[1] != Spanish {
		t.Fatalf("unexpected languages %v", langs)
	}
	if got := c.FieldLabel(Spanish, "customer_email"); got != "tu correo electrónico" {
		t.Fatalf("unexpected field label %q", got)
	}
	if got := c.FieldLabel(English, "unknown_field"); got != "unknown field" {
		t.Fatalf("unexpected fallback label %q", got)
	}
}

func TestParseRejectsBadDocuments(t *testing.T) {
	tests := map[string]string{
		"not yaml":        "templates: [",
		"no templates":    "version: x\n",
		"bad template":    "templates:\n  greeting:\n    en: \"{{.name\"\n",
		"missing default": "templates:\n  greeting:\n    es: hola\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestLoadOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := "version: test\ntriage:\n  spam_terms: [Forex]\ntemplates:\n  greeting:\n    en: Howdy\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Version() != "test" || !contains(c.SpamTerms(), "forex") {
		t.Fatalf("unexpected override catalog %+v", c)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestJoinList(t *testing.T) {
	if got := JoinList(English, []string{"a", "b", "c"}); got != "a, b and c" {
		t.Fatalf("unexpected %q", got)
	}
	if got := JoinList(Spanish, []string{"a", "b"}); got != "a y b" {
		t.Fatalf("unexpected %q", got)
	}
	if got := JoinList(English, nil); got != "" {
		t.Fatalf("unexpected %q", got)
	}
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
