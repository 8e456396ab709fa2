package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

const llmExtractorSystemPrompt = `You extract one field from a customer's WhatsApp reply to a booking assistant.
Reply with a single JSON object: {"found": true|false, "value": "..."}.
Set found=false when the reply does not contain the requested information.
Never invent values. Keep the customer's own wording for free text.`

// LLMExtractor asks a model for the value of each step and validates the
// answer with the rule extractor. Model failures and malformed replies fall
// back to the rules.
type LLMExtractor struct {
	client  LLMClient
	rules   *RuleExtractor
	timeout time.Duration
	logger  *logging.Logger
}

var _ Extractor = (*LLMExtractor)(nil)

func NewLLMExtractor(client LLMClient, rules *RuleExtractor, timeout time.Duration, logger *logging.Logger) *LLMExtractor {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if rules == nil {
		panic("conversation: rule extractor cannot be nil")
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LLMExtractor{client: client, rules: rules, timeout: timeout, logger: logger}
}

type llmExtraction struct {
	Found bool   `json:"found"`
	Value string `json:"value"`
}

func (e *LLMExtractor) ask(ctx context.Context, field, instruction, text string) (llmExtraction, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Field: %s\nInstruction: %s\n\nCustomer reply:\n%s\n", field, instruction, text)
	resp, err := e.client.Complete(callCtx, LLMRequest{
		System:      llmExtractorSystemPrompt,
		Prompt:      prompt,
		MaxTokens:   200,
		Temperature: 0,
		JSON:        true,
	})
	if err != nil {
		return llmExtraction{}, err
	}
	return parseLLMExtraction(resp.Text)
}

func parseLLMExtraction(raw string) (llmExtraction, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}
	if text == "" {
		return llmExtraction{}, errors.New("conversation: empty extraction response")
	}
	var out llmExtraction
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return llmExtraction{}, fmt.Errorf("conversation: malformed extraction response: %w", err)
	}
	out.Value = strings.TrimSpace(out.Value)
	return out, nil
}

// value returns the model's answer, or ok=false with fallback set when the
// rules should decide instead.
func (e *LLMExtractor) value(ctx context.Context, field, instruction, text string) (value string, ok bool, fallback bool) {
	if strings.TrimSpace(text) == "" {
		return "", false, false
	}
	out, err := e.ask(ctx, field, instruction, text)
	if err != nil {
		e.logger.Warn("llm extraction failed, using rules", "field", field, "error", err)
		return "", false, true
	}
	if !out.Found || out.Value == "" {
		return "", false, false
	}
	return out.Value, true, false
}

func (e *LLMExtractor) Name(ctx context.Context, text string) (string, bool) {
	v, ok, fallback := e.value(ctx, FieldName, "The customer's name as they wrote it, without greetings.", text)
	if fallback {
		return e.rules.Name(ctx, text)
	}
	if !ok {
		return "", false
	}
	return ExtractName(v)
}

func (e *LLMExtractor) Goal(ctx context.Context, text string) (string, bool) {
	v, ok, fallback := e.value(ctx, FieldGoal, "What the customer wants to achieve, in one sentence.", text)
	if fallback {
		return e.rules.Goal(ctx, text)
	}
	if !ok {
		return "", false
	}
	return ExtractFreeText(v)
}

func (e *LLMExtractor) PainPoint(ctx context.Context, text string) (string, bool) {
	v, ok, fallback := e.value(ctx, FieldPainPoint, "The main problem or frustration the customer describes, in one sentence.", text)
	if fallback {
		return e.rules.PainPoint(ctx, text)
	}
	if !ok {
		return "", false
	}
	return ExtractFreeText(v)
}

// Budget lets the model normalise amounts such as "two thousand" into
// digits; the minimum is still enforced by ClassifyBudget.
func (e *LLMExtractor) Budget(ctx context.Context, text string) BudgetResult {
	v, ok, fallback := e.value(ctx, FieldBudget, "The monthly budget as a plain number in dollars, digits only.", text)
	if fallback {
		return e.rules.Budget(ctx, text)
	}
	if !ok {
		return BudgetResult{Status: BudgetMissing}
	}
	return ClassifyBudget(v, e.rules.minimum)
}

// Email and Time are pattern-shaped; the rules are authoritative.
func (e *LLMExtractor) Email(ctx context.Context, text string) (string, bool) {
	return e.rules.Email(ctx, text)
}

func (e *LLMExtractor) Day(ctx context.Context, text string, lang Language) (time.Weekday, bool) {
	if day, ok := e.rules.Day(ctx, text, lang); ok {
		return day, true
	}
	v, ok, _ := e.value(ctx, FieldDay, "The weekday the customer prefers, as an English weekday name such as tuesday.", text)
	if !ok {
		return 0, false
	}
	return e.rules.Day(ctx, v, LanguageEnglish)
}

func (e *LLMExtractor) Time(ctx context.Context, text string, slots []Slot) (Slot, bool) {
	return e.rules.Time(ctx, text, slots)
}
