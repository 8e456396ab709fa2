package conversation

import "context"

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// LLMRequest is a single-turn completion. JSON asks the provider to return
// a bare JSON document.
type LLMRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int32
	Temperature float32
	JSON        bool
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
