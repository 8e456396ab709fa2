package conversation

import (
	"context"

	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

// FallbackLLMClient tries primary first and fallback on any error.
type FallbackLLMClient struct {
	primary  LLMClient
	fallback LLMClient
	logger   *logging.Logger
}

var _ LLMClient = (*FallbackLLMClient)(nil)

// NewFallbackLLMClient wraps primary; a nil fallback makes it a passthrough.
func NewFallbackLLMClient(primary, fallback LLMClient, logger *logging.Logger) *FallbackLLMClient {
	if primary == nil {
		panic("conversation: primary llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackLLMClient{primary: primary, fallback: fallback, logger: logger}
}

func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	c.logger.Warn("primary LLM failed", "error", err, "fallback_available", c.fallback != nil)
	if c.fallback == nil {
		return LLMResponse{}, err
	}

	resp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback LLM also failed", "primary_error", err, "fallback_error", fallbackErr)
		return LLMResponse{}, fallbackErr
	}
	return resp, nil
}
