package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/wolfman30/whatsapp-booking-agent/internal/catalog"
	appconfig "github.com/wolfman30/whatsapp-booking-agent/internal/config"
	"github.com/wolfman30/whatsapp-booking-agent/internal/conversation"
	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

// BuildExtractor returns the rule extractor, or in llm mode an LLM
// extractor backed by Gemini with Bedrock as fallback.
func BuildExtractor(ctx context.Context, cfg *appconfig.Config, cat *catalog.Catalog, awsCfg aws.Config, logger *logging.Logger) (conversation.Extractor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	rules := conversation.NewRuleExtractor(cat, cfg.Weekdays(), cfg.MinimumBudget)
	if cfg.ExtractorMode != "llm" {
		return rules, nil
	}

	var primary, fallback conversation.LLMClient
	if cfg.GeminiAPIKey != "" {
		gemini, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		primary = gemini
	}
	if cfg.BedrockModelID != "" {
		fallback = conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
	}

	client := primary
	switch {
	case primary != nil && fallback != nil:
		client = conversation.NewFallbackLLMClient(primary, fallback, logger)
	case primary == nil:
		client = fallback
	}
	if client == nil {
		return nil, fmt.Errorf("bootstrap: llm extractor needs GEMINI_API_KEY or BEDROCK_MODEL_ID")
	}
	logger.Info("using llm extractor", "gemini", primary != nil, "bedrock", fallback != nil)
	return conversation.NewLLMExtractor(client, rules, cfg.CollaboratorTimeout, logger), nil
}
