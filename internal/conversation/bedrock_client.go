package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockLLMClient implements LLMClient with the Bedrock Converse API.
type BedrockLLMClient struct {
	api     bedrockConverseAPI
	modelID string
}

var _ LLMClient = (*BedrockLLMClient)(nil)

func NewBedrockLLMClient(api bedrockConverseAPI, modelID string) *BedrockLLMClient {
	if api == nil {
		panic("conversation: bedrock converse client cannot be nil")
	}
	return &BedrockLLMClient{api: api, modelID: modelID}
}

func (c *BedrockLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	modelID := c.modelID
	if req.Model != "" {
		modelID = req.Model
	}
	if strings.TrimSpace(modelID) == "" {
		return LLMResponse{}, errors.New("conversation: bedrock model id is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return LLMResponse{}, errors.New("conversation: bedrock requires a prompt")
	}

	var system []brtypes.SystemContentBlock
	if strings.TrimSpace(req.System) != "" {
		system = append(system, &brtypes.SystemContentBlockMemberText{Value: req.System})
	}
	if req.JSON {
		system = append(system, &brtypes.SystemContentBlockMemberText{Value: "Respond with a single JSON object and nothing else."})
	}

	var inference *brtypes.InferenceConfiguration
	if req.MaxTokens > 0 || req.Temperature >= 0 {
		inference = &brtypes.InferenceConfiguration{}
		if req.MaxTokens > 0 {
			inference.MaxTokens = aws.Int32(req.MaxTokens)
		}
		if req.Temperature >= 0 {
			inference.Temperature = aws.Float32(req.Temperature)
		}
	}

	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(modelID),
		System:  system,
		Messages: []brtypes.Message{{
			Role:    brtypes.ConversationRoleUser,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: req.Prompt}},
		}},
		InferenceConfig: inference,
	})
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: bedrock completion failed: %w", err)
	}

	text, err := bedrockOutputText(out)
	if err != nil {
		return LLMResponse{}, err
	}
	resp := LLMResponse{Text: strings.TrimSpace(text), StopReason: string(out.StopReason)}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int32OrZero(out.Usage.InputTokens),
			OutputTokens: int32OrZero(out.Usage.OutputTokens),
			TotalTokens:  int32OrZero(out.Usage.TotalTokens),
		}
	}
	return resp, nil
}

func bedrockOutputText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", errors.New("conversation: bedrock response is nil")
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("conversation: bedrock response did not include a message output")
	}
	var builder strings.Builder
	for _, block := range msg.Value.Content {
		if textBlock, ok := block.(*brtypes.ContentBlockMemberText); ok {
			builder.WriteString(textBlock.Value)
		}
	}
	if builder.Len() == 0 {
		return "", errors.New("conversation: bedrock response message was empty")
	}
	return builder.String(), nil
}

func int32OrZero(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
