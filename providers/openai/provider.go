// Package openai adapts OpenAI's chat completion API to the
// orchestrator's Provider interface via the official openai-go client.
package openai

import (
	"context"
	"fmt"

	"github.com/limmutable/orchestrator/orchestrator"
	"github.com/limmutable/orchestrator/providers"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

// Provider wraps one OpenAI chat model behind orchestrator.Provider.
type Provider struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

// New builds an OpenAI provider for modelID (e.g. "gpt-4o").
func New(apiKey, modelID string, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  modelID,
		logger: logger,
	}
}

func (p *Provider) Name() orchestrator.ProviderID { return "openai" }

// Extract sends text (plus optional context) as a single-turn chat
// completion and parses the model's JSON response into an
// ExtractionResult.
func (p *Provider) Extract(ctx context.Context, text, extractionContext, emailID string) (orchestrator.ExtractionResult, orchestrator.TokenUsage, error) {
	prompt := providers.BuildPrompt(text, extractionContext)

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return orchestrator.ExtractionResult{}, orchestrator.TokenUsage{}, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return orchestrator.ExtractionResult{}, orchestrator.TokenUsage{}, fmt.Errorf("openai: empty response")
	}

	result, err := providers.ParseResponse(p.Name(), resp.Choices[0].Message.Content)
	if err != nil {
		return orchestrator.ExtractionResult{}, orchestrator.TokenUsage{}, err
	}
	result.EmailID = emailID

	usage := orchestrator.TokenUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	return result, usage, nil
}
