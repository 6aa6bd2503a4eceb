// Package anthropic adapts Claude to the orchestrator's Provider
// interface via the official anthropic-sdk-go client.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/limmutable/orchestrator/orchestrator"
	"github.com/limmutable/orchestrator/providers"
	"go.uber.org/zap"
)

// Provider wraps one Claude model behind orchestrator.Provider.
type Provider struct {
	client anthropic.Client
	model  anthropic.Model
	logger *zap.Logger
}

// New builds a Claude provider for modelID (e.g. "claude-sonnet-4-5").
func New(apiKey, modelID string, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(modelID),
		logger: logger,
	}
}

func (p *Provider) Name() orchestrator.ProviderID { return "claude" }

// Extract sends text (plus optional context) as a single-turn message
// and parses Claude's JSON response into an ExtractionResult.
func (p *Provider) Extract(ctx context.Context, text, extractionContext, emailID string) (orchestrator.ExtractionResult, orchestrator.TokenUsage, error) {
	prompt := providers.BuildPrompt(text, extractionContext)

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return orchestrator.ExtractionResult{}, orchestrator.TokenUsage{}, fmt.Errorf("claude: %w", err)
	}

	var raw string
	for _, block := range msg.Content {
		if block.Type == "text" {
			raw += block.Text
		}
	}

	result, err := providers.ParseResponse(p.Name(), raw)
	if err != nil {
		return orchestrator.ExtractionResult{}, orchestrator.TokenUsage{}, err
	}
	result.EmailID = emailID

	usage := orchestrator.TokenUsage{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
	return result, usage, nil
}
