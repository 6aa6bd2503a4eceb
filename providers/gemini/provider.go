// Package gemini adapts Google's Gemini API to the orchestrator's
// Provider interface via the official google.golang.org/genai SDK.
package gemini

import (
	"context"
	"fmt"

	"github.com/limmutable/orchestrator/providers"
	"github.com/limmutable/orchestrator/orchestrator"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Provider wraps one Gemini model behind orchestrator.Provider.
type Provider struct {
	client  *genai.Client
	model   string
	logger  *zap.Logger
}

// New builds a Gemini provider. apiKey is resolved by the caller
// (credentials package) before construction; Provider never reads
// environment variables itself.
func New(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	return &Provider{client: client, model: model, logger: logger}, nil
}

func (p *Provider) Name() orchestrator.ProviderID { return "gemini" }

// Extract sends text (plus optional context) as a single-turn prompt
// and parses the model's JSON response into an ExtractionResult.
func (p *Provider) Extract(ctx context.Context, text, extractionContext, emailID string) (orchestrator.ExtractionResult, orchestrator.TokenUsage, error) {
	prompt := providers.BuildPrompt(text, extractionContext)

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), nil)
	if err != nil {
		return orchestrator.ExtractionResult{}, orchestrator.TokenUsage{}, fmt.Errorf("gemini: %w", err)
	}

	result, err := providers.ParseResponse(p.Name(), resp.Text())
	if err != nil {
		return orchestrator.ExtractionResult{}, orchestrator.TokenUsage{}, err
	}
	result.EmailID = emailID

	usage := orchestrator.TokenUsage{}
	if resp.UsageMetadata != nil {
		usage.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}

	return result, usage, nil
}

