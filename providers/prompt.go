// Package providers holds the shared request/response shape for the
// three vendor-backed Provider implementations (gemini, anthropic,
// openai). Prompt template and response parsing are intentionally
// minimal: extraction quality tuning is out of scope for the
// fault-tolerance core these providers plug into.
package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/limmutable/orchestrator/errclass"
	"github.com/limmutable/orchestrator/orchestrator"
)

// BuildPrompt renders the single extraction prompt every provider
// sends, asking for a flat JSON object with the five fields plus a
// confidence sub-object.
func BuildPrompt(text, extractionContext string) string {
	var sb strings.Builder
	sb.WriteString("Extract the meeting/email metadata below as a single JSON object ")
	sb.WriteString("with exactly these keys: person, startup, partner, details, date, ")
	sb.WriteString("and confidence (an object with the same five keys, each a number in [0,1]). ")
	sb.WriteString("Use null for any field you cannot determine, paired with confidence 0. ")
	sb.WriteString("Respond with JSON only, no surrounding prose.\n\n")
	if extractionContext != "" {
		sb.WriteString("Context: ")
		sb.WriteString(extractionContext)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Text:\n")
	sb.WriteString(text)
	return sb.String()
}

type rawExtraction struct {
	Person     *string        `json:"person"`
	Startup    *string        `json:"startup"`
	Partner    *string        `json:"partner"`
	Details    *string        `json:"details"`
	Date       *string        `json:"date"`
	Confidence rawConfidence  `json:"confidence"`
}

type rawConfidence struct {
	Person  float64 `json:"person"`
	Startup float64 `json:"startup"`
	Partner float64 `json:"partner"`
	Details float64 `json:"details"`
	Date    float64 `json:"date"`
}

// ParseResponse decodes a provider's raw JSON text into an
// ExtractionResult. A model response wrapped in a markdown code fence
// is unwrapped first, since every vendor occasionally ignores the
// "JSON only" instruction.
func ParseResponse(id orchestrator.ProviderID, raw string) (orchestrator.ExtractionResult, error) {
	raw = stripCodeFence(raw)

	var parsed rawExtraction
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return orchestrator.ExtractionResult{}, &errclass.ValidationError{
			Field:  "response",
			Reason: fmt.Sprintf("could not parse %s response as JSON: %v", id, err),
		}
	}

	return orchestrator.ExtractionResult{
		Person:  parsed.Person,
		Startup: parsed.Startup,
		Partner: parsed.Partner,
		Details: parsed.Details,
		Date:    parsed.Date,
		Confidence: orchestrator.FieldConfidence{
			Person:  parsed.Confidence.Person,
			Startup: parsed.Confidence.Startup,
			Partner: parsed.Confidence.Partner,
			Details: parsed.Confidence.Details,
			Date:    parsed.Confidence.Date,
		},
		Provider: id,
	}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
