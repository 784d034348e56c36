// api/schemas/interfaces.go
package schemas

import "context"

// ModelTier allows for selecting a large language model based on a preference
// for speed versus capability, rather than naming a concrete model.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions tunes a single generation request.
type GenerationOptions struct {
	Temperature     float32 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
}

// GenerationRequest encapsulates a complete request to the LLM, including the
// system prompt, the user prompt, and the desired model tier.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient is the single boundary through which all model calls flow. The
// solver treats it as one blocking request per state transition; callers may
// layer their own retry or backoff behind this interface.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}
