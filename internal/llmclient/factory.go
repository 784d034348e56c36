// internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible/api/schemas"
	"github.com/xkilldash9x/crucible/internal/config"
)

// NewFromConfig wires a tiered Router from the LLM configuration, resolving
// the default fast and powerful model names against the models map.
func NewFromConfig(cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	fastClient, err := newModelClient(cfg, cfg.DefaultFastModel, logger)
	if err != nil {
		return nil, fmt.Errorf("fast tier: %w", err)
	}
	powerfulClient, err := newModelClient(cfg, cfg.DefaultPowerfulModel, logger)
	if err != nil {
		return nil, fmt.Errorf("powerful tier: %w", err)
	}

	return NewRouter(logger, fastClient, powerfulClient, cfg.RequestsPerMinute)
}

func newModelClient(cfg config.LLMConfig, name string, logger *zap.Logger) (schemas.LLMClient, error) {
	modelCfg, ok := cfg.Models[name]
	if !ok {
		return nil, fmt.Errorf("model %q is not defined in llm.models", name)
	}
	if modelCfg.Model == "" {
		modelCfg.Model = name
	}

	switch modelCfg.Provider {
	case config.ProviderGemini, "":
		return NewGeminiClient(modelCfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]",
			modelCfg.Provider, config.ProviderGemini)
	}
}
