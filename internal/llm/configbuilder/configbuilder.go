package configbuilder

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/gitgpt/gitgpt/internal/config"
	"github.com/gitgpt/gitgpt/internal/llm"
	llmhf "github.com/gitgpt/gitgpt/internal/llm/providers/huggingface"
	llmopenai "github.com/gitgpt/gitgpt/internal/llm/providers/openai"
)

// BuildProviderFromConfig resolves the configured provider once and wraps it with logging
// and metrics.
func BuildProviderFromConfig(cfg *config.Config, logger *zap.Logger, rec llm.Recorder) (llm.Provider, error) {
	pc := cfg.ProviderConfig()
	p, err := buildProvider(pc)
	if err != nil {
		return nil, err
	}
	return llm.Instrument(p, pc.ModelID, logger, rec), nil
}

func buildProvider(cfg config.ProviderConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return llmopenai.NewProvider(cfg.Provider, cfg.BaseURL, cfg.APIKey, cfg.ModelID, cfg.Timeout), nil
	case config.ProviderHuggingFace:
		return llmhf.NewProvider(cfg.Provider, cfg.BaseURL, cfg.APIKey, cfg.ModelID, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
