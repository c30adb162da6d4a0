package configbuilder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gitgpt/gitgpt/internal/config"
	"github.com/gitgpt/gitgpt/internal/observability"
	llmhf "github.com/gitgpt/gitgpt/internal/llm/providers/huggingface"
	llmopenai "github.com/gitgpt/gitgpt/internal/llm/providers/openai"
)

func TestBuildProviderSelectsVariant(t *testing.T) {
	p, err := buildProvider(config.ProviderConfig{Provider: config.ProviderOpenAI, ModelID: "gpt-5.2", Timeout: time.Second})
	require.NoError(t, err)
	require.IsType(t, &llmopenai.Provider{}, p)

	p, err = buildProvider(config.ProviderConfig{Provider: config.ProviderHuggingFace, ModelID: "org/m"})
	require.NoError(t, err)
	require.IsType(t, &llmhf.Provider{}, p)
	require.Equal(t, "huggingface", p.Name())

	_, err = buildProvider(config.ProviderConfig{Provider: "anthropic"})
	require.Error(t, err)
}

func TestBuildProviderFromConfigInstruments(t *testing.T) {
	cfg := &config.Config{
		Provider:    config.ProviderHuggingFace,
		HuggingFace: config.ProviderEntry{ModelID: "org/m", Timeout: 2 * time.Minute},
	}
	p, err := BuildProviderFromConfig(cfg, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "huggingface", p.Name())
}

func TestBuildAgentFromConfig(t *testing.T) {
	cfg := &config.Config{
		Provider: config.ProviderOpenAI,
		OpenAI:   config.ProviderEntry{ModelID: "gpt-5.2", Timeout: time.Second},
		Scan:     config.ScanConfig{MaxFileBytes: 1000, MaxFiles: 5, DenyDirs: []string{"fixtures"}},
		Agent:    config.AgentConfig{MaxTokens: 100, MaxContextChars: 2000},
	}
	a, err := BuildAgentFromConfig(cfg, nil, observability.NewMetrics())
	require.NoError(t, err)
	require.Nil(t, a.Current())

	opts := ScanOptions(cfg.Scan)
	require.Equal(t, int64(1000), opts.MaxFileBytes)
	require.Equal(t, 5, opts.MaxFiles)
	require.Equal(t, []string{"fixtures"}, opts.DenyDirs)
}
