package configbuilder

import (
	"go.uber.org/zap"

	"github.com/gitgpt/gitgpt/internal/agent"
	"github.com/gitgpt/gitgpt/internal/config"
	"github.com/gitgpt/gitgpt/internal/llm"
	"github.com/gitgpt/gitgpt/internal/observability"
	"github.com/gitgpt/gitgpt/internal/scan"
)

// ScanOptions converts the scan section into scanner options.
func ScanOptions(cfg config.ScanConfig) scan.Options {
	return scan.Options{
		MaxFileBytes: cfg.MaxFileBytes,
		SampleBytes:  cfg.SampleBytes,
		MaxFiles:     cfg.MaxFiles,
		DenyDirs:     cfg.DenyDirs,
	}
}

// BuildAgentFromConfig wires the configured provider, scanner, logger and metrics into a
// ready Agent. metrics may be nil.
func BuildAgentFromConfig(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (*agent.Agent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var rec llm.Recorder
	if metrics != nil {
		rec = metrics
	}
	provider, err := BuildProviderFromConfig(cfg, logger, rec)
	if err != nil {
		return nil, err
	}
	scanner := scan.NewScanner(ScanOptions(cfg.Scan), scan.WithLogger(logger.Named("scan")))
	return agent.New(provider, cfg.Agent,
		agent.WithLogger(logger.Named("agent")),
		agent.WithMetrics(metrics),
		agent.WithScanner(scanner),
	)
}
