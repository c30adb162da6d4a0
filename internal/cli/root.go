package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gitgpt/gitgpt/internal/agent"
	"github.com/gitgpt/gitgpt/internal/config"
	"github.com/gitgpt/gitgpt/internal/llm/configbuilder"
	"github.com/gitgpt/gitgpt/internal/logging"
	"github.com/gitgpt/gitgpt/internal/version"
)

// Options holds global CLI options.
type Options struct {
	ConfigPath string
	LogLevel   string

	// buildAgent is swapped in tests; nil uses the configured provider.
	buildAgent func(cfg *config.Config, logger *zap.Logger) (*agent.Agent, error)
}

// NewRootCmd constructs the base CLI command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&Options{})
}

func newRootCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gitgpt",
		Short:         "gitgpt – summarize, diagram and question a code repository with an LLM",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Path to config file (default: configs/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	cmd.AddCommand(NewScanCmd(opts))
	cmd.AddCommand(NewSummarizeCmd(opts))
	cmd.AddCommand(NewDiagramCmd(opts))
	cmd.AddCommand(NewAskCmd(opts))
	cmd.AddCommand(NewRemoteCmd(opts))
	cmd.AddCommand(NewDoctorCmd(opts))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig wraps config loading with shared options.
func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if lvl := strings.TrimSpace(opts.LogLevel); lvl != "" {
		cfg.Logging.Level = lvl
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func (o *Options) newAgent(cfg *config.Config, logger *zap.Logger) (*agent.Agent, error) {
	if o.buildAgent != nil {
		return o.buildAgent(cfg, logger)
	}
	return configbuilder.BuildAgentFromConfig(cfg, logger, nil)
}
