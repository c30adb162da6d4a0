package cli

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/gitgpt/gitgpt/internal/config"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			pc := cfg.ProviderConfig()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Provider: %s, model: %s\n", pc.Provider, pc.ModelID)
			fmt.Fprintf(out, "Endpoint: %s, timeout: %s, API key: %s\n", pc.BaseURL, pc.Timeout, config.MaskSecret(pc.APIKey))
			fmt.Fprintf(out, "Context budget: %d chars", cfg.Agent.MaxContextChars)
			if cfg.Agent.MaxContextTokens > 0 {
				fmt.Fprintf(out, ", %d tokens", cfg.Agent.MaxContextTokens)
			}
			fmt.Fprintf(out, "; scan limit: %d files of %d bytes\n", cfg.Scan.MaxFiles, cfg.Scan.MaxFileBytes)

			git := "found"
			if _, err := exec.LookPath("git"); err != nil {
				git = "missing (remote repositories unavailable)"
			}
			fmt.Fprintf(out, "git: %s\n", git)
			fmt.Fprintf(out, "Daemon: %s (%s), metrics: %v\n", cfg.Server.Addr, cfg.Server.Transport, cfg.Server.MetricsEnabled)
			return nil
		},
	}
}
