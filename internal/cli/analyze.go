package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gitgpt/gitgpt/internal/agent"
)

// analyzeFlags are shared by summarize, diagram and ask.
type analyzeFlags struct {
	branch     string
	output     string
	retries    int
	retryDelay time.Duration
}

func (f *analyzeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.branch, "branch", "", "Branch to clone when the argument is a git URL")
	cmd.Flags().StringVarP(&f.output, "output", "o", "text", "Output format: text or json")
	cmd.Flags().IntVar(&f.retries, "retries", 0, "Retry rate-limited, timed-out or network failures this many times")
	cmd.Flags().DurationVar(&f.retryDelay, "retry-delay", 2*time.Second, "Base delay between retries; attempt n waits n times this")
}

// NewSummarizeCmd produces a project summary.
func NewSummarizeCmd(opts *Options) *cobra.Command {
	flags := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "summarize <path|url>",
		Short: "Summarize a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalysis(cmd, opts, flags, args[0], func(ctx context.Context, a *agent.Agent) agent.Response {
				return a.Summarize(ctx)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

// NewDiagramCmd produces Mermaid diagram source.
func NewDiagramCmd(opts *Options) *cobra.Command {
	flags := &analyzeFlags{}
	var (
		diagramType string
		focus       string
	)
	cmd := &cobra.Command{
		Use:   "diagram <path|url>",
		Short: "Generate a Mermaid diagram of a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := agent.ParseDiagramType(diagramType)
			if err != nil {
				return err
			}
			return runAnalysis(cmd, opts, flags, args[0], func(ctx context.Context, a *agent.Agent) agent.Response {
				return a.GenerateDiagram(ctx, agent.DiagramRequest{Type: dt, Focus: focus})
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&diagramType, "type", "t", string(agent.DiagramArchitecture), "Diagram type: architecture, flowchart, sequence, class or data_flow")
	cmd.Flags().StringVar(&focus, "focus", "", "Area of the codebase to focus on")
	return cmd
}

// NewAskCmd answers a question about a repository.
func NewAskCmd(opts *Options) *cobra.Command {
	flags := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "ask <path|url> <question>",
		Short: "Ask a question about a repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := args[1]
			return runAnalysis(cmd, opts, flags, args[0], func(ctx context.Context, a *agent.Agent) agent.Response {
				return a.Answer(ctx, question)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func runAnalysis(cmd *cobra.Command, opts *Options, flags *analyzeFlags, target string, op func(context.Context, *agent.Agent) agent.Response) error {
	if err := checkOutput(flags.output, "text", "json"); err != nil {
		return err
	}
	if flags.retries < 0 {
		return fmt.Errorf("--retries cannot be negative")
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort

	ctx := cmd.Context()
	a, err := opts.newAgent(cfg, logger)
	if err != nil {
		return err
	}

	dir, cleanup, err := acquire(ctx, target, flags.branch, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := a.Load(ctx, dir); err != nil {
		return err
	}

	resp := withRetries(ctx, flags.retries, flags.retryDelay, logger, func() agent.Response {
		return op(ctx, a)
	})
	if er, ok := resp.(agent.ErrorResponse); ok {
		return er
	}
	return writeResponse(cmd.OutOrStdout(), cmd.ErrOrStderr(), resp, flags.output)
}

// withRetries re-runs fn while it fails with a retryable kind, waiting delay*attempt
// between tries. The last response is returned either way.
func withRetries(ctx context.Context, retries int, delay time.Duration, logger *zap.Logger, fn func() agent.Response) agent.Response {
	for attempt := 1; ; attempt++ {
		resp := fn()
		er, ok := resp.(agent.ErrorResponse)
		if !ok || !er.ErrKind.Retryable() || attempt > retries {
			return resp
		}
		wait := delay * time.Duration(attempt)
		logger.Warn("retrying operation",
			zap.String("kind", string(er.ErrKind)),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
		)
		select {
		case <-ctx.Done():
			return resp
		case <-time.After(wait):
		}
	}
}

func writeResponse(out, errOut io.Writer, resp agent.Response, output string) error {
	if output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(struct {
			Kind   string         `json:"kind"`
			Result agent.Response `json:"result"`
		}{resp.Kind(), resp})
	}

	var meta agent.Meta
	switch r := resp.(type) {
	case agent.Summary:
		fmt.Fprintln(out, r.Text)
		meta = r.Meta
	case agent.Diagram:
		if r.BestEffort {
			fmt.Fprintf(errOut, "warning: diagram does not start with %q; showing it as returned\n", r.Type.RootKeyword())
		}
		fmt.Fprintln(out, r.Source)
		meta = r.Meta
	case agent.Answer:
		fmt.Fprintln(out, r.Text)
		if len(r.Sources) > 0 {
			fmt.Fprintln(out, "\nSources:")
			for _, s := range r.Sources {
				fmt.Fprintf(out, "  - %s\n", s)
			}
		}
		meta = r.Meta
	default:
		return fmt.Errorf("unexpected response %q", resp.Kind())
	}
	if meta.Truncated {
		fmt.Fprintf(errOut, "note: context truncated to %d files\n", meta.IncludedFiles)
	}
	return nil
}
