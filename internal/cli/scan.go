package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gitgpt/gitgpt/internal/llm/configbuilder"
	"github.com/gitgpt/gitgpt/internal/repo"
	"github.com/gitgpt/gitgpt/internal/scan"
)

// NewScanCmd lists the files that would be sent to the provider, without calling it.
func NewScanCmd(opts *Options) *cobra.Command {
	var (
		branch        string
		output        string
		includeHidden bool
	)

	cmd := &cobra.Command{
		Use:   "scan <path|url>",
		Short: "Scan a repository and report included files and statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output, "text", "json", "yaml"); err != nil {
				return err
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

			dir, cleanup, err := acquire(cmd.Context(), args[0], branch, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			scanOpts := configbuilder.ScanOptions(cfg.Scan)
			scanOpts.IncludeHidden = includeHidden
			res, err := scan.NewScanner(scanOpts, scan.WithLogger(logger.Named("scan"))).Scan(cmd.Context(), dir)
			if err != nil {
				return err
			}
			return writeScan(cmd.OutOrStdout(), res, output)
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "", "Branch to clone when the argument is a git URL")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")
	cmd.Flags().BoolVar(&includeHidden, "include-hidden", false, "Descend into hidden directories that are not deny-listed")
	return cmd
}

// acquire resolves target to a local directory, shallow-cloning git URLs. cleanup is
// always non-nil.
func acquire(ctx context.Context, target, branch string, logger *zap.Logger) (string, func(), error) {
	noop := func() {}
	if !repo.IsRemote(target) {
		return target, noop, nil
	}
	cloner := &repo.Cloner{Logger: logger.Named("repo")}
	co, err := cloner.Clone(ctx, target, branch)
	if err != nil {
		return "", noop, err
	}
	return co.Dir, releaseFunc(co, logger), nil
}

// releaseFunc removes the clone, logging the directory it held on failure.
func releaseFunc(co *repo.Checkout, logger *zap.Logger) func() {
	dir := co.Dir
	return func() {
		if err := co.Cleanup(); err != nil {
			logger.Warn("remove clone", zap.String("dir", dir), zap.Error(err))
		}
	}
}

func checkOutput(output string, allowed ...string) error {
	for _, a := range allowed {
		if output == a {
			return nil
		}
	}
	return fmt.Errorf("--output must be one of %s, got %q", strings.Join(allowed, ", "), output)
}

func writeScan(w io.Writer, res *scan.Result, output string) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return err
		}
		return enc.Close()
	}

	md := res.Metadata
	fmt.Fprintf(w, "Root: %s\n", res.Root)
	fmt.Fprintf(w, "Files: %d (%d bytes), excluded: %d\n", md.TotalFiles, md.TotalSizeBytes, md.ExcludedFiles)
	if md.FileLimitReached {
		fmt.Fprintln(w, "File limit reached; remaining files were not scanned.")
	}

	langs := make([]string, 0, len(md.Languages))
	for lang := range md.Languages {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool {
		if md.Languages[langs[i]] != md.Languages[langs[j]] {
			return md.Languages[langs[i]] > md.Languages[langs[j]]
		}
		return langs[i] < langs[j]
	})
	fmt.Fprintln(w, "Languages:")
	for _, lang := range langs {
		fmt.Fprintf(w, "  %-12s %d\n", lang, md.Languages[lang])
	}

	fmt.Fprintln(w, "Included:")
	for _, e := range res.Entries {
		fmt.Fprintf(w, "  %s (%s, %d bytes)\n", e.Path, e.Language, e.Size)
	}
	return nil
}
