package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/gitgpt/gitgpt/internal/config"
	"github.com/gitgpt/gitgpt/internal/llm"
	"github.com/gitgpt/gitgpt/internal/observability"
	"github.com/gitgpt/gitgpt/internal/repoctx"
	"github.com/gitgpt/gitgpt/internal/scan"
	"github.com/gitgpt/gitgpt/internal/semantic"
)

const (
	defaultContextChars = 12000
	defaultCacheSize    = 16
)

// ErrNoRepository is returned when an operation runs before Load.
var ErrNoRepository = &ValidationError{Field: "repository", Message: "no repository loaded"}

// cacheKey identifies one scan of one root.
type cacheKey struct {
	root      string
	scannedAt int64
}

// Agent composes scanning, context building, prompting and the provider call. It holds
// the current scan and an in-memory context cache; operations on one Agent are safe for
// concurrent use.
type Agent struct {
	provider llm.Provider
	cfg      config.AgentConfig
	scanner  *scan.Scanner
	engine   *semantic.Engine
	logger   *zap.Logger
	metrics  *observability.Metrics

	mu        sync.Mutex
	current   *scan.Result
	contexts  *lru.Cache[cacheKey, repoctx.Context]
	summaries *lru.Cache[cacheKey, string]
}

// Option customises an Agent.
type Option func(*Agent)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// WithScanner replaces the default scanner.
func WithScanner(s *scan.Scanner) Option {
	return func(a *Agent) {
		if s != nil {
			a.scanner = s
		}
	}
}

// New creates an Agent bound to one provider for its lifetime.
func New(provider llm.Provider, cfg config.AgentConfig, opts ...Option) (*Agent, error) {
	if provider == nil {
		return nil, errors.New("provider is required")
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = defaultContextChars
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}

	contexts, err := lru.New[cacheKey, repoctx.Context](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("context cache: %w", err)
	}
	summaries, err := lru.New[cacheKey, string](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("summary cache: %w", err)
	}

	a := &Agent{
		provider:  provider,
		cfg:       cfg,
		scanner:   scan.NewScanner(scan.Options{}),
		engine:    semantic.NewEngine(),
		logger:    zap.NewNop(),
		contexts:  contexts,
		summaries: summaries,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Load scans root and makes it the current repository. Cached context for the previous
// scan is dropped.
func (a *Agent) Load(ctx context.Context, root string) (*scan.Result, error) {
	a.transition(ctx, PhaseScanning)
	res, err := a.scanner.Scan(ctx, root)
	if err != nil {
		a.transition(ctx, PhaseFailed)
		a.logger.Warn("scan failed", zap.String("root", root), zap.Error(err))
		return nil, err
	}
	a.metrics.RecordScan(res.Metadata.TotalFiles)

	a.mu.Lock()
	if prev := a.current; prev != nil {
		key := keyFor(prev)
		a.contexts.Remove(key)
		a.summaries.Remove(key)
	}
	a.current = res
	a.mu.Unlock()

	a.logger.Info("repository loaded",
		zap.String("root", res.Root),
		zap.Int("files", res.Metadata.TotalFiles),
		zap.Int("excluded", res.Metadata.ExcludedFiles),
		zap.Bool("file_limit_reached", res.Metadata.FileLimitReached),
	)
	return res, nil
}

// Current returns the loaded scan, or nil.
func (a *Agent) Current() *scan.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Summarize produces a project summary of the loaded repository.
func (a *Agent) Summarize(ctx context.Context) Response {
	return a.run(ctx, OpSummarize, func() (Response, error) {
		res, rc, err := a.repoContext(ctx)
		if err != nil {
			return nil, err
		}
		a.transition(ctx, PhasePrompting)
		prompt := buildSummaryPrompt(repoctx.FileTree(res.Paths(), maxTreeEntries), rc.Text)
		comp, err := a.complete(ctx, systemEngineer, prompt, a.cfg.SummaryTemperature)
		if err != nil {
			return nil, err
		}
		text := strings.TrimSpace(comp.Text)
		a.summaries.Add(keyFor(res), text)
		return Summary{Text: text, Meta: meta(rc, comp)}, nil
	})
}

// GenerateDiagram asks for diagram source of the requested type.
func (a *Agent) GenerateDiagram(ctx context.Context, req DiagramRequest) Response {
	return a.run(ctx, OpDiagram, func() (Response, error) {
		dt, err := ParseDiagramType(string(req.Type))
		if err != nil {
			return nil, err
		}
		res, rc, err := a.repoContext(ctx)
		if err != nil {
			return nil, err
		}
		a.transition(ctx, PhasePrompting)
		prompt := buildDiagramPrompt(dt, req.Focus, repoctx.FileTree(res.Paths(), maxTreeEntries), rc.Text)
		comp, err := a.complete(ctx, systemArchitect, prompt, a.cfg.DiagramTemperature)
		if err != nil {
			return nil, err
		}
		source, bestEffort := extractDiagram(comp.Text, dt)
		if source == "" {
			return nil, llm.InvalidResponse(a.provider.Name(), "response contained no diagram source")
		}
		if bestEffort {
			a.logger.Warn("diagram lacks expected root keyword", zap.String("diagram_type", string(dt)))
		}
		return Diagram{Type: dt, Source: source, BestEffort: bestEffort, Meta: meta(rc, comp)}, nil
	})
}

// Answer responds to a free-form question. A blank question fails without calling the provider.
func (a *Agent) Answer(ctx context.Context, question string) Response {
	return a.run(ctx, OpAnswer, func() (Response, error) {
		question = strings.TrimSpace(question)
		if question == "" {
			return nil, &ValidationError{Field: "question", Message: "question must not be empty"}
		}
		res, rc, err := a.repoContext(ctx)
		if err != nil {
			return nil, err
		}

		var sources []string
		if ranked := a.engine.Rank(question, res.Entries); len(ranked) > 0 {
			ordered := withRemainder(ranked, res.Entries)
			rc = repoctx.BuildEntries(ordered, a.budget())
			a.metrics.RecordContext(rc.Truncated)
			for i := 0; i < rc.IncludedFiles && i < len(ranked); i++ {
				sources = append(sources, ranked[i].Path)
			}
		}
		summary, _ := a.summaries.Get(keyFor(res))

		a.transition(ctx, PhasePrompting)
		prompt := buildAnswerPrompt(summary, rc.Text, question)
		comp, err := a.complete(ctx, systemEngineer, prompt, a.cfg.AnswerTemperature)
		if err != nil {
			return nil, err
		}
		return Answer{
			Question: question,
			Text:     strings.TrimSpace(comp.Text),
			Sources:  sources,
			Meta:     meta(rc, comp),
		}, nil
	})
}

// run drives the phase machine around one operation and converts failures into ErrorResponse.
func (a *Agent) run(ctx context.Context, op Operation, fn func() (Response, error)) Response {
	start := time.Now()
	a.transition(ctx, PhaseIdle)

	resp, err := fn()
	elapsed := time.Since(start)
	if err != nil {
		er := ErrorFrom(err)
		a.transition(ctx, PhaseFailed)
		a.metrics.RecordOperation(string(op), string(er.ErrKind), elapsed)
		a.logger.Warn("operation failed",
			zap.String("operation", string(op)),
			zap.String("kind", string(er.ErrKind)),
			zap.String("message", er.Message),
			zap.Duration("elapsed", elapsed),
		)
		return er
	}

	a.transition(ctx, PhaseDone)
	a.metrics.RecordOperation(string(op), "ok", elapsed)
	a.logger.Info("operation complete", zap.String("operation", string(op)), zap.Duration("elapsed", elapsed))
	return resp
}

// repoContext returns the current scan with its cached (or freshly built) context.
func (a *Agent) repoContext(ctx context.Context) (*scan.Result, repoctx.Context, error) {
	res := a.Current()
	if res == nil {
		return nil, repoctx.Context{}, ErrNoRepository
	}
	key := keyFor(res)
	rc, ok := a.contexts.Get(key)
	if !ok {
		rc = repoctx.Build(res, a.budget())
		a.contexts.Add(key, rc)
		a.metrics.RecordContext(rc.Truncated)
	}
	a.logger.Debug("context ready",
		zap.Bool("cached", ok),
		zap.Int("included_files", rc.IncludedFiles),
		zap.Bool("truncated", rc.Truncated),
		zap.Int("estimated_tokens", rc.EstimatedTokens),
	)
	a.transition(ctx, PhaseContextBuilt)
	return res, rc, nil
}

func (a *Agent) complete(ctx context.Context, system, prompt string, taskTemp float64) (llm.Completion, error) {
	if err := ctx.Err(); err != nil {
		return llm.Completion{}, err
	}
	a.transition(ctx, PhaseAwaitingProvider)
	return a.provider.Complete(ctx, llm.CompletionRequest{
		System:      system,
		Prompt:      prompt,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: pickTemperature(a.cfg.Temperature, taskTemp),
	})
}

func (a *Agent) budget() int {
	return repoctx.Budget(a.cfg.MaxContextChars, a.cfg.MaxContextTokens)
}

func (a *Agent) transition(ctx context.Context, p Phase) {
	a.logger.Debug("phase", zap.String("phase", string(p)))
	if fn := observerFrom(ctx); fn != nil {
		fn(p)
	}
}

func keyFor(res *scan.Result) cacheKey {
	return cacheKey{root: res.Root, scannedAt: res.ScannedAt.UnixNano()}
}

func meta(rc repoctx.Context, comp llm.Completion) Meta {
	return Meta{
		IncludedFiles: rc.IncludedFiles,
		Truncated:     rc.Truncated,
		Usage:         comp.Usage,
		Model:         comp.Model,
	}
}

// withRemainder appends the entries not in ranked, keeping scan order.
func withRemainder(ranked, all []scan.FileEntry) []scan.FileEntry {
	seen := make(map[string]struct{}, len(ranked))
	out := make([]scan.FileEntry, 0, len(all))
	for _, e := range ranked {
		seen[e.Path] = struct{}{}
		out = append(out, e)
	}
	for _, e := range all {
		if _, ok := seen[e.Path]; !ok {
			out = append(out, e)
		}
	}
	return out
}

// ErrorFrom maps any failure onto the response taxonomy.
func ErrorFrom(err error) ErrorResponse {
	var (
		ve *ValidationError
		er ErrorResponse
	)
	switch {
	case errors.As(err, &er):
		return er
	case errors.As(err, &ve):
		return ErrorResponse{ErrKind: ErrValidation, Message: ve.Error()}
	case llm.KindOf(err) != "":
		return ErrorResponse{ErrKind: ErrorKind(llm.KindOf(err)), Message: err.Error()}
	}
	if kind, ok := scan.KindOf(err); ok {
		return ErrorResponse{ErrKind: ErrorKind(kind), Message: err.Error()}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorResponse{ErrKind: ErrTimeout, Message: err.Error()}
	case errors.Is(err, context.Canceled):
		return ErrorResponse{ErrKind: ErrCanceled, Message: err.Error()}
	default:
		return ErrorResponse{ErrKind: ErrInternal, Message: err.Error()}
	}
}

// pickTemperature prefers a positive per-task temperature over the configured one.
func pickTemperature(agentTemp float64, taskTemp float64) float64 {
	if taskTemp > 0 {
		return taskTemp
	}
	return agentTemp
}
