package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Recorder receives one observation per provider call.
type Recorder interface {
	ObserveProviderCall(provider, outcome string, elapsed time.Duration, tokens int)
}

// Instrumented decorates a Provider with logging and metrics.
type Instrumented struct {
	inner    Provider
	model    string
	logger   *zap.Logger
	recorder Recorder
}

// Instrument wraps p. A nil logger or recorder disables that concern.
func Instrument(p Provider, model string, logger *zap.Logger, recorder Recorder) *Instrumented {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instrumented{inner: p, model: model, logger: logger, recorder: recorder}
}

// Name returns the wrapped provider name.
func (i *Instrumented) Name() string {
	return i.inner.Name()
}

// Complete forwards to the wrapped provider.
func (i *Instrumented) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	start := time.Now()
	resp, err := i.inner.Complete(ctx, req)
	elapsed := time.Since(start)

	fields := []zap.Field{
		zap.String("provider", i.inner.Name()),
		zap.String("model", i.model),
		zap.Int("prompt_chars", len(req.Prompt)),
		zap.Int("max_tokens", req.MaxTokens),
		zap.Duration("elapsed", elapsed),
	}
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
		i.logger.Warn("provider call failed", append(fields, zap.String("kind", outcome), zap.Error(err))...)
	} else {
		i.logger.Debug("provider call", append(fields,
			zap.Int("completion_chars", len(resp.Text)),
			zap.Int("total_tokens", resp.Usage.TotalTokens),
			zap.String("finish_reason", resp.FinishReason),
		)...)
	}
	if i.recorder != nil {
		i.recorder.ObserveProviderCall(i.inner.Name(), outcome, elapsed, resp.Usage.TotalTokens)
	}
	return resp, err
}
