package llm_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gitgpt/gitgpt/internal/llm"
	"github.com/gitgpt/gitgpt/internal/llm/mock"
)

type recorded struct {
	provider, outcome string
	tokens            int
}

type fakeRecorder struct {
	calls []recorded
}

func (f *fakeRecorder) ObserveProviderCall(provider, outcome string, _ time.Duration, tokens int) {
	f.calls = append(f.calls, recorded{provider: provider, outcome: outcome, tokens: tokens})
}

func TestInstrumentedRecordsOutcome(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	rec := &fakeRecorder{}
	inner := &mock.Provider{NameValue: "openai", CompleteFn: func(ctx context.Context, req llm.CompletionRequest) (llm.Completion, error) {
		if req.Prompt == "fail" {
			return llm.Completion{}, &llm.ProviderError{Provider: "openai", Kind: llm.KindRateLimited}
		}
		return llm.Completion{Text: "ok", Usage: llm.Usage{TotalTokens: 7}}, nil
	}}
	p := llm.Instrument(inner, "gpt-test", zap.New(core), rec)
	require.Equal(t, "openai", p.Name())

	_, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "secret prompt text"})
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), llm.CompletionRequest{Prompt: "fail"})
	require.Equal(t, llm.KindRateLimited, llm.KindOf(err))

	require.Equal(t, []recorded{
		{provider: "openai", outcome: "ok", tokens: 7},
		{provider: "openai", outcome: "rate_limited"},
	}, rec.calls)
	require.Equal(t, 2, inner.Calls())

	require.Equal(t, 1, logs.FilterMessage("provider call failed").Len())
	for _, entry := range logs.All() {
		for _, f := range entry.Context {
			require.NotEqual(t, "secret prompt text", f.String)
		}
	}
}
