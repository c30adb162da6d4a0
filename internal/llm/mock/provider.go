package mock

import (
	"context"
	"sync"

	"github.com/gitgpt/gitgpt/internal/llm"
)

// Provider is a test double implementing llm.Provider.
type Provider struct {
	NameValue  string
	Text       string
	Err        error
	CompleteFn func(ctx context.Context, req llm.CompletionRequest) (llm.Completion, error)

	mu       sync.Mutex
	requests []llm.CompletionRequest
}

func (p *Provider) Name() string {
	if p.NameValue != "" {
		return p.NameValue
	}
	return "mock"
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.CompleteFn != nil {
		return p.CompleteFn(ctx, req)
	}
	if p.Err != nil {
		return llm.Completion{}, p.Err
	}
	text := p.Text
	if text == "" {
		text = "mock"
	}
	return llm.Completion{Text: text, ProviderName: p.Name(), FinishReason: "stop"}, nil
}

// Calls returns how many times Complete was invoked.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Requests returns a copy of the received requests.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.CompletionRequest(nil), p.requests...)
}
