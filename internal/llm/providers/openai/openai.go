package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gitgpt/gitgpt/internal/llm"
)

const (
	defaultBaseURL = "https://api.openai.com"
	defaultTimeout = 60 * time.Second
	maxErrorBody   = 64 << 10
)

// Provider implements the OpenAI chat completions API for one configured model.
type Provider struct {
	name    string
	model   string
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewProvider constructs a Provider with sane defaults.
func NewProvider(name, baseURL, apiKey, model string, timeout time.Duration) *Provider {
	if name == "" {
		name = "openai"
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Provider{
		name:    name,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// Name returns provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Complete sends the prompt as a single user message.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	if strings.TrimSpace(p.apiKey) == "" {
		return llm.Completion{}, &llm.ProviderError{Provider: p.name, Kind: llm.KindAuth, Message: "OPENAI_API_KEY is not set"}
	}
	if p.model == "" {
		return llm.Completion{}, llm.InvalidResponse(p.name, "model is required")
	}

	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	temperature := req.Temperature
	body := chatRequest{
		Model:               p.model,
		Messages:            messages,
		MaxCompletionTokens: req.MaxTokens,
		Temperature:         &temperature,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return llm.Completion{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return llm.Completion{}, llm.TransportError(p.name, err, p.apiKey)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	res, err := p.client.Do(httpReq)
	if err != nil {
		return llm.Completion{}, llm.TransportError(p.name, err, p.apiKey)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return llm.Completion{}, llm.StatusError(p.name, res.StatusCode, errorMessage(b), p.apiKey)
	}

	var resp chatResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		if kind := llm.ClassifyTransport(err); kind == llm.KindTimeout {
			return llm.Completion{}, llm.TransportError(p.name, err, p.apiKey)
		}
		return llm.Completion{}, llm.InvalidResponse(p.name, "decode response: "+err.Error(), p.apiKey)
	}

	if len(resp.Choices) == 0 {
		return llm.Completion{}, llm.InvalidResponse(p.name, "empty choices")
	}
	choice := resp.Choices[0]
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return llm.Completion{}, llm.InvalidResponse(p.name, fmt.Sprintf("empty content (finish_reason=%s)", choice.FinishReason))
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}
	return llm.Completion{
		Text:         text,
		FinishReason: choice.FinishReason,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		ProviderName: p.name,
		Model:        model,
	}, nil
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty"`
	Temperature         *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		FinishReason string      `json:"finish_reason"`
		Message      chatMessage `json:"message"`
	} `json:"choices"`
	Usage llm.Usage `json:"usage"`
}

// errorMessage extracts error.message from an API error body, falling back to the raw body.
func errorMessage(body []byte) string {
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return string(body)
}
