package huggingface

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
	defaultBaseURL = "https://api-inference.huggingface.co/models/"
	defaultTimeout = 120 * time.Second
	maxErrorBody   = 64 << 10
)

// Provider calls a Hugging Face text-generation inference endpoint.
type Provider struct {
	name    string
	model   string
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewProvider constructs a Hugging Face provider. The endpoint is baseURL + "/" + model.
func NewProvider(name, baseURL, apiKey, model string, timeout time.Duration) *Provider {
	if name == "" {
		name = "huggingface"
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

// Endpoint returns the inference URL for the configured model.
func (p *Provider) Endpoint() string {
	return p.baseURL + "/" + strings.TrimLeft(p.model, "/")
}

// Complete runs text generation. Models that echo their input have the prompt prefix removed.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	if p.model == "" {
		return llm.Completion{}, llm.InvalidResponse(p.name, "model is required")
	}

	inputs := req.Prompt
	if strings.TrimSpace(req.System) != "" {
		inputs = req.System + "\n\n" + req.Prompt
	}

	params := generationParams{
		MaxNewTokens:   req.MaxTokens,
		ReturnFullText: false,
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		params.Temperature = &temp
		params.DoSample = true
	}
	body := generationRequest{
		Inputs:     inputs,
		Parameters: params,
		Options:    generationOptions{WaitForModel: true},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return llm.Completion{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint(), bytes.NewReader(payload))
	if err != nil {
		return llm.Completion{}, llm.TransportError(p.name, err, p.apiKey)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	res, err := p.client.Do(httpReq)
	if err != nil {
		return llm.Completion{}, llm.TransportError(p.name, err, p.apiKey)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxErrorBody*16))
	if err != nil {
		return llm.Completion{}, llm.TransportError(p.name, err, p.apiKey)
	}
	if res.StatusCode >= 300 {
		return llm.Completion{}, llm.StatusError(p.name, res.StatusCode, errorMessage(raw), p.apiKey)
	}

	text, err := generatedText(raw)
	if err != nil {
		return llm.Completion{}, llm.InvalidResponse(p.name, err.Error(), p.apiKey)
	}
	text = strings.TrimSpace(StripEcho(text, inputs))
	if text == "" {
		return llm.Completion{}, llm.InvalidResponse(p.name, "empty generated_text")
	}

	return llm.Completion{
		Text:         text,
		ProviderName: p.name,
		Model:        p.model,
	}, nil
}

// StripEcho removes prompt from the start of text when the model repeated its input.
func StripEcho(text, prompt string) string {
	if prompt == "" {
		return text
	}
	if strings.HasPrefix(text, prompt) {
		return text[len(prompt):]
	}
	trimmed := strings.TrimLeft(text, " \t\r\n")
	if p := strings.TrimSpace(prompt); p != "" && strings.HasPrefix(trimmed, p) {
		return trimmed[len(p):]
	}
	return text
}

type generationRequest struct {
	Inputs     string            `json:"inputs"`
	Parameters generationParams  `json:"parameters"`
	Options    generationOptions `json:"options"`
}

type generationParams struct {
	MaxNewTokens   int      `json:"max_new_tokens,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	DoSample       bool     `json:"do_sample"`
	ReturnFullText bool     `json:"return_full_text"`
}

type generationOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type generation struct {
	GeneratedText *string `json:"generated_text"`
	Error         string  `json:"error"`
}

// generatedText accepts either a list of generations or a single object.
func generatedText(raw []byte) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", fmt.Errorf("empty response body")
	}

	var gens []generation
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &gens); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
	} else {
		var one generation
		if err := json.Unmarshal(raw, &one); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		gens = []generation{one}
	}
	if len(gens) == 0 {
		return "", fmt.Errorf("empty generation list")
	}
	if gens[0].Error != "" {
		return "", fmt.Errorf("provider error: %s", gens[0].Error)
	}
	if gens[0].GeneratedText == nil {
		return "", fmt.Errorf("missing generated_text")
	}
	return *gens[0].GeneratedText, nil
}

func errorMessage(body []byte) string {
	var env struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error != "" {
		return env.Error
	}
	return string(body)
}
