package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gitgpt/gitgpt/internal/llm"
)

const testKey = "sk-test-0123456789"

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestCompleteSendsRequestAndParsesResponse(t *testing.T) {
	t.Parallel()

	p := NewProvider("openai", "http://mock/", testKey, "gpt-4o-mini", 5*time.Second)
	p.client = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			require.Equal(t, "/v1/chat/completions", r.URL.Path)
			require.Equal(t, "Bearer "+testKey, r.Header.Get("Authorization"))

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)

			var reqBody map[string]interface{}
			require.NoError(t, json.Unmarshal(body, &reqBody))
			require.Equal(t, "gpt-4o-mini", reqBody["model"])
			require.Equal(t, float64(256), reqBody["max_completion_tokens"])
			require.Equal(t, float64(0), reqBody["temperature"])
			msgs := reqBody["messages"].([]interface{})
			require.Len(t, msgs, 2)
			require.Equal(t, "system", msgs[0].(map[string]interface{})["role"])
			require.Equal(t, "hi", msgs[1].(map[string]interface{})["content"])

			return jsonResponse(http.StatusOK, `{
				"model": "gpt-4o-mini-2024",
				"choices": [{
					"index": 0,
					"finish_reason": "stop",
					"message": {"role": "assistant", "content": "  hello\n"}
				}],
				"usage": {"prompt_tokens": 1, "completion_tokens": 2, "total_tokens": 3}
			}`), nil
		}),
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		System:    "be brief",
		Prompt:    "hi",
		MaxTokens: 256,
	})
	require.NoError(t, err)
	require.Equal(t, "hello", resp.Text)
	require.Equal(t, "stop", resp.FinishReason)
	require.Equal(t, 3, resp.Usage.TotalTokens)
	require.Equal(t, "gpt-4o-mini-2024", resp.Model)
}

func TestCompleteWithoutKeyIsAuthError(t *testing.T) {
	t.Parallel()

	p := NewProvider("openai", "http://mock", "", "gpt-4o-mini", 0)
	p.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		t.Fatal("no request expected without a key")
		return nil, nil
	})}

	_, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	require.Equal(t, llm.KindAuth, llm.KindOf(err))
}

func TestCompleteClassifiesStatusWithoutLeakingKey(t *testing.T) {
	t.Parallel()

	cases := map[int]llm.ErrorKind{
		http.StatusUnauthorized:       llm.KindAuth,
		http.StatusTooManyRequests:    llm.KindRateLimited,
		http.StatusServiceUnavailable: llm.KindNetwork,
		http.StatusBadRequest:         llm.KindInvalidResponse,
	}
	for status, want := range cases {
		p := NewProvider("openai", "http://mock", testKey, "gpt-4o-mini", time.Second)
		p.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(status, `{"error":{"message":"Incorrect API key provided: `+testKey+`"}}`), nil
		})}

		_, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
		require.Error(t, err)
		require.Equal(t, want, llm.KindOf(err), "status %d", status)
		require.NotContains(t, err.Error(), testKey)
		require.Contains(t, err.Error(), "Incorrect API key provided")
	}
}

func TestCompleteRejectsEmptyContent(t *testing.T) {
	t.Parallel()

	for _, body := range []string{
		`{"choices": []}`,
		`{"choices": [{"finish_reason": "length", "message": {"role": "assistant", "content": ""}}]}`,
		`not json`,
	} {
		p := NewProvider("openai", "http://mock", testKey, "gpt-4o-mini", time.Second)
		p.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, body), nil
		})}

		_, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
		require.Equal(t, llm.KindInvalidResponse, llm.KindOf(err), body)
	}
}

func TestCompleteTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := NewProvider("openai", srv.URL, testKey, "gpt-4o-mini", 50*time.Millisecond)
	_, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	require.Equal(t, llm.KindTimeout, llm.KindOf(err))
	require.NotContains(t, err.Error(), testKey)
}

func TestCompleteNetworkError(t *testing.T) {
	t.Parallel()

	p := NewProvider("openai", "http://mock", testKey, "gpt-4o-mini", time.Second)
	p.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})}

	_, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	require.Equal(t, llm.KindNetwork, llm.KindOf(err))
}

type roundTripFunc func(r *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
