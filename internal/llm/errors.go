package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindAuth            ErrorKind = "auth_error"
	KindRateLimited     ErrorKind = "rate_limited"
	KindTimeout         ErrorKind = "timeout"
	KindInvalidResponse ErrorKind = "invalid_response"
	KindNetwork         ErrorKind = "network_error"
)

// Retryable reports whether a caller may reasonably retry after this kind of failure.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindTimeout, KindNetwork:
		return true
	default:
		return false
	}
}

// ProviderError is the single error type returned by provider adapters.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string // already redacted
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// KindOf returns the provider error kind carried by err, or "" when err is not a provider error.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// ClassifyStatus maps a non-2xx HTTP status onto an error kind.
func ClassifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case code >= 500:
		return KindNetwork
	default:
		return KindInvalidResponse
	}
}

// ClassifyTransport maps an error from http.Client.Do onto an error kind.
func ClassifyTransport(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

const redacted = "[REDACTED]"

const maxMessageLen = 500

// Redact removes every non-empty secret from msg and bounds its length.
func Redact(msg string, secrets ...string) string {
	for _, s := range secrets {
		if strings.TrimSpace(s) == "" {
			continue
		}
		msg = strings.ReplaceAll(msg, s, redacted)
	}
	msg = strings.TrimSpace(msg)
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen] + "..."
	}
	return msg
}

// StatusError builds the error for a non-2xx response. body is the (possibly partial)
// response payload.
func StatusError(provider string, code int, body string, secrets ...string) *ProviderError {
	msg := body
	if strings.TrimSpace(msg) == "" {
		msg = http.StatusText(code)
	}
	return &ProviderError{
		Provider:   provider,
		Kind:       ClassifyStatus(code),
		StatusCode: code,
		Message:    Redact(msg, secrets...),
	}
}

// TransportError wraps a failure to reach the provider.
func TransportError(provider string, err error, secrets ...string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     ClassifyTransport(err),
		Message:  Redact(err.Error(), secrets...),
		Err:      scrubbed{err: err, secrets: secrets},
	}
}

// InvalidResponse reports a body that could not be turned into a completion.
func InvalidResponse(provider, msg string, secrets ...string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindInvalidResponse, Message: Redact(msg, secrets...)}
}

// scrubbed keeps errors.Is working on the cause while redacting its text.
type scrubbed struct {
	err     error
	secrets []string
}

func (s scrubbed) Error() string { return Redact(s.err.Error(), s.secrets...) }
func (s scrubbed) Unwrap() error { return s.err }
