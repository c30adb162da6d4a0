package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	gitagent "github.com/gitgpt/gitgpt/internal/agent"
	"github.com/gitgpt/gitgpt/internal/observability"
	"github.com/gitgpt/gitgpt/internal/rpc"
)

// stubRunner replays fixed events and records the request it was given.
type stubRunner struct {
	events []rpc.AnalyzeEvent
	err    error
	got    rpc.AnalyzeRequest
}

func (s *stubRunner) Run(ctx context.Context, req rpc.AnalyzeRequest) (<-chan rpc.AnalyzeEvent, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	out := make(chan rpc.AnalyzeEvent, len(s.events))
	for _, ev := range s.events {
		ev.SessionID = req.SessionID
		ev.CorrelationID = req.CorrelationID
		out <- ev
	}
	close(out)
	return out, nil
}

func sampleEvents() []rpc.AnalyzeEvent {
	return []rpc.AnalyzeEvent{
		{Type: rpc.EventPhase, Phase: gitagent.PhaseIdle},
		{Type: rpc.EventResult, Kind: "summary", Result: json.RawMessage(`{"text":"hi"}`)},
		{Type: rpc.EventDone, Done: true},
	}
}

func TestHandlerStreamsEvents(t *testing.T) {
	runner := &stubRunner{events: sampleEvents()}
	handler := NewHandler(runner, nil)
	body := bytes.NewBufferString(`{"session_id":"test","operation":"summarize","root":"."}`)
	req := httptest.NewRequest(http.MethodPost, "/agent/analyze", body)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	resp := rr.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var events []rpc.AnalyzeEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var ev rpc.AnalyzeEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 3)
	require.Equal(t, "test", events[0].SessionID)
	require.NotEmpty(t, events[0].CorrelationID)
	require.JSONEq(t, `{"text":"hi"}`, string(events[1].Result))
	require.True(t, events[2].Done)
	require.Equal(t, ".", runner.got.Root)
}

func TestHandlerAssignsSessionID(t *testing.T) {
	runner := &stubRunner{events: sampleEvents()}
	handler := NewHandler(runner, nil)
	req := httptest.NewRequest(http.MethodPost, "/agent/analyze", bytes.NewBufferString(`{"operation":"scan","root":"."}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Len(t, runner.got.SessionID, 36)
	require.NotEqual(t, runner.got.SessionID, runner.got.CorrelationID)
}

func TestHandlerRejectsBadRequests(t *testing.T) {
	metrics := observability.NewMetrics()
	handler := NewHandler(&stubRunner{err: errors.New("unknown operation")}, metrics)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/agent/analyze", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/agent/analyze", bytes.NewBufferString("{")))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/agent/analyze", bytes.NewBufferString(`{"operation":"deploy"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "unknown operation")

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.TransportErrs.WithLabelValues("ndjson", "method_not_allowed")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.TransportErrs.WithLabelValues("ndjson", "decode")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.TransportErrs.WithLabelValues("ndjson", "runner_error")))
}
