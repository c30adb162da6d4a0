package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	gitagent "github.com/gitgpt/gitgpt/internal/agent"
	"github.com/gitgpt/gitgpt/internal/config"
	"github.com/gitgpt/gitgpt/internal/llm"
	llmmock "github.com/gitgpt/gitgpt/internal/llm/mock"
	"github.com/gitgpt/gitgpt/internal/repo"
	"github.com/gitgpt/gitgpt/internal/rpc"
)

func writeRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"main.go":         "package main\n\nfunc main() {}\n",
		"handlers/api.go": "package handlers\n\n// Serve handles API requests.\nfunc Serve() {}\n",
	}
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func newTestRunner(t *testing.T, p llm.Provider) *AgentRunner {
	t.Helper()
	r, err := NewAgentRunner(func() (*gitagent.Agent, error) {
		return gitagent.New(p, config.AgentConfig{MaxTokens: 256, MaxContextChars: 4000})
	}, 4)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func collect(t *testing.T, ch <-chan rpc.AnalyzeEvent) []rpc.AnalyzeEvent {
	t.Helper()
	var out []rpc.AnalyzeEvent
	for ev := range ch {
		out = append(out, ev)
	}
	require.NotEmpty(t, out)
	last := out[len(out)-1]
	require.Equal(t, rpc.EventDone, last.Type)
	require.True(t, last.Done)
	return out
}

func ofType(events []rpc.AnalyzeEvent, typ string) []rpc.AnalyzeEvent {
	var out []rpc.AnalyzeEvent
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestRunnerSummarizeStreamsPhasesAndResult(t *testing.T) {
	p := &llmmock.Provider{Text: "An API service."}
	r := newTestRunner(t, p)

	ch, err := r.Run(context.Background(), rpc.AnalyzeRequest{
		SessionID:     "s1",
		CorrelationID: "c1",
		Root:          writeRepo(t),
		Operation:     rpc.OpSummarize,
	})
	require.NoError(t, err)
	events := collect(t, ch)

	for _, ev := range events {
		require.Equal(t, "s1", ev.SessionID)
		require.Equal(t, "c1", ev.CorrelationID)
	}

	scans := ofType(events, rpc.EventScan)
	require.Len(t, scans, 1)
	require.Equal(t, 2, scans[0].Scan.TotalFiles)

	var phases []gitagent.Phase
	for _, ev := range ofType(events, rpc.EventPhase) {
		phases = append(phases, ev.Phase)
	}
	require.Equal(t, []gitagent.Phase{
		gitagent.PhaseScanning,
		gitagent.PhaseIdle,
		gitagent.PhaseContextBuilt,
		gitagent.PhasePrompting,
		gitagent.PhaseAwaitingProvider,
		gitagent.PhaseDone,
	}, phases)

	results := ofType(events, rpc.EventResult)
	require.Len(t, results, 1)
	require.Equal(t, "summary", results[0].Kind)
	var sum gitagent.Summary
	require.NoError(t, json.Unmarshal(results[0].Result, &sum))
	require.Equal(t, "An API service.", sum.Text)
	require.Equal(t, 2, sum.Meta.IncludedFiles)
}

func TestRunnerReusesSessionRepository(t *testing.T) {
	p := &llmmock.Provider{Text: "Serve lives in handlers/api.go."}
	r := newTestRunner(t, p)
	root := writeRepo(t)

	ch, err := r.Run(context.Background(), rpc.AnalyzeRequest{SessionID: "s", Root: root, Operation: rpc.OpScan})
	require.NoError(t, err)
	events := collect(t, ch)
	require.Len(t, ofType(events, rpc.EventScan), 1)
	require.Empty(t, ofType(events, rpc.EventResult))
	require.Zero(t, p.Calls())

	ch, err = r.Run(context.Background(), rpc.AnalyzeRequest{SessionID: "s", Operation: rpc.OpAnswer, Question: "where is the api served?"})
	require.NoError(t, err)
	events = collect(t, ch)
	require.Empty(t, ofType(events, rpc.EventScan))

	results := ofType(events, rpc.EventResult)
	require.Len(t, results, 1)
	var ans gitagent.Answer
	require.NoError(t, json.Unmarshal(results[0].Result, &ans))
	require.Equal(t, []string{"handlers/api.go"}, ans.Sources)
	require.Equal(t, 1, r.Sessions())
}

func TestRunnerOperationWithoutRepositoryFails(t *testing.T) {
	p := &llmmock.Provider{}
	r := newTestRunner(t, p)

	ch, err := r.Run(context.Background(), rpc.AnalyzeRequest{SessionID: "fresh", Operation: rpc.OpDiagram})
	require.NoError(t, err)
	errs := ofType(collect(t, ch), rpc.EventError)
	require.Len(t, errs, 1)
	require.Equal(t, gitagent.ErrValidation, errs[0].ErrorKind)
	require.False(t, errs[0].Retryable)
	require.Zero(t, p.Calls())
}

func TestRunnerReportsScanFailure(t *testing.T) {
	r := newTestRunner(t, &llmmock.Provider{})

	ch, err := r.Run(context.Background(), rpc.AnalyzeRequest{
		SessionID: "s",
		Root:      filepath.Join(t.TempDir(), "missing"),
		Operation: rpc.OpSummarize,
	})
	require.NoError(t, err)
	errs := ofType(collect(t, ch), rpc.EventError)
	require.Len(t, errs, 1)
	require.Equal(t, gitagent.ErrNotFound, errs[0].ErrorKind)
}

func TestRunnerMarksRetryableProviderErrors(t *testing.T) {
	p := &llmmock.Provider{Err: &llm.ProviderError{Provider: "openai", Kind: llm.KindRateLimited, StatusCode: 429}}
	r := newTestRunner(t, p)

	ch, err := r.Run(context.Background(), rpc.AnalyzeRequest{SessionID: "s", Root: writeRepo(t), Operation: rpc.OpSummarize})
	require.NoError(t, err)
	errs := ofType(collect(t, ch), rpc.EventError)
	require.Len(t, errs, 1)
	require.Equal(t, gitagent.ErrRateLimited, errs[0].ErrorKind)
	require.True(t, errs[0].Retryable)
}

func TestRunnerRejectsRemoteWithoutCloner(t *testing.T) {
	r := newTestRunner(t, &llmmock.Provider{})

	ch, err := r.Run(context.Background(), rpc.AnalyzeRequest{SessionID: "s", Root: "https://github.com/org/repo", Operation: rpc.OpScan})
	require.NoError(t, err)
	errs := ofType(collect(t, ch), rpc.EventError)
	require.Len(t, errs, 1)
	require.Equal(t, gitagent.ErrValidation, errs[0].ErrorKind)
}

func TestRunnerValidatesRequest(t *testing.T) {
	r := newTestRunner(t, &llmmock.Provider{})

	_, err := r.Run(context.Background(), rpc.AnalyzeRequest{SessionID: "s", Operation: "deploy"})
	require.Error(t, err)

	_, err = r.Run(context.Background(), rpc.AnalyzeRequest{SessionID: "s", Operation: rpc.OpScan})
	require.Error(t, err)
	require.Zero(t, r.Sessions())
}

func TestRunnerEvictsLeastRecentSession(t *testing.T) {
	r, err := NewAgentRunner(func() (*gitagent.Agent, error) {
		return gitagent.New(&llmmock.Provider{}, config.AgentConfig{})
	}, 1)
	require.NoError(t, err)
	root := writeRepo(t)

	for _, id := range []string{"a", "b"} {
		ch, err := r.Run(context.Background(), rpc.AnalyzeRequest{SessionID: id, Root: root, Operation: rpc.OpScan})
		require.NoError(t, err)
		collect(t, ch)
	}
	require.Equal(t, 1, r.Sessions())
	_, ok := r.sessions.Get("a")
	require.False(t, ok)
}

func TestRunnerEvictionKeepsCloneWhileSessionBusy(t *testing.T) {
	r, err := NewAgentRunner(func() (*gitagent.Agent, error) {
		return gitagent.New(&llmmock.Provider{}, config.AgentConfig{})
	}, 1)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "clone")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	busy := &session{checkout: &repo.Checkout{Dir: dir}}
	r.sessions.Add("busy", busy)

	// Hold the session as a running request would, then push it out of the cache.
	busy.mu.Lock()
	_, err = r.session("next")
	require.NoError(t, err)
	_, ok := r.sessions.Get("busy")
	require.False(t, ok)
	require.DirExists(t, dir)
	busy.mu.Unlock()

	r.Close()
	require.NoDirExists(t, dir)
	require.True(t, busy.retired)
}
