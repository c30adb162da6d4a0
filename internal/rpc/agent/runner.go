package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	gitagent "github.com/gitgpt/gitgpt/internal/agent"
	"github.com/gitgpt/gitgpt/internal/repo"
	"github.com/gitgpt/gitgpt/internal/rpc"
	"github.com/gitgpt/gitgpt/internal/rpc/connectjson"
	"github.com/gitgpt/gitgpt/internal/scan"
)

const (
	defaultSessionCache = 32
	eventBuffer         = 16
)

// AgentFactory builds the agent backing a new session.
type AgentFactory func() (*gitagent.Agent, error)

// AgentRunner bridges analyze requests to per-session agents. Each session keeps its
// loaded repository between requests, so follow-up questions reuse the scan and the
// cached context. Requests on one session run one at a time.
type AgentRunner struct {
	factory  AgentFactory
	cloner   *repo.Cloner
	logger   *zap.Logger
	mu       sync.Mutex
	sessions *lru.Cache[string, *session]
	retiring sync.WaitGroup
}

type session struct {
	mu       sync.Mutex
	agent    *gitagent.Agent
	source   string
	checkout *repo.Checkout
	// retired is set once the session has left the cache; a request still
	// running on it drops whatever it cloned when it finishes.
	retired bool
}

// dropCheckout removes the current clone. Callers hold s.mu.
func (s *session) dropCheckout() {
	_ = s.checkout.Cleanup()
	s.checkout = nil
}

// retire waits for the running request, if any, then removes the clone.
func (s *session) retire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retired = true
	s.dropCheckout()
}

// RunnerOption customises an AgentRunner.
type RunnerOption func(*AgentRunner)

// WithCloner sets the cloner used for git URL roots. Without one, remote roots are rejected.
func WithCloner(c *repo.Cloner) RunnerOption {
	return func(r *AgentRunner) { r.cloner = c }
}

// WithRunnerLogger sets the runner logger.
func WithRunnerLogger(l *zap.Logger) RunnerOption {
	return func(r *AgentRunner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewAgentRunner keeps at most sessionCache sessions; the least recently used one is
// dropped (and its clone removed) when the limit is reached.
func NewAgentRunner(factory AgentFactory, sessionCache int, opts ...RunnerOption) (*AgentRunner, error) {
	if factory == nil {
		return nil, errors.New("agent factory is required")
	}
	if sessionCache <= 0 {
		sessionCache = defaultSessionCache
	}
	r := &AgentRunner{factory: factory, logger: zap.NewNop()}
	sessions, err := lru.NewWithEvict[string, *session](sessionCache, r.evict)
	if err != nil {
		return nil, fmt.Errorf("session cache: %w", err)
	}
	r.sessions = sessions
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// evict runs with the cache lock held, so the session is retired in the background
// instead of blocking other sessions behind a running request.
func (r *AgentRunner) evict(_ string, s *session) {
	r.retiring.Add(1)
	go func() {
		defer r.retiring.Done()
		s.retire()
	}()
}

// Close drops every session and waits until their clones are removed. Requests still
// running must be cancelled first or Close blocks until they finish.
func (r *AgentRunner) Close() {
	r.sessions.Purge()
	r.retiring.Wait()
}

// Sessions reports the number of live sessions.
func (r *AgentRunner) Sessions() int {
	return r.sessions.Len()
}

// Run validates req and starts the operation. Validation failures are returned directly;
// everything after that is reported on the event stream, which always ends with a done event.
func (r *AgentRunner) Run(ctx context.Context, req rpc.AnalyzeRequest) (<-chan rpc.AnalyzeEvent, error) {
	op := strings.ToLower(strings.TrimSpace(req.Operation))
	switch op {
	case rpc.OpScan, rpc.OpSummarize, rpc.OpDiagram, rpc.OpAnswer:
	default:
		return nil, fmt.Errorf("unknown operation %q", req.Operation)
	}
	if op == rpc.OpScan && strings.TrimSpace(req.Root) == "" {
		return nil, errors.New("root is required for scan")
	}

	s, err := r.session(req.SessionID)
	if err != nil {
		return nil, err
	}

	out := make(chan rpc.AnalyzeEvent, eventBuffer)
	emit := func(ev rpc.AnalyzeEvent) {
		ev.SessionID = req.SessionID
		ev.CorrelationID = req.CorrelationID
		select {
		case out <- ev:
		case <-ctx.Done():
			select {
			case out <- ev:
			default:
			}
		}
	}

	go func() {
		defer close(out)
		defer emit(rpc.AnalyzeEvent{Type: rpc.EventDone, Done: true})

		s.mu.Lock()
		defer func() {
			if s.retired {
				s.dropCheckout()
			}
			s.mu.Unlock()
		}()

		logger := r.logger.With(
			zap.String("session_id", req.SessionID),
			zap.String("correlation_id", req.CorrelationID),
			zap.String("operation", op),
		)
		ctx := gitagent.WithPhaseObserver(ctx, func(p gitagent.Phase) {
			emit(rpc.AnalyzeEvent{Type: rpc.EventPhase, Phase: p})
		})

		if root := strings.TrimSpace(req.Root); root != "" && (req.Refresh || root != s.source || s.agent.Current() == nil) {
			res, err := r.load(ctx, s, root, req.Branch)
			if err != nil {
				er := gitagent.ErrorFrom(err)
				logger.Warn("load failed", zap.String("kind", string(er.ErrKind)), zap.String("root", repo.SafeURL(root)))
				emit(errorEvent(er))
				return
			}
			meta := res.Metadata
			emit(rpc.AnalyzeEvent{Type: rpc.EventScan, Root: res.Root, Scan: &meta})
		} else if op == rpc.OpScan {
			res := s.agent.Current()
			meta := res.Metadata
			emit(rpc.AnalyzeEvent{Type: rpc.EventScan, Root: res.Root, Scan: &meta})
		}
		if op == rpc.OpScan {
			return
		}

		var resp gitagent.Response
		switch op {
		case rpc.OpSummarize:
			resp = s.agent.Summarize(ctx)
		case rpc.OpDiagram:
			resp = s.agent.GenerateDiagram(ctx, gitagent.DiagramRequest{
				Type:  gitagent.DiagramType(req.DiagramType),
				Focus: req.Focus,
			})
		case rpc.OpAnswer:
			resp = s.agent.Answer(ctx, req.Question)
		}

		if er, ok := resp.(gitagent.ErrorResponse); ok {
			emit(errorEvent(er))
			return
		}
		payload, err := connectjson.Codec{}.Marshal(resp)
		if err != nil {
			emit(errorEvent(gitagent.ErrorFrom(err)))
			return
		}
		emit(rpc.AnalyzeEvent{Type: rpc.EventResult, Kind: resp.Kind(), Result: payload})
	}()
	return out, nil
}

func (r *AgentRunner) session(id string) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions.Get(id); ok {
		return s, nil
	}
	a, err := r.factory()
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	s := &session{agent: a}
	r.sessions.Add(id, s)
	return s, nil
}

// load scans root (cloning it first when it is a git URL) into the session agent.
func (r *AgentRunner) load(ctx context.Context, s *session, root, branch string) (*scan.Result, error) {
	dir := root
	var checkout *repo.Checkout
	if repo.IsRemote(root) {
		if r.cloner == nil {
			return nil, &gitagent.ValidationError{Field: "root", Message: "remote repositories are not enabled"}
		}
		co, err := r.cloner.Clone(ctx, root, branch)
		if err != nil {
			return nil, cloneError(root, err)
		}
		checkout = co
		dir = co.Dir
	}

	res, err := s.agent.Load(ctx, dir)
	if err != nil {
		_ = checkout.Cleanup()
		return nil, err
	}
	s.dropCheckout()
	s.source = root
	s.checkout = checkout
	return res, nil
}

func cloneError(url string, err error) error {
	if errors.Is(err, repo.ErrGitMissing) || errors.Is(err, context.Canceled) {
		return err
	}
	return &scan.Error{Kind: scan.KindNotFound, Root: repo.SafeURL(url), Err: err}
}

func errorEvent(er gitagent.ErrorResponse) rpc.AnalyzeEvent {
	return rpc.AnalyzeEvent{
		Type:      rpc.EventError,
		ErrorKind: er.ErrKind,
		Error:     er.Message,
		Retryable: er.ErrKind.Retryable(),
	}
}
