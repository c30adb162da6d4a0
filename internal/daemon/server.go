package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/gitgpt/gitgpt/internal/agent"
	"github.com/gitgpt/gitgpt/internal/config"
	"github.com/gitgpt/gitgpt/internal/llm/configbuilder"
	"github.com/gitgpt/gitgpt/internal/logging"
	"github.com/gitgpt/gitgpt/internal/observability"
	"github.com/gitgpt/gitgpt/internal/repo"
	agentrpc "github.com/gitgpt/gitgpt/internal/rpc/agent"
	"github.com/gitgpt/gitgpt/internal/version"
)

// AnalyzePath is the NDJSON streaming endpoint.
const AnalyzePath = "/agent/analyze"

// Server hosts the health, metrics and Analyze endpoints.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	runner  *agentrpc.AgentRunner
	metrics *observability.Metrics
}

// NewServer constructs a daemon instance. Every session gets its own agent bound to the
// configured provider.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	logger = logging.OrNop(logger)
	metrics := observability.NewMetrics()

	factory := func() (*agent.Agent, error) {
		return configbuilder.BuildAgentFromConfig(cfg, logger, metrics)
	}
	// Provider misconfiguration surfaces at startup.
	if _, err := factory(); err != nil {
		return nil, fmt.Errorf("build agent: %w", err)
	}

	runner, err := agentrpc.NewAgentRunner(factory, cfg.Server.SessionCache,
		agentrpc.WithCloner(&repo.Cloner{Logger: logger.Named("repo")}),
		agentrpc.WithRunnerLogger(logger.Named("rpc")),
	)
	if err != nil {
		return nil, err
	}

	return &Server{cfg: cfg, logger: logger, runner: runner, metrics: metrics}, nil
}

// Handler builds the HTTP routes. Connect transport wraps them in h2c so bidi streams work
// without TLS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)
	mux.Handle(AnalyzePath, agentrpc.NewHandler(s.runner, s.metrics))

	if s.transport() == "ndjson" {
		return mux
	}
	path, handler := agentrpc.NewConnectHandler(s.runner, s.metrics)
	mux.Handle(path, handler)
	return h2c.NewHandler(mux, &http2.Server{})
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (s *Server) Run(ctx context.Context) error {
	defer s.runner.Close()

	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting gitgpt daemon",
			zap.String("addr", s.cfg.Server.Addr),
			zap.String("transport", s.transport()),
			zap.String("provider", s.cfg.Provider),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down gitgpt daemon")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) transport() string {
	t := strings.ToLower(strings.TrimSpace(s.cfg.Server.Transport))
	if t == "" {
		return "connect"
	}
	return t
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status   string       `json:"status"`
		Version  version.Info `json:"version"`
		Sessions int          `json:"sessions"`
	}{"ok", version.Get(), s.runner.Sessions()})
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled {
		http.NotFound(w, r)
		return
	}

	promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
