package rpc

import (
	"encoding/json"

	"github.com/gitgpt/gitgpt/internal/agent"
	"github.com/gitgpt/gitgpt/internal/scan"
)

// Operation names accepted by AnalyzeRequest.
const (
	OpScan      = "scan"
	OpSummarize = "summarize"
	OpDiagram   = "diagram"
	OpAnswer    = "answer"
)

// Event types emitted on an analyze stream.
const (
	EventPhase  = "phase"
	EventScan   = "scan"
	EventResult = "result"
	EventError  = "error"
	EventDone   = "done"
)

// AnalyzeRequest asks the daemon to run one operation against a repository.
// Root may be a local path or a git URL; Root is optional when the session already
// has a repository loaded.
type AnalyzeRequest struct {
	SessionID     string `json:"session_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Root          string `json:"root,omitempty"`
	Branch        string `json:"branch,omitempty"`
	Operation     string `json:"operation"`
	DiagramType   string `json:"diagram_type,omitempty"`
	Focus         string `json:"focus,omitempty"`
	Question      string `json:"question,omitempty"`
	Refresh       bool   `json:"refresh,omitempty"`
}

// AnalyzeEvent streams back progress from the daemon.
type AnalyzeEvent struct {
	Type          string          `json:"type"` // phase|scan|result|error|done
	SessionID     string          `json:"session_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Phase         agent.Phase     `json:"phase,omitempty"`
	Root          string          `json:"root,omitempty"`
	Scan          *scan.Metadata  `json:"scan,omitempty"`
	Kind          string          `json:"kind,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	ErrorKind     agent.ErrorKind `json:"error_kind,omitempty"`
	Error         string          `json:"error,omitempty"`
	Retryable     bool            `json:"retryable,omitempty"`
	Done          bool            `json:"done,omitempty"`
}

// AnalyzeStreamRequest is the bidirectional stream payload for Connect RPC.
// The first message must contain the Analyze request; later messages can carry control signals.
type AnalyzeStreamRequest struct {
	Analyze       *AnalyzeRequest `json:"analyze,omitempty"`
	Cancel        bool            `json:"cancel,omitempty"`
	SessionID     string          `json:"session_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}
