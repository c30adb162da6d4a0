package agent

import (
	"fmt"
	"strings"

	"github.com/gitgpt/gitgpt/internal/llm"
)

// Operation names an agent entry point.
type Operation string

const (
	OpSummarize Operation = "summarize"
	OpDiagram   Operation = "diagram"
	OpAnswer    Operation = "answer"
)

// DiagramType selects the kind of diagram to generate.
type DiagramType string

const (
	DiagramArchitecture DiagramType = "architecture"
	DiagramFlowchart    DiagramType = "flowchart"
	DiagramSequence     DiagramType = "sequence"
	DiagramClass        DiagramType = "class"
	DiagramDataFlow     DiagramType = "data_flow"
)

// DiagramTypes lists every supported diagram type.
var DiagramTypes = []DiagramType{DiagramArchitecture, DiagramFlowchart, DiagramSequence, DiagramClass, DiagramDataFlow}

// ParseDiagramType accepts names such as "class", "DATA_FLOW", "data-flow" or "SEQUENCE_DIAGRAM".
// An empty string selects the architecture diagram.
func ParseDiagramType(s string) (DiagramType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	norm = strings.TrimSuffix(norm, "_diagram")
	if norm == "" {
		return DiagramArchitecture, nil
	}
	if norm == "dataflow" {
		norm = string(DiagramDataFlow)
	}
	for _, t := range DiagramTypes {
		if string(t) == norm {
			return t, nil
		}
	}
	return "", &ValidationError{Field: "diagram_type", Message: fmt.Sprintf("unknown diagram type %q", s)}
}

// DiagramRequest describes one diagram generation.
type DiagramRequest struct {
	Type  DiagramType
	Focus string
}

// ErrorKind classifies an ErrorResponse.
type ErrorKind string

const (
	ErrNotFound         ErrorKind = "not_found"
	ErrPermissionDenied ErrorKind = "permission_denied"
	ErrEmptyRepository  ErrorKind = "empty_repository"
	ErrValidation       ErrorKind = "validation_error"
	ErrAuth             ErrorKind = "auth_error"
	ErrRateLimited      ErrorKind = "rate_limited"
	ErrTimeout          ErrorKind = "timeout"
	ErrInvalidResponse  ErrorKind = "invalid_response"
	ErrNetwork          ErrorKind = "network_error"
	ErrCanceled         ErrorKind = "canceled"
	ErrInternal         ErrorKind = "internal"
)

// Retryable reports whether the failure came from a transient provider condition.
func (k ErrorKind) Retryable() bool {
	return llm.ErrorKind(k).Retryable()
}

// ValidationError reports unusable caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Meta describes the context and usage behind a response.
type Meta struct {
	IncludedFiles int       `json:"included_files"`
	Truncated     bool      `json:"truncated"`
	Usage         llm.Usage `json:"usage"`
	Model         string    `json:"model,omitempty"`
}

// Response is one of Summary, Diagram, Answer or ErrorResponse.
type Response interface {
	Kind() string
}

// Summary is the result of Summarize.
type Summary struct {
	Text string `json:"text"`
	Meta Meta   `json:"meta"`
}

// Diagram carries diagram source text. BestEffort is set when the first line does not
// start with the root keyword expected for Type.
type Diagram struct {
	Type       DiagramType `json:"diagram_type"`
	Source     string      `json:"source"`
	BestEffort bool        `json:"best_effort,omitempty"`
	Meta       Meta        `json:"meta"`
}

// Answer is the result of Answer.
type Answer struct {
	Question string   `json:"question"`
	Text     string   `json:"text"`
	Sources  []string `json:"sources,omitempty"`
	Meta     Meta     `json:"meta"`
}

// ErrorResponse is returned instead of an error from every operation.
type ErrorResponse struct {
	ErrKind ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (Summary) Kind() string       { return "summary" }
func (Diagram) Kind() string       { return "diagram" }
func (Answer) Kind() string        { return "answer" }
func (ErrorResponse) Kind() string { return "error" }

func (e ErrorResponse) Error() string {
	return string(e.ErrKind) + ": " + e.Message
}
