package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildSummaryPrompt(t *testing.T) {
	p := buildSummaryPrompt("a.go\nb.go", "--- a.go (go) ---\npackage a\n")
	require.Contains(t, p, "FILE TREE:\na.go\nb.go\n")
	require.Contains(t, p, "KEY FILE CONTENTS (truncated):\n--- a.go (go) ---\npackage a\n")
	require.Contains(t, p, "5. External dependencies and integrations")
}

func TestBuildDiagramPromptOmitsEmptyFocus(t *testing.T) {
	p := buildDiagramPrompt(DiagramDataFlow, "  ", "a.go", "ctx")
	require.True(t, strings.HasPrefix(p, "Create a data flow diagram"))
	require.NotContains(t, p, "FOCUS AREA")
	require.Contains(t, p, "The first line must be: graph LR")
	require.Contains(t, p, "Return ONLY the Mermaid source")
}

func TestBuildAnswerPromptFallsBackWhenContextEmpty(t *testing.T) {
	p := buildAnswerPrompt("", "", "why?")
	require.Contains(t, p, "RELEVANT CODE CONTEXT:\n(No relevant files found)")
	require.Contains(t, p, "USER QUESTION:\nwhy?")
	require.NotContains(t, p, "PROJECT SUMMARY")
}
