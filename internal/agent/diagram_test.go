package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractDiagram(t *testing.T) {
	cases := []struct {
		name       string
		raw        string
		typ        DiagramType
		want       string
		bestEffort bool
	}{
		{"fenced mermaid", "```mermaid\ngraph TB\nA-->B\n```", DiagramArchitecture, "graph TB\nA-->B", false},
		{"bare", "sequenceDiagram\nA->>B: hi", DiagramSequence, "sequenceDiagram\nA->>B: hi", false},
		{"prose around fence", "Sure!\n```\nclassDiagram\nA <|-- B\n```\nDone.", DiagramClass, "classDiagram\nA <|-- B", false},
		{"unterminated fence", "```mermaid\nflowchart TD\nA-->B", DiagramFlowchart, "flowchart TD\nA-->B", false},
		{"init directive", "%%{init: {}}%%\ngraph LR\nA-->B", DiagramDataFlow, "%%{init: {}}%%\ngraph LR\nA-->B", false},
		{"wrong root", "graph TB\nA-->B", DiagramClass, "graph TB\nA-->B", true},
		{"space before language", "``` mermaid\ngraph TB\nA-->B\n```", DiagramArchitecture, "graph TB\nA-->B", false},
		{"fence attributes", "```mermaid title=\"x\"\ngraph TB\nA-->B\n```", DiagramArchitecture, "graph TB\nA-->B", false},
		{"crlf fence", "```mermaid\r\nflowchart TD\r\nA-->B\r\n```", DiagramFlowchart, "flowchart TD\r\nA-->B", false},
		{"empty fence", "```\n\n```", DiagramClass, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, bestEffort := extractDiagram(tc.raw, tc.typ)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.bestEffort, bestEffort)
		})
	}
}

func TestParseDiagramType(t *testing.T) {
	cases := map[string]DiagramType{
		"":                     DiagramArchitecture,
		"architecture":         DiagramArchitecture,
		"ARCHITECTURE_DIAGRAM": DiagramArchitecture,
		"data-flow":            DiagramDataFlow,
		"Data Flow":            DiagramDataFlow,
		"dataflow":             DiagramDataFlow,
		"SEQUENCE_DIAGRAM":     DiagramSequence,
		"class":                DiagramClass,
		"flowchart":            DiagramFlowchart,
	}
	for in, want := range cases {
		got, err := ParseDiagramType(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseDiagramType("gantt")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "diagram_type", ve.Field)
}

func TestRootKeyword(t *testing.T) {
	require.Equal(t, "graph TB", DiagramArchitecture.RootKeyword())
	require.Equal(t, "flowchart TD", DiagramFlowchart.RootKeyword())
	require.Equal(t, "sequenceDiagram", DiagramSequence.RootKeyword())
	require.Equal(t, "classDiagram", DiagramClass.RootKeyword())
	require.Equal(t, "graph LR", DiagramDataFlow.RootKeyword())
}
