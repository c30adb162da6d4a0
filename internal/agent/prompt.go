package agent

import (
	"fmt"
	"strings"
)

const (
	noContext       = "(No relevant files found)"
	maxTreeEntries  = 400
	systemEngineer  = "You are a senior software engineer. Be factual and only describe what is present in the code."
	systemArchitect = "You are an expert software architect who writes Mermaid diagrams."
)

// buildSummaryPrompt asks for a project summary over the file tree and context.
func buildSummaryPrompt(tree, context string) string {
	var b strings.Builder
	b.WriteString("Analyse the following repository and produce a concise project summary.\n\n")
	writeSection(&b, "FILE TREE", tree)
	writeSection(&b, "KEY FILE CONTENTS (truncated)", context)
	b.WriteString(`Produce a summary that includes:
1. Project name / purpose
2. Tech stack (languages, frameworks, databases)
3. High-level architecture (services, modules, layers)
4. Entry points and important files
5. External dependencies and integrations
`)
	return b.String()
}

// buildDiagramPrompt asks for diagram source only.
func buildDiagramPrompt(t DiagramType, focus, tree, context string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a %s diagram for this repository in Mermaid syntax.\n", diagramLabel(t))
	if f := strings.TrimSpace(focus); f != "" {
		fmt.Fprintf(&b, "FOCUS AREA: %s\n", f)
	}
	b.WriteString("\n")
	writeSection(&b, "FILE TREE", tree)
	writeSection(&b, "KEY CODE", context)
	fmt.Fprintf(&b, `Rules:
- The first line must be: %s
- Only include elements actually present in the codebase
- Use snake_case node IDs without spaces
- Keep it readable: 5-20 nodes
- Label edges with the communication pattern (REST, queue, DB query, import) when known

Return ONLY the Mermaid source, with no explanation.
`, t.RootKeyword())
	return b.String()
}

// buildAnswerPrompt asks a question grounded in the provided context.
func buildAnswerPrompt(summary, context, question string) string {
	var b strings.Builder
	b.WriteString("Use ONLY the provided code context to answer the user's question. If the answer is not in the code, say so.\n\n")
	if s := strings.TrimSpace(summary); s != "" {
		writeSection(&b, "PROJECT SUMMARY", s)
	}
	writeSection(&b, "RELEVANT CODE CONTEXT", context)
	writeSection(&b, "USER QUESTION", question)
	b.WriteString("Provide a clear, detailed answer. Include file paths and code references where applicable.\n")
	return b.String()
}

func writeSection(b *strings.Builder, title, body string) {
	if strings.TrimSpace(body) == "" {
		body = noContext
	}
	fmt.Fprintf(b, "%s:\n%s\n", title, strings.TrimRight(body, "\n"))
	b.WriteString("\n")
}

func diagramLabel(t DiagramType) string {
	switch t {
	case DiagramDataFlow:
		return "data flow"
	case DiagramClass:
		return "class"
	case DiagramSequence:
		return "sequence"
	case DiagramFlowchart:
		return "flowchart"
	default:
		return "architecture"
	}
}
