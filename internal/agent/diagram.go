package agent

import (
	"regexp"
	"strings"
)

// rootKeywords lists the Mermaid headers accepted for each type; the first is requested in prompts.
var rootKeywords = map[DiagramType][]string{
	DiagramArchitecture: {"graph TB", "graph", "flowchart"},
	DiagramFlowchart:    {"flowchart TD", "flowchart", "graph"},
	DiagramSequence:     {"sequenceDiagram"},
	DiagramClass:        {"classDiagram"},
	DiagramDataFlow:     {"graph LR", "graph", "flowchart"},
}

// RootKeyword returns the header the model is asked to start with.
func (d DiagramType) RootKeyword() string {
	if kws := rootKeywords[d]; len(kws) > 0 {
		return kws[0]
	}
	return "graph TB"
}

// The opening line may carry any info string (language tag, attributes).
var fenceRe = regexp.MustCompile("(?s)```[^\n]*\r?\n(.*?)```")

// extractDiagram strips surrounding prose and code fences and reports whether the
// result starts with a root keyword expected for t.
func extractDiagram(raw string, t DiagramType) (source string, bestEffort bool) {
	text := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	} else if strings.HasPrefix(text, "```") {
		// Unterminated fence: drop the opening line.
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = text[i+1:]
		} else {
			text = ""
		}
	}
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
	if text == "" {
		return "", false
	}
	return text, !hasRootKeyword(text, t)
}

func hasRootKeyword(source string, t DiagramType) bool {
	first := ""
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%%") {
			continue
		}
		first = line
		break
	}
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return false
	}
	for _, kw := range rootKeywords[t] {
		if strings.Contains(kw, " ") {
			continue
		}
		if fields[0] == kw {
			return true
		}
	}
	return false
}
