// Package repoctx turns scan results into bounded prompt context.
package repoctx

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gitgpt/gitgpt/internal/scan"
)

// MinInclusionChars is the smallest remaining budget worth spending on a truncated file.
const MinInclusionChars = 200

// TruncationMarker ends a file cut to fit the budget.
const TruncationMarker = "\n... [truncated]"

// Context is the bounded text block handed to prompt templates.
type Context struct {
	Text            string
	Truncated       bool
	IncludedFiles   int
	EstimatedTokens int
}

// Build concatenates entries in scan order under maxChars bytes.
func Build(res *scan.Result, maxChars int) Context {
	if res == nil {
		return Context{}
	}
	return BuildEntries(res.Entries, maxChars)
}

// BuildEntries is Build over an explicit entry order. Files are appended whole while they
// fit; the first file that does not fit is cut to the remaining budget when at least
// MinInclusionChars remain, and nothing after it is considered.
func BuildEntries(entries []scan.FileEntry, maxChars int) Context {
	var (
		b   strings.Builder
		out Context
	)
	if maxChars < 0 {
		maxChars = 0
	}
	for _, e := range entries {
		header := fileHeader(e)
		body := e.Content
		if !strings.HasSuffix(body, "\n") {
			body += "\n"
		}
		remaining := maxChars - b.Len()
		if len(header)+len(body)+1 <= remaining {
			b.WriteString(header)
			b.WriteString(body)
			b.WriteString("\n")
			out.IncludedFiles++
			continue
		}

		out.Truncated = true
		if remaining < MinInclusionChars {
			break
		}
		room := remaining - len(header) - len(TruncationMarker) - 1
		if room <= 0 {
			break
		}
		b.WriteString(header)
		b.WriteString(cutRunes(e.Content, room))
		b.WriteString(TruncationMarker)
		b.WriteString("\n")
		out.IncludedFiles++
		break
	}

	out.Text = b.String()
	out.EstimatedTokens = EstimateTokens(out.Text)
	return out
}

// Budget combines the character budget with an optional token cap (0 disables it).
func Budget(maxChars, maxTokens int) int {
	if maxTokens > 0 && maxTokens*charsPerToken < maxChars {
		return maxTokens * charsPerToken
	}
	return maxChars
}

const charsPerToken = 4

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// FileTree renders sorted relative paths, one per line, listing at most limit entries
// (limit <= 0 lists all).
func FileTree(paths []string, limit int) string {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	extra := 0
	if limit > 0 && len(sorted) > limit {
		extra = len(sorted) - limit
		sorted = sorted[:limit]
	}
	tree := strings.Join(sorted, "\n")
	if extra > 0 {
		tree += fmt.Sprintf("\n... and %d more files", extra)
	}
	return tree
}

func fileHeader(e scan.FileEntry) string {
	if e.Language == "" {
		return fmt.Sprintf("--- %s ---\n", e.Path)
	}
	return fmt.Sprintf("--- %s (%s) ---\n", e.Path, e.Language)
}

// cutRunes returns the longest prefix of s no longer than limit bytes that does not split a rune.
func cutRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
