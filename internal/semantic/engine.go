package semantic

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/gitgpt/gitgpt/internal/scan"
)

const (
	defaultPathWeight    = 5
	defaultContentWeight = 1
	defaultMinWordLen    = 3
)

// Engine ranks scanned files by relevance to a question.
type Engine struct {
	pathWeight    int
	contentWeight int
	minWordLen    int
}

// Result captures a ranked file.
type Result struct {
	Path  string
	Score int
	Index int // position in the scanned entries
}

// NewEngine constructs an engine with the default weights: a question word found in the
// path scores 5, found in the content scores 1.
func NewEngine() *Engine {
	return &Engine{
		pathWeight:    defaultPathWeight,
		contentWeight: defaultContentWeight,
		minWordLen:    defaultMinWordLen,
	}
}

// Search returns the files with a positive score, highest first. Ties keep scan order.
func (e *Engine) Search(question string, entries []scan.FileEntry) ([]Result, error) {
	if e == nil {
		return nil, errors.New("semantic engine unavailable")
	}
	if strings.TrimSpace(question) == "" {
		return nil, errors.New("question is required")
	}

	words := e.keywords(question)
	if len(words) == 0 {
		return nil, nil
	}

	results := make([]Result, 0, len(entries))
	for i, entry := range entries {
		score := e.score(words, entry)
		if score <= 0 {
			continue
		}
		results = append(results, Result{Path: entry.Path, Score: score, Index: i})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// Rank reorders entries by relevance, dropping files that do not mention the question.
func (e *Engine) Rank(question string, entries []scan.FileEntry) []scan.FileEntry {
	hits, err := e.Search(question, entries)
	if err != nil || len(hits) == 0 {
		return nil
	}
	ranked := make([]scan.FileEntry, 0, len(hits))
	for _, h := range hits {
		ranked = append(ranked, entries[h.Index])
	}
	return ranked
}

func (e *Engine) score(words []string, entry scan.FileEntry) int {
	path := strings.ToLower(entry.Path)
	content := strings.ToLower(entry.Content)
	total := 0
	for _, w := range words {
		if strings.Contains(path, w) {
			total += e.pathWeight
		}
		if strings.Contains(content, w) {
			total += e.contentWeight
		}
	}
	return total
}

// keywords returns the distinct question words long enough to be meaningful.
func (e *Engine) keywords(question string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range tokenize(question) {
		if len(tok) < e.minWordLen {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

var tokenRe = regexp.MustCompile(`[A-Za-z0-9_]+`)

func tokenize(s string) []string {
	matches := tokenRe.FindAllString(strings.ToLower(s), -1)
	if len(matches) == 0 {
		return nil
	}
	return matches
}
