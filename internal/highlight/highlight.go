// Package highlight marks query term occurrences inside stored field text
// and builds contextual excerpts around the densest matches. Words are
// normalized the same way free-text indexing normalized them, so a query
// that matched a document also marks the text it matched on.
package highlight

import (
	"regexp"
	"strings"

	"github.com/mydeco-dev-team/xappy/internal/tokenizer"
)

// Run is a span of text, marked when it matched a query term.
type Run struct {
	Text  string `json:"text"`
	Match bool   `json:"match"`
}

var wordRe = regexp.MustCompile(`[a-zA-Z0-9]+`)

// wordMatches reports whether a surface word matches the query's term set,
// comparing both its lowercase form and its stem.
func wordMatches(word string, terms map[string]bool, language string) bool {
	lowered := strings.ToLower(word)
	if terms[lowered] {
		return true
	}
	return language != "" && terms[tokenizer.Stem(lowered, language)]
}

// Highlight splits text into runs, marking the words matching the query's
// terms. Adjacent unmatched spans merge into single runs, so the
// concatenation of all run texts reproduces the input exactly.
func Highlight(text string, terms map[string]bool, language string) []Run {
	var runs []Run
	appendRun := func(span string, match bool) {
		if span == "" {
			return
		}
		if n := len(runs); n > 0 && runs[n-1].Match == match {
			runs[n-1].Text += span
			return
		}
		runs = append(runs, Run{Text: span, Match: match})
	}

	last := 0
	for _, loc := range wordRe.FindAllStringIndex(text, -1) {
		word := text[loc[0]:loc[1]]
		if !wordMatches(word, terms, language) {
			continue
		}
		appendRun(text[last:loc[0]], false)
		appendRun(word, true)
		last = loc[1]
	}
	appendRun(text[last:], false)
	return runs
}

// Summarise extracts at most maxLen characters of text around the densest
// cluster of query term matches and highlights them. Text without any match
// falls back to a leading truncation.
func Summarise(text string, terms map[string]bool, language string, maxLen int) []Run {
	if maxLen <= 0 || len(text) <= maxLen {
		return Highlight(text, terms, language)
	}

	var matchStarts []int
	for _, loc := range wordRe.FindAllStringIndex(text, -1) {
		if wordMatches(text[loc[0]:loc[1]], terms, language) {
			matchStarts = append(matchStarts, loc[0])
		}
	}
	if len(matchStarts) == 0 {
		return Highlight(truncateAtWord(text, maxLen), terms, language)
	}

	// Slide a maxLen window across the match positions and keep the one
	// covering the most matches.
	bestStart, bestCount := matchStarts[0], 0
	for i, start := range matchStarts {
		count := 0
		for _, other := range matchStarts[i:] {
			if other >= start+maxLen {
				break
			}
			count++
		}
		if count > bestCount {
			bestStart, bestCount = start, count
		}
	}

	// Back up a little for leading context, then snap to a word boundary.
	start := bestStart - maxLen/4
	if start < 0 {
		start = 0
	}
	if start > 0 {
		if idx := strings.IndexAny(text[start:], " \t\n"); idx >= 0 && start+idx+1 < bestStart {
			start += idx + 1
		}
	}
	return Highlight(truncateAtWord(text[start:], maxLen), terms, language)
}

// truncateAtWord cuts text to at most maxLen characters without splitting
// the final word.
func truncateAtWord(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	cut := text[:maxLen]
	if idx := strings.LastIndexAny(cut, " \t\n"); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}
