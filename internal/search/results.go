package search

import (
	"strings"

	"github.com/mydeco-dev-team/xappy/config"
	"github.com/mydeco-dev-team/xappy/internal/facet"
	"github.com/mydeco-dev-team/xappy/internal/highlight"
	"github.com/mydeco-dev-team/xappy/query"
)

// SearchResult is one ranked hit with its stored field data.
type SearchResult struct {
	Rank   int                 `json:"rank"`
	ID     string              `json:"id"`
	Weight float64             `json:"weight"`
	Data   map[string][]string `json:"data"`

	values map[string][]byte
}

// Value returns the document's encoded bytes for a field slot purpose, for
// callers inspecting sort or facet values of a hit.
func (r *SearchResult) Value(field, purpose string) ([]byte, bool) {
	v, ok := r.values[config.SlotName(field, purpose)]
	return v, ok
}

// SearchResults is a window over a completed query evaluation.
type SearchResults struct {
	conn      *Connection
	query     *query.Query
	startRank int
	endRank   int

	Hits []SearchResult `json:"hits"`

	MatchesLowerBound int  `json:"matches_lower_bound"`
	MatchesUpperBound int  `json:"matches_upper_bound"`
	MatchesEstimated  int  `json:"matches_estimated"`
	EstimateIsExact   bool `json:"estimate_is_exact"`
	// MoreMatches reports whether matches beyond the requested window may
	// exist.
	MoreMatches bool `json:"more_matches"`

	// CheckedIDs are the documents the engine examined, for facet tallying.
	CheckedIDs []string `json:"-"`
}

// StartRank is the rank of the first hit requested.
func (rs *SearchResults) StartRank() int { return rs.startRank }

// EndRank is the rank just past the last hit requested.
func (rs *SearchResults) EndRank() int { return rs.endRank }

// SuggestedFacets tallies facet values over the documents the engine examined
// for this search, restricted to allow (when non-empty) and excluding deny.
// maxConsidered caps how many examined documents are scanned; -1 scans all.
// Accuracy follows the search's checkatleast setting, since only examined
// documents contribute.
func (rs *SearchResults) SuggestedFacets(allow, deny []string, maxConsidered int) ([]facet.Suggestion, error) {
	return facet.NewSuggester(rs.conn.schema, rs.conn.engine).
		Suggest(rs.CheckedIDs, allow, deny, maxConsidered)
}

// queryTerms collects the raw term texts a query tree matches on, with field
// prefixes stripped, for marking up stored text.
func (rs *SearchResults) queryTerms() map[string]bool {
	terms := make(map[string]bool)
	collectTerms(rs.query, rs.conn, terms)
	return terms
}

func collectTerms(q *query.Query, c *Connection, out map[string]bool) {
	if q == nil {
		return
	}
	if q.Op == query.OpTerm {
		raw := q.Term
		if _, stripped, ok := c.splitPrefixed(q.Term); ok {
			raw = stripped
		}
		out[strings.ToLower(raw)] = true
		return
	}
	for _, sub := range q.Subs {
		collectTerms(sub, c, out)
	}
}

// fieldLanguage is the stemming language free-text processing used for the
// field, so highlighting stems the stored text the same way.
func (rs *SearchResults) fieldLanguage(field string) string {
	if opts := rs.conn.schema.FreeText(field); opts != nil {
		return opts.Language
	}
	return ""
}

// Highlight marks the query's terms inside each stored instance of a field
// of a hit. Fields without stored data return nil.
func (rs *SearchResults) Highlight(hit *SearchResult, field string) [][]highlight.Run {
	instances := hit.Data[field]
	if len(instances) == 0 {
		return nil
	}
	terms := rs.queryTerms()
	language := rs.fieldLanguage(field)
	runs := make([][]highlight.Run, len(instances))
	for i, text := range instances {
		runs[i] = highlight.Highlight(text, terms, language)
	}
	return runs
}

// Summarise builds an excerpt of a hit's stored field centered on the
// densest cluster of query term matches, at most maxLen characters.
func (rs *SearchResults) Summarise(hit *SearchResult, field string, maxLen int) []highlight.Run {
	instances := hit.Data[field]
	if len(instances) == 0 {
		return nil
	}
	text := strings.Join(instances, " ")
	return highlight.Summarise(text, rs.queryTerms(), rs.fieldLanguage(field), maxLen)
}
