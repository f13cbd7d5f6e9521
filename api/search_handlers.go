package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	xerrors "github.com/mydeco-dev-team/xappy/internal/errors"
	"github.com/mydeco-dev-team/xappy/internal/facet"
	"github.com/mydeco-dev-team/xappy/internal/highlight"
	"github.com/mydeco-dev-team/xappy/internal/metrics"
	"github.com/mydeco-dev-team/xappy/internal/search"
	"github.com/mydeco-dev-team/xappy/query"
)

// QueryClause is one predicate of a search request. The clause kind follows
// from which members are set: similar_to builds a similarity query, low/high
// a range, facet_value a facet match, otherwise field and text build a
// free-text or exact query. Filter clauses restrict the match set without
// contributing weight.
type QueryClause struct {
	Field      string   `json:"field,omitempty"`
	Text       string   `json:"text,omitempty"`
	Low        string   `json:"low,omitempty"`
	High       string   `json:"high,omitempty"`
	FacetValue string   `json:"facet_value,omitempty"`
	SimilarTo  []string `json:"similar_to,omitempty"`
	Filter     bool     `json:"filter,omitempty"`
}

// FacetParams requests facet suggestions alongside the search results.
type FacetParams struct {
	Allow []string `json:"allow,omitempty"`
	Deny  []string `json:"deny,omitempty"`
	// MaxConsidered caps how many examined documents are tallied; 0 means all.
	MaxConsidered int `json:"max_considered,omitempty"`
}

// SearchRequest describes one search: query clauses, the rank window, and
// optional collapsing, facets, highlighting and spelling correction.
type SearchRequest struct {
	Query           []QueryClause `json:"query"`
	DefaultOp       string        `json:"default_op,omitempty"` // and (default) or or
	Start           int           `json:"start"`
	End             int           `json:"end"` // 0 means Start+10
	CheckAtLeast    int           `json:"check_at_least,omitempty"`
	Collapse        string        `json:"collapse,omitempty"`
	SpellCorrect    bool          `json:"spell_correct,omitempty"`
	Facets          *FacetParams  `json:"facets,omitempty"`
	HighlightField  string        `json:"highlight_field,omitempty"`
	SummariseField  string        `json:"summarise_field,omitempty"`
	SummariseLength int           `json:"summarise_length,omitempty"` // 0 means 200
}

// HitResponse is one ranked search hit.
type HitResponse struct {
	Rank      int                          `json:"rank"`
	ID        string                       `json:"id"`
	Weight    float64                      `json:"weight"`
	Data      map[string][]string          `json:"data,omitempty"`
	Highlight map[string][][]highlight.Run `json:"highlight,omitempty"`
	Summary   []highlight.Run              `json:"summary,omitempty"`
}

// SearchResponse is the outcome of a search request.
type SearchResponse struct {
	Hits              []HitResponse      `json:"hits"`
	MatchesEstimated  int                `json:"matches_estimated"`
	MatchesLowerBound int                `json:"matches_lower_bound"`
	MatchesUpperBound int                `json:"matches_upper_bound"`
	EstimateIsExact   bool               `json:"estimate_is_exact"`
	MoreMatches       bool               `json:"more_matches"`
	Facets            []facet.Suggestion `json:"facets,omitempty"`
	CorrectedQuery    []QueryClause      `json:"corrected_query,omitempty"`
	TookMs            int64              `json:"took_ms"`
}

// SearchHandler evaluates a search request.
func (a *API) SearchHandler(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	if result := ValidateSearchRequest(&req); !result.Valid {
		SendValidationError(c, result)
		return
	}

	start := time.Now()

	corrected := a.spellCorrectClauses(&req)
	q, err := a.buildQuery(&req)
	if err != nil {
		switch {
		case errors.Is(err, xerrors.ErrInvalidValue):
			SendInvalidValueError(c, err)
		case errors.Is(err, xerrors.ErrConnClosed):
			SendConnectionClosedError(c, err)
		default:
			SendFieldError(c, err)
		}
		return
	}

	end := req.End
	if end == 0 {
		end = req.Start + 10
	}
	results, err := a.searcher.SearchWithOptions(q, req.Start, end, search.SearchOptions{
		CheckAtLeast: req.CheckAtLeast,
		Collapse:     req.Collapse,
	})
	if err != nil {
		if errors.Is(err, xerrors.ErrConnClosed) {
			SendConnectionClosedError(c, err)
			return
		}
		a.logger.Error("search failed", zap.Error(err))
		SendSearchError(c, err)
		return
	}

	resp := &SearchResponse{
		Hits:              make([]HitResponse, 0, len(results.Hits)),
		MatchesEstimated:  results.MatchesEstimated,
		MatchesLowerBound: results.MatchesLowerBound,
		MatchesUpperBound: results.MatchesUpperBound,
		EstimateIsExact:   results.EstimateIsExact,
		MoreMatches:       results.MoreMatches,
		CorrectedQuery:    corrected,
	}

	summariseLen := req.SummariseLength
	if summariseLen == 0 {
		summariseLen = 200
	}
	for i := range results.Hits {
		hit := &results.Hits[i]
		hr := HitResponse{
			Rank:   hit.Rank,
			ID:     hit.ID,
			Weight: hit.Weight,
			Data:   hit.Data,
		}
		if req.HighlightField != "" {
			if runs := results.Highlight(hit, req.HighlightField); runs != nil {
				hr.Highlight = map[string][][]highlight.Run{req.HighlightField: runs}
			}
		}
		if req.SummariseField != "" {
			hr.Summary = results.Summarise(hit, req.SummariseField, summariseLen)
		}
		resp.Hits = append(resp.Hits, hr)
	}

	if req.Facets != nil {
		maxConsidered := req.Facets.MaxConsidered
		if maxConsidered == 0 {
			maxConsidered = -1
		}
		facets, err := results.SuggestedFacets(req.Facets.Allow, req.Facets.Deny, maxConsidered)
		if err != nil {
			SendSearchError(c, err)
			return
		}
		resp.Facets = facets
	}

	resp.TookMs = time.Since(start).Milliseconds()
	metrics.RecordSearch(time.Since(start))
	c.JSON(http.StatusOK, resp)
}

// spellCorrectClauses rewrites the free-text clause texts through the spelling
// vocabulary when requested. The corrected clauses are returned only when
// something changed.
func (a *API) spellCorrectClauses(req *SearchRequest) []QueryClause {
	if !req.SpellCorrect {
		return nil
	}
	changed := false
	for i := range req.Query {
		clause := &req.Query[i]
		if clause.Text == "" || len(clause.SimilarTo) > 0 {
			continue
		}
		if fixed := a.searcher.SpellCorrect(clause.Text); fixed != clause.Text {
			clause.Text = fixed
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return req.Query
}

// buildQuery turns the request's clauses into one query tree: ranked clauses
// combine under the default operator, filter clauses restrict the result.
func (a *API) buildQuery(req *SearchRequest) (*query.Query, error) {
	op := query.OpAnd
	if req.DefaultOp == "or" {
		op = query.OpOr
	}

	var ranked, filters []*query.Query
	for _, clause := range req.Query {
		q, err := a.buildClause(&clause, op)
		if err != nil {
			return nil, err
		}
		if clause.Filter {
			filters = append(filters, q)
		} else {
			ranked = append(ranked, q)
		}
	}

	combined, err := query.Compose(op, ranked)
	if err != nil {
		return nil, err
	}
	if combined.IsNone() && len(filters) > 0 {
		combined = query.All()
	}
	for _, f := range filters {
		combined = combined.Filter(f)
	}
	return combined, nil
}

func (a *API) buildClause(clause *QueryClause, op query.Op) (*query.Query, error) {
	switch {
	case len(clause.SimilarTo) > 0:
		return a.searcher.QuerySimilar(clause.SimilarTo, nil, nil, 20)
	case clause.Low != "" || clause.High != "":
		return a.searcher.QueryRange(clause.Field, clause.Low, clause.High)
	case clause.FacetValue != "":
		return a.searcher.QueryFacet(clause.Field, clause.FacetValue)
	default:
		return a.searcher.QueryField(clause.Field, clause.Text, op)
	}
}

// SpellCorrectHandler corrects the words of a free-form text against the
// spelling vocabulary. Uncorrectable text comes back unchanged.
func (a *API) SpellCorrectHandler(c *gin.Context) {
	text := c.Query("text")
	c.JSON(http.StatusOK, gin.H{
		"text":      text,
		"corrected": a.searcher.SpellCorrect(text),
	})
}
