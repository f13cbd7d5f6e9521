// Package search builds queries against a schema and runs them through the
// engine: field and range query construction, similarity queries, weight
// normalization, spelling correction, and the ranked result decoding with
// collapsing and pagination.
package search

import (
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mydeco-dev-team/xappy/config"
	xerrors "github.com/mydeco-dev-team/xappy/internal/errors"
	"github.com/mydeco-dev-team/xappy/internal/marshal"
	"github.com/mydeco-dev-team/xappy/internal/tokenizer"
	"github.com/mydeco-dev-team/xappy/model"
	"github.com/mydeco-dev-team/xappy/query"
	"github.com/mydeco-dev-team/xappy/services"
)

// Connection constructs and runs queries for one schema against one engine.
// Not safe for concurrent use; each connection has a single owner.
type Connection struct {
	schema *config.Schema
	engine services.IndexEngine
	closed bool
}

// NewConnection creates a search connection.
func NewConnection(schema *config.Schema, engine services.IndexEngine) *Connection {
	return &Connection{schema: schema, engine: engine}
}

// Close marks the connection closed. Further query construction and searches
// fail with a ClosedError.
func (c *Connection) Close() {
	c.closed = true
}

// Reopen refreshes the connection's view of the index to the latest flushed
// revision.
func (c *Connection) Reopen() error {
	if c.closed {
		return xerrors.NewClosedError("reopen")
	}
	return c.engine.Reopen()
}

// QueryField builds a query matching text in a field, combining the field's
// terms with op (OpAnd or OpOr). Exact fields match the whole text as one
// term. Empty text turns the field's WEIGHT slot into a pure weight source:
// every document with the slot matches, weighted by its value.
func (c *Connection) QueryField(field, text string, op query.Op) (*query.Query, error) {
	if c.closed {
		return nil, xerrors.NewClosedError("build field query")
	}
	fa := c.schema.Fields[field]
	if fa == nil {
		return nil, xerrors.NewConfigurationError(field, "field is not configured")
	}

	if fa.Get(config.ActionExact) != nil {
		return query.Term(c.schema.PrefixedTerm(field, text)), nil
	}

	// An empty text turns a WEIGHT field into a pure weight source; the
	// field does not need to be indexed for text searching.
	if strings.TrimSpace(text) == "" {
		if fa.Get(config.ActionWeight) == nil {
			return nil, xerrors.NewConfigurationError(field,
				"empty text queries need a WEIGHT action on the field")
		}
		return query.ValueWeight(config.SlotName(field, config.PurposeWeight)), nil
	}

	ftAction := fa.Get(config.ActionFreeText)
	if ftAction == nil {
		return nil, xerrors.NewConfigurationError(field, "field is not indexed for searching")
	}
	opts := ftAction.FreeText

	tokens := tokenizer.Terms(text, opts.Language, tokenizer.StopwordSet(opts.Stopwords))
	subs := make([]*query.Query, 0, len(tokens))
	for _, tok := range tokens {
		term := tok.Text
		if !opts.NoFieldSpecific {
			term = c.schema.PrefixedTerm(field, tok.Text)
		}
		subs = append(subs, query.Term(term))
	}
	return query.Compose(op, subs)
}

// QueryRange builds a query matching documents whose field value lies in
// [low, high]. The field must carry a SORTABLE action or a float FACET
// action. Empty bounds leave that end open; inverted bounds simply match
// nothing. Evaluation scans the whole value slot, so large collections
// should filter a cheaper query with the range rather than run it alone.
func (c *Connection) QueryRange(field, low, high string) (*query.Query, error) {
	if c.closed {
		return nil, xerrors.NewClosedError("build range query")
	}

	if typ, ok := c.schema.SortType(field); ok && c.schema.Has(field, config.ActionSortable) {
		slot := config.SlotName(field, config.PurposeCollSort)
		lowBytes, highBytes, err := encodeRangeBounds(field, low, high, typ)
		if err != nil {
			return nil, err
		}
		return query.ValueRange(slot, lowBytes, highBytes), nil
	}

	if kind, ok := c.schema.FacetKind(field); ok && kind == config.FacetFloat {
		slot := config.SlotName(field, config.PurposeFacet)
		lowBytes, highBytes, err := encodeRangeBounds(field, low, high, config.TypeFloat)
		if err != nil {
			return nil, err
		}
		return query.ChunkedValueRange(slot, lowBytes, highBytes, marshal.FloatWidth), nil
	}

	return nil, xerrors.NewConfigurationError(field, "field is not configured for range searches")
}

func encodeRangeBounds(field, low, high string, typ config.ValueType) ([]byte, []byte, error) {
	var lowBytes, highBytes []byte
	var err error
	if low != "" {
		if lowBytes, err = encodeBound(field, low, typ); err != nil {
			return nil, nil, err
		}
	}
	if high != "" {
		if highBytes, err = encodeBound(field, high, typ); err != nil {
			return nil, nil, err
		}
	}
	return lowBytes, highBytes, nil
}

func encodeBound(field, value string, typ config.ValueType) ([]byte, error) {
	switch typ {
	case config.TypeFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, xerrors.NewValueError(field, value, "range bound is not a valid float")
		}
		return marshal.FloatToSortable(f), nil
	case config.TypeDate:
		encoded, err := marshal.DateToSortable(value)
		if err != nil {
			return nil, xerrors.NewValueError(field, value, "range bound is not a valid date")
		}
		return encoded, nil
	default:
		return marshal.StringToSortable(value), nil
	}
}

// QueryFacet builds an exact-match query for a string facet value. The
// comparison is case-insensitive, mirroring how facet values are indexed.
func (c *Connection) QueryFacet(field, value string) (*query.Query, error) {
	if c.closed {
		return nil, xerrors.NewClosedError("build facet query")
	}
	kind, ok := c.schema.FacetKind(field)
	if !ok {
		return nil, xerrors.NewConfigurationError(field, "field is not configured as a facet")
	}
	if kind == config.FacetFloat {
		return nil, xerrors.NewValueError(field, value,
			"float facets are queried with a range, not a single value")
	}
	return query.Term(c.schema.PrefixedTerm(field, strings.ToLower(value))), nil
}

// QueryFacetRange builds a range query over a float facet.
func (c *Connection) QueryFacetRange(field string, low, high float64) (*query.Query, error) {
	if c.closed {
		return nil, xerrors.NewClosedError("build facet query")
	}
	kind, ok := c.schema.FacetKind(field)
	if !ok {
		return nil, xerrors.NewConfigurationError(field, "field is not configured as a facet")
	}
	if kind != config.FacetFloat {
		return nil, xerrors.NewConfigurationError(field, "only float facets take a value range")
	}
	slot := config.SlotName(field, config.PurposeFacet)
	return query.ChunkedValueRange(slot,
		marshal.FloatToSortable(low), marshal.FloatToSortable(high), marshal.FloatWidth), nil
}

// QueryAll matches every document.
func (c *Connection) QueryAll() *query.Query {
	return query.All()
}

// QueryNone matches nothing.
func (c *Connection) QueryNone() *query.Query {
	return query.None()
}

// FieldTerm is a free-text term attributed to the field it was indexed under.
type FieldTerm struct {
	Field string
	Term  string
}

// SignificantTerms returns up to maxTerms of the most discriminating
// free-text terms of the given documents: the rarer a term is across the
// collection, the more it distinguishes these documents. allowFields and
// denyFields restrict which fields' terms qualify.
func (c *Connection) SignificantTerms(docIDs, allowFields, denyFields []string, maxTerms int) ([]FieldTerm, error) {
	if c.closed {
		return nil, xerrors.NewClosedError("collect significant terms")
	}

	eligible, err := c.similarFields(allowFields, denyFields)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		fieldTerm FieldTerm
		prefixed  string
		freq      int
	}
	seen := make(map[string]bool)
	var candidates []candidate
	for _, docID := range docIDs {
		doc, err := c.engine.GetDocument(docID)
		if err != nil {
			return nil, err
		}
		for term := range doc.Terms {
			field, raw, ok := c.splitPrefixed(term)
			if !ok || !eligible[field] || seen[term] {
				continue
			}
			seen[term] = true
			candidates = append(candidates, candidate{
				fieldTerm: FieldTerm{Field: field, Term: raw},
				prefixed:  term,
				freq:      c.engine.TermFreq(term),
			})
		}
	}

	// Rarest first; ties resolve by term text for determinism.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].freq != candidates[j].freq {
			return candidates[i].freq < candidates[j].freq
		}
		return candidates[i].prefixed < candidates[j].prefixed
	})
	if maxTerms > 0 && len(candidates) > maxTerms {
		candidates = candidates[:maxTerms]
	}
	terms := make([]FieldTerm, len(candidates))
	for i, cand := range candidates {
		terms[i] = cand.fieldTerm
	}
	return terms, nil
}

// QuerySimilar builds an OR query over the most discriminating terms of the
// given documents, for "more like this" searches.
func (c *Connection) QuerySimilar(docIDs, allowFields, denyFields []string, maxTerms int) (*query.Query, error) {
	terms, err := c.SignificantTerms(docIDs, allowFields, denyFields, maxTerms)
	if err != nil {
		return nil, err
	}
	subs := make([]*query.Query, len(terms))
	for i, ft := range terms {
		subs[i] = query.Term(c.schema.PrefixedTerm(ft.Field, ft.Term))
	}
	return query.Compose(query.OpOr, subs)
}

// similarFields resolves which free-text fields similarity terms may come
// from. With no eligible field there is nothing to compare on.
func (c *Connection) similarFields(allowFields, denyFields []string) (map[string]bool, error) {
	allowed := make(map[string]bool)
	if len(allowFields) > 0 {
		for _, f := range allowFields {
			if c.schema.Has(f, config.ActionFreeText) {
				allowed[f] = true
			}
		}
	} else {
		for _, f := range c.schema.FreeTextFields() {
			allowed[f] = true
		}
	}
	for _, f := range denyFields {
		delete(allowed, f)
	}
	if len(allowed) == 0 {
		return nil, xerrors.NewConfigurationError("",
			"no free-text field is available for similarity searches")
	}
	return allowed, nil
}

// splitPrefixed maps an index term back to (field, raw term) using the
// schema's prefix table. Unprefixed terms report ok = false.
func (c *Connection) splitPrefixed(term string) (field, raw string, ok bool) {
	bestLen := 0
	for f, prefix := range c.schema.Prefixes {
		if len(prefix) > bestLen && strings.HasPrefix(term, prefix) {
			field, bestLen = f, len(prefix)
		}
	}
	if bestLen == 0 {
		return "", "", false
	}
	raw = term[bestLen:]
	raw = strings.TrimPrefix(raw, ":") // capitalisation guard
	return field, raw, true
}

// MaxPossibleWeight returns an upper bound on the weight any document can
// achieve for the query. The bound is true but typically loose; callers use
// it to normalize heterogeneous weight scales before combining queries.
func (c *Connection) MaxPossibleWeight(q *query.Query) float64 {
	if q == nil {
		return 0
	}
	switch q.Op {
	case query.OpTerm:
		return c.engine.MaxTermWeight(q.Term)
	case query.OpValueWeight:
		max, _ := c.engine.MaxSlotValue(q.Slot)
		return max
	case query.OpValueRange, query.OpAll, query.OpNone:
		return 0
	case query.OpAnd, query.OpOr, query.OpAdjust:
		sum := 0.0
		for _, sub := range q.Subs {
			sum += c.MaxPossibleWeight(sub)
		}
		return sum
	case query.OpFilter, query.OpAndNot:
		return c.MaxPossibleWeight(q.Subs[0])
	case query.OpScale:
		return q.Factor * c.MaxPossibleWeight(q.Subs[0])
	default:
		return 0
	}
}

// Norm scales a query so its maximum possible weight is 1, making weights
// from different queries comparable before an Adjust. A query whose bound is
// zero has nothing to scale and comes back unchanged.
func (c *Connection) Norm(q *query.Query) (*query.Query, error) {
	bound := c.MaxPossibleWeight(q)
	if bound <= 0 {
		return q, nil
	}
	return q.Scale(1 / bound)
}

var wordRe = regexp.MustCompile(`[a-zA-Z0-9]+`)

// SpellCorrect replaces each word of text that the spelling vocabulary can
// correct, preserving everything else verbatim. Text with no correctable
// words comes back unchanged; absence of corrections is not an error.
func (c *Connection) SpellCorrect(text string) string {
	return wordRe.ReplaceAllStringFunc(text, func(word string) string {
		lowered := strings.ToLower(word)
		suggestion, ok := c.engine.SuggestSpelling(lowered)
		if !ok || suggestion == lowered {
			return word
		}
		return suggestion
	})
}

// GetDocument retrieves a document's stored form by ID.
func (c *Connection) GetDocument(docID string) (*model.ProcessedDocument, error) {
	if c.closed {
		return nil, xerrors.NewClosedError("get document")
	}
	return c.engine.GetDocument(docID)
}

// SearchOptions tune a search beyond the rank window.
type SearchOptions struct {
	// CheckAtLeast is the minimum number of matches the engine examines
	// before estimating totals; -1 examines all. Higher values cost latency
	// and buy estimate and facet accuracy.
	CheckAtLeast int
	// Collapse names a field declared COLLAPSE (or SORTABLE); only the
	// highest-ranked document per distinct field value is kept.
	Collapse string
}

// Search evaluates a query and returns results with ranks in [start, end).
// A search view invalidated by a concurrent flush is reopened and retried
// exactly once; a second invalidation surfaces to the caller.
func (c *Connection) Search(q *query.Query, start, end int) (*SearchResults, error) {
	return c.SearchWithOptions(q, start, end, SearchOptions{})
}

// SearchWithOptions is Search with explicit options.
func (c *Connection) SearchWithOptions(q *query.Query, start, end int, opts SearchOptions) (*SearchResults, error) {
	if c.closed {
		return nil, xerrors.NewClosedError("search")
	}
	if opts.Collapse != "" && !c.schema.CanCollapseOn(opts.Collapse) {
		return nil, xerrors.NewConfigurationError(opts.Collapse,
			"field is not configured for collapsing")
	}

	res, err := c.evaluateWithRetry(q, start, end, opts)
	if err != nil {
		return nil, err
	}

	results := &SearchResults{
		conn:              c,
		query:             q,
		startRank:         start,
		endRank:           end,
		MatchesLowerBound: res.MatchesLowerBound,
		MatchesUpperBound: res.MatchesUpperBound,
		MatchesEstimated:  res.MatchesEstimated,
		EstimateIsExact:   res.EstimateIsExact(),
		CheckedIDs:        res.CheckedIDs,
	}
	results.MoreMatches = res.MatchesUpperBound > end

	// Stored data fetched after hits are delivered is never retried on a
	// stale view; a partial result would be inconsistent.
	results.Hits = make([]SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		doc, err := c.engine.GetDocument(hit.ID)
		if err != nil {
			return nil, err
		}
		results.Hits = append(results.Hits, SearchResult{
			Rank:   hit.Rank,
			ID:     hit.ID,
			Weight: hit.Weight,
			Data:   doc.Data,
			values: doc.Values,
		})
	}
	return results, nil
}

func (c *Connection) evaluateWithRetry(q *query.Query, start, end int, opts SearchOptions) (*services.EvalResult, error) {
	evaluate := func() (*services.EvalResult, error) {
		if opts.Collapse != "" {
			return c.evaluateCollapsed(q, start, end, opts)
		}
		return c.engine.Evaluate(q, start, end, opts.CheckAtLeast)
	}

	res, err := evaluate()
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, xerrors.ErrStaleView) {
		return nil, err
	}
	if err := c.engine.Reopen(); err != nil {
		return nil, err
	}
	return evaluate()
}

// evaluateCollapsed ranks the full match set, keeps the first hit per
// distinct collapse-key value, and re-windows. Collapsing is inherently
// exhaustive: later ranks can only be dropped once every better-ranked key
// holder is known.
func (c *Connection) evaluateCollapsed(q *query.Query, start, end int, opts SearchOptions) (*services.EvalResult, error) {
	full, err := c.engine.Evaluate(q, 0, int(^uint(0)>>1), -1)
	if err != nil {
		return nil, err
	}

	slot := config.SlotName(opts.Collapse, config.PurposeCollSort)
	seen := make(map[string]bool)
	kept := make([]services.Hit, 0, len(full.Hits))
	for _, hit := range full.Hits {
		doc, err := c.engine.GetDocument(hit.ID)
		if err != nil {
			return nil, err
		}
		value, hasKey := doc.Values[slot]
		key := string(value)
		// Documents without a collapse key are always kept.
		if hasKey && seen[key] {
			continue
		}
		seen[key] = hasKey
		hit.Rank = len(kept)
		kept = append(kept, hit)
	}

	res := &services.EvalResult{
		MatchesLowerBound: len(kept),
		MatchesUpperBound: len(kept),
		MatchesEstimated:  len(kept),
	}
	res.CheckedIDs = make([]string, len(kept))
	for i, hit := range kept {
		res.CheckedIDs[i] = hit.ID
	}
	if start > len(kept) {
		start = len(kept)
	}
	if end > len(kept) {
		end = len(kept)
	}
	if end < start {
		end = start
	}
	res.Hits = kept[start:end]
	return res, nil
}
