// Package services defines the boundary between the field-modeling layer and
// the index engine that stores and evaluates against postings and value
// slots. The bundled in-memory engine implements these interfaces; a caller
// can substitute any other engine with the same semantics.
package services

import (
	"github.com/mydeco-dev-team/xappy/model"
	"github.com/mydeco-dev-team/xappy/query"
)

// Hit is a single ranked match from query evaluation.
type Hit struct {
	Rank   int     `json:"rank"` // 0-based position within the full ranking
	ID     string  `json:"id"`
	Weight float64 `json:"weight"`
}

// EvalResult is the outcome of evaluating a query window.
//
// The bounds describe the engine's knowledge of the total match count. When
// the engine examined every candidate the bounds coincide and the estimate is
// exact; otherwise the estimate lies between them.
type EvalResult struct {
	Hits []Hit `json:"hits"` // ranks [start, end) of the ranking

	MatchesLowerBound int `json:"matches_lower_bound"`
	MatchesUpperBound int `json:"matches_upper_bound"`
	MatchesEstimated  int `json:"matches_estimated"`

	// CheckedIDs are the documents the engine actually examined, in rank
	// order. At least checkAtLeast entries when that many matches exist.
	// Facet tallying scans these rather than just the returned window.
	CheckedIDs []string `json:"-"`
}

// EstimateIsExact reports whether MatchesEstimated is known to be the true
// match count.
func (r *EvalResult) EstimateIsExact() bool {
	return r.MatchesLowerBound == r.MatchesUpperBound
}

// IndexWriter is the document-storage side of the engine. Writes for one
// document accumulate through PutTerm/PutValue/PutStored and take effect at
// Commit; Flush makes all committed writes visible to newly opened or
// reopened views and persists them.
type IndexWriter interface {
	// PutTerm adds wdfInc to the frequency of term in the pending document
	// and records any positions.
	PutTerm(docID, term string, wdfInc float64, positions []int) error

	// PutValue sets the named value slot of the pending document. Repeated
	// calls for one slot append, building multi-valued slots.
	PutValue(docID, slot string, value []byte) error

	// PutStored appends a stored field value for the pending document.
	PutStored(docID, field, value string) error

	// Commit atomically installs the pending document, replacing any
	// existing document with the same ID.
	Commit(docID string) error

	// Delete removes a committed document. Deleting an unknown ID is an
	// ErrDocNotFound.
	Delete(docID string) error

	// AddSpelling records a spelling-vocabulary word for the pending
	// document. The word's frequency rises at Commit and falls again when
	// the document is replaced or deleted.
	AddSpelling(docID, word string) error

	// RemoveSpelling decrements a word's frequency in the spelling
	// vocabulary, dropping it at zero.
	RemoveSpelling(word string) error

	// Flush publishes all committed writes and persists the index.
	Flush() error

	Close() error
}

// IndexReader is the query-evaluation side of the engine. A reader holds a
// snapshot view: writes flushed after the view was opened are invisible until
// Reopen, and operations against a superseded view fail with ErrStaleView.
type IndexReader interface {
	// Evaluate ranks the documents matching q and returns hits with ranks in
	// [start, end). The engine examines at least checkAtLeast candidate
	// matches before estimating the total; -1 forces an exhaustive count.
	Evaluate(q *query.Query, start, end, checkAtLeast int) (*EvalResult, error)

	// IterateValueRange returns the IDs of documents whose encoded slot
	// value lies within [low, high], in undefined order. Nil bounds leave
	// that end open.
	IterateValueRange(slot string, low, high []byte) ([]string, error)

	// GetDocument retrieves the stored form of a committed document: terms,
	// value slots and stored data.
	GetDocument(docID string) (*model.ProcessedDocument, error)

	// Reopen refreshes the view to the latest flushed revision.
	Reopen() error

	// Revision identifies the flushed state the view observes.
	Revision() uint64

	// DocCount is the number of documents visible to the view.
	DocCount() int

	// TermFreq is the number of visible documents containing the term.
	TermFreq(term string) int

	// MaxTermWeight is the largest weighted frequency any visible document
	// records for the term, 0 when the term is absent.
	MaxTermWeight(term string) float64

	// MaxSlotValue is the largest float decodable from the named slot across
	// visible documents. The second result is false when no document
	// populates the slot.
	MaxSlotValue(slot string) (float64, bool)

	// SuggestSpelling proposes a correction for a word from the spelling
	// vocabulary. The second result is false when no close match exists.
	SuggestSpelling(word string) (string, bool)
}

// IndexEngine combines both sides of the engine boundary.
type IndexEngine interface {
	IndexWriter
	IndexReader
}
