// Package query defines the query algebra used to describe searches. Queries
// are immutable trees of leaves and combinators, built by the construction
// helpers on a search connection or composed directly. The package holds pure
// values; evaluation lives behind the engine boundary.
package query

import (
	"fmt"
	"strings"

	xerrors "github.com/mydeco-dev-team/xappy/internal/errors"
)

// Op identifies a query node type.
type Op string

const (
	// OpTerm matches documents containing a single index term. Weight is the
	// term's within-document frequency.
	OpTerm Op = "term"
	// OpValueRange matches documents whose encoded slot value lies in a byte
	// range. Matching documents take weight 0.
	OpValueRange Op = "value_range"
	// OpValueWeight matches every document with the named slot populated,
	// weighted by the float value decoded from the slot.
	OpValueWeight Op = "value_weight"
	// OpAll matches every document with weight 0.
	OpAll Op = "all"
	// OpNone matches no documents.
	OpNone Op = "none"

	// OpAnd matches documents matching every child; weights sum.
	OpAnd Op = "and"
	// OpOr matches documents matching any child; weights of the matching
	// children sum.
	OpOr Op = "or"
	// OpFilter matches documents matching both children but takes weight from
	// the left child only.
	OpFilter Op = "filter"
	// OpAndNot matches documents matching the left child but not the right;
	// weight comes from the left child.
	OpAndNot Op = "and_not"
	// OpAdjust matches the union of both children; each document's weight is
	// the sum of the weights from the sides that matched it.
	OpAdjust Op = "adjust"
	// OpScale matches its single child's documents with weights multiplied by
	// Factor.
	OpScale Op = "scale"
)

// Query is a node in a query tree. Queries are immutable once built: the
// combinators share subtrees rather than copying them, so a Query must not be
// modified after construction.
type Query struct {
	Op Op `json:"op"`

	// Leaf payloads.
	Term string `json:"term,omitempty"` // OpTerm
	Slot string `json:"slot,omitempty"` // OpValueRange, OpValueWeight
	Low  []byte `json:"low,omitempty"`  // OpValueRange; nil means unbounded below
	High []byte `json:"high,omitempty"` // OpValueRange; nil means unbounded above
	// ChunkWidth, when positive, treats the slot as a concatenation of
	// fixed-width encodings and matches a range when any chunk lies in it.
	ChunkWidth int `json:"chunk_width,omitempty"`

	// Combinator payloads.
	Factor float64  `json:"factor,omitempty"` // OpScale
	Subs   []*Query `json:"subs,omitempty"`
}

// Term matches documents containing the given index term.
func Term(term string) *Query {
	return &Query{Op: OpTerm, Term: term}
}

// ValueRange matches documents whose encoded value in slot lies between low
// and high inclusive. A nil bound leaves that end open; both nil matches any
// document with the slot populated.
func ValueRange(slot string, low, high []byte) *Query {
	return &Query{Op: OpValueRange, Slot: slot, Low: low, High: high}
}

// ChunkedValueRange is ValueRange for multi-valued slots holding
// concatenated fixed-width encodings: a document matches when any
// width-sized chunk of its slot value lies within the bounds.
func ChunkedValueRange(slot string, low, high []byte, width int) *Query {
	return &Query{Op: OpValueRange, Slot: slot, Low: low, High: high, ChunkWidth: width}
}

// ValueWeight matches every document with the slot populated, weighted by the
// float decoded from the slot.
func ValueWeight(slot string) *Query {
	return &Query{Op: OpValueWeight, Slot: slot}
}

// All matches every document in the database with weight 0.
func All() *Query {
	return &Query{Op: OpAll}
}

// None matches no documents.
func None() *Query {
	return &Query{Op: OpNone}
}

// And matches documents matching every one of qs.
func And(qs ...*Query) *Query {
	return compose(OpAnd, qs)
}

// Or matches documents matching at least one of qs.
func Or(qs ...*Query) *Query {
	return compose(OpOr, qs)
}

// Compose combines queries under an n-ary combinator (OpAnd or OpOr). An
// empty list yields None.
func Compose(op Op, qs []*Query) (*Query, error) {
	if op != OpAnd && op != OpOr {
		return nil, xerrors.NewValueError("", string(op), "compose requires an AND or OR operator")
	}
	return compose(op, qs), nil
}

func compose(op Op, qs []*Query) *Query {
	kept := make([]*Query, 0, len(qs))
	for _, q := range qs {
		if q != nil {
			kept = append(kept, q)
		}
	}
	switch len(kept) {
	case 0:
		return None()
	case 1:
		return kept[0]
	}
	return &Query{Op: op, Subs: kept}
}

// Filter restricts q to documents also matching filter, without letting
// filter contribute weight.
func (q *Query) Filter(filter *Query) *Query {
	return &Query{Op: OpFilter, Subs: []*Query{q, filter}}
}

// AndNot removes documents matching exclude from q's results.
func (q *Query) AndNot(exclude *Query) *Query {
	return &Query{Op: OpAndNot, Subs: []*Query{q, exclude}}
}

// Adjust sums the weights of two queries per document. Documents matching
// either side are in the result, contributing the matching side's weight.
// Used to combine heterogeneous weight sources after normalization.
func (q *Query) Adjust(adjust *Query) *Query {
	return &Query{Op: OpAdjust, Subs: []*Query{q, adjust}}
}

// Scale multiplies q's weights by factor. The factor must not be negative.
func (q *Query) Scale(factor float64) (*Query, error) {
	if factor < 0 {
		return nil, xerrors.NewValueError("", fmt.Sprintf("%v", factor),
			"scale factor must not be negative")
	}
	return &Query{Op: OpScale, Factor: factor, Subs: []*Query{q}}, nil
}

// IsNone reports whether the query is the match-nothing query.
func (q *Query) IsNone() bool {
	return q == nil || q.Op == OpNone
}

// String renders the tree for logs and error messages.
func (q *Query) String() string {
	if q == nil {
		return "<nil>"
	}
	switch q.Op {
	case OpTerm:
		return fmt.Sprintf("Term(%q)", q.Term)
	case OpValueRange:
		low, high := "*", "*"
		if q.Low != nil {
			low = fmt.Sprintf("%q", q.Low)
		}
		if q.High != nil {
			high = fmt.Sprintf("%q", q.High)
		}
		return fmt.Sprintf("Range(%s, %s..%s)", q.Slot, low, high)
	case OpValueWeight:
		return fmt.Sprintf("ValueWeight(%s)", q.Slot)
	case OpAll:
		return "All()"
	case OpNone:
		return "None()"
	case OpScale:
		return fmt.Sprintf("Scale(%v, %s)", q.Factor, q.Subs[0])
	default:
		parts := make([]string, len(q.Subs))
		for i, sub := range q.Subs {
			parts[i] = sub.String()
		}
		return fmt.Sprintf("%s(%s)", strings.ToUpper(string(q.Op)), strings.Join(parts, ", "))
	}
}
