package engine

import (
	"sort"

	xerrors "github.com/mydeco-dev-team/xappy/internal/errors"
	"github.com/mydeco-dev-team/xappy/internal/marshal"
	"github.com/mydeco-dev-team/xappy/query"
	"github.com/mydeco-dev-team/xappy/services"
)

// Evaluate ranks the documents matching q and returns hits with ranks in
// [start, end). Matches are ordered by descending weight, ties broken by
// ascending internal ID for determinism. The bundled engine materializes the
// full match set, so its count bounds are always exact; checkAtLeast only
// controls how many ranked documents are reported in CheckedIDs for facet
// tallying (-1 means all).
func (e *Engine) Evaluate(q *query.Query, start, end, checkAtLeast int) (*services.EvalResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.checkOpen("evaluate query"); err != nil {
		return nil, err
	}
	if err := e.checkView(); err != nil {
		return nil, err
	}
	if start < 0 {
		start = 0
	}
	if end < start {
		end = start
	}

	weights, err := e.evalNode(q)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		internal uint32
		weight   float64
	}
	ranking := make([]ranked, 0, len(weights))
	for internal, weight := range weights {
		ranking = append(ranking, ranked{internal, weight})
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].weight != ranking[j].weight {
			return ranking[i].weight > ranking[j].weight
		}
		return ranking[i].internal < ranking[j].internal
	})

	total := len(ranking)
	result := &services.EvalResult{
		MatchesLowerBound: total,
		MatchesUpperBound: total,
		MatchesEstimated:  total,
	}

	checked := total
	if checkAtLeast >= 0 {
		checked = end
		if checkAtLeast > checked {
			checked = checkAtLeast
		}
		if checked > total {
			checked = total
		}
	}
	result.CheckedIDs = make([]string, 0, checked)
	for _, r := range ranking[:checked] {
		if doc, ok := e.store.GetByInternal(r.internal); ok {
			result.CheckedIDs = append(result.CheckedIDs, doc.ID)
		}
	}

	if start >= total {
		result.Hits = []services.Hit{}
		return result, nil
	}
	if end > total {
		end = total
	}
	result.Hits = make([]services.Hit, 0, end-start)
	for rank := start; rank < end; rank++ {
		doc, ok := e.store.GetByInternal(ranking[rank].internal)
		if !ok {
			continue
		}
		result.Hits = append(result.Hits, services.Hit{
			Rank:   rank,
			ID:     doc.ID,
			Weight: ranking[rank].weight,
		})
	}
	return result, nil
}

// evalNode computes the matching internal IDs and weights for a subtree.
// Must be called with at least a read lock held.
func (e *Engine) evalNode(q *query.Query) (map[uint32]float64, error) {
	if q == nil {
		return map[uint32]float64{}, nil
	}
	switch q.Op {
	case query.OpNone:
		return map[uint32]float64{}, nil

	case query.OpAll:
		matches := make(map[uint32]float64, e.store.Count())
		for _, internal := range e.store.InternalIDs() {
			matches[internal] = 0
		}
		return matches, nil

	case query.OpTerm:
		postings := e.index.PostingsFor(q.Term)
		matches := make(map[uint32]float64, len(postings))
		for _, entry := range postings {
			matches[entry.DocID] = entry.WDF
		}
		return matches, nil

	case query.OpValueRange:
		ids := e.index.SlotRange(q.Slot, q.Low, q.High, q.ChunkWidth)
		matches := make(map[uint32]float64, len(ids))
		for _, internal := range ids {
			matches[internal] = 0
		}
		return matches, nil

	case query.OpValueWeight:
		ids := e.index.SlotDocs(q.Slot)
		matches := make(map[uint32]float64, len(ids))
		for _, internal := range ids {
			value, ok := e.index.SlotValue(q.Slot, internal)
			if !ok {
				continue
			}
			weight, err := marshal.SortableToFloat(value)
			if err != nil {
				continue // slot holds something other than a single float
			}
			matches[internal] = weight
		}
		return matches, nil

	case query.OpAnd:
		return e.evalIntersection(q.Subs)

	case query.OpOr, query.OpAdjust:
		// Both are union-with-summed-weights; ADJUST exists so callers can
		// say "add this weight source" without changing the matching logic.
		return e.evalUnion(q.Subs)

	case query.OpFilter:
		left, err := e.evalNode(q.Subs[0])
		if err != nil {
			return nil, err
		}
		right, err := e.evalNode(q.Subs[1])
		if err != nil {
			return nil, err
		}
		matches := make(map[uint32]float64)
		for internal, weight := range left {
			if _, ok := right[internal]; ok {
				matches[internal] = weight
			}
		}
		return matches, nil

	case query.OpAndNot:
		left, err := e.evalNode(q.Subs[0])
		if err != nil {
			return nil, err
		}
		right, err := e.evalNode(q.Subs[1])
		if err != nil {
			return nil, err
		}
		matches := make(map[uint32]float64)
		for internal, weight := range left {
			if _, ok := right[internal]; !ok {
				matches[internal] = weight
			}
		}
		return matches, nil

	case query.OpScale:
		child, err := e.evalNode(q.Subs[0])
		if err != nil {
			return nil, err
		}
		for internal := range child {
			child[internal] *= q.Factor
		}
		return child, nil

	default:
		return nil, xerrors.NewValueError("", string(q.Op), "unknown query operator")
	}
}

func (e *Engine) evalIntersection(subs []*query.Query) (map[uint32]float64, error) {
	if len(subs) == 0 {
		return map[uint32]float64{}, nil
	}
	matches, err := e.evalNode(subs[0])
	if err != nil {
		return nil, err
	}
	for _, sub := range subs[1:] {
		next, err := e.evalNode(sub)
		if err != nil {
			return nil, err
		}
		for internal, weight := range matches {
			nextWeight, ok := next[internal]
			if !ok {
				delete(matches, internal)
				continue
			}
			matches[internal] = weight + nextWeight
		}
	}
	return matches, nil
}

func (e *Engine) evalUnion(subs []*query.Query) (map[uint32]float64, error) {
	matches := make(map[uint32]float64)
	for _, sub := range subs {
		next, err := e.evalNode(sub)
		if err != nil {
			return nil, err
		}
		for internal, weight := range next {
			matches[internal] += weight
		}
	}
	return matches, nil
}

// MaxSlotValue is the largest float decodable from the slot across all
// documents, considering every chunk of multi-valued slots.
func (e *Engine) MaxSlotValue(slot string) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	max, found := 0.0, false
	for _, internal := range e.index.SlotDocs(slot) {
		value, ok := e.index.SlotValue(slot, internal)
		if !ok {
			continue
		}
		for i := 0; i+marshal.FloatWidth <= len(value); i += marshal.FloatWidth {
			f, err := marshal.SortableToFloat(value[i : i+marshal.FloatWidth])
			if err != nil {
				continue
			}
			if !found || f > max {
				max, found = f, true
			}
		}
	}
	return max, found
}
