// Package facet tallies facet value frequencies over an examined result set
// and clusters continuous facets into representative ranges. String facets
// count exact stored values; float facets collect the raw numbers and merge
// them into at most a handful of [low, high] ranges, so dense value clusters
// collapse together while outliers stay separate.
package facet

import (
	"errors"
	"sort"

	"github.com/mydeco-dev-team/xappy/config"
	xerrors "github.com/mydeco-dev-team/xappy/internal/errors"
	"github.com/mydeco-dev-team/xappy/internal/indexing"
	"github.com/mydeco-dev-team/xappy/internal/marshal"
	"github.com/mydeco-dev-team/xappy/services"
)

// DefaultDesiredRanges is how many ranges a float facet is clustered into
// when the caller does not say otherwise.
const DefaultDesiredRanges = 7

// Value is one tallied facet value. String facets populate Value; float
// facets populate the [Low, High] range instead.
type Value struct {
	Value string  `json:"value,omitempty"`
	Low   float64 `json:"low,omitempty"`
	High  float64 `json:"high,omitempty"`
	Count int     `json:"count"`
}

// Suggestion is the tally for one facet field, values ordered by descending
// count then ascending value.
type Suggestion struct {
	Field  string           `json:"field"`
	Kind   config.FacetType `json:"kind"`
	Values []Value          `json:"values"`
}

// Suggester computes facet suggestions by scanning examined documents through
// an index reader.
type Suggester struct {
	schema        *config.Schema
	reader        services.IndexReader
	desiredRanges int
}

func NewSuggester(schema *config.Schema, reader services.IndexReader) *Suggester {
	return &Suggester{schema: schema, reader: reader, desiredRanges: DefaultDesiredRanges}
}

// SetDesiredRanges overrides how many clusters float facets are merged into.
func (s *Suggester) SetDesiredRanges(n int) {
	if n > 0 {
		s.desiredRanges = n
	}
}

// Suggest tallies facet values over up to maxConsidered of the given document
// IDs (-1 examines all). Fields are restricted to allow when non-empty and
// never include deny. The returned suggestions are ordered by descending
// number of documents carrying the facet.
func (s *Suggester) Suggest(docIDs []string, allow, deny []string, maxConsidered int) ([]Suggestion, error) {
	fields := s.eligibleFields(allow, deny)
	if len(fields) == 0 {
		return nil, nil
	}
	if maxConsidered >= 0 && maxConsidered < len(docIDs) {
		docIDs = docIDs[:maxConsidered]
	}

	stringCounts := make(map[string]map[string]int)
	floatCounts := make(map[string]map[float64]int)
	fieldDocs := make(map[string]int)

	for _, id := range docIDs {
		doc, err := s.reader.GetDocument(id)
		if err != nil {
			if errors.Is(err, xerrors.ErrDocNotFound) {
				continue
			}
			return nil, err
		}
		for _, field := range fields {
			raw, ok := doc.Values[config.SlotName(field, config.PurposeFacet)]
			if !ok || len(raw) == 0 {
				continue
			}
			kind, _ := s.schema.FacetKind(field)
			if kind == config.FacetFloat {
				counted := false
				for off := 0; off+marshal.FloatWidth <= len(raw); off += marshal.FloatWidth {
					v, err := marshal.SortableToFloat(raw[off : off+marshal.FloatWidth])
					if err != nil {
						return nil, err
					}
					if floatCounts[field] == nil {
						floatCounts[field] = make(map[float64]int)
					}
					floatCounts[field][v]++
					counted = true
				}
				if counted {
					fieldDocs[field]++
				}
				continue
			}
			values := indexing.SplitFacetValues(raw)
			if len(values) == 0 {
				continue
			}
			if stringCounts[field] == nil {
				stringCounts[field] = make(map[string]int)
			}
			for _, v := range values {
				stringCounts[field][v]++
			}
			fieldDocs[field]++
		}
	}

	var suggestions []Suggestion
	for _, field := range fields {
		kind, _ := s.schema.FacetKind(field)
		var values []Value
		if kind == config.FacetFloat {
			values = clusterFloats(floatCounts[field], s.desiredRanges)
		} else {
			values = tallyStrings(stringCounts[field])
		}
		if len(values) == 0 {
			continue
		}
		suggestions = append(suggestions, Suggestion{Field: field, Kind: kind, Values: values})
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		di, dj := fieldDocs[suggestions[i].Field], fieldDocs[suggestions[j].Field]
		if di != dj {
			return di > dj
		}
		return suggestions[i].Field < suggestions[j].Field
	})
	return suggestions, nil
}

func (s *Suggester) eligibleFields(allow, deny []string) []string {
	allowed := make(map[string]bool, len(allow))
	for _, f := range allow {
		allowed[f] = true
	}
	denied := make(map[string]bool, len(deny))
	for _, f := range deny {
		denied[f] = true
	}
	var fields []string
	for _, f := range s.schema.FacetFields() {
		if len(allow) > 0 && !allowed[f] {
			continue
		}
		if denied[f] {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

func tallyStrings(counts map[string]int) []Value {
	values := make([]Value, 0, len(counts))
	for v, n := range counts {
		values = append(values, Value{Value: v, Count: n})
	}
	sort.Slice(values, func(i, j int) bool {
		if values[i].Count != values[j].Count {
			return values[i].Count > values[j].Count
		}
		return values[i].Value < values[j].Value
	})
	return values
}

// clusterFloats merges observed numeric values into at most desiredRanges
// ranges. The largest gaps between adjacent distinct values become cluster
// boundaries, except gaps smaller than a fraction of the total span, which
// are never split. Each cluster covers [min, max] of its members and carries
// their summed count.
func clusterFloats(counts map[float64]int, desiredRanges int) []Value {
	if len(counts) == 0 {
		return nil
	}
	distinct := make([]float64, 0, len(counts))
	for v := range counts {
		distinct = append(distinct, v)
	}
	sort.Float64s(distinct)

	if desiredRanges < 1 {
		desiredRanges = 1
	}
	span := distinct[len(distinct)-1] - distinct[0]
	minGap := span / float64(8*desiredRanges)

	type gap struct {
		after int // index of the value preceding the gap
		width float64
	}
	gaps := make([]gap, 0, len(distinct)-1)
	for i := 0; i+1 < len(distinct); i++ {
		if w := distinct[i+1] - distinct[i]; w >= minGap {
			gaps = append(gaps, gap{after: i, width: w})
		}
	}
	sort.Slice(gaps, func(i, j int) bool {
		if gaps[i].width != gaps[j].width {
			return gaps[i].width > gaps[j].width
		}
		return gaps[i].after < gaps[j].after
	})
	if len(gaps) > desiredRanges-1 {
		gaps = gaps[:desiredRanges-1]
	}

	splitAfter := make(map[int]bool, len(gaps))
	for _, g := range gaps {
		splitAfter[g.after] = true
	}

	var values []Value
	start := 0
	for i := range distinct {
		if i+1 < len(distinct) && !splitAfter[i] {
			continue
		}
		cluster := Value{Low: distinct[start], High: distinct[i]}
		for _, v := range distinct[start : i+1] {
			cluster.Count += counts[v]
		}
		values = append(values, cluster)
		start = i + 1
	}
	sort.SliceStable(values, func(i, j int) bool {
		if values[i].Count != values[j].Count {
			return values[i].Count > values[j].Count
		}
		return values[i].Low < values[j].Low
	})
	return values
}
