package indexing

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mydeco-dev-team/xappy/config"
	"github.com/mydeco-dev-team/xappy/internal/engine"
	xerrors "github.com/mydeco-dev-team/xappy/internal/errors"
	"github.com/mydeco-dev-team/xappy/internal/marshal"
	"github.com/mydeco-dev-team/xappy/model"
	"github.com/mydeco-dev-team/xappy/query"
)

func schemaWith(t *testing.T, declare func(s *config.Schema) error) *config.Schema {
	t.Helper()
	s := config.NewSchema()
	if err := declare(s); err != nil {
		t.Fatalf("schema setup error = %v", err)
	}
	return s
}

func TestProcessFreeText(t *testing.T) {
	s := schemaWith(t, func(s *config.Schema) error {
		return s.AddAction("text", config.FieldAction{Kind: config.ActionFreeText})
	})
	svc := NewService(s, nil)

	raw := &model.UnprocessedDocument{ID: "d"}
	raw.Add("text", "the quick fox")
	doc, err := svc.Process(raw)
	if err != nil {
		t.Fatalf("Process error = %v", err)
	}

	prefix := s.Prefix("text")
	for i, word := range []string{"the", "quick", "fox"} {
		pos := i + 1
		prefixed := doc.Terms[prefix+word]
		if prefixed == nil || prefixed.WDF != 1 || !reflect.DeepEqual(prefixed.Positions, []int{pos}) {
			t.Errorf("field-specific term %q = %+v, want wdf 1 pos %d", prefix+word, prefixed, pos)
		}
		plain := doc.Terms[word]
		if plain == nil || plain.WDF != 1 {
			t.Errorf("unprefixed term %q = %+v", word, plain)
		}
	}
}

func TestProcessFreeTextOptions(t *testing.T) {
	tests := []struct {
		name        string
		opts        config.FreeTextOptions
		text        string
		wantTerm    string
		wantAbsent  []string
		wantWDF     float64
		wantNoPos   bool
	}{
		{
			name:     "weight multiplies frequency",
			opts:     config.FreeTextOptions{Weight: 3},
			text:     "word",
			wantTerm: "word",
			wantWDF:  3,
		},
		{
			name:       "field specific suppressed",
			opts:       config.FreeTextOptions{NoFieldSpecific: true},
			text:       "word",
			wantTerm:   "word",
			wantWDF:    1,
			wantAbsent: []string{"XAword"},
		},
		{
			name:       "default search suppressed",
			opts:       config.FreeTextOptions{NoDefaultSearch: true},
			text:       "word",
			wantTerm:   "XAword",
			wantWDF:    1,
			wantAbsent: []string{"word"},
		},
		{
			name:      "positions suppressed",
			opts:      config.FreeTextOptions{NoPositions: true},
			text:      "word",
			wantTerm:  "XAword",
			wantWDF:   1,
			wantNoPos: true,
		},
		{
			name:       "stopwords dropped",
			opts:       config.FreeTextOptions{Stopwords: []string{"the"}},
			text:       "the word",
			wantTerm:   "word",
			wantWDF:    1,
			wantAbsent: []string{"the", "XAthe"},
		},
		{
			name:     "stemming",
			opts:     config.FreeTextOptions{Language: "en"},
			text:     "running",
			wantTerm: "run",
			wantWDF:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := schemaWith(t, func(s *config.Schema) error {
				return s.AddAction("text", config.FieldAction{Kind: config.ActionFreeText, FreeText: &tt.opts})
			})
			svc := NewService(s, nil)
			raw := &model.UnprocessedDocument{ID: "d"}
			raw.Add("text", tt.text)
			doc, err := svc.Process(raw)
			if err != nil {
				t.Fatalf("Process error = %v", err)
			}
			term := doc.Terms[tt.wantTerm]
			if term == nil {
				t.Fatalf("term %q missing, have %v", tt.wantTerm, doc.Terms)
			}
			if term.WDF != tt.wantWDF {
				t.Errorf("wdf = %v, want %v", term.WDF, tt.wantWDF)
			}
			if tt.wantNoPos && len(term.Positions) != 0 {
				t.Errorf("positions = %v, want none", term.Positions)
			}
			for _, absent := range tt.wantAbsent {
				if doc.Terms[absent] != nil {
					t.Errorf("term %q should be absent", absent)
				}
			}
		})
	}
}

func TestFieldInstanceGap(t *testing.T) {
	s := schemaWith(t, func(s *config.Schema) error {
		return s.AddAction("text", config.FieldAction{Kind: config.ActionFreeText})
	})
	svc := NewService(s, nil)

	raw := &model.UnprocessedDocument{ID: "d"}
	raw.Add("text", "first instance")
	raw.Add("text", "second")
	doc, err := svc.Process(raw)
	if err != nil {
		t.Fatalf("Process error = %v", err)
	}

	// Second instance starts past a gap, so phrases cannot span instances.
	second := doc.Terms["second"]
	if second == nil || len(second.Positions) != 1 {
		t.Fatalf("term second = %+v", second)
	}
	if got := second.Positions[0]; got != 2+instanceGap+1 {
		t.Errorf("second instance position = %d, want %d", got, 2+instanceGap+1)
	}
}

func TestProcessExactCapitalisationGuard(t *testing.T) {
	s := schemaWith(t, func(s *config.Schema) error {
		return s.AddAction("title", config.FieldAction{Kind: config.ActionExact})
	})
	svc := NewService(s, nil)

	raw := &model.UnprocessedDocument{ID: "d"}
	raw.Add("title", "Hello World")
	raw.Add("title", "lowercase")
	doc, err := svc.Process(raw)
	if err != nil {
		t.Fatalf("Process error = %v", err)
	}
	if doc.Terms["XA:Hello World"] == nil {
		t.Errorf("capitalised exact value should carry the ':' guard, terms = %v", doc.Terms)
	}
	if doc.Terms["XAlowercase"] == nil {
		t.Errorf("lowercase exact value should not carry a guard, terms = %v", doc.Terms)
	}
}

func TestProcessSortable(t *testing.T) {
	s := schemaWith(t, func(s *config.Schema) error {
		if err := s.AddAction("price", config.FieldAction{
			Kind: config.ActionSortable, Sortable: &config.SortableOptions{Type: config.TypeFloat},
		}); err != nil {
			return err
		}
		if err := s.AddAction("date", config.FieldAction{
			Kind: config.ActionSortable, Sortable: &config.SortableOptions{Type: config.TypeDate},
		}); err != nil {
			return err
		}
		return s.AddAction("name", config.FieldAction{Kind: config.ActionSortable})
	})
	svc := NewService(s, nil)

	raw := &model.UnprocessedDocument{ID: "d"}
	raw.Add("price", "16.56")
	raw.Add("date", "2007-05-31")
	raw.Add("name", "widget")
	doc, err := svc.Process(raw)
	if err != nil {
		t.Fatalf("Process error = %v", err)
	}

	if got := doc.Values[config.SlotName("price", config.PurposeCollSort)]; !reflect.DeepEqual(got, marshal.FloatToSortable(16.56)) {
		t.Errorf("price slot = %x", got)
	}
	if got := doc.Values[config.SlotName("date", config.PurposeCollSort)]; string(got) != "20070531" {
		t.Errorf("date slot = %q", got)
	}
	if got := doc.Values[config.SlotName("name", config.PurposeCollSort)]; string(got) != "widget" {
		t.Errorf("name slot = %q", got)
	}

	bad := &model.UnprocessedDocument{ID: "d2"}
	bad.Add("price", "cheap")
	if _, err := svc.Process(bad); !errors.Is(err, xerrors.ErrInvalidValue) {
		t.Errorf("unparseable sortable error = %v, want ErrInvalidValue", err)
	}
}

func TestProcessCollapseSharesSortableSlot(t *testing.T) {
	s := schemaWith(t, func(s *config.Schema) error {
		if err := s.AddAction("price", config.FieldAction{
			Kind: config.ActionSortable, Sortable: &config.SortableOptions{Type: config.TypeFloat},
		}); err != nil {
			return err
		}
		if err := s.AddAction("price", config.FieldAction{Kind: config.ActionCollapse}); err != nil {
			return err
		}
		return s.AddAction("brand", config.FieldAction{Kind: config.ActionCollapse})
	})
	svc := NewService(s, nil)

	raw := &model.UnprocessedDocument{ID: "d"}
	raw.Add("price", "5")
	raw.Add("brand", "Acme")
	doc, err := svc.Process(raw)
	if err != nil {
		t.Fatalf("Process error = %v", err)
	}

	if got := doc.Values[config.SlotName("price", config.PurposeCollSort)]; !reflect.DeepEqual(got, marshal.FloatToSortable(5)) {
		t.Errorf("collapse should reuse the sortable encoding, got %x", got)
	}
	if got := doc.Values[config.SlotName("brand", config.PurposeCollSort)]; string(got) != "Acme" {
		t.Errorf("collapse-only slot = %q, want raw value", got)
	}
}

func TestProcessFacets(t *testing.T) {
	s := schemaWith(t, func(s *config.Schema) error {
		if err := s.AddAction("category", config.FieldAction{Kind: config.ActionFacet}); err != nil {
			return err
		}
		return s.AddAction("price", config.FieldAction{
			Kind: config.ActionFacet, Facet: &config.FacetOptions{Type: config.FacetFloat},
		})
	})
	svc := NewService(s, nil)

	raw := &model.UnprocessedDocument{ID: "d"}
	raw.Add("category", "Bible")
	raw.Add("category", "Classics")
	raw.Add("price", "12.5")
	raw.Add("price", "13.5")
	doc, err := svc.Process(raw)
	if err != nil {
		t.Fatalf("Process error = %v", err)
	}

	// String facet values are lowercased, joined in the slot, and indexed as
	// terms for exact facet queries.
	catSlot := doc.Values[config.SlotName("category", config.PurposeFacet)]
	if got := SplitFacetValues(catSlot); !reflect.DeepEqual(got, []string{"bible", "classics"}) {
		t.Errorf("category slot values = %v", got)
	}
	if doc.Terms[s.PrefixedTerm("category", "bible")] == nil {
		t.Errorf("facet term missing, terms = %v", doc.Terms)
	}

	// Float facet values concatenate fixed-width encodings.
	priceSlot := doc.Values[config.SlotName("price", config.PurposeFacet)]
	if len(priceSlot) != 2*marshal.FloatWidth {
		t.Fatalf("price facet slot length = %d, want %d", len(priceSlot), 2*marshal.FloatWidth)
	}
	first, err := marshal.SortableToFloat(priceSlot[:marshal.FloatWidth])
	if err != nil || first != 12.5 {
		t.Errorf("first price chunk = %v, %v", first, err)
	}
}

func TestProcessWeight(t *testing.T) {
	s := schemaWith(t, func(s *config.Schema) error {
		return s.AddAction("boost", config.FieldAction{Kind: config.ActionWeight})
	})
	svc := NewService(s, nil)

	raw := &model.UnprocessedDocument{ID: "d"}
	raw.Add("boost", "2.5")
	doc, err := svc.Process(raw)
	if err != nil {
		t.Fatalf("Process error = %v", err)
	}
	got, err := marshal.SortableToFloat(doc.Values[config.SlotName("boost", config.PurposeWeight)])
	if err != nil || got != 2.5 {
		t.Errorf("weight slot = %v, %v", got, err)
	}

	for _, bad := range []string{"-1", "heavy"} {
		raw := &model.UnprocessedDocument{ID: "d"}
		raw.Add("boost", bad)
		if _, err := svc.Process(raw); !errors.Is(err, xerrors.ErrInvalidValue) {
			t.Errorf("weight %q error = %v, want ErrInvalidValue", bad, err)
		}
	}
}

func TestProcessStore(t *testing.T) {
	s := schemaWith(t, func(s *config.Schema) error {
		return s.AddAction("title", config.FieldAction{Kind: config.ActionStore})
	})
	svc := NewService(s, nil)

	raw := &model.UnprocessedDocument{ID: "d"}
	raw.Add("title", "first")
	raw.AddAssoc("title", "raw value", "display value")
	doc, err := svc.Process(raw)
	if err != nil {
		t.Fatalf("Process error = %v", err)
	}
	want := []string{"first", "display value"}
	if !reflect.DeepEqual(doc.Data["title"], want) {
		t.Errorf("stored data = %v, want %v", doc.Data["title"], want)
	}
}

func TestProcessAssignsID(t *testing.T) {
	s := schemaWith(t, func(s *config.Schema) error {
		return s.AddAction("text", config.FieldAction{Kind: config.ActionFreeText})
	})
	svc := NewService(s, nil)

	raw := &model.UnprocessedDocument{}
	raw.Add("text", "anonymous")
	doc, err := svc.Process(raw)
	if err != nil {
		t.Fatalf("Process error = %v", err)
	}
	if doc.ID == "" {
		t.Error("processing should assign an ID when none is supplied")
	}
	doc2, _ := svc.Process(raw)
	if doc.ID == doc2.ID {
		t.Error("auto-assigned IDs must be unique")
	}
}

func TestProcessDeterminism(t *testing.T) {
	s := schemaWith(t, func(s *config.Schema) error {
		if err := s.AddAction("text", config.FieldAction{
			Kind:     config.ActionFreeText,
			FreeText: &config.FreeTextOptions{Language: "en", Spell: true},
		}); err != nil {
			return err
		}
		return s.AddAction("category", config.FieldAction{Kind: config.ActionFacet})
	})
	svc := NewService(s, nil)

	raw := &model.UnprocessedDocument{ID: "fixed"}
	raw.Add("text", "the quick brown foxes keep running")
	raw.Add("category", "Bible")

	a, err := svc.Process(raw)
	if err != nil {
		t.Fatalf("Process error = %v", err)
	}
	b, err := svc.Process(raw)
	if err != nil {
		t.Fatalf("Process error = %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("processing is not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestUnknownFieldsAreIgnored(t *testing.T) {
	s := config.NewSchema()
	svc := NewService(s, nil)
	raw := &model.UnprocessedDocument{ID: "d"}
	raw.Add("mystery", "value")
	doc, err := svc.Process(raw)
	if err != nil {
		t.Fatalf("Process error = %v", err)
	}
	if len(doc.Terms) != 0 || len(doc.Values) != 0 || len(doc.Data) != 0 {
		t.Errorf("undeclared field should produce nothing, got %+v", doc)
	}
}

func TestConnectionLifecycle(t *testing.T) {
	s := schemaWith(t, func(s *config.Schema) error {
		return s.AddAction("text", config.FieldAction{
			Kind:     config.ActionFreeText,
			FreeText: &config.FreeTextOptions{Spell: true},
		})
	})
	eng, err := engine.New("", nil)
	require.NoError(t, err)
	svc := NewService(s, eng)

	raw := &model.UnprocessedDocument{ID: "doc-1"}
	raw.Add("text", "the quick fox")
	id, err := svc.Add(raw)
	require.NoError(t, err)
	require.Equal(t, "doc-1", id)

	res, err := eng.Evaluate(query.Term("quick"), 0, 10, -1)
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	require.Equal(t, "doc-1", res.Hits[0].ID)

	// Spell words reached the engine vocabulary.
	suggestion, ok := eng.SuggestSpelling("quikc")
	require.True(t, ok)
	require.Equal(t, "quick", suggestion)

	require.NoError(t, svc.Delete("doc-1"))
	err = svc.Delete("doc-1")
	require.ErrorIs(t, err, xerrors.ErrDocNotFound)

	require.NoError(t, svc.Close())
	_, err = svc.Add(raw)
	require.ErrorIs(t, err, xerrors.ErrConnClosed)
	require.NoError(t, svc.Close()) // idempotent
}

func TestReplaceRequiresID(t *testing.T) {
	s := config.NewSchema()
	eng, err := engine.New("", nil)
	require.NoError(t, err)
	svc := NewService(s, eng)

	err = svc.Replace(&model.UnprocessedDocument{})
	require.ErrorIs(t, err, xerrors.ErrInvalidValue)
}
