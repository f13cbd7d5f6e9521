package config

import (
	"errors"
	"testing"

	xerrors "github.com/mydeco-dev-team/xappy/internal/errors"
)

func TestAddActionValidation(t *testing.T) {
	tests := []struct {
		name    string
		setup   []struct {
			field  string
			action FieldAction
		}
		field   string
		action  FieldAction
		wantErr bool
	}{
		{
			name:   "freetext with defaults",
			field:  "title",
			action: FieldAction{Kind: ActionFreeText},
		},
		{
			name:  "freetext with language",
			field: "title",
			action: FieldAction{
				Kind:     ActionFreeText,
				FreeText: &FreeTextOptions{Language: "en", Spell: true},
			},
		},
		{
			name:  "freetext with unsupported language",
			field: "title",
			action: FieldAction{
				Kind:     ActionFreeText,
				FreeText: &FreeTextOptions{Language: "xx"},
			},
			wantErr: true,
		},
		{
			name:  "freetext with negative weight",
			field: "title",
			action: FieldAction{
				Kind:     ActionFreeText,
				FreeText: &FreeTextOptions{Weight: -2},
			},
			wantErr: true,
		},
		{
			name:    "empty field name",
			field:   "",
			action:  FieldAction{Kind: ActionFreeText},
			wantErr: true,
		},
		{
			name:    "whitespace field name",
			field:   "   ",
			action:  FieldAction{Kind: ActionExact},
			wantErr: true,
		},
		{
			name:    "unknown action kind",
			field:   "title",
			action:  FieldAction{Kind: ActionKind("mystery")},
			wantErr: true,
		},
		{
			name:   "sortable defaults to string",
			field:  "name",
			action: FieldAction{Kind: ActionSortable},
		},
		{
			name:  "sortable with unknown type",
			field: "price",
			action: FieldAction{
				Kind:     ActionSortable,
				Sortable: &SortableOptions{Type: ValueType("complex")},
			},
			wantErr: true,
		},
		{
			name:  "facet with unknown type",
			field: "category",
			action: FieldAction{
				Kind:  ActionFacet,
				Facet: &FacetOptions{Type: FacetType("date")},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSchema()
			for _, pre := range tt.setup {
				if err := s.AddAction(pre.field, pre.action); err != nil {
					t.Fatalf("setup AddAction(%q) error = %v", pre.field, err)
				}
			}
			err := s.AddAction(tt.field, tt.action)
			if tt.wantErr {
				if !errors.Is(err, xerrors.ErrConfiguration) {
					t.Errorf("AddAction() error = %v, want ErrConfiguration", err)
				}
				return
			}
			if err != nil {
				t.Errorf("AddAction() unexpected error = %v", err)
			}
		})
	}
}

func TestExactFreeTextConflict(t *testing.T) {
	s := NewSchema()
	if err := s.AddAction("title", FieldAction{Kind: ActionExact}); err != nil {
		t.Fatalf("AddAction(EXACT) error = %v", err)
	}
	err := s.AddAction("title", FieldAction{Kind: ActionFreeText})
	if !errors.Is(err, xerrors.ErrConfiguration) {
		t.Errorf("FREETEXT after EXACT: error = %v, want ErrConfiguration", err)
	}

	s = NewSchema()
	if err := s.AddAction("title", FieldAction{Kind: ActionFreeText}); err != nil {
		t.Fatalf("AddAction(FREETEXT) error = %v", err)
	}
	err = s.AddAction("title", FieldAction{Kind: ActionExact})
	if !errors.Is(err, xerrors.ErrConfiguration) {
		t.Errorf("EXACT after FREETEXT: error = %v, want ErrConfiguration", err)
	}

	// The same conflict on two different fields is fine.
	s = NewSchema()
	if err := s.AddAction("title", FieldAction{Kind: ActionExact}); err != nil {
		t.Fatalf("AddAction error = %v", err)
	}
	if err := s.AddAction("body", FieldAction{Kind: ActionFreeText}); err != nil {
		t.Errorf("different fields should not conflict: %v", err)
	}
}

func TestSortableTypeConsistency(t *testing.T) {
	s := NewSchema()
	if err := s.AddAction("price", FieldAction{
		Kind:     ActionSortable,
		Sortable: &SortableOptions{Type: TypeFloat},
	}); err != nil {
		t.Fatalf("AddAction error = %v", err)
	}

	// Re-declaring with the same type is a no-op.
	if err := s.AddAction("price", FieldAction{
		Kind:     ActionSortable,
		Sortable: &SortableOptions{Type: TypeFloat},
	}); err != nil {
		t.Errorf("re-declaring same sort type: %v", err)
	}

	err := s.AddAction("price", FieldAction{
		Kind:     ActionSortable,
		Sortable: &SortableOptions{Type: TypeDate},
	})
	if !errors.Is(err, xerrors.ErrConfiguration) {
		t.Errorf("conflicting sort type: error = %v, want ErrConfiguration", err)
	}
}

func TestFacetTypeConsistency(t *testing.T) {
	s := NewSchema()
	if err := s.AddAction("price", FieldAction{
		Kind:  ActionFacet,
		Facet: &FacetOptions{Type: FacetFloat},
	}); err != nil {
		t.Fatalf("AddAction error = %v", err)
	}
	err := s.AddAction("price", FieldAction{
		Kind:  ActionFacet,
		Facet: &FacetOptions{Type: FacetString},
	})
	if !errors.Is(err, xerrors.ErrConfiguration) {
		t.Errorf("conflicting facet type: error = %v, want ErrConfiguration", err)
	}
}

func TestWeightDefaultsToOne(t *testing.T) {
	s := NewSchema()
	if err := s.AddAction("title", FieldAction{Kind: ActionFreeText}); err != nil {
		t.Fatalf("AddAction error = %v", err)
	}
	opts := s.FreeText("title")
	if opts == nil {
		t.Fatal("FreeText() = nil, want options")
	}
	if opts.Weight != 1 {
		t.Errorf("default freetext weight = %v, want 1", opts.Weight)
	}
}

func TestPrefixAssignment(t *testing.T) {
	s := NewSchema()
	fields := []string{"title", "body", "category"}
	for _, f := range fields {
		if err := s.AddAction(f, FieldAction{Kind: ActionFreeText}); err != nil {
			t.Fatalf("AddAction(%q) error = %v", f, err)
		}
	}

	want := map[string]string{"title": "XA", "body": "XB", "category": "XC"}
	for field, prefix := range want {
		if got := s.Prefix(field); got != prefix {
			t.Errorf("Prefix(%q) = %q, want %q", field, got, prefix)
		}
	}

	// Unprefixed actions do not consume prefixes.
	if err := s.AddAction("ignored", FieldAction{Kind: ActionStore}); err != nil {
		t.Fatalf("AddAction error = %v", err)
	}
	if got := s.Prefix("ignored"); got != "" {
		t.Errorf("Prefix for store-only field = %q, want empty", got)
	}

	// Re-declaring does not consume a new prefix.
	if err := s.AddAction("title", FieldAction{Kind: ActionFreeText}); err != nil {
		t.Fatalf("AddAction error = %v", err)
	}
	if got := s.Prefix("title"); got != "XA" {
		t.Errorf("Prefix after re-declaration = %q, want XA", got)
	}
}

func TestPrefixGenerationWrapsPastZ(t *testing.T) {
	s := NewSchema()
	for i := 0; i < 28; i++ {
		field := "field" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		if err := s.AddAction(field, FieldAction{Kind: ActionExact}); err != nil {
			t.Fatalf("AddAction(%q) error = %v", field, err)
		}
	}
	seen := make(map[string]string)
	for field, prefix := range s.Prefixes {
		if other, dup := seen[prefix]; dup {
			t.Errorf("prefix %q assigned to both %q and %q", prefix, other, field)
		}
		seen[prefix] = field
	}
	if len(seen) != 28 {
		t.Errorf("got %d distinct prefixes, want 28", len(seen))
	}
}

func TestPrefixedTerm(t *testing.T) {
	s := NewSchema()
	if err := s.AddAction("title", FieldAction{Kind: ActionExact}); err != nil {
		t.Fatalf("AddAction error = %v", err)
	}

	tests := []struct {
		term string
		want string
	}{
		{"hello", "XAhello"},
		{"Hello", "XA:Hello"}, // upper-case first letter needs the guard
		{"Zebra", "XA:Zebra"},
		{"42", "XA42"},
		{"", "XA"},
	}
	for _, tt := range tests {
		if got := s.PrefixedTerm("title", tt.term); got != tt.want {
			t.Errorf("PrefixedTerm(title, %q) = %q, want %q", tt.term, got, tt.want)
		}
	}

	// Fields without a prefix pass the term through.
	if got := s.PrefixedTerm("unknown", "hello"); got != "hello" {
		t.Errorf("PrefixedTerm for unprefixed field = %q, want %q", got, "hello")
	}
}

func TestSortTypeAndCollapse(t *testing.T) {
	s := NewSchema()
	if err := s.AddAction("price", FieldAction{
		Kind:     ActionSortable,
		Sortable: &SortableOptions{Type: TypeFloat},
	}); err != nil {
		t.Fatalf("AddAction error = %v", err)
	}
	if err := s.AddAction("brand", FieldAction{Kind: ActionCollapse}); err != nil {
		t.Fatalf("AddAction error = %v", err)
	}

	if typ, ok := s.SortType("price"); !ok || typ != TypeFloat {
		t.Errorf("SortType(price) = %v, %v, want float, true", typ, ok)
	}
	// COLLAPSE without SORTABLE sorts as a string.
	if typ, ok := s.SortType("brand"); !ok || typ != TypeString {
		t.Errorf("SortType(brand) = %v, %v, want string, true", typ, ok)
	}
	if _, ok := s.SortType("missing"); ok {
		t.Error("SortType(missing) should report false")
	}

	if !s.CanCollapseOn("price") || !s.CanCollapseOn("brand") {
		t.Error("both sortable and collapse fields should allow collapsing")
	}
	if s.CanCollapseOn("missing") {
		t.Error("CanCollapseOn(missing) should be false")
	}
	if !s.CanSortOn("price") {
		t.Error("CanSortOn(price) should be true")
	}
	if s.CanSortOn("brand") {
		t.Error("CanSortOn should require a SORTABLE action, COLLAPSE is not enough")
	}
}

func TestFieldListings(t *testing.T) {
	s := NewSchema()
	if err := s.AddAction("title", FieldAction{Kind: ActionFreeText}); err != nil {
		t.Fatalf("AddAction error = %v", err)
	}
	if err := s.AddAction("body", FieldAction{Kind: ActionFreeText}); err != nil {
		t.Fatalf("AddAction error = %v", err)
	}
	if err := s.AddAction("category", FieldAction{Kind: ActionFacet}); err != nil {
		t.Fatalf("AddAction error = %v", err)
	}

	free := s.FreeTextFields()
	if len(free) != 2 {
		t.Errorf("FreeTextFields() = %v, want 2 entries", free)
	}
	facets := s.FacetFields()
	if len(facets) != 1 || facets[0] != "category" {
		t.Errorf("FacetFields() = %v, want [category]", facets)
	}
}

func TestSlotName(t *testing.T) {
	if got := SlotName("price", PurposeCollSort); got != "collsort:price" {
		t.Errorf("SlotName = %q, want collsort:price", got)
	}
	if got := SlotName("category", PurposeFacet); got != "facet:category" {
		t.Errorf("SlotName = %q, want facet:category", got)
	}
}
