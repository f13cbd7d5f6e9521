// Package config defines the field-action schema for a search database.
// Each field name is associated with an ordered set of actions describing how
// raw values of that field are turned into index terms, sortable value slots,
// facet entries or stored data.
package config

import (
	"strings"

	xerrors "github.com/mydeco-dev-team/xappy/internal/errors"
)

// ActionKind identifies a field action.
type ActionKind string

const (
	// ActionFreeText splits the field content into terms for free text search.
	ActionFreeText ActionKind = "freetext"
	// ActionExact indexes the exact field content as a single term.
	ActionExact ActionKind = "exact"
	// ActionSortable stores an order-preserving encoding of the value so
	// result sets can be sorted or restricted to a value range.
	ActionSortable ActionKind = "sortable"
	// ActionCollapse stores the value so result sets can be collapsed to the
	// highest-ranked document per distinct value.
	ActionCollapse ActionKind = "collapse"
	// ActionStore stores the raw content for display with search results.
	ActionStore ActionKind = "store"
	// ActionFacet marks the field as a classification facet.
	ActionFacet ActionKind = "facet"
	// ActionWeight stores the value as a per-document weight for ranking.
	ActionWeight ActionKind = "weight"
)

// ValueType is the interpretation of a SORTABLE field's values.
type ValueType string

const (
	TypeString ValueType = "string"
	TypeFloat  ValueType = "float"
	TypeDate   ValueType = "date"
)

// FacetType is the interpretation of a FACET field's values.
type FacetType string

const (
	FacetString FacetType = "string"
	FacetFloat  FacetType = "float"
)

// Slot purposes. A field may own several value slots, one per purpose.
const (
	PurposeCollSort = "collsort" // shared by SORTABLE and COLLAPSE
	PurposeFacet    = "facet"
	PurposeWeight   = "weight"
)

// supportedLanguages are the ISO 639-1 codes accepted for freetext stemming.
var supportedLanguages = map[string]bool{
	"en": true, "es": true, "fr": true, "ru": true,
	"sv": true, "no": true, "hu": true,
}

// FreeTextOptions holds the parameters of an ActionFreeText declaration.
// The zero value means: weight 1, no stemming, no stopwords, positional terms,
// field-specific and non-field-specific terms both generated.
type FreeTextOptions struct {
	Weight          float64  `json:"weight,omitempty" yaml:"weight,omitempty"`   // term frequency multiplier; 0 means the default of 1
	Language        string   `json:"language,omitempty" yaml:"language,omitempty"` // 2-letter code enabling stemming
	Stopwords       []string `json:"stopwords,omitempty" yaml:"stopwords,omitempty"`
	Spell           bool     `json:"spell,omitempty" yaml:"spell,omitempty"`                       // contribute terms to the spelling vocabulary
	NoPositions     bool     `json:"no_positions,omitempty" yaml:"no_positions,omitempty"`         // omit positional information (no phrase support)
	NoFieldSpecific bool     `json:"no_field_specific,omitempty" yaml:"no_field_specific,omitempty"` // suppress field-prefixed terms
	NoDefaultSearch bool     `json:"no_default_search,omitempty" yaml:"no_default_search,omitempty"` // suppress unprefixed terms
}

// SortableOptions holds the parameters of an ActionSortable declaration.
type SortableOptions struct {
	Type ValueType `json:"type,omitempty" yaml:"type,omitempty"` // defaults to TypeString
}

// FacetOptions holds the parameters of an ActionFacet declaration.
type FacetOptions struct {
	Type FacetType `json:"type,omitempty" yaml:"type,omitempty"` // defaults to FacetString
}

// FieldAction is a tagged variant: Kind selects which options struct applies.
// Kinds without parameters leave all option pointers nil.
type FieldAction struct {
	Kind     ActionKind       `json:"kind" yaml:"kind"`
	FreeText *FreeTextOptions `json:"freetext,omitempty" yaml:"freetext,omitempty"`
	Sortable *SortableOptions `json:"sortable,omitempty" yaml:"sortable,omitempty"`
	Facet    *FacetOptions    `json:"facet,omitempty" yaml:"facet,omitempty"`
}

// FieldActions is the ordered set of actions declared for one field.
type FieldActions struct {
	Name    string        `json:"name"`
	Actions []FieldAction `json:"actions"`
}

// Get returns the action of the given kind, or nil.
func (fa *FieldActions) Get(kind ActionKind) *FieldAction {
	for i := range fa.Actions {
		if fa.Actions[i].Kind == kind {
			return &fa.Actions[i]
		}
	}
	return nil
}

// Schema maps field names to their declared actions, and assigns the term
// prefixes and value slots the actions need. Declarations accumulate: adding
// an action affects future document processing only, never documents already
// committed to the index.
//
// A Schema is not safe for concurrent use; each connection owns its own.
type Schema struct {
	Fields   map[string]*FieldActions `json:"fields"`
	Prefixes map[string]string        `json:"prefixes"` // field name -> term prefix

	prefixCount int
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{
		Fields:   make(map[string]*FieldActions),
		Prefixes: make(map[string]string),
	}
}

// AddAction declares an action for a field, validating its parameters and its
// compatibility with the field's existing actions. Re-declaring an action kind
// replaces its parameters for future processing.
func (s *Schema) AddAction(field string, action FieldAction) error {
	if strings.TrimSpace(field) == "" {
		return xerrors.NewConfigurationError(field, "field name cannot be empty or whitespace-only")
	}

	fa := s.Fields[field]
	if fa == nil {
		fa = &FieldActions{Name: field}
	}

	switch action.Kind {
	case ActionFreeText:
		if action.FreeText == nil {
			action.FreeText = &FreeTextOptions{}
		}
		opts := action.FreeText
		if opts.Weight < 0 {
			return xerrors.NewConfigurationError(field, "freetext weight must not be negative")
		}
		if opts.Weight == 0 {
			opts.Weight = 1
		}
		if opts.Language != "" && !supportedLanguages[opts.Language] {
			return xerrors.NewConfigurationError(field,
				"unsupported language code '"+opts.Language+"' (must be a supported 2-letter code)")
		}
		// Fields cannot be indexed both EXACT and FREETEXT: query construction
		// would not know which form to generate.
		if fa.Get(ActionExact) != nil {
			return xerrors.NewConfigurationError(field,
				"field is already marked for indexing as exact text: cannot mark for indexing as free text as well")
		}

	case ActionExact:
		if fa.Get(ActionFreeText) != nil {
			return xerrors.NewConfigurationError(field,
				"field is already marked for indexing as free text: cannot mark for indexing as exact text as well")
		}

	case ActionSortable:
		if action.Sortable == nil {
			action.Sortable = &SortableOptions{}
		}
		if action.Sortable.Type == "" {
			action.Sortable.Type = TypeString
		}
		switch action.Sortable.Type {
		case TypeString, TypeFloat, TypeDate:
		default:
			return xerrors.NewConfigurationError(field, "unknown sort type '"+string(action.Sortable.Type)+"'")
		}
		// SORTABLE and COLLAPSE share one value slot, so the encoding must be
		// consistent for the life of the field.
		if existing := fa.Get(ActionSortable); existing != nil && existing.Sortable.Type != action.Sortable.Type {
			return xerrors.NewConfigurationError(field,
				"field is already marked for sorting with a different sort type")
		}

	case ActionCollapse, ActionStore, ActionWeight:
		// No parameters.

	case ActionFacet:
		if action.Facet == nil {
			action.Facet = &FacetOptions{}
		}
		if action.Facet.Type == "" {
			action.Facet.Type = FacetString
		}
		switch action.Facet.Type {
		case FacetString, FacetFloat:
		default:
			return xerrors.NewConfigurationError(field, "unsupported facet type '"+string(action.Facet.Type)+"'")
		}
		if existing := fa.Get(ActionFacet); existing != nil && existing.Facet.Type != action.Facet.Type {
			return xerrors.NewConfigurationError(field,
				"field is already marked as a facet with a different facet type")
		}

	default:
		return xerrors.NewConfigurationError(field, "unknown field action '"+string(action.Kind)+"'")
	}

	if needsPrefix(action.Kind) {
		s.addPrefix(field)
	}

	if existing := fa.Get(action.Kind); existing != nil {
		*existing = action
	} else {
		fa.Actions = append(fa.Actions, action)
	}
	s.Fields[field] = fa
	return nil
}

// needsPrefix reports whether terms generated by the action kind carry a
// field prefix.
func needsPrefix(kind ActionKind) bool {
	switch kind {
	case ActionFreeText, ActionExact, ActionFacet:
		return true
	}
	return false
}

// addPrefix assigns a term prefix to the field if it does not have one yet.
// Prefixes are generated in declaration order, so a schema built by replaying
// the same declarations always assigns the same prefixes.
func (s *Schema) addPrefix(field string) {
	if _, ok := s.Prefixes[field]; ok {
		return
	}
	if s.prefixCount < len(s.Prefixes) {
		// Schema was deserialised; resume counting past the assigned prefixes.
		s.prefixCount = len(s.Prefixes)
	}
	for {
		s.prefixCount++
		num := s.prefixCount
		prefix := ""
		for num > 0 {
			num--
			prefix = string(rune('A'+num%26)) + prefix
			num /= 26
		}
		prefix = "X" + prefix
		if !s.prefixInUse(prefix) {
			s.Prefixes[field] = prefix
			return
		}
	}
}

func (s *Schema) prefixInUse(prefix string) bool {
	for _, p := range s.Prefixes {
		if p == prefix {
			return true
		}
	}
	return false
}

// Prefix returns the term prefix for a field, or "" if the field has no
// prefixed actions.
func (s *Schema) Prefix(field string) string {
	return s.Prefixes[field]
}

// PrefixedTerm builds a field-specific term. Terms whose first character is an
// upper-case ASCII letter get a ':' guard between prefix and term, so the
// prefix remains unambiguous.
func (s *Schema) PrefixedTerm(field, term string) string {
	prefix := s.Prefixes[field]
	if prefix == "" {
		return term
	}
	if len(term) > 0 && term[0] >= 'A' && term[0] <= 'Z' {
		return prefix + ":" + term
	}
	return prefix + term
}

// SlotName returns the value slot identifier for a field and purpose.
func SlotName(field, purpose string) string {
	return purpose + ":" + field
}

// Has reports whether the field carries an action of the given kind.
func (s *Schema) Has(field string, kind ActionKind) bool {
	fa := s.Fields[field]
	return fa != nil && fa.Get(kind) != nil
}

// FreeText returns the freetext options for a field, or nil.
func (s *Schema) FreeText(field string) *FreeTextOptions {
	fa := s.Fields[field]
	if fa == nil {
		return nil
	}
	if a := fa.Get(ActionFreeText); a != nil {
		return a.FreeText
	}
	return nil
}

// SortType returns the sort value type for a field carrying a SORTABLE or
// COLLAPSE action. COLLAPSE without SORTABLE sorts as a string.
func (s *Schema) SortType(field string) (ValueType, bool) {
	fa := s.Fields[field]
	if fa == nil {
		return "", false
	}
	if a := fa.Get(ActionSortable); a != nil {
		return a.Sortable.Type, true
	}
	if fa.Get(ActionCollapse) != nil {
		return TypeString, true
	}
	return "", false
}

// FacetKind returns the facet type for a field carrying a FACET action.
func (s *Schema) FacetKind(field string) (FacetType, bool) {
	fa := s.Fields[field]
	if fa == nil {
		return "", false
	}
	if a := fa.Get(ActionFacet); a != nil {
		return a.Facet.Type, true
	}
	return "", false
}

// CanCollapseOn reports whether result sets can be collapsed on the field.
func (s *Schema) CanCollapseOn(field string) bool {
	_, ok := s.SortType(field)
	return ok
}

// CanSortOn reports whether result sets can be sorted on the field.
func (s *Schema) CanSortOn(field string) bool {
	return s.Has(field, ActionSortable)
}

// FreeTextFields returns the names of all fields with a FREETEXT action, in
// unspecified order.
func (s *Schema) FreeTextFields() []string {
	var fields []string
	for name := range s.Fields {
		if s.Has(name, ActionFreeText) {
			fields = append(fields, name)
		}
	}
	return fields
}

// FacetFields returns the names of all fields with a FACET action, in
// unspecified order.
func (s *Schema) FacetFields() []string {
	var fields []string
	for name := range s.Fields {
		if s.Has(name, ActionFacet) {
			fields = append(fields, name)
		}
	}
	return fields
}
