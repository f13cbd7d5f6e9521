// Package indexing turns raw documents into their index-ready form by
// applying the schema's field actions, and feeds the result into the engine
// through an indexer connection.
package indexing

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mydeco-dev-team/xappy/config"
	xerrors "github.com/mydeco-dev-team/xappy/internal/errors"
	"github.com/mydeco-dev-team/xappy/internal/marshal"
	"github.com/mydeco-dev-team/xappy/internal/tokenizer"
	"github.com/mydeco-dev-team/xappy/model"
	"github.com/mydeco-dev-team/xappy/services"
)

// instanceGap is the position jump between two instances of the same field,
// keeping phrases from matching across instance boundaries.
const instanceGap = 10

// facetSeparator joins multiple string facet values within one slot.
const facetSeparator = "\x00"

// Service processes documents against a schema and writes them to an engine.
// Not safe for concurrent use; each connection has a single owner.
type Service struct {
	schema *config.Schema
	engine services.IndexEngine
	closed bool
}

// NewService creates an indexer connection. The engine may be nil when only
// Process is needed.
func NewService(schema *config.Schema, engine services.IndexEngine) *Service {
	return &Service{schema: schema, engine: engine}
}

// Process applies the declared field actions to a raw document. A document
// without an ID is assigned a fresh one; everything else about processing is
// deterministic for a fixed schema.
func (s *Service) Process(raw *model.UnprocessedDocument) (*model.ProcessedDocument, error) {
	id := raw.ID
	if id == "" {
		id = uuid.NewString()
	}
	doc := model.NewProcessedDocument(id)

	// Free-text positions continue across instances of the same field, with
	// a gap so phrases cannot straddle two instances.
	nextPos := make(map[string]int)

	for _, field := range raw.Fields {
		actions := s.schema.Fields[field.Name]
		if actions == nil {
			continue
		}
		for _, action := range actions.Actions {
			var err error
			switch action.Kind {
			case config.ActionFreeText:
				s.applyFreeText(doc, field, action.FreeText, nextPos)
			case config.ActionExact:
				doc.AddTerm(s.schema.PrefixedTerm(field.Name, field.Value), 1)
			case config.ActionSortable:
				err = s.applySortable(doc, field, action.Sortable)
			case config.ActionCollapse:
				// Shares the sortable slot; only encode when no SORTABLE
				// action already did.
				if actions.Get(config.ActionSortable) == nil {
					doc.SetValue(config.SlotName(field.Name, config.PurposeCollSort), []byte(field.Value))
				}
			case config.ActionStore:
				stored := field.Value
				if field.Assoc != "" {
					stored = field.Assoc
				}
				doc.AppendData(field.Name, stored)
			case config.ActionFacet:
				err = s.applyFacet(doc, field, action.Facet)
			case config.ActionWeight:
				err = s.applyWeight(doc, field)
			}
			if err != nil {
				return nil, err
			}
		}
	}
	return doc, nil
}

func (s *Service) applyFreeText(doc *model.ProcessedDocument, field model.Field, opts *config.FreeTextOptions, nextPos map[string]int) {
	base := nextPos[field.Name]
	stopwords := tokenizer.StopwordSet(opts.Stopwords)
	tokens := tokenizer.Terms(field.Value, opts.Language, stopwords)

	last := 0
	for _, tok := range tokens {
		pos := base + tok.Position
		if tok.Position > last {
			last = tok.Position
		}
		if !opts.NoFieldSpecific {
			prefixed := s.schema.PrefixedTerm(field.Name, tok.Text)
			if opts.NoPositions {
				doc.AddTerm(prefixed, opts.Weight)
			} else {
				doc.AddTerm(prefixed, opts.Weight, pos)
			}
		}
		if !opts.NoDefaultSearch {
			if opts.NoPositions {
				doc.AddTerm(tok.Text, opts.Weight)
			} else {
				doc.AddTerm(tok.Text, opts.Weight, pos)
			}
		}
	}
	// Raw surface words feed the spelling vocabulary, not their stems.
	if opts.Spell {
		for _, tok := range tokenizer.Tokenize(field.Value) {
			doc.AddSpelling(tok.Text)
		}
	}
	nextPos[field.Name] = base + last + instanceGap
}

func (s *Service) applySortable(doc *model.ProcessedDocument, field model.Field, opts *config.SortableOptions) error {
	slot := config.SlotName(field.Name, config.PurposeCollSort)
	encoded, err := encodeSortValue(field.Name, field.Value, opts.Type)
	if err != nil {
		return err
	}
	doc.SetValue(slot, encoded)
	return nil
}

func encodeSortValue(field, value string, typ config.ValueType) ([]byte, error) {
	switch typ {
	case config.TypeFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, xerrors.NewValueError(field, value, "not a valid float")
		}
		return marshal.FloatToSortable(f), nil
	case config.TypeDate:
		encoded, err := marshal.DateToSortable(value)
		if err != nil {
			return nil, xerrors.NewValueError(field, value, "not a valid date")
		}
		return encoded, nil
	default:
		return marshal.StringToSortable(value), nil
	}
}

func (s *Service) applyFacet(doc *model.ProcessedDocument, field model.Field, opts *config.FacetOptions) error {
	slot := config.SlotName(field.Name, config.PurposeFacet)
	switch opts.Type {
	case config.FacetFloat:
		f, err := strconv.ParseFloat(field.Value, 64)
		if err != nil {
			return xerrors.NewValueError(field.Name, field.Value, "not a valid float facet value")
		}
		doc.AppendValue(slot, marshal.FloatToSortable(f))
	default:
		// String facet values are lowercased on both the indexing and the
		// query side, so matching is case-insensitive.
		lowered := strings.ToLower(field.Value)
		doc.AddTerm(s.schema.PrefixedTerm(field.Name, lowered), 1)
		if existing, ok := doc.Values[slot]; ok && len(existing) > 0 {
			doc.AppendValue(slot, []byte(facetSeparator+lowered))
		} else {
			doc.SetValue(slot, []byte(lowered))
		}
	}
	return nil
}

func (s *Service) applyWeight(doc *model.ProcessedDocument, field model.Field) error {
	f, err := strconv.ParseFloat(field.Value, 64)
	if err != nil {
		return xerrors.NewValueError(field.Name, field.Value, "not a valid weight")
	}
	if f < 0 {
		return xerrors.NewValueError(field.Name, field.Value, "weight must not be negative")
	}
	doc.SetValue(config.SlotName(field.Name, config.PurposeWeight), marshal.FloatToSortable(f))
	return nil
}

// SplitFacetValues decodes a multi-valued string facet slot.
func SplitFacetValues(slotValue []byte) []string {
	if len(slotValue) == 0 {
		return nil
	}
	return strings.Split(string(slotValue), facetSeparator)
}

// Add processes a raw document and commits it to the engine, returning the
// document's ID. An existing document with the same ID is replaced.
func (s *Service) Add(raw *model.UnprocessedDocument) (string, error) {
	if s.closed {
		return "", xerrors.NewClosedError("add document")
	}
	doc, err := s.Process(raw)
	if err != nil {
		return "", err
	}
	if err := s.push(doc); err != nil {
		return "", err
	}
	return doc.ID, nil
}

// Replace is Add for documents whose identity is already known; the raw
// document must carry an ID.
func (s *Service) Replace(raw *model.UnprocessedDocument) error {
	if s.closed {
		return xerrors.NewClosedError("replace document")
	}
	if raw.ID == "" {
		return xerrors.NewValueError("", "", "replace requires a document ID")
	}
	_, err := s.Add(raw)
	return err
}

func (s *Service) push(doc *model.ProcessedDocument) error {
	for term, t := range doc.Terms {
		if err := s.engine.PutTerm(doc.ID, term, t.WDF, t.Positions); err != nil {
			return err
		}
	}
	for slot, value := range doc.Values {
		if err := s.engine.PutValue(doc.ID, slot, value); err != nil {
			return err
		}
	}
	for field, values := range doc.Data {
		for _, value := range values {
			if err := s.engine.PutStored(doc.ID, field, value); err != nil {
				return err
			}
		}
	}
	for _, word := range doc.Spellings {
		if err := s.engine.AddSpelling(doc.ID, word); err != nil {
			return err
		}
	}
	return s.engine.Commit(doc.ID)
}

// Delete removes a document from the engine.
func (s *Service) Delete(docID string) error {
	if s.closed {
		return xerrors.NewClosedError("delete document")
	}
	return s.engine.Delete(docID)
}

// Flush publishes all changes made through this connection.
func (s *Service) Flush() error {
	if s.closed {
		return xerrors.NewClosedError("flush")
	}
	return s.engine.Flush()
}

// Close flushes and closes the connection. Further calls fail with a
// ClosedError.
func (s *Service) Close() error {
	if s.closed {
		return nil
	}
	if err := s.engine.Flush(); err != nil {
		return err
	}
	s.closed = true
	return nil
}
