// Package model defines the document representations passed between the
// indexing pipeline and the index engine. An UnprocessedDocument is the
// caller-supplied list of fields; processing turns it into a
// ProcessedDocument holding the terms, value slots and stored data that
// actually enter the index.
package model

// Field is one instance of a named field in a document. Fields may repeat:
// a document can carry several instances of the same field name, and each
// instance is processed independently.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	// Assoc, when non-empty, is stored for display in place of Value by the
	// STORE action. Index terms and value slots are still derived from Value.
	Assoc string `json:"assoc,omitempty"`
}

// UnprocessedDocument is a document as supplied for indexing: an ordered
// list of field instances plus an optional caller-assigned ID. A document
// with an empty ID is assigned a fresh unique ID during indexing.
type UnprocessedDocument struct {
	ID     string  `json:"id,omitempty"`
	Fields []Field `json:"fields"`
}

// Add appends a field instance to the document.
func (d *UnprocessedDocument) Add(name, value string) {
	d.Fields = append(d.Fields, Field{Name: name, Value: value})
}

// AddAssoc appends a field instance with an associated display value.
func (d *UnprocessedDocument) AddAssoc(name, value, assoc string) {
	d.Fields = append(d.Fields, Field{Name: name, Value: value, Assoc: assoc})
}

// Term is the indexed form of one distinct term within a document: its
// weighted within-document frequency and the positions at which it occurs.
// The frequency is a float because field actions can carry fractional weight
// multipliers. Positions is empty for terms generated without positional
// information.
type Term struct {
	WDF       float64 `json:"wdf"`
	Positions []int   `json:"positions,omitempty"`
}

// ProcessedDocument is the index-ready form of a document. Terms maps each
// distinct term to its frequency and positions, Values maps slot names to
// order-preserving encoded bytes, and Data holds the stored field contents
// returned with search results.
type ProcessedDocument struct {
	ID     string              `json:"id"`
	Terms  map[string]*Term    `json:"terms"`
	Values map[string][]byte   `json:"values"`
	Data   map[string][]string `json:"data"`
	// Spellings are the surface words the document contributes to the
	// spelling-correction vocabulary, for fields indexed with the spell flag.
	Spellings []string `json:"spellings,omitempty"`
}

// NewProcessedDocument creates an empty processed document.
func NewProcessedDocument(id string) *ProcessedDocument {
	return &ProcessedDocument{
		ID:     id,
		Terms:  make(map[string]*Term),
		Values: make(map[string][]byte),
		Data:   make(map[string][]string),
	}
}

// AddTerm records an occurrence of a term, incrementing its frequency by
// wdfInc and appending any positions.
func (d *ProcessedDocument) AddTerm(term string, wdfInc float64, positions ...int) {
	t := d.Terms[term]
	if t == nil {
		t = &Term{}
		d.Terms[term] = t
	}
	t.WDF += wdfInc
	t.Positions = append(t.Positions, positions...)
}

// SetValue stores encoded bytes in a named value slot, replacing any
// previous content.
func (d *ProcessedDocument) SetValue(slot string, value []byte) {
	d.Values[slot] = value
}

// AppendValue appends encoded bytes to a named value slot. Multi-valued
// slots are built by repeated appends.
func (d *ProcessedDocument) AppendValue(slot string, value []byte) {
	d.Values[slot] = append(d.Values[slot], value...)
}

// AppendData appends a stored value for a field, preserving the order the
// field instances appeared in.
func (d *ProcessedDocument) AppendData(field, value string) {
	d.Data[field] = append(d.Data[field], value)
}

// AddSpelling records a word for the spelling vocabulary.
func (d *ProcessedDocument) AddSpelling(word string) {
	d.Spellings = append(d.Spellings, word)
}
