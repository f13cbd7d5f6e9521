// Package index holds the posting lists and value slots of the bundled
// engine: the inverted mapping from terms to the documents containing them,
// plus per-slot encoded value tables for range queries, weights and facets.
package index

import (
	"bytes"
	"encoding/gob"
	"sort"
	"sync"

	"github.com/mydeco-dev-team/xappy/model"
)

// InvertedIndex maps terms to posting lists and slot names to per-document
// encoded values.
type InvertedIndex struct {
	Mu       sync.RWMutex
	Postings map[string]PostingList
	Slots    map[string]map[uint32][]byte // slot name -> internal ID -> encoded bytes
}

// NewInvertedIndex creates an empty index.
func NewInvertedIndex() *InvertedIndex {
	return &InvertedIndex{
		Postings: make(map[string]PostingList),
		Slots:    make(map[string]map[uint32][]byte),
	}
}

// Add indexes a document's terms and values under the internal ID. The
// caller must have removed any previous version of the document first.
func (ii *InvertedIndex) Add(docID uint32, doc *model.ProcessedDocument) {
	ii.Mu.Lock()
	defer ii.Mu.Unlock()

	for term, t := range doc.Terms {
		pl := ii.Postings[term]
		entry := PostingEntry{DocID: docID, WDF: t.WDF, Positions: t.Positions}
		i := sort.Search(len(pl), func(i int) bool { return pl[i].DocID >= docID })
		pl = append(pl, PostingEntry{})
		copy(pl[i+1:], pl[i:])
		pl[i] = entry
		ii.Postings[term] = pl
	}
	for slot, value := range doc.Values {
		m := ii.Slots[slot]
		if m == nil {
			m = make(map[uint32][]byte)
			ii.Slots[slot] = m
		}
		m[docID] = value
	}
}

// Remove drops a document's terms and values. The document's stored form
// tells us exactly which postings to touch, so no full scan is needed.
func (ii *InvertedIndex) Remove(docID uint32, doc *model.ProcessedDocument) {
	ii.Mu.Lock()
	defer ii.Mu.Unlock()

	for term := range doc.Terms {
		pl := ii.Postings[term]
		if i := pl.find(docID); i >= 0 {
			pl = append(pl[:i], pl[i+1:]...)
			if len(pl) == 0 {
				delete(ii.Postings, term)
			} else {
				ii.Postings[term] = pl
			}
		}
	}
	for slot := range doc.Values {
		if m := ii.Slots[slot]; m != nil {
			delete(m, docID)
			if len(m) == 0 {
				delete(ii.Slots, slot)
			}
		}
	}
}

// PostingsFor returns the posting list for a term. The returned slice is
// shared; callers must not modify it.
func (ii *InvertedIndex) PostingsFor(term string) PostingList {
	ii.Mu.RLock()
	defer ii.Mu.RUnlock()
	return ii.Postings[term]
}

// TermFreq is the number of documents containing the term.
func (ii *InvertedIndex) TermFreq(term string) int {
	ii.Mu.RLock()
	defer ii.Mu.RUnlock()
	return len(ii.Postings[term])
}

// MaxTermWeight is the largest weighted frequency recorded for the term.
func (ii *InvertedIndex) MaxTermWeight(term string) float64 {
	ii.Mu.RLock()
	defer ii.Mu.RUnlock()
	max := 0.0
	for _, e := range ii.Postings[term] {
		if e.WDF > max {
			max = e.WDF
		}
	}
	return max
}

// SlotValue returns the encoded bytes a document stores in a slot.
func (ii *InvertedIndex) SlotValue(slot string, docID uint32) ([]byte, bool) {
	ii.Mu.RLock()
	defer ii.Mu.RUnlock()
	v, ok := ii.Slots[slot][docID]
	return v, ok
}

// SlotRange returns the internal IDs of documents whose slot value lies in
// [low, high]. Nil bounds leave that end open. A positive chunkWidth treats
// the slot as a concatenation of fixed-width encodings and matches when any
// chunk falls in range; zero compares the whole slot value.
func (ii *InvertedIndex) SlotRange(slot string, low, high []byte, chunkWidth int) []uint32 {
	ii.Mu.RLock()
	defer ii.Mu.RUnlock()
	var ids []uint32
	for docID, value := range ii.Slots[slot] {
		if valueInRange(value, low, high, chunkWidth) {
			ids = append(ids, docID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func valueInRange(value, low, high []byte, chunkWidth int) bool {
	if chunkWidth > 0 && len(value) > chunkWidth && len(value)%chunkWidth == 0 {
		for i := 0; i < len(value); i += chunkWidth {
			if valueInRange(value[i:i+chunkWidth], low, high, 0) {
				return true
			}
		}
		return false
	}
	if low != nil && bytes.Compare(value, low) < 0 {
		return false
	}
	if high != nil && bytes.Compare(value, high) > 0 {
		return false
	}
	return true
}

// SlotDocs returns the internal IDs of all documents populating a slot, in
// ascending order.
func (ii *InvertedIndex) SlotDocs(slot string) []uint32 {
	return ii.SlotRange(slot, nil, nil, 0)
}

// gobInvertedIndexData carries the index state through gob without the mutex.
type gobInvertedIndexData struct {
	Postings map[string]PostingList
	Slots    map[string]map[uint32][]byte
}

// GobEncode implements gob.GobEncoder.
func (ii *InvertedIndex) GobEncode() ([]byte, error) {
	ii.Mu.RLock()
	defer ii.Mu.RUnlock()

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(gobInvertedIndexData{
		Postings: ii.Postings,
		Slots:    ii.Slots,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (ii *InvertedIndex) GobDecode(data []byte) error {
	var decoded gobInvertedIndexData
	if err := gob.NewDecoder(bytes.NewBuffer(data)).Decode(&decoded); err != nil {
		return err
	}

	ii.Mu.Lock()
	defer ii.Mu.Unlock()

	ii.Postings = decoded.Postings
	ii.Slots = decoded.Slots
	if ii.Postings == nil {
		ii.Postings = make(map[string]PostingList)
	}
	if ii.Slots == nil {
		ii.Slots = make(map[string]map[uint32][]byte)
	}
	return nil
}
