package index

// PostingEntry records one document containing a term: the document's
// internal ID, the weighted within-document frequency of the term, and the
// positions it occupies (empty for positionless terms).
type PostingEntry struct {
	DocID     uint32
	WDF       float64
	Positions []int
}

// PostingList is the set of documents containing one term, in ascending
// internal-ID order.
type PostingList []PostingEntry

// find returns the index of docID in the list, or -1.
func (pl PostingList) find(docID uint32) int {
	lo, hi := 0, len(pl)
	for lo < hi {
		mid := (lo + hi) / 2
		if pl[mid].DocID < docID {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(pl) && pl[lo].DocID == docID {
		return lo
	}
	return -1
}

// Get returns the entry for docID, or nil.
func (pl PostingList) Get(docID uint32) *PostingEntry {
	if i := pl.find(docID); i >= 0 {
		return &pl[i]
	}
	return nil
}
