// Package store keeps the committed form of every document: terms, value
// slots and stored data, addressable by the caller's external ID through a
// compact internal numeric ID used by the posting lists.
package store

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/mydeco-dev-team/xappy/model"
)

// DocumentStore maps external document IDs to internal IDs and holds the
// processed document for each.
type DocumentStore struct {
	Mu                 sync.RWMutex
	Docs               map[uint32]*model.ProcessedDocument
	ExternalToInternal map[string]uint32
	NextID             uint32
}

// NewDocumentStore creates an empty store. Internal IDs start at 1; 0 is
// never assigned.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		Docs:               make(map[uint32]*model.ProcessedDocument),
		ExternalToInternal: make(map[string]uint32),
		NextID:             1,
	}
}

// Put stores a document under its external ID, replacing any existing
// document with the same ID. It returns the internal ID and the replaced
// document, nil if the ID was new.
func (ds *DocumentStore) Put(doc *model.ProcessedDocument) (uint32, *model.ProcessedDocument) {
	ds.Mu.Lock()
	defer ds.Mu.Unlock()

	if internal, ok := ds.ExternalToInternal[doc.ID]; ok {
		old := ds.Docs[internal]
		ds.Docs[internal] = doc
		return internal, old
	}
	internal := ds.NextID
	ds.NextID++
	ds.ExternalToInternal[doc.ID] = internal
	ds.Docs[internal] = doc
	return internal, nil
}

// Get retrieves a document by external ID.
func (ds *DocumentStore) Get(externalID string) (*model.ProcessedDocument, bool) {
	ds.Mu.RLock()
	defer ds.Mu.RUnlock()
	internal, ok := ds.ExternalToInternal[externalID]
	if !ok {
		return nil, false
	}
	doc, ok := ds.Docs[internal]
	return doc, ok
}

// GetByInternal retrieves a document by internal ID.
func (ds *DocumentStore) GetByInternal(internal uint32) (*model.ProcessedDocument, bool) {
	ds.Mu.RLock()
	defer ds.Mu.RUnlock()
	doc, ok := ds.Docs[internal]
	return doc, ok
}

// InternalID resolves an external ID.
func (ds *DocumentStore) InternalID(externalID string) (uint32, bool) {
	ds.Mu.RLock()
	defer ds.Mu.RUnlock()
	internal, ok := ds.ExternalToInternal[externalID]
	return internal, ok
}

// Delete removes a document by external ID, returning the removed document
// and its internal ID so the caller can unwind the posting lists.
func (ds *DocumentStore) Delete(externalID string) (*model.ProcessedDocument, uint32, bool) {
	ds.Mu.Lock()
	defer ds.Mu.Unlock()

	internal, ok := ds.ExternalToInternal[externalID]
	if !ok {
		return nil, 0, false
	}
	doc := ds.Docs[internal]
	delete(ds.Docs, internal)
	delete(ds.ExternalToInternal, externalID)
	return doc, internal, true
}

// Count is the number of stored documents.
func (ds *DocumentStore) Count() int {
	ds.Mu.RLock()
	defer ds.Mu.RUnlock()
	return len(ds.Docs)
}

// InternalIDs returns all internal IDs in unspecified order; callers sort
// when order matters.
func (ds *DocumentStore) InternalIDs() []uint32 {
	ds.Mu.RLock()
	defer ds.Mu.RUnlock()
	ids := make([]uint32, 0, len(ds.Docs))
	for id := range ds.Docs {
		ids = append(ids, id)
	}
	return ids
}

// gobDocumentStoreData carries the store state through gob without the mutex.
type gobDocumentStoreData struct {
	Docs               map[uint32]*model.ProcessedDocument
	ExternalToInternal map[string]uint32
	NextID             uint32
}

// GobEncode implements gob.GobEncoder.
func (ds *DocumentStore) GobEncode() ([]byte, error) {
	ds.Mu.RLock()
	defer ds.Mu.RUnlock()

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(gobDocumentStoreData{
		Docs:               ds.Docs,
		ExternalToInternal: ds.ExternalToInternal,
		NextID:             ds.NextID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to gob encode document store: %w", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (ds *DocumentStore) GobDecode(data []byte) error {
	var decoded gobDocumentStoreData
	if err := gob.NewDecoder(bytes.NewBuffer(data)).Decode(&decoded); err != nil {
		return fmt.Errorf("failed to gob decode document store: %w", err)
	}

	ds.Mu.Lock()
	defer ds.Mu.Unlock()

	ds.Docs = decoded.Docs
	ds.ExternalToInternal = decoded.ExternalToInternal
	ds.NextID = decoded.NextID
	if ds.Docs == nil {
		ds.Docs = make(map[uint32]*model.ProcessedDocument)
	}
	if ds.ExternalToInternal == nil {
		ds.ExternalToInternal = make(map[string]uint32)
	}
	if ds.NextID == 0 {
		ds.NextID = 1
	}
	return nil
}
