// Package engine is the bundled in-memory index engine. It stores postings,
// value slots, stored data and a spelling vocabulary, evaluates query trees,
// and persists everything through gob files on flush.
//
// The engine follows a single-writer, multi-reader discipline. Readers
// observe the revision current when the engine was opened or last reopened;
// once a flush publishes new state, operations against the old view fail
// with a StaleViewError until Reopen.
package engine

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	xerrors "github.com/mydeco-dev-team/xappy/internal/errors"
	"github.com/mydeco-dev-team/xappy/internal/persistence"
	"github.com/mydeco-dev-team/xappy/internal/typoutil"
	"github.com/mydeco-dev-team/xappy/index"
	"github.com/mydeco-dev-team/xappy/model"
	"github.com/mydeco-dev-team/xappy/services"
	"github.com/mydeco-dev-team/xappy/store"
)

var _ services.IndexEngine = (*Engine)(nil)

const (
	invertedIndexFile = "inverted_index.gob"
	documentStoreFile = "document_store.gob"
	spellingsFile     = "spellings.gob"
)

// Engine implements services.IndexEngine over in-memory structures with gob
// persistence. A dataDir of "" disables persistence entirely.
type Engine struct {
	mu sync.RWMutex

	index     *index.InvertedIndex
	store     *store.DocumentStore
	spellings map[string]int
	corrector *typoutil.Corrector

	// pending accumulates Put* calls per document until Commit.
	pending map[string]*model.ProcessedDocument

	currentRevision uint64
	viewRevision    uint64

	dataDir string
	logger  *zap.Logger
	closed  bool
}

// New creates an engine, loading any previously flushed state from dataDir.
func New(dataDir string, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		index:     index.NewInvertedIndex(),
		store:     store.NewDocumentStore(),
		spellings: make(map[string]int),
		pending:   make(map[string]*model.ProcessedDocument),
		dataDir:   dataDir,
		logger:    logger,
	}
	e.corrector = typoutil.NewCorrector(e.spellings)

	if dataDir != "" {
		if err := e.load(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) load() error {
	if err := persistence.LoadGob(filepath.Join(e.dataDir, invertedIndexFile), e.index); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if err := persistence.LoadGob(filepath.Join(e.dataDir, documentStoreFile), e.store); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	spellings := make(map[string]int)
	if err := persistence.LoadGob(filepath.Join(e.dataDir, spellingsFile), &spellings); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	e.spellings = spellings
	e.corrector = typoutil.NewCorrector(e.spellings)
	e.logger.Info("loaded engine state",
		zap.String("data_dir", e.dataDir),
		zap.Int("documents", e.store.Count()))
	return nil
}

// checkOpen must be called with at least a read lock held.
func (e *Engine) checkOpen(operation string) error {
	if e.closed {
		return xerrors.NewClosedError(operation)
	}
	return nil
}

// checkView must be called with at least a read lock held.
func (e *Engine) checkView() error {
	if e.viewRevision != e.currentRevision {
		return xerrors.NewStaleViewError(e.viewRevision, e.currentRevision)
	}
	return nil
}

func (e *Engine) pendingDoc(docID string) *model.ProcessedDocument {
	doc := e.pending[docID]
	if doc == nil {
		doc = model.NewProcessedDocument(docID)
		e.pending[docID] = doc
	}
	return doc
}

// PutTerm adds wdfInc to a term's frequency in the pending document.
func (e *Engine) PutTerm(docID, term string, wdfInc float64, positions []int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen("put term"); err != nil {
		return err
	}
	e.pendingDoc(docID).AddTerm(term, wdfInc, positions...)
	return nil
}

// PutValue appends encoded bytes to a slot of the pending document.
func (e *Engine) PutValue(docID, slot string, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen("put value"); err != nil {
		return err
	}
	e.pendingDoc(docID).AppendValue(slot, value)
	return nil
}

// PutStored appends a stored field value to the pending document.
func (e *Engine) PutStored(docID, field, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen("put stored"); err != nil {
		return err
	}
	e.pendingDoc(docID).AppendData(field, value)
	return nil
}

// Commit installs the pending document, replacing any committed document
// with the same ID. Committing an ID with no pending writes installs an
// empty document.
func (e *Engine) Commit(docID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen("commit document"); err != nil {
		return err
	}

	doc := e.pendingDoc(docID)
	delete(e.pending, docID)

	internal, old := e.store.Put(doc)
	if old != nil {
		e.index.Remove(internal, old)
		e.removeSpellings(old)
	}
	e.index.Add(internal, doc)
	for _, word := range doc.Spellings {
		e.corrector.Add(word)
	}
	return nil
}

// removeSpellings must be called with the write lock held.
func (e *Engine) removeSpellings(doc *model.ProcessedDocument) {
	for _, word := range doc.Spellings {
		e.corrector.Remove(word)
	}
}

// Delete removes a committed document.
func (e *Engine) Delete(docID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen("delete document"); err != nil {
		return err
	}

	doc, internal, ok := e.store.Delete(docID)
	if !ok {
		return xerrors.NewDocumentNotFoundError(docID)
	}
	e.index.Remove(internal, doc)
	e.removeSpellings(doc)
	return nil
}

// AddSpelling records a spelling-vocabulary word for the pending document.
// The vocabulary itself changes at Commit.
func (e *Engine) AddSpelling(docID, word string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen("add spelling"); err != nil {
		return err
	}
	e.pendingDoc(docID).AddSpelling(word)
	return nil
}

// RemoveSpelling decrements a word's spelling frequency.
func (e *Engine) RemoveSpelling(word string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen("remove spelling"); err != nil {
		return err
	}
	e.corrector.Remove(word)
	return nil
}

// Flush publishes committed writes as a new revision and persists the state.
// Existing views become stale.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen("flush"); err != nil {
		return err
	}
	return e.flushLocked()
}

func (e *Engine) flushLocked() error {
	e.currentRevision++

	if e.dataDir != "" {
		if err := persistence.SaveGob(filepath.Join(e.dataDir, invertedIndexFile), e.index); err != nil {
			return err
		}
		if err := persistence.SaveGob(filepath.Join(e.dataDir, documentStoreFile), e.store); err != nil {
			return err
		}
		if err := persistence.SaveGob(filepath.Join(e.dataDir, spellingsFile), e.spellings); err != nil {
			return err
		}
	}

	e.logger.Info("flushed engine state",
		zap.Uint64("revision", e.currentRevision),
		zap.Int("documents", e.store.Count()))
	return nil
}

// Close flushes and shuts the engine; all later operations fail.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if err := e.flushLocked(); err != nil {
		return err
	}
	e.closed = true
	return nil
}

// Reopen refreshes the view to the latest flushed revision.
func (e *Engine) Reopen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen("reopen"); err != nil {
		return err
	}
	e.viewRevision = e.currentRevision
	return nil
}

// Revision identifies the flushed state the view observes.
func (e *Engine) Revision() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.viewRevision
}

// DocCount is the number of committed documents.
func (e *Engine) DocCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Count()
}

// TermFreq is the number of documents containing the term.
func (e *Engine) TermFreq(term string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index.TermFreq(term)
}

// MaxTermWeight is the largest weighted frequency recorded for the term.
func (e *Engine) MaxTermWeight(term string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index.MaxTermWeight(term)
}

// GetDocument retrieves a committed document by external ID.
func (e *Engine) GetDocument(docID string) (*model.ProcessedDocument, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.checkOpen("get document"); err != nil {
		return nil, err
	}
	if err := e.checkView(); err != nil {
		return nil, err
	}
	doc, ok := e.store.Get(docID)
	if !ok {
		return nil, xerrors.NewDocumentNotFoundError(docID)
	}
	return doc, nil
}

// IterateValueRange returns the external IDs of documents whose slot value
// lies within [low, high].
func (e *Engine) IterateValueRange(slot string, low, high []byte) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.checkOpen("iterate value range"); err != nil {
		return nil, err
	}
	if err := e.checkView(); err != nil {
		return nil, err
	}
	internals := e.index.SlotRange(slot, low, high, 0)
	ids := make([]string, 0, len(internals))
	for _, internal := range internals {
		if doc, ok := e.store.GetByInternal(internal); ok {
			ids = append(ids, doc.ID)
		}
	}
	return ids, nil
}

// SuggestSpelling proposes a correction from the spelling vocabulary.
func (e *Engine) SuggestSpelling(word string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return "", false
	}
	return e.corrector.Suggest(word)
}
