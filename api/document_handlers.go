package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	xerrors "github.com/mydeco-dev-team/xappy/internal/errors"
	"github.com/mydeco-dev-team/xappy/internal/metrics"
	"github.com/mydeco-dev-team/xappy/model"
)

// DocumentRequest is one raw document for ingestion. Omitting the ID assigns
// one. Field order is preserved; repeated field names accumulate.
type DocumentRequest struct {
	ID     string         `json:"id,omitempty"`
	Fields []FieldRequest `json:"fields"`
}

// FieldRequest is one raw field instance of a document.
type FieldRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Assoc string `json:"assoc,omitempty"` // display value stored instead of Value
}

func (r *DocumentRequest) toModel() *model.UnprocessedDocument {
	doc := &model.UnprocessedDocument{ID: r.ID}
	for _, f := range r.Fields {
		doc.Fields = append(doc.Fields, model.Field{
			Name:  f.Name,
			Value: f.Value,
			Assoc: f.Assoc,
		})
	}
	return doc
}

// AddDocumentsHandler processes and commits a batch of documents. Documents
// with a known ID replace their previous version.
func (a *API) AddDocumentsHandler(c *gin.Context) {
	var docs []DocumentRequest
	if err := c.ShouldBindJSON(&docs); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	if result := ValidateDocuments(docs); !result.Valid {
		SendValidationError(c, result)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]string, 0, len(docs))
	for i, doc := range docs {
		id, err := a.indexer.Add(doc.toModel())
		if err != nil {
			if errors.Is(err, xerrors.ErrInvalidValue) {
				SendInvalidValueError(c, err)
				return
			}
			if errors.Is(err, xerrors.ErrConnClosed) {
				SendConnectionClosedError(c, err)
				return
			}
			a.logger.Error("document indexing failed",
				zap.Int("position", i),
				zap.Error(err))
			SendIndexingError(c, "add documents", err)
			return
		}
		ids = append(ids, id)
	}

	metrics.RecordDocumentsIndexed(len(ids))
	c.JSON(http.StatusCreated, gin.H{"ids": ids})
}

// GetDocumentHandler returns a document's stored data by ID.
func (a *API) GetDocumentHandler(c *gin.Context) {
	id := c.Param("id")
	doc, err := a.searcher.GetDocument(id)
	if err != nil {
		if errors.Is(err, xerrors.ErrDocNotFound) {
			SendDocumentNotFoundError(c, id)
			return
		}
		if errors.Is(err, xerrors.ErrStaleView) {
			if err := a.searcher.Reopen(); err == nil {
				doc, err = a.searcher.GetDocument(id)
			}
			if err != nil {
				SendInternalError(c, "document retrieval", err)
				return
			}
		} else {
			SendInternalError(c, "document retrieval", err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"id":   doc.ID,
		"data": doc.Data,
	})
}

// DeleteDocumentHandler removes a document by ID.
func (a *API) DeleteDocumentHandler(c *gin.Context) {
	id := c.Param("id")

	a.mu.Lock()
	err := a.indexer.Delete(id)
	a.mu.Unlock()
	if err != nil {
		if errors.Is(err, xerrors.ErrDocNotFound) {
			SendDocumentNotFoundError(c, id)
			return
		}
		if errors.Is(err, xerrors.ErrConnClosed) {
			SendConnectionClosedError(c, err)
			return
		}
		SendIndexingError(c, "delete document", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// FlushHandler publishes all committed writes and persists the index. The
// searcher's view is reopened onto the flushed revision.
func (a *API) FlushHandler(c *gin.Context) {
	a.mu.Lock()
	err := a.indexer.Flush()
	a.mu.Unlock()
	if err != nil {
		SendInternalError(c, "flush", err)
		return
	}
	if err := a.searcher.Reopen(); err != nil {
		SendInternalError(c, "flush", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revision": a.engine.Revision()})
}
