// Package api exposes the indexer and searcher over HTTP: field action
// configuration, document ingestion, search with facets, highlighting,
// collapsing and spelling correction.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mydeco-dev-team/xappy/config"
	"github.com/mydeco-dev-team/xappy/internal/indexing"
	"github.com/mydeco-dev-team/xappy/internal/metrics"
	"github.com/mydeco-dev-team/xappy/internal/search"
	"github.com/mydeco-dev-team/xappy/services"
)

const maxRequestBodySize = 10 << 20 // 10 MB

// API holds the handlers' dependencies: the shared schema, the indexer and
// searcher connections, and the engine they run against.
type API struct {
	mu       sync.Mutex // serializes schema changes and writes
	schema   *config.Schema
	engine   services.IndexEngine
	indexer  *indexing.Service
	searcher *search.Connection
	logger   *zap.Logger
}

// NewAPI creates the API handler structure over one schema and engine.
func NewAPI(schema *config.Schema, engine services.IndexEngine, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		schema:   schema,
		engine:   engine,
		indexer:  indexing.NewService(schema, engine),
		searcher: search.NewConnection(schema, engine),
		logger:   logger,
	}
}

// SetupRoutes defines all the API routes.
func SetupRoutes(router *gin.Engine, a *API) {
	router.Use(CORSMiddleware())
	router.Use(RequestSizeLimitMiddleware(maxRequestBodySize))
	router.Use(metrics.Middleware())

	router.GET("/health", a.HealthCheckHandler)
	router.GET("/stats", a.StatsHandler)
	router.GET("/metrics", metrics.Handler())

	schemaRoutes := router.Group("/schema")
	{
		schemaRoutes.GET("", a.GetSchemaHandler)
		schemaRoutes.POST("/fields/:field/actions", a.AddFieldActionHandler)
	}

	docRoutes := router.Group("/documents")
	{
		docRoutes.POST("", a.AddDocumentsHandler)
		docRoutes.GET("/:id", a.GetDocumentHandler)
		docRoutes.DELETE("/:id", a.DeleteDocumentHandler)
	}

	router.POST("/flush", a.FlushHandler)
	router.POST("/search", a.SearchHandler)
	router.GET("/spell", a.SpellCorrectHandler)
}

// HealthCheckHandler responds to liveness probes.
func (a *API) HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// StatsHandler reports the engine's document count and flushed revision.
func (a *API) StatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"document_count": a.engine.DocCount(),
		"revision":       a.engine.Revision(),
	})
}
