package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/mydeco-dev-team/xappy/config"
	"github.com/mydeco-dev-team/xappy/internal/engine"
)

func newTestRouter(t *testing.T) (*gin.Engine, *API) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	eng, err := engine.New("", nil)
	require.NoError(t, err)

	a := NewAPI(config.NewSchema(), eng, nil)
	router := gin.New()
	SetupRoutes(router, a)
	return router, a
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func declareAction(t *testing.T, router *gin.Engine, field string, action config.FieldAction) {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/schema/fields/"+field+"/actions", action)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func setupCatalogSchema(t *testing.T, router *gin.Engine) {
	t.Helper()
	declareAction(t, router, "title", config.FieldAction{
		Kind:     config.ActionFreeText,
		FreeText: &config.FreeTextOptions{Spell: true},
	})
	declareAction(t, router, "title", config.FieldAction{Kind: config.ActionStore})
	declareAction(t, router, "price", config.FieldAction{
		Kind:     config.ActionSortable,
		Sortable: &config.SortableOptions{Type: config.TypeFloat},
	})
	declareAction(t, router, "category", config.FieldAction{Kind: config.ActionFacet})
}

func addCatalogDocs(t *testing.T, router *gin.Engine) []string {
	t.Helper()
	docs := []DocumentRequest{
		{ID: "d1", Fields: []FieldRequest{
			{Name: "title", Value: "quick brown fox"},
			{Name: "price", Value: "12.20"},
			{Name: "category", Value: "Bible"},
		}},
		{ID: "d2", Fields: []FieldRequest{
			{Name: "title", Value: "quick silver"},
			{Name: "price", Value: "16.56"},
			{Name: "category", Value: "Bible"},
		}},
		{ID: "d3", Fields: []FieldRequest{
			{Name: "title", Value: "slow snail"},
			{Name: "price", Value: "20.56"},
			{Name: "category", Value: "Test documents"},
		}},
	}
	w := doJSON(t, router, http.MethodPost, "/documents", docs)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		IDs []string `json:"ids"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.IDs, 3)
	return resp.IDs
}

func TestHealthAndStats(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.EqualValues(t, 0, stats["document_count"])
}

func TestSchemaDeclarationAndRetrieval(t *testing.T) {
	router, a := newTestRouter(t)
	setupCatalogSchema(t, router)

	w := doJSON(t, router, http.MethodGet, "/schema", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, a.schema.Has("title", config.ActionFreeText))
	require.True(t, a.schema.Has("price", config.ActionSortable))
}

func TestDeclareConflictingActionFails(t *testing.T) {
	router, _ := newTestRouter(t)
	declareAction(t, router, "code", config.FieldAction{Kind: config.ActionExact})

	w := doJSON(t, router, http.MethodPost, "/schema/fields/code/actions",
		config.FieldAction{Kind: config.ActionFreeText})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var apiErr APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	require.Equal(t, ErrorCodeFieldNotUsable, apiErr.Code)
}

func TestDeclareActionValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/schema/fields/title/actions",
		map[string]any{"kind": "bogus"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var apiErr APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	require.Equal(t, ErrorCodeValidationFailed, apiErr.Code)
}

func TestDocumentLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)
	setupCatalogSchema(t, router)
	ids := addCatalogDocs(t, router)

	w := doJSON(t, router, http.MethodGet, "/documents/"+ids[0], nil)
	require.Equal(t, http.StatusOK, w.Code)
	var doc struct {
		ID   string              `json:"id"`
		Data map[string][]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.Equal(t, "d1", doc.ID)
	require.Equal(t, []string{"quick brown fox"}, doc.Data["title"])

	w = doJSON(t, router, http.MethodDelete, "/documents/d1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/documents/d1", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/documents/d1", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvalidDocumentValues(t *testing.T) {
	router, _ := newTestRouter(t)
	setupCatalogSchema(t, router)

	w := doJSON(t, router, http.MethodPost, "/documents", []DocumentRequest{
		{Fields: []FieldRequest{{Name: "price", Value: "not-a-number"}}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var apiErr APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	require.Equal(t, ErrorCodeInvalidValue, apiErr.Code)
}

func TestSearchEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	setupCatalogSchema(t, router)
	addCatalogDocs(t, router)

	w := doJSON(t, router, http.MethodPost, "/search", SearchRequest{
		Query:          []QueryClause{{Field: "title", Text: "quick"}},
		HighlightField: "title",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Hits, 2)
	require.Equal(t, 2, resp.MatchesEstimated)
	require.True(t, resp.EstimateIsExact)
	require.NotEmpty(t, resp.Hits[0].Highlight["title"])
}

func TestSearchWithRangeFilterAndFacets(t *testing.T) {
	router, _ := newTestRouter(t)
	setupCatalogSchema(t, router)
	addCatalogDocs(t, router)

	w := doJSON(t, router, http.MethodPost, "/search", SearchRequest{
		Query: []QueryClause{
			{Field: "title", Text: "quick"},
			{Field: "price", Low: "15", High: "21", Filter: true},
		},
		CheckAtLeast: -1,
		Facets:       &FacetParams{},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Hits, 1)
	require.Equal(t, "d2", resp.Hits[0].ID)
	require.Len(t, resp.Facets, 1)
	require.Equal(t, "category", resp.Facets[0].Field)
	require.Equal(t, "bible", resp.Facets[0].Values[0].Value)
	require.Equal(t, 1, resp.Facets[0].Values[0].Count)
}

func TestSearchFacetClause(t *testing.T) {
	router, _ := newTestRouter(t)
	setupCatalogSchema(t, router)
	addCatalogDocs(t, router)

	w := doJSON(t, router, http.MethodPost, "/search", SearchRequest{
		Query: []QueryClause{{Field: "category", FacetValue: "BIBLE", Filter: true}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Hits, 2)
}

func TestSearchSpellCorrection(t *testing.T) {
	router, _ := newTestRouter(t)
	setupCatalogSchema(t, router)
	addCatalogDocs(t, router)

	w := doJSON(t, router, http.MethodPost, "/search", SearchRequest{
		Query:        []QueryClause{{Field: "title", Text: "quikc"}},
		SpellCorrect: true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Hits, 2)
	require.Len(t, resp.CorrectedQuery, 1)
	require.Equal(t, "quick", resp.CorrectedQuery[0].Text)
}

func TestSpellEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	setupCatalogSchema(t, router)
	addCatalogDocs(t, router)

	req := httptest.NewRequest(http.MethodGet, "/spell?text=quikc+silvre", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "quick silver", resp["corrected"])
}

func TestSearchValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/search", SearchRequest{Start: -1})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var apiErr APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	require.Equal(t, ErrorCodeValidationFailed, apiErr.Code)
}

func TestSearchOnClosedConnection(t *testing.T) {
	router, a := newTestRouter(t)
	setupCatalogSchema(t, router)
	addCatalogDocs(t, router)
	a.searcher.Close()

	w := doJSON(t, router, http.MethodPost, "/search", SearchRequest{
		Query: []QueryClause{{Field: "title", Text: "quick"}},
	})
	require.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())

	var apiErr APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	require.Equal(t, ErrorCodeConnectionClosed, apiErr.Code)
}

func TestFlushEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	setupCatalogSchema(t, router)
	addCatalogDocs(t, router)

	w := doJSON(t, router, http.MethodPost, "/flush", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]uint64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.EqualValues(t, 1, resp["revision"])

	// The searcher's view was superseded by the flush; the search path must
	// recover transparently.
	w = doJSON(t, router, http.MethodPost, "/search", SearchRequest{
		Query: []QueryClause{{Field: "title", Text: "quick"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
