package api

import (
	"fmt"
	"strings"

	"github.com/mydeco-dev-team/xappy/config"
)

const maxDocumentBatchSize = 1000

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult collects the failures of validating one request
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

func (r *ValidationResult) addError(field, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

func newValidationResult() *ValidationResult {
	return &ValidationResult{Valid: true}
}

var validActionKinds = map[config.ActionKind]bool{
	config.ActionFreeText: true,
	config.ActionExact:    true,
	config.ActionSortable: true,
	config.ActionCollapse: true,
	config.ActionStore:    true,
	config.ActionFacet:    true,
	config.ActionWeight:   true,
}

// ValidateFieldAction checks the request-level shape of a field action
// declaration. Cross-action consistency is the schema's own validation.
func ValidateFieldAction(field string, action *config.FieldAction) *ValidationResult {
	result := newValidationResult()

	if strings.TrimSpace(field) == "" {
		result.addError("field", "field name cannot be empty or whitespace-only")
	}
	if action.Kind == "" {
		result.addError("kind", "action kind is required")
	} else if !validActionKinds[action.Kind] {
		result.addError("kind", fmt.Sprintf("unknown action kind %q", action.Kind))
	}

	if action.FreeText != nil && action.Kind != config.ActionFreeText {
		result.addError("freetext", "freetext options only apply to the freetext kind")
	}
	if action.Sortable != nil && action.Kind != config.ActionSortable {
		result.addError("sortable", "sortable options only apply to the sortable kind")
	}
	if action.Facet != nil && action.Kind != config.ActionFacet {
		result.addError("facet", "facet options only apply to the facet kind")
	}

	return result
}

// ValidateDocuments checks the shape of an ingestion batch.
func ValidateDocuments(docs []DocumentRequest) *ValidationResult {
	result := newValidationResult()

	if len(docs) == 0 {
		result.addError("documents", "at least one document is required")
		return result
	}
	if len(docs) > maxDocumentBatchSize {
		result.addError("documents",
			fmt.Sprintf("batch size %d exceeds the maximum of %d", len(docs), maxDocumentBatchSize))
		return result
	}

	for i, doc := range docs {
		if len(doc.Fields) == 0 {
			result.addError(fmt.Sprintf("documents[%d].fields", i),
				"document has no fields")
		}
		for j, field := range doc.Fields {
			if strings.TrimSpace(field.Name) == "" {
				result.addError(fmt.Sprintf("documents[%d].fields[%d].name", i, j),
					"field name cannot be empty")
			}
		}
	}
	return result
}

// ValidateSearchRequest checks the shape of a search request.
func ValidateSearchRequest(req *SearchRequest) *ValidationResult {
	result := newValidationResult()

	if req.Start < 0 {
		result.addError("start", "start rank cannot be negative")
	}
	if req.End < 0 {
		result.addError("end", "end rank cannot be negative")
	}
	if req.End != 0 && req.End < req.Start {
		result.addError("end", "end rank cannot be below start rank")
	}
	if req.CheckAtLeast < -1 {
		result.addError("check_at_least", "check_at_least must be -1, 0 or positive")
	}
	if req.SummariseLength < 0 {
		result.addError("summarise_length", "summarise_length cannot be negative")
	}
	switch req.DefaultOp {
	case "", "and", "or":
	default:
		result.addError("default_op", fmt.Sprintf("unknown operator %q, expected and or or", req.DefaultOp))
	}

	for i, clause := range req.Query {
		prefix := fmt.Sprintf("query[%d]", i)
		if len(clause.SimilarTo) > 0 {
			if clause.Text != "" || clause.Low != "" || clause.High != "" || clause.FacetValue != "" {
				result.addError(prefix, "similar_to cannot be combined with other clause members")
			}
			continue
		}
		if clause.Field == "" {
			result.addError(prefix+".field", "clause needs a field")
		}
		hasRange := clause.Low != "" || clause.High != ""
		if hasRange && (clause.Text != "" || clause.FacetValue != "") {
			result.addError(prefix, "range bounds cannot be combined with text or facet_value")
		}
		if clause.Text != "" && clause.FacetValue != "" {
			result.addError(prefix, "text and facet_value are mutually exclusive")
		}
	}
	return result
}
