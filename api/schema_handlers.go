package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mydeco-dev-team/xappy/config"
	xerrors "github.com/mydeco-dev-team/xappy/internal/errors"
)

// GetSchemaHandler returns the declared field actions and their assigned
// term prefixes.
func (a *API) GetSchemaHandler(c *gin.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c.JSON(http.StatusOK, a.schema)
}

// AddFieldActionHandler declares an action for a field. Declarations
// accumulate and only affect documents processed afterwards; nothing is
// reindexed.
func (a *API) AddFieldActionHandler(c *gin.Context) {
	field := c.Param("field")

	var action config.FieldAction
	if err := c.ShouldBindJSON(&action); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	if result := ValidateFieldAction(field, &action); !result.Valid {
		SendValidationError(c, result)
		return
	}

	a.mu.Lock()
	err := a.schema.AddAction(field, action)
	a.mu.Unlock()
	if err != nil {
		if errors.Is(err, xerrors.ErrConfiguration) {
			SendFieldError(c, err)
			return
		}
		SendInternalError(c, "field action declaration", err)
		return
	}

	a.logger.Info("declared field action",
		zap.String("field", field),
		zap.String("kind", string(action.Kind)))
	c.JSON(http.StatusCreated, gin.H{
		"field": field,
		"kind":  action.Kind,
	})
}
