package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chaptr/internal/rag"
)

// ResponseSuccess writes a 200 with the wrapped payload.
func ResponseSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// ResponseCreated writes a 201 with the wrapped payload.
func ResponseCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// ResponseAccepted writes a 202 for a pipeline run that completed or was
// triggered.
func ResponseAccepted(c *gin.Context, message string, data any) {
	c.JSON(http.StatusAccepted, APIResponse{Success: true, Message: message, Data: data})
}

// ResponseNoContent writes an empty 204.
func ResponseNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// ResponseError classifies err against the pipeline's sentinel errors and
// writes the matching status and stable error code.
func ResponseError(c *gin.Context, err error) {
	status, code := classify(err)
	c.JSON(status, ErrorResponse{Success: false, Code: code, Message: err.Error()})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, rag.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, rag.ErrEmptyInput):
		return http.StatusBadRequest, "empty_input"
	case errors.Is(err, rag.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, rag.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, rag.ErrNotReady):
		return http.StatusConflict, "not_ready"
	case errors.Is(err, rag.ErrDimensionMismatch):
		return http.StatusUnprocessableEntity, "dimension_mismatch"
	case errors.Is(err, rag.ErrStaleIndex):
		return http.StatusConflict, "stale_index"
	case errors.Is(err, rag.ErrEmbeddingService):
		return http.StatusBadGateway, "embedding_service_error"
	case errors.Is(err, rag.ErrGeneration):
		return http.StatusBadGateway, "generation_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
