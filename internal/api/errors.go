package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Skufu/RenalRisk/internal/clinical"
	"github.com/Skufu/RenalRisk/internal/predictor"
	"github.com/Skufu/RenalRisk/internal/store"
)

type errorResponse struct {
	Error   string                `json:"error"`
	Message string                `json:"message"`
	Details []clinical.FieldError `json:"details,omitempty"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: code, Message: message})
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var verrs clinical.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, errorResponse{
			Error:   "validation_failed",
			Message: verrs.Error(),
			Details: verrs,
		})
	case errors.Is(err, clinical.ErrMissingCreatinine):
		abortWithError(c, http.StatusUnprocessableEntity, "missing_creatinine", err.Error())
	case errors.Is(err, predictor.ErrInsufficientFeatures):
		abortWithError(c, http.StatusUnprocessableEntity, "insufficient_features", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		abortWithError(c, http.StatusGatewayTimeout, "timeout", err.Error())
	case errors.Is(err, predictor.ErrUnavailable):
		abortWithError(c, http.StatusServiceUnavailable, "classifier_unavailable", err.Error())
	case errors.Is(err, predictor.ErrInvalidResponse):
		abortWithError(c, http.StatusBadGateway, "classifier_invalid_response", err.Error())
	case errors.Is(err, store.ErrNotFound):
		abortWithError(c, http.StatusNotFound, "not_found", err.Error())
	default:
		abortWithError(c, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
