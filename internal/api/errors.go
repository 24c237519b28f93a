package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"pricewatch-api/internal/models"
	"pricewatch-api/internal/registry"
	"pricewatch-api/internal/scrapers"
	"pricewatch-api/internal/services"
)

// statusFor maps service errors onto HTTP statuses and a short error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrAggregation),
		errors.Is(err, services.ErrInvalidThreshold),
		errors.Is(err, services.ErrInvalidTimeframe),
		errors.Is(err, models.ErrInvalidProductKey):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, registry.ErrUnknownRetailer):
		return http.StatusNotFound, "unknown_retailer"
	case errors.Is(err, scrapers.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *Handler) fail(c *gin.Context, err error, message string) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg(message)
	}
	c.JSON(status, models.ErrorResponse{
		Error:   code,
		Code:    status,
		Message: message,
		Details: err.Error(),
	})
}

func badRequest(c *gin.Context, message string, err error) {
	resp := models.ErrorResponse{
		Error:   "invalid_request",
		Code:    http.StatusBadRequest,
		Message: message,
	}
	if err != nil {
		resp.Details = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}
