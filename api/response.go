package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"productsapi/domain"
	"productsapi/validate"
)

const (
	msgProductNotFound = "Producto no encontrado"
	msgProductDeleted  = "Producto eliminado"
	msgProductInUse    = "El producto tiene ventas asociadas"
	msgInternal        = "Error interno del servidor"
	msgInvalidJSON     = "JSON no válido"
)

// respondErrors aborts the request with the collected validation errors
func respondErrors(c *gin.Context, errs []validate.FieldError) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"errors": errs})
}

// respondError maps a store error onto its HTTP response. Anything it does
// not recognise is logged and reported as a 500.
func respondError(c *gin.Context, err error) {
	var ipe *domain.InvalidProductError
	switch {
	case domain.IsProductNotFoundError(err):
		c.JSON(http.StatusNotFound, gin.H{"error": msgProductNotFound})
	case domain.IsProductInUseError(err):
		c.JSON(http.StatusConflict, gin.H{"error": msgProductInUse})
	case errors.As(err, &ipe):
		respondErrors(c, []validate.FieldError{{
			Field:    ipe.Field,
			Location: validate.Body,
			Message:  ipe.Reason,
			Value:    ipe.Value,
		}})
	default:
		logger(c).Error("request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
	}
}

// logger returns the default logger annotated with the request id
func logger(c *gin.Context) *slog.Logger {
	return slog.Default().With("request_id", c.GetString(requestIDKey))
}
