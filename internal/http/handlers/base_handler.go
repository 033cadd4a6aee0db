// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hyperlocal/internal/logger"
	"hyperlocal/internal/modules/order"
	"hyperlocal/internal/modules/rider"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// isValidID accepts uuid-style and slug ids.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeCodedError(c *gin.Context, status int, code string, err error) {
	writeJSON(c, status, errorResponse{Error: err.Error(), Code: code})
}

func writeOrderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrBadRequest), errors.Is(err, rider.ErrBadRequest):
		writeCodedError(c, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, order.ErrUnauthorized), errors.Is(err, rider.ErrUnauthorized):
		writeCodedError(c, http.StatusForbidden, "unauthorized", err)
	case errors.Is(err, order.ErrNotFound), errors.Is(err, rider.ErrNotFound):
		writeCodedError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, order.ErrInvalidTransition):
		writeCodedError(c, http.StatusConflict, "invalid_transition", err)
	case errors.Is(err, order.ErrConflict):
		writeCodedError(c, http.StatusConflict, "conflict", err)
	case errors.Is(err, order.ErrPreconditionFailed):
		writeCodedError(c, http.StatusPreconditionFailed, "precondition_failed", err)
	default:
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// pathID reads and validates the :id path parameter, answering 400 when bad.
func pathID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid id")
		return "", false
	}
	return id, true
}
