// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"potluck/internal/http/middleware"
	"potluck/internal/modules/catalog"
	"potluck/internal/modules/location"
	"potluck/internal/modules/matching"
	"potluck/internal/modules/notification"
	"potluck/internal/modules/order"
	"potluck/internal/modules/pricing"
	"potluck/internal/modules/settlement"
	"potluck/internal/types"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorStatus maps module sentinels to HTTP status; the sentinel text is the response code.
var errorStatus = []struct {
	err    error
	status int
}{
	{order.ErrValidation, http.StatusBadRequest},
	{order.ErrEmptyCart, http.StatusBadRequest},
	{order.ErrPriceMismatch, http.StatusBadRequest},
	{order.ErrInvalidTransition, http.StatusBadRequest},
	{catalog.ErrValidation, http.StatusBadRequest},
	{pricing.ErrValidation, http.StatusBadRequest},
	{pricing.ErrMispriced, http.StatusBadRequest},
	{matching.ErrValidation, http.StatusBadRequest},
	{settlement.ErrValidation, http.StatusBadRequest},
	{location.ErrValidation, http.StatusBadRequest},
	{location.ErrInvalidCoordinate, http.StatusBadRequest},

	{order.ErrForbidden, http.StatusForbidden},
	{settlement.ErrForbidden, http.StatusForbidden},
	{location.ErrForbidden, http.StatusForbidden},

	{order.ErrNotFound, http.StatusNotFound},
	{catalog.ErrNotFound, http.StatusNotFound},
	{matching.ErrNotFound, http.StatusNotFound},
	{settlement.ErrNotFound, http.StatusNotFound},
	{location.ErrNotFound, http.StatusNotFound},
	{notification.ErrNotFound, http.StatusNotFound},

	{order.ErrAlreadyInState, http.StatusConflict},
	{order.ErrStaleStatus, http.StatusConflict},
	{order.ErrChefUnavailable, http.StatusConflict},
	{matching.ErrAlreadyAssigned, http.StatusConflict},
	{matching.ErrNotEligible, http.StatusConflict},
	{settlement.ErrAlreadySettled, http.StatusConflict},
	{settlement.ErrNotDelivered, http.StatusConflict},

	{pricing.ErrQuotaExceeded, http.StatusTooManyRequests},
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeBadRequest(c *gin.Context, msg string) {
	writeJSON(c, http.StatusBadRequest, errorResponse{Error: "validation_error", Message: msg})
}

// writeError answers with the status and code of the first matching sentinel.
// Anything unmapped is logged and reported as internal_error.
func writeError(c *gin.Context, err error) {
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			writeJSON(c, m.status, errorResponse{Error: m.err.Error(), Message: err.Error()})
			return
		}
	}
	middleware.Logger(c).Error("unhandled error",
		zap.String("route", c.FullPath()),
		zap.String("id", c.Param("id")),
		zap.String("uid", middleware.CallerUID(c)),
		zap.Error(err))
	writeJSON(c, http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: "internal error"})
}

// isValidID accepts the characters used by snowflake and Firebase ids.
func isValidID(v string) bool {
	if v == "" || len(v) > 128 {
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

// pathID reads and validates the :id parameter, writing a 400 when it is malformed.
func pathID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeBadRequest(c, "invalid id")
		return "", false
	}
	return types.ID(id), true
}

func pathInt(c *gin.Context) (int64, bool) {
	n, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || n <= 0 {
		writeBadRequest(c, "invalid id")
		return 0, false
	}
	return n, true
}
