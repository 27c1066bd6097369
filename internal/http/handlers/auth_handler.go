// README: Session handler; logout adds the bearer token to the revocation list.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"potluck/internal/http/middleware"
)

type AuthHandler struct {
	revocations middleware.Revocations
}

func NewAuthHandler(r middleware.Revocations) *AuthHandler {
	return &AuthHandler{revocations: r}
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.revocations.Revoke(c.Request.Context(), middleware.CallerToken(c), middleware.CallerTokenTTL(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
