// README: Notification inbox handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"potluck/internal/http/middleware"
	"potluck/internal/modules/notification"
	"potluck/internal/types"
)

type NotificationService interface {
	List(ctx context.Context, userID types.ID) ([]notification.Notification, error)
	MarkRead(ctx context.Context, userID types.ID, id int64) error
}

type NotificationHandler struct {
	notifications NotificationService
}

func NewNotificationHandler(svc NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: svc}
}

func (h *NotificationHandler) List(c *gin.Context) {
	list, err := h.notifications.List(c.Request.Context(), middleware.CallerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]notificationView, 0, len(list))
	for _, n := range list {
		out = append(out, newNotificationView(n))
	}
	writeJSON(c, http.StatusOK, gin.H{"notifications": out})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := pathInt(c)
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), middleware.CallerID(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
