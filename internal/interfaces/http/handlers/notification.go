// internal/interfaces/http/handlers/notification.go
package handlers

import (
	"context"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/your-org/asset-inventory/internal/domain/notification"
	"github.com/your-org/asset-inventory/internal/interfaces/http/middleware"
)

// InboxReader lists unread notifications of a recipient
type InboxReader interface {
	ListUnread(ctx context.Context, recipient string) ([]notification.Notification, error)
}

// NotificationHandler serves the caller's notification inbox
type NotificationHandler struct {
	inbox InboxReader
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(inbox InboxReader) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

// GetNotifications handles GET /notifications. Notices addressed to the
// caller's role are merged with personal ones, newest first.
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)
	recipients := []string{userID}
	if role := middleware.GetUserRoleFromContext(c); role != "" {
		recipients = append(recipients, notification.ForRole(role))
	}

	var all []notification.Notification
	for _, recipient := range recipients {
		list, err := h.inbox.ListUnread(c.Request.Context(), recipient)
		if err != nil {
			respondError(c, err)
			return
		}
		all = append(all, list...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	c.JSON(http.StatusOK, gin.H{
		"message": "Notifications retrieved successfully",
		"data":    all,
	})
}
