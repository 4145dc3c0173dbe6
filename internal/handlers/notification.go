package handlers

import (
	"blogsphere/internal/services"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notifier *services.Notifier
}

func NewNotificationHandler(notifier *services.Notifier) *NotificationHandler {
	return &NotificationHandler{notifier: notifier}
}

// HasNew 是否有未读通知
func (h *NotificationHandler) HasNew(c *gin.Context) {
	available, err := h.notifier.HasNew(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"new_notification_available": available})
}

type notificationsRequest struct {
	Page            int    `json:"page"`
	Filter          string `json:"filter"`
	DeletedDocCount int    `json:"deletedDocCount"`
}

func (h *NotificationHandler) List(c *gin.Context) {
	var req notificationsRequest
	if !bindJSON(c, &req) {
		return
	}
	list, err := h.notifier.List(c.Request.Context(), currentUser(c), req.Page, req.Filter, req.DeletedDocCount)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"notifications": list})
}

func (h *NotificationHandler) Count(c *gin.Context) {
	var req notificationsRequest
	if !bindJSON(c, &req) {
		return
	}
	total, err := h.notifier.Count(c.Request.Context(), currentUser(c), req.Filter)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"totalDocs": total})
}
