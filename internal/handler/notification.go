package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fieldmetrics/api/internal/middleware"
	"github.com/fieldmetrics/api/internal/service"
	"github.com/fieldmetrics/api/pkg/response"
)

type NotificationHandler struct {
	inbox *service.InboxService
}

func NewNotificationHandler(inbox *service.InboxService) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

// List handles GET /api/notifications
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	notifications, err := h.inbox.Peek(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"notifications": notifications})
}

// Ack handles POST /api/notifications/ack and consumes the inbox.
func (h *NotificationHandler) Ack(c *fiber.Ctx) error {
	notifications, err := h.inbox.Drain(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"notifications": notifications})
}
