package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fieldmetrics/api/internal/middleware"
	"github.com/fieldmetrics/api/pkg/response"
)

type AuthHandler struct{}

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// Verify handles GET /auth/verify and echoes the authenticated principal.
// Lets clients and the gateway check a token without touching pipeline
// state.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{
		"userId":  middleware.GetUserID(c),
		"email":   middleware.GetUserEmail(c),
		"isAdmin": middleware.IsAdmin(c),
	})
}
