package handler

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/fieldmetrics/api/internal/client"
	"github.com/fieldmetrics/api/internal/middleware"
	"github.com/fieldmetrics/api/pkg/response"
)

// signedURLExpiry bounds how long a media download link stays valid.
const signedURLExpiry = 15 * time.Minute

var allowedMediaKinds = map[string]string{
	"video": "video/mp4",
	"gps":   "application/octet-stream",
}

// MediaHandler moves raw match media in and out of object storage. The
// returned keys are what upload requests pass as video/GPS references.
type MediaHandler struct {
	storage client.StorageClient
}

func NewMediaHandler(storage client.StorageClient) *MediaHandler {
	return &MediaHandler{storage: storage}
}

// Upload handles POST /api/media
func (h *MediaHandler) Upload(c *fiber.Ctx) error {
	if h.storage == nil {
		return response.ServiceError(c, "Object storage not configured")
	}

	kind := c.FormValue("kind", "video")
	contentType, ok := allowedMediaKinds[kind]
	if !ok {
		return response.ValidationError(c, "kind must be video or gps", nil)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to read uploaded file")
	}
	defer file.Close()

	ext := filepath.Ext(fileHeader.Filename)
	key := fmt.Sprintf("media/%s/%s/%s%s", middleware.GetUserID(c), kind, uuid.New().String(), ext)

	url, err := h.storage.Upload(c.Context(), key, file, contentType)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, fiber.Map{
		"key": key,
		"url": url,
	})
}

// SignedURL handles GET /api/media/sign
func (h *MediaHandler) SignedURL(c *fiber.Ctx) error {
	if h.storage == nil {
		return response.ServiceError(c, "Object storage not configured")
	}

	key := c.Query("key")
	if key == "" {
		return response.ValidationError(c, "key is required", nil)
	}

	// Owners may only sign their own media; report artifacts are keyed by
	// owner id as well.
	ownerPrefixes := []string{
		"media/" + middleware.GetUserID(c) + "/",
		"reports/" + middleware.GetUserID(c) + "/",
	}
	allowed := middleware.IsAdmin(c)
	for _, prefix := range ownerPrefixes {
		if strings.HasPrefix(key, prefix) {
			allowed = true
		}
	}
	if !allowed {
		return response.Forbidden(c, "Key does not belong to the caller")
	}

	url, err := h.storage.GetSignedURL(c.Context(), key, signedURLExpiry)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, fiber.Map{
		"url":       url,
		"expiresIn": int(signedURLExpiry.Seconds()),
	})
}
