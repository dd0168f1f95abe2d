package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/fieldmetrics/api/internal/middleware"
	"github.com/fieldmetrics/api/internal/model"
	"github.com/fieldmetrics/api/internal/service"
	"github.com/fieldmetrics/api/pkg/response"
)

type RecordHandler struct {
	service   *service.RecordService
	validator *validator.Validate
}

func NewRecordHandler(svc *service.RecordService, v *validator.Validate) *RecordHandler {
	return &RecordHandler{
		service:   svc,
		validator: v,
	}
}

// Upload handles POST /api/records
func (h *RecordHandler) Upload(c *fiber.Ctx) error {
	var req model.UploadRecordRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	input := &service.UploadRecordInput{
		VideoReference: req.VideoReference,
		GPSReference:   req.GPSReference,
		Metadata:       req.Metadata,
	}
	if req.CapturedAt != nil {
		input.CapturedAt = *req.CapturedAt
	}

	record, job, err := h.service.Upload(c.Context(), middleware.GetUserID(c), input)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			return response.ValidationError(c, verr.Message, nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, model.UploadRecordResponse{
		Record: record,
		Job:    model.NewJobStatusResponse(job),
	})
}

// Get handles GET /api/records/:recordId
func (h *RecordHandler) Get(c *fiber.Ctx) error {
	recordID := c.Params("recordId")
	if recordID == "" {
		return response.ValidationError(c, "Record ID is required", nil)
	}

	record, err := h.service.Get(c.Context(), recordID, middleware.GetUserID(c), middleware.IsAdmin(c))
	if err != nil {
		if errors.Is(err, service.ErrRecordNotFound) {
			return response.NotFound(c, "Record not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, record)
}

// Resubmit handles POST /api/records/:recordId/analyze
func (h *RecordHandler) Resubmit(c *fiber.Ctx) error {
	recordID := c.Params("recordId")
	if recordID == "" {
		return response.ValidationError(c, "Record ID is required", nil)
	}

	job, err := h.service.Resubmit(c.Context(), recordID, middleware.GetUserID(c), middleware.IsAdmin(c))
	if err != nil {
		if errors.Is(err, service.ErrRecordNotFound) {
			return response.NotFound(c, "Record not found")
		}
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			return response.ValidationError(c, verr.Message, nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, model.NewJobStatusResponse(job))
}
