package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/fieldmetrics/api/internal/middleware"
	"github.com/fieldmetrics/api/internal/model"
	"github.com/fieldmetrics/api/internal/service"
	"github.com/fieldmetrics/api/pkg/response"
)

type JobHandler struct {
	jobs    *service.JobService
	retries *service.RetryService
}

func NewJobHandler(jobs *service.JobService, retries *service.RetryService) *JobHandler {
	return &JobHandler{
		jobs:    jobs,
		retries: retries,
	}
}

// Status handles GET /api/jobs/:jobId
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.jobs.Get(c.Context(), jobID, middleware.GetUserID(c), middleware.IsAdmin(c))
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.NewJobStatusResponse(job))
}

// Report handles GET /api/jobs/:jobId/report
func (h *JobHandler) Report(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	report, err := h.jobs.GetReport(c.Context(), jobID, middleware.GetUserID(c), middleware.IsAdmin(c))
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Report not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, report)
}

// ListFailed handles GET /api/admin/jobs/failed
func (h *JobHandler) ListFailed(c *fiber.Ctx) error {
	jobs, err := h.retries.ListFailed(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	out := make([]*model.JobStatusResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, model.NewJobStatusResponse(job))
	}
	return response.OK(c, fiber.Map{"jobs": out})
}

// Retry handles POST /api/admin/jobs/:jobId/retry
func (h *JobHandler) Retry(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.retries.Retry(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		var rerr *service.RetryNotAllowedError
		if errors.As(err, &rerr) {
			return response.RetryNotAllowed(c, rerr.Error())
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, model.RetryResponse{
		Job:         model.NewJobStatusResponse(job),
		NextRetryAt: *job.NextRetryAt,
	})
}
