package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/fieldmetrics/api/internal/config"
	"github.com/fieldmetrics/api/internal/model"
	"github.com/fieldmetrics/api/internal/service"
	"github.com/fieldmetrics/api/internal/signature"
	"github.com/fieldmetrics/api/pkg/response"
)

// CallbackHandler receives analysis results from the model server.
type CallbackHandler struct {
	ingestor  *service.IngestService
	signer    *signature.Signer
	validator *validator.Validate
	cfg       *config.ModelConfig
}

func NewCallbackHandler(ingestor *service.IngestService, signer *signature.Signer, v *validator.Validate, cfg *config.ModelConfig) *CallbackHandler {
	return &CallbackHandler{
		ingestor:  ingestor,
		signer:    signer,
		validator: v,
		cfg:       cfg,
	}
}

// Receive handles POST /api/v1/model/callback
func (h *CallbackHandler) Receive(c *fiber.Ctx) error {
	body := c.Body()

	if h.cfg.VerifyCallbacks {
		sig := c.Get("X-Signature")
		tsHeader := c.Get("X-Timestamp")
		if sig == "" || tsHeader == "" {
			return response.BadSignature(c, "Missing signature headers")
		}
		ts, err := strconv.ParseInt(tsHeader, 10, 64)
		if err != nil {
			return response.BadSignature(c, "Malformed timestamp")
		}
		if !signature.Fresh(ts, h.cfg.FreshnessDuration(), time.Now()) {
			return response.BadSignature(c, "Stale timestamp")
		}
		if !h.signer.VerifyRaw(body, ts, sig) {
			return response.BadSignature(c, "Signature mismatch")
		}
	}

	var result model.CallbackResult
	if err := c.BodyParser(&result); err != nil {
		return response.ValidationError(c, "Invalid callback body", nil)
	}
	if err := h.validator.Struct(&result); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	if result.Status == "failed" {
		job, err := h.ingestor.FailFromCallback(c.Context(), result.JobID, result.Error)
		if err != nil {
			return h.mapIngestError(c, err)
		}
		return response.OK(c, model.CallbackResponse{
			JobID:  job.ID,
			Status: job.Status,
		})
	}

	report, err := h.ingestor.Ingest(c.Context(), &result)
	if err != nil {
		return h.mapIngestError(c, err)
	}

	return response.OK(c, model.CallbackResponse{
		JobID:    result.JobID,
		ReportID: report.ID,
		Status:   model.JobStatusCompleted,
	})
}

func (h *CallbackHandler) mapIngestError(c *fiber.Ctx, err error) error {
	if errors.Is(err, service.ErrUnknownJob) {
		return response.UnknownJob(c, "Callback references an unknown job")
	}
	if errors.Is(err, service.ErrJobTerminal) {
		return response.JobTerminal(c, "Job already reached a terminal state")
	}
	var perr *service.PersistenceError
	if errors.As(err, &perr) {
		return response.ServiceError(c, perr.Error())
	}
	return response.ServiceError(c, err.Error())
}
