package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/clipcast/api/internal/model"
	"github.com/clipcast/api/internal/service"
	"github.com/clipcast/api/internal/store"
	"github.com/clipcast/api/pkg/response"
)

const notFoundMessage = "Job not found or expired."

type JobHandler struct {
	service   *service.JobService
	validator *validator.Validate
	logger    *zap.Logger
}

func NewJobHandler(svc *service.JobService, v *validator.Validate, logger *zap.Logger) *JobHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobHandler{
		service:   svc,
		validator: v,
		logger:    logger,
	}
}

// SubmitClip handles POST /clip-jobs
// @Summary      Queue clip job
// @Description  Queue extraction of a time window of a video
// @Tags         Jobs
// @Accept       json
// @Produce      json
// @Param        request body model.ClipJobRequest true "Clip job request"
// @Success      202 {object} model.JobAcceptedResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /clip-jobs [post]
func (h *JobHandler) SubmitClip(c *fiber.Ctx) error {
	var req model.ClipJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.SubmitClip(c.UserContext(), &req)
	if err != nil {
		return h.submitError(c, err)
	}

	return response.Accepted(c, result)
}

// SubmitPlaylist handles POST /playlist-jobs
// @Summary      Queue playlist job
// @Description  Queue an audio download of every track in a playlist
// @Tags         Jobs
// @Accept       json
// @Produce      json
// @Param        request body model.PlaylistJobRequest true "Playlist job request"
// @Success      202 {object} model.JobAcceptedResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /playlist-jobs [post]
func (h *JobHandler) SubmitPlaylist(c *fiber.Ctx) error {
	var req model.PlaylistJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.SubmitPlaylist(c.UserContext(), &req)
	if err != nil {
		return h.submitError(c, err)
	}

	return response.Accepted(c, result)
}

// Status handles GET /jobs/:jobId/status
// @Summary      Get job status
// @Description  Read a job's status. A completed or failed status is removed once read.
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.StatusResponse
// @Failure      404 {object} model.NotFoundResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /jobs/{jobId}/status [get]
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := strings.TrimSpace(c.Params("jobId"))
	if jobID == "" {
		return notFound(c)
	}

	rec, err := h.service.ReadStatus(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound(c)
		}
		h.logger.Error("status read failed", zap.String("job_id", jobID), zap.Error(err))
		return response.ServiceError(c, "Failed to read job status")
	}

	return response.OK(c, rec.Response())
}

func (h *JobHandler) submitError(c *fiber.Ctx, err error) error {
	if errors.Is(err, service.ErrInvalidRequest) {
		return response.ValidationError(c, err.Error(), nil)
	}
	h.logger.Error("failed to queue job", zap.Error(err))
	return response.QueueError(c, "Failed to queue job")
}

func notFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(model.NotFoundResponse{
		Status:  model.JobStatusNotFound,
		Message: notFoundMessage,
	})
}
