package handler

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/linguacast/api/internal/admission"
	"github.com/linguacast/api/internal/middleware"
	"github.com/linguacast/api/internal/model"
	"github.com/linguacast/api/internal/queue"
	"github.com/linguacast/api/pkg/response"
)

// JobsHandler serves the polling surface: job state, queue counts, manual
// retry/removal, and the caller's own admission status.
type JobsHandler struct {
	queue     *queue.Queue
	admission *admission.Controller
}

func NewJobsHandler(q *queue.Queue, ctrl *admission.Controller) *JobsHandler {
	return &JobsHandler{queue: q, admission: ctrl}
}

type jobStatusResponse struct {
	ID            string          `json:"id"`
	Queue         string          `json:"queue"`
	Type          string          `json:"type"`
	State         model.JobState  `json:"state"`
	Progress      int             `json:"progress"`
	CurrentStep   string          `json:"currentStep,omitempty"`
	AttemptsMade  int             `json:"attemptsMade"`
	MaxAttempts   int             `json:"maxAttempts"`
	Result        json.RawMessage `json:"result,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Status returns the durable record for one job.
func (h *JobsHandler) Status(c *fiber.Ctx) error {
	job, err := h.queue.GetJob(c.Context(), c.Params("jobId"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, "Failed to load job")
	}

	resp := jobStatusResponse{
		ID:            job.ID,
		Queue:         job.Queue,
		Type:          job.Type,
		State:         job.State,
		Progress:      job.Progress,
		CurrentStep:   job.CurrentStep,
		AttemptsMade:  job.AttemptsMade,
		MaxAttempts:   job.MaxAttempts,
		FailureReason: job.FailureReason,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}
	if len(job.Result) > 0 {
		resp.Result = job.Result
	}
	return response.OK(c, resp)
}

// Counts returns per-state job counts for a queue.
func (h *JobsHandler) Counts(c *fiber.Ctx) error {
	name := c.Params("queue")
	switch name {
	case model.QueueAudio, model.QueueImage, model.QueueCourse:
	default:
		return response.NotFound(c, "Unknown queue")
	}

	counts, err := h.queue.GetJobCounts(c.Context(), name)
	if err != nil {
		return response.ServiceError(c, "Failed to inspect queue")
	}
	return response.OK(c, fiber.Map{"queue": name, "counts": counts})
}

// Retry requeues a failed or delayed job.
func (h *JobsHandler) Retry(c *fiber.Ctx) error {
	job, err := h.queue.GetJob(c.Context(), c.Params("jobId"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, "Failed to load job")
	}
	if err := h.queue.RetryJob(c.Context(), job.Queue, job.ID); err != nil {
		return response.ServiceError(c, "Failed to requeue job")
	}
	return response.OK(c, fiber.Map{"jobId": job.ID, "state": model.JobStateWaiting})
}

// Remove deletes a job and its record.
func (h *JobsHandler) Remove(c *fiber.Ctx) error {
	job, err := h.queue.GetJob(c.Context(), c.Params("jobId"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, "Failed to load job")
	}
	if err := h.queue.RemoveJob(c.Context(), job.Queue, job.ID); err != nil {
		return response.ServiceError(c, "Failed to remove job")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AdmissionStatus reports the caller's cooldown and quota position without
// consuming anything, for UIs that want to disable the generate button.
func (h *JobsHandler) AdmissionStatus(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return response.Unauthorized(c, "Missing user identity")
	}

	cooldown, err := h.admission.CheckCooldown(c.Context(), userID)
	if err != nil {
		return response.ServiceError(c, "Failed to check cooldown")
	}
	quota, err := h.admission.CheckGenerationLimit(c.Context(), userID)
	if err != nil {
		return response.ServiceError(c, "Failed to check quota")
	}
	return response.OK(c, fiber.Map{
		"cooldown": cooldown,
		"quota":    quota,
	})
}
