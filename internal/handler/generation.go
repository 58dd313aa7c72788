package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/linguacast/api/internal/middleware"
	"github.com/linguacast/api/internal/model"
	"github.com/linguacast/api/internal/queue"
	"github.com/linguacast/api/pkg/response"
)

// GenerationHandler accepts generation requests and turns them into jobs.
// Admission has already happened in middleware by the time these run.
type GenerationHandler struct {
	queue    *queue.Queue
	validate *validator.Validate
}

func NewGenerationHandler(q *queue.Queue, validate *validator.Validate) *GenerationHandler {
	return &GenerationHandler{queue: q, validate: validate}
}

type audioGenerateRequest struct {
	EpisodeID  string `json:"episodeId" validate:"required"`
	DialogueID string `json:"dialogueId" validate:"required"`
}

type imageGenerateRequest struct {
	EpisodeID string `json:"episodeId" validate:"required"`
	Prompt    string `json:"prompt" validate:"required,min=3,max=2000"`
}

type courseGenerateRequest struct {
	CourseID string `json:"courseId" validate:"required"`
}

// Audio enqueues a multi-speed narration job for a dialogue.
func (h *GenerationHandler) Audio(c *fiber.Ctx) error {
	var req audioGenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validate.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", err.Error())
	}

	handle, err := h.queue.Enqueue(c.Context(), model.QueueAudio, model.JobTypeDialogueAudio,
		model.DialogueAudioPayload{EpisodeID: req.EpisodeID, DialogueID: req.DialogueID},
		queue.Options{UserID: middleware.GetUserID(c)},
	)
	if err != nil {
		return response.ServiceError(c, "Failed to enqueue job")
	}
	return response.Accepted(c, handle)
}

// Image enqueues an episode illustration job.
func (h *GenerationHandler) Image(c *fiber.Ctx) error {
	var req imageGenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validate.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", err.Error())
	}

	handle, err := h.queue.Enqueue(c.Context(), model.QueueImage, model.JobTypeEpisodeImage,
		model.EpisodeImagePayload{EpisodeID: req.EpisodeID, Prompt: req.Prompt},
		queue.Options{UserID: middleware.GetUserID(c)},
	)
	if err != nil {
		return response.ServiceError(c, "Failed to enqueue job")
	}
	return response.Accepted(c, handle)
}

// Course enqueues a course outline generation job.
func (h *GenerationHandler) Course(c *fiber.Ctx) error {
	var req courseGenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validate.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", err.Error())
	}

	handle, err := h.queue.Enqueue(c.Context(), model.QueueCourse, model.JobTypeCourseOutline,
		model.CourseOutlinePayload{CourseID: req.CourseID},
		queue.Options{UserID: middleware.GetUserID(c)},
	)
	if err != nil {
		return response.ServiceError(c, "Failed to enqueue job")
	}
	return response.Accepted(c, handle)
}
