package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hibiken/asynq"

	"github.com/linguacast/api/internal/client"
	"github.com/linguacast/api/internal/model"
	"github.com/linguacast/api/internal/queue"
	"github.com/linguacast/api/internal/store"
)

const courseSystemPrompt = `You are a curriculum designer for a language-learning app.
Respond with JSON only, no prose: {"units":[{"title":"...","description":"...","topics":["..."]}]}.
Produce 6 to 10 units ordered from easiest to hardest.`

// CourseWorker generates a course outline through the LLM and persists it.
type CourseWorker struct {
	queue   JobRecorder
	content store.ContentStore
	llm     *client.LLMClient
}

func NewCourseWorker(q JobRecorder, content store.ContentStore, llm *client.LLMClient) *CourseWorker {
	return &CourseWorker{queue: q, content: content, llm: llm}
}

func (w *CourseWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	jobID, rawPayload, err := queue.DecodeEnvelope(t)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	var payload model.CourseOutlinePayload
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return fmt.Errorf("invalid course payload: %v: %w", err, asynq.SkipRetry)
	}

	course, err := w.content.GetCourse(ctx, payload.CourseID)
	if err != nil {
		if errors.Is(err, store.ErrCourseNotFound) {
			return fmt.Errorf("course %s not found: %w", payload.CourseID, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to load course: %w", err)
	}

	if err := w.queue.UpdateProgress(ctx, jobID, 10, "Generating outline..."); err != nil {
		log.Warn("could not update progress", "jobId", jobID, "err", err)
	}

	userPrompt := fmt.Sprintf("Language: %s\nLevel: %s\nCourse title: %s\nTopic hints: %s",
		course.Language, course.Level, course.Title, strings.Join(course.TopicHints, ", "))

	raw, err := w.llm.ChatCompletion(ctx, courseSystemPrompt, userPrompt)
	if err != nil {
		return fmt.Errorf("outline generation failed: %w", err)
	}

	if err := w.queue.UpdateProgress(ctx, jobID, 70, "Parsing outline..."); err != nil {
		log.Warn("could not update progress", "jobId", jobID, "err", err)
	}

	units, err := parseOutlineUnits(raw)
	if err != nil {
		// A malformed completion is worth one more model call.
		return fmt.Errorf("unusable outline: %w", err)
	}

	outline := model.CourseOutline{
		CourseID:  course.ID,
		Language:  course.Language,
		Level:     course.Level,
		Units:     units,
		CreatedAt: time.Now(),
	}
	if err := w.content.SaveCourseOutline(ctx, outline); err != nil {
		return fmt.Errorf("failed to persist outline: %w", err)
	}

	if err := w.queue.Complete(ctx, jobID, outline); err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}
	log.Info("course job completed", "jobId", jobID, "courseId", course.ID, "units", len(units))
	return nil
}

// parseOutlineUnits tolerates the model wrapping its JSON in a code fence.
func parseOutlineUnits(raw string) ([]model.CourseUnit, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var parsed struct {
		Units []model.CourseUnit `json:"units"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse outline JSON: %w", err)
	}
	if len(parsed.Units) == 0 {
		return nil, fmt.Errorf("outline contains no units")
	}
	return parsed.Units, nil
}
