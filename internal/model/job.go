package model

import (
	"encoding/json"
	"time"
)

// JobState is the lifecycle state of a background job. A job is in exactly
// one state at a time; the worker only ever holds a time-bounded lease on
// an active job, never ownership.
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateDelayed   JobState = "delayed"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// Queue names. The set is fixed; workers bind to exactly one of these.
const (
	QueueAudio  = "audio"
	QueueImage  = "image"
	QueueCourse = "course"
)

// Job types, namespaced asynq-style as "queue:operation".
const (
	JobTypeDialogueAudio = "audio:dialogue"
	JobTypeEpisodeImage  = "image:episode"
	JobTypeCourseOutline = "course:outline"
)

// Job is the durable record an operator or UI polls. It lives in Redis next
// to the broker's own task state and must reflect that state within normal
// polling latency.
type Job struct {
	ID            string          `json:"id"`
	Queue         string          `json:"queue"`
	Type          string          `json:"type"`
	UserID        string          `json:"userId,omitempty"`
	State         JobState        `json:"state"`
	Progress      int             `json:"progress"`
	CurrentStep   string          `json:"currentStep,omitempty"`
	AttemptsMade  int             `json:"attemptsMade"`
	MaxAttempts   int             `json:"maxAttempts"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	StartedAt     *time.Time      `json:"startedAt,omitempty"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
}

// DialogueAudioPayload is the payload for the multi-speed narration job.
type DialogueAudioPayload struct {
	EpisodeID  string `json:"episodeId"`
	DialogueID string `json:"dialogueId"`
}

// EpisodeImagePayload is the payload for an episode illustration job.
type EpisodeImagePayload struct {
	EpisodeID string `json:"episodeId"`
	Prompt    string `json:"prompt"`
}

// CourseOutlinePayload is the payload for a course outline generation job.
type CourseOutlinePayload struct {
	CourseID string `json:"courseId"`
}

// AudioJobStatus is the persisted record shape exposed for audio jobs.
type AudioJobStatus struct {
	ID         string    `json:"id"`
	EpisodeID  string    `json:"episodeId"`
	DialogueID string    `json:"dialogueId"`
	State      JobState  `json:"state"`
	Progress   int       `json:"progress"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
