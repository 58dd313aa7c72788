// Package store is the persistence boundary for generated content. The
// relational catalog (episodes, dialogues, courses) lives in another
// service; this package only needs opaque CRUD over the pieces the
// pipeline reads and writes.
package store

import (
	"context"
	"errors"

	"github.com/linguacast/api/internal/model"
)

var (
	ErrDialogueNotFound = errors.New("dialogue not found")
	ErrCourseNotFound   = errors.New("course not found")
)

// Course is the catalog metadata a course generation job starts from.
type Course struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Language   string   `json:"language"`
	Level      string   `json:"level"`
	TopicHints []string `json:"topicHints,omitempty"`
}

// ContentStore is everything the generation workers persist or load.
type ContentStore interface {
	// GetDialogueSegments returns the dialogue's sentences in narration order.
	GetDialogueSegments(ctx context.Context, episodeID, dialogueID string) ([]model.Segment, error)

	// SaveAudioArtifact records a finished narration file, keyed by
	// (dialogue, speed) so a re-run overwrites the previous artifact.
	SaveAudioArtifact(ctx context.Context, artifact model.AudioArtifact) error

	// GetAudioArtifacts returns all artifacts stored for a dialogue.
	GetAudioArtifacts(ctx context.Context, dialogueID string) ([]model.AudioArtifact, error)

	// SaveSegmentReading attaches a transliteration (furigana/pinyin) to a
	// segment.
	SaveSegmentReading(ctx context.Context, dialogueID, segmentID, reading string) error

	SaveImageArtifact(ctx context.Context, artifact model.ImageArtifact) error

	GetCourse(ctx context.Context, courseID string) (*Course, error)
	SaveCourseOutline(ctx context.Context, outline model.CourseOutline) error
}
