package model

import "time"

// Segment is one ordered sentence of a dialogue. Segments are synthesized
// in Position order within a speed tier.
type Segment struct {
	ID           string `json:"id"`
	DialogueID   string `json:"dialogueId"`
	Position     int    `json:"position"`
	Speaker      string `json:"speaker"`
	Text         string `json:"text"`
	VoiceID      string `json:"voiceId"`
	LanguageCode string `json:"languageCode"`
	Reading      string `json:"reading,omitempty"` // furigana/pinyin, filled by enrichment
}

// AudioArtifact is one finished narration file for a dialogue at a given
// playback speed. The storage key is deterministic per (dialogue, speed) so
// a re-run overwrites rather than appends.
type AudioArtifact struct {
	EpisodeID  string    `json:"episodeId"`
	DialogueID string    `json:"dialogueId"`
	Speed      float64   `json:"speed"`
	URL        string    `json:"url"`
	SizeBytes  int64     `json:"sizeBytes"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ImageArtifact is a generated episode illustration.
type ImageArtifact struct {
	EpisodeID string    `json:"episodeId"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

// CourseUnit is one generated unit of a course outline.
type CourseUnit struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Topics      []string `json:"topics"`
}

// CourseOutline is the result of a course generation job.
type CourseOutline struct {
	CourseID  string       `json:"courseId"`
	Language  string       `json:"language"`
	Level     string       `json:"level"`
	Units     []CourseUnit `json:"units"`
	CreatedAt time.Time    `json:"createdAt"`
}
