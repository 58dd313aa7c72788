package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/linguacast/api/internal/model"
)

// MemoryStore is an in-process ContentStore used by tests and local
// development without Redis.
type MemoryStore struct {
	mu       sync.RWMutex
	segments map[string][]model.Segment
	audio    map[string]map[string]model.AudioArtifact // dialogueID -> speed -> artifact
	readings map[string]map[string]string
	images   map[string]model.ImageArtifact
	courses  map[string]Course
	outlines map[string]model.CourseOutline
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		segments: make(map[string][]model.Segment),
		audio:    make(map[string]map[string]model.AudioArtifact),
		readings: make(map[string]map[string]string),
		images:   make(map[string]model.ImageArtifact),
		courses:  make(map[string]Course),
		outlines: make(map[string]model.CourseOutline),
	}
}

func (s *MemoryStore) SeedDialogue(episodeID, dialogueID string, segments []model.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments[episodeID+"/"+dialogueID] = segments
}

func (s *MemoryStore) SeedCourse(course Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[course.ID] = course
}

func (s *MemoryStore) GetDialogueSegments(ctx context.Context, episodeID, dialogueID string) ([]model.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	segs, ok := s.segments[episodeID+"/"+dialogueID]
	if !ok {
		return nil, ErrDialogueNotFound
	}
	out := make([]model.Segment, len(segs))
	copy(out, segs)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *MemoryStore) SaveAudioArtifact(ctx context.Context, artifact model.AudioArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audio[artifact.DialogueID] == nil {
		s.audio[artifact.DialogueID] = make(map[string]model.AudioArtifact)
	}
	s.audio[artifact.DialogueID][fmt.Sprintf("%.2f", artifact.Speed)] = artifact
	return nil
}

func (s *MemoryStore) GetAudioArtifacts(ctx context.Context, dialogueID string) ([]model.AudioArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	artifacts := make([]model.AudioArtifact, 0, len(s.audio[dialogueID]))
	for _, a := range s.audio[dialogueID] {
		artifacts = append(artifacts, a)
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Speed < artifacts[j].Speed })
	return artifacts, nil
}

func (s *MemoryStore) SaveSegmentReading(ctx context.Context, dialogueID, segmentID, reading string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readings[dialogueID] == nil {
		s.readings[dialogueID] = make(map[string]string)
	}
	s.readings[dialogueID][segmentID] = reading
	return nil
}

func (s *MemoryStore) SaveImageArtifact(ctx context.Context, artifact model.ImageArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[artifact.EpisodeID] = artifact
	return nil
}

func (s *MemoryStore) GetCourse(ctx context.Context, courseID string) (*Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	course, ok := s.courses[courseID]
	if !ok {
		return nil, ErrCourseNotFound
	}
	return &course, nil
}

func (s *MemoryStore) SaveCourseOutline(ctx context.Context, outline model.CourseOutline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outlines[outline.CourseID] = outline
	return nil
}

// Outline returns a stored outline, for test assertions.
func (s *MemoryStore) Outline(courseID string) (model.CourseOutline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.outlines[courseID]
	return o, ok
}
