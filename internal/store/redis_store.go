package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/linguacast/api/internal/model"
)

// RedisStore keeps the pipeline's content records in the shared Redis pool
// as JSON values, the same way job records are stored.
type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func (s *RedisStore) GetDialogueSegments(ctx context.Context, episodeID, dialogueID string) ([]model.Segment, error) {
	data, err := s.redis.Get(ctx, segmentsKey(episodeID, dialogueID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrDialogueNotFound
		}
		return nil, err
	}
	var segments []model.Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, fmt.Errorf("corrupt segment record for dialogue %s: %w", dialogueID, err)
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].Position < segments[j].Position })
	return segments, nil
}

// SaveDialogueSegments seeds a dialogue's segments, used by the catalog
// sync and by tests.
func (s *RedisStore) SaveDialogueSegments(ctx context.Context, episodeID, dialogueID string, segments []model.Segment) error {
	data, err := json.Marshal(segments)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, segmentsKey(episodeID, dialogueID), data, 0).Err()
}

// SaveAudioArtifact writes the artifact into a per-dialogue hash keyed by
// speed. Writing the same speed twice overwrites, never appends.
func (s *RedisStore) SaveAudioArtifact(ctx context.Context, artifact model.AudioArtifact) error {
	data, err := json.Marshal(artifact)
	if err != nil {
		return err
	}
	return s.redis.HSet(ctx, audioArtifactsKey(artifact.DialogueID), speedField(artifact.Speed), data).Err()
}

func (s *RedisStore) GetAudioArtifacts(ctx context.Context, dialogueID string) ([]model.AudioArtifact, error) {
	entries, err := s.redis.HGetAll(ctx, audioArtifactsKey(dialogueID)).Result()
	if err != nil {
		return nil, err
	}
	artifacts := make([]model.AudioArtifact, 0, len(entries))
	for _, raw := range entries {
		var a model.AudioArtifact
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("corrupt artifact record for dialogue %s: %w", dialogueID, err)
		}
		artifacts = append(artifacts, a)
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Speed < artifacts[j].Speed })
	return artifacts, nil
}

func (s *RedisStore) SaveSegmentReading(ctx context.Context, dialogueID, segmentID, reading string) error {
	return s.redis.HSet(ctx, readingsKey(dialogueID), segmentID, reading).Err()
}

func (s *RedisStore) SaveImageArtifact(ctx context.Context, artifact model.ImageArtifact) error {
	data, err := json.Marshal(artifact)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, "image:artifact:"+artifact.EpisodeID, data, 0).Err()
}

func (s *RedisStore) GetCourse(ctx context.Context, courseID string) (*Course, error) {
	data, err := s.redis.Get(ctx, "course:"+courseID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	var course Course
	if err := json.Unmarshal(data, &course); err != nil {
		return nil, fmt.Errorf("corrupt course record %s: %w", courseID, err)
	}
	return &course, nil
}

func (s *RedisStore) SaveCourseOutline(ctx context.Context, outline model.CourseOutline) error {
	data, err := json.Marshal(outline)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, "course:outline:"+outline.CourseID, data, 0).Err()
}

func segmentsKey(episodeID, dialogueID string) string {
	return fmt.Sprintf("dialogue:segments:%s:%s", episodeID, dialogueID)
}

func audioArtifactsKey(dialogueID string) string {
	return "audio:artifacts:" + dialogueID
}

func readingsKey(dialogueID string) string {
	return "dialogue:readings:" + dialogueID
}

func speedField(speed float64) string {
	return fmt.Sprintf("%.2f", speed)
}
