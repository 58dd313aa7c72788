package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hibiken/asynq"

	"github.com/linguacast/api/internal/client"
	"github.com/linguacast/api/internal/config"
	"github.com/linguacast/api/internal/model"
	"github.com/linguacast/api/internal/queue"
	"github.com/linguacast/api/internal/store"
	"github.com/linguacast/api/internal/tts"
	"github.com/linguacast/api/internal/watchdog"
)

// AudioWorker produces multi-speed narration for a dialogue. One job
// synthesizes every segment at every configured speed tier; each finished
// tier is uploaded under a deterministic key, so re-running an attempt
// overwrites rather than duplicates.
type AudioWorker struct {
	queue    JobRecorder
	content  store.ContentStore
	provider tts.Provider
	storage  client.StorageClient
	translit *client.TranslitClient
	speeds   []float64
	wdCfg    config.WatchdogConfig
}

// AudioJobResult is the completion payload stored on the job record.
type AudioJobResult struct {
	EpisodeID  string                `json:"episodeId"`
	DialogueID string                `json:"dialogueId"`
	Artifacts  []model.AudioArtifact `json:"artifacts"`
}

func NewAudioWorker(
	q JobRecorder,
	content store.ContentStore,
	provider tts.Provider,
	storage client.StorageClient,
	translit *client.TranslitClient,
	speeds []float64,
	wdCfg config.WatchdogConfig,
) *AudioWorker {
	return &AudioWorker{
		queue:    q,
		content:  content,
		provider: provider,
		storage:  storage,
		translit: translit,
		speeds:   speeds,
		wdCfg:    wdCfg,
	}
}

// ProcessTask handles one claimed audio job attempt.
func (w *AudioWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	jobID, rawPayload, err := queue.DecodeEnvelope(t)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	var payload model.DialogueAudioPayload
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return fmt.Errorf("invalid audio payload: %v: %w", err, asynq.SkipRetry)
	}

	log.Info("starting audio job", "jobId", jobID, "episodeId", payload.EpisodeID, "dialogueId", payload.DialogueID, "provider", w.provider.Name())

	segments, err := w.content.GetDialogueSegments(ctx, payload.EpisodeID, payload.DialogueID)
	if err != nil {
		if errors.Is(err, store.ErrDialogueNotFound) {
			return fmt.Errorf("dialogue %s not found: %w", payload.DialogueID, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to load segments: %w", err)
	}
	if len(segments) == 0 {
		return fmt.Errorf("dialogue %s has no segments: %w", payload.DialogueID, asynq.SkipRetry)
	}

	w.enrichReadings(ctx, payload.DialogueID, segments)

	artifacts := make([]model.AudioArtifact, 0, len(w.speeds))
	for i, speed := range w.speeds {
		artifact, err := w.synthesizeTier(ctx, jobID, payload, segments, speed)
		if err != nil {
			// The whole tier fails; tiers already uploaded this attempt
			// stay in place and will be overwritten by the retry.
			return fmt.Errorf("speed tier %.2f: %w", speed, err)
		}
		artifacts = append(artifacts, *artifact)

		progress := (i + 1) * 100 / len(w.speeds)
		step := fmt.Sprintf("Synthesized tier %.2fx (%d/%d)", speed, i+1, len(w.speeds))
		if err := w.queue.UpdateProgress(ctx, jobID, progress, step); err != nil {
			log.Warn("could not update progress", "jobId", jobID, "err", err)
		}
	}

	result := AudioJobResult{
		EpisodeID:  payload.EpisodeID,
		DialogueID: payload.DialogueID,
		Artifacts:  artifacts,
	}
	if err := w.queue.Complete(ctx, jobID, result); err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}

	log.Info("audio job completed", "jobId", jobID, "tiers", len(artifacts))
	return nil
}

// synthesizeTier renders one speed tier: every segment in order, watched
// for stalls, concatenated into a single MP3 and uploaded. Nothing is
// persisted unless the whole tier succeeds.
func (w *AudioWorker) synthesizeTier(ctx context.Context, jobID string, payload model.DialogueAudioPayload, segments []model.Segment, speed float64) (*model.AudioArtifact, error) {
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wd := watchdog.New(w.wdCfg.Timeout, w.wdCfg.WarningThreshold, watchdog.Callbacks{
		Cancel: cancel,
		OnWarning: func(since time.Duration) {
			log.Warn("synthesis slow", "jobId", jobID, "speed", speed, "sinceProgress", since)
		},
		OnTimeout: func(since time.Duration) {
			log.Error("synthesis stalled, canceling", "jobId", jobID, "speed", speed, "sinceProgress", since)
		},
	})
	wd.Start()
	defer wd.Stop()

	var buf bytes.Buffer
	for _, seg := range segments {
		audio, err := w.provider.SynthesizeSpeech(opCtx, tts.SpeechRequest{
			Text:         seg.Text,
			VoiceID:      seg.VoiceID,
			LanguageCode: seg.LanguageCode,
			Speed:        speed,
		})
		if err != nil {
			if wd.TimedOut() {
				return nil, fmt.Errorf("no synthesis progress for %s, attempt canceled: %v", w.wdCfg.Timeout, err)
			}
			return nil, fmt.Errorf("segment %d (%s): %w", seg.Position, seg.ID, err)
		}
		wd.RecordProgress()
		buf.Write(audio)
	}

	key := artifactKey(payload.EpisodeID, payload.DialogueID, speed)
	url, err := w.storage.Upload(ctx, key, buf.Bytes(), "audio/mpeg")
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}

	artifact := model.AudioArtifact{
		EpisodeID:  payload.EpisodeID,
		DialogueID: payload.DialogueID,
		Speed:      speed,
		URL:        url,
		SizeBytes:  int64(buf.Len()),
		CreatedAt:  time.Now(),
	}
	if err := w.content.SaveAudioArtifact(ctx, artifact); err != nil {
		return nil, fmt.Errorf("failed to persist artifact: %w", err)
	}
	return &artifact, nil
}

// enrichReadings attaches furigana/pinyin to segments that lack one.
// Best effort: a failed lookup is logged, never fails the job.
func (w *AudioWorker) enrichReadings(ctx context.Context, dialogueID string, segments []model.Segment) {
	if w.translit == nil {
		return
	}
	for i := range segments {
		seg := &segments[i]
		if seg.Reading != "" || !w.translit.Supports(seg.LanguageCode) {
			continue
		}
		reading, err := w.translit.Reading(ctx, seg.Text, seg.LanguageCode)
		if err != nil {
			log.Warn("transliteration failed", "dialogueId", dialogueID, "segmentId", seg.ID, "err", err)
			continue
		}
		seg.Reading = reading
		if err := w.content.SaveSegmentReading(ctx, dialogueID, seg.ID, reading); err != nil {
			log.Warn("could not save reading", "dialogueId", dialogueID, "segmentId", seg.ID, "err", err)
		}
	}
}

// artifactKey is deterministic per (episode, dialogue, speed) so uploads
// overwrite instead of accumulating.
func artifactKey(episodeID, dialogueID string, speed float64) string {
	return fmt.Sprintf("audio/%s/%s/%d.mp3", episodeID, dialogueID, int(speed*100))
}
