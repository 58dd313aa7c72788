package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hibiken/asynq"

	"github.com/linguacast/api/internal/client"
	"github.com/linguacast/api/internal/model"
	"github.com/linguacast/api/internal/queue"
	"github.com/linguacast/api/internal/store"
)

// ImageWorker generates an episode illustration and uploads it.
type ImageWorker struct {
	queue   JobRecorder
	content store.ContentStore
	images  *client.ImageClient
	storage client.StorageClient
}

func NewImageWorker(q JobRecorder, content store.ContentStore, images *client.ImageClient, storage client.StorageClient) *ImageWorker {
	return &ImageWorker{queue: q, content: content, images: images, storage: storage}
}

func (w *ImageWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	jobID, rawPayload, err := queue.DecodeEnvelope(t)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	var payload model.EpisodeImagePayload
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return fmt.Errorf("invalid image payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Prompt == "" {
		return fmt.Errorf("empty image prompt: %w", asynq.SkipRetry)
	}

	if err := w.queue.UpdateProgress(ctx, jobID, 20, "Generating illustration..."); err != nil {
		log.Warn("could not update progress", "jobId", jobID, "err", err)
	}

	img, err := w.images.Generate(ctx, payload.Prompt)
	if err != nil {
		return fmt.Errorf("image generation failed: %w", err)
	}

	if err := w.queue.UpdateProgress(ctx, jobID, 70, "Uploading..."); err != nil {
		log.Warn("could not update progress", "jobId", jobID, "err", err)
	}

	key := fmt.Sprintf("images/%s/cover.png", payload.EpisodeID)
	url, err := w.storage.Upload(ctx, key, img, "image/png")
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	artifact := model.ImageArtifact{
		EpisodeID: payload.EpisodeID,
		URL:       url,
		CreatedAt: time.Now(),
	}
	if err := w.content.SaveImageArtifact(ctx, artifact); err != nil {
		return fmt.Errorf("failed to persist artifact: %w", err)
	}

	if err := w.queue.Complete(ctx, jobID, artifact); err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}
	log.Info("image job completed", "jobId", jobID, "episodeId", payload.EpisodeID)
	return nil
}
