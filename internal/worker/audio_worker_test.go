package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/linguacast/api/internal/client"
	"github.com/linguacast/api/internal/config"
	"github.com/linguacast/api/internal/model"
	"github.com/linguacast/api/internal/store"
	"github.com/linguacast/api/internal/tts"
)

// fakeRecorder captures the job record updates a handler makes.
type fakeRecorder struct {
	mu        sync.Mutex
	progress  []int
	steps     []string
	completed []interface{}
}

func (r *fakeRecorder) UpdateProgress(ctx context.Context, jobID string, progress int, step string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, progress)
	r.steps = append(r.steps, step)
	return nil
}

func (r *fakeRecorder) Complete(ctx context.Context, jobID string, result interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, result)
	return nil
}

// fakeProvider returns a recognizable byte blob per request and can be told
// to fail a specific segment text for its first N calls.
type fakeProvider struct {
	mu        sync.Mutex
	calls     int
	failText  string
	failTimes int
}

func (p *fakeProvider) SynthesizeSpeech(ctx context.Context, req tts.SpeechRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if req.Text == p.failText && p.failTimes > 0 {
		p.failTimes--
		return nil, errors.New("synthesis backend unavailable")
	}
	return []byte(fmt.Sprintf("%s@%.2f|", req.Text, req.Speed)), nil
}

func (p *fakeProvider) Name() string { return "fake-tts" }

func seedSegments(t *testing.T) *store.MemoryStore {
	t.Helper()
	content := store.NewMemoryStore()
	content.SeedDialogue("ep-1", "dlg-1", []model.Segment{
		{ID: "s1", DialogueID: "dlg-1", Position: 1, Speaker: "A", Text: "hello", VoiceID: "en-US-JennyNeural", LanguageCode: "en-US"},
		{ID: "s2", DialogueID: "dlg-1", Position: 2, Speaker: "B", Text: "world", VoiceID: "en-US-GuyNeural", LanguageCode: "en-US"},
		{ID: "s3", DialogueID: "dlg-1", Position: 3, Speaker: "A", Text: "again", VoiceID: "en-US-JennyNeural", LanguageCode: "en-US"},
	})
	return content
}

func audioTask(t *testing.T, jobID string, payload model.DialogueAudioPayload) *asynq.Task {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	env, err := json.Marshal(struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}{JobID: jobID, Payload: raw})
	if err != nil {
		t.Fatal(err)
	}
	return asynq.NewTask(model.JobTypeDialogueAudio, env)
}

func testWatchdogConfig() config.WatchdogConfig {
	return config.WatchdogConfig{Timeout: 5 * time.Second, WarningThreshold: 2 * time.Second}
}

func TestAudioWorkerProducesAllSpeedTiers(t *testing.T) {
	content := seedSegments(t)
	storage := client.NewMemoryStorage()
	rec := &fakeRecorder{}
	w := NewAudioWorker(rec, content, &fakeProvider{}, storage, nil, []float64{0.7, 0.85, 1.0}, testWatchdogConfig())

	task := audioTask(t, "job-1", model.DialogueAudioPayload{EpisodeID: "ep-1", DialogueID: "dlg-1"})
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask returned error: %v", err)
	}

	keys := storage.Keys()
	sort.Strings(keys)
	want := []string{"audio/ep-1/dlg-1/100.mp3", "audio/ep-1/dlg-1/70.mp3", "audio/ep-1/dlg-1/85.mp3"}
	if len(keys) != len(want) {
		t.Fatalf("uploaded keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("uploaded keys = %v, want %v", keys, want)
		}
	}

	// Segments are concatenated in position order within each tier.
	obj, ok := storage.Object("audio/ep-1/dlg-1/70.mp3")
	if !ok {
		t.Fatal("0.7x tier missing from storage")
	}
	if got := string(obj); got != "hello@0.70|world@0.70|again@0.70|" {
		t.Fatalf("0.7x tier content = %q", got)
	}

	if len(rec.completed) != 1 {
		t.Fatalf("Complete called %d times, want 1", len(rec.completed))
	}
	result, ok := rec.completed[0].(AudioJobResult)
	if !ok {
		t.Fatalf("completion payload has type %T", rec.completed[0])
	}
	if len(result.Artifacts) != 3 {
		t.Fatalf("result holds %d artifacts, want 3", len(result.Artifacts))
	}

	if len(rec.progress) != 3 || rec.progress[2] != 100 {
		t.Fatalf("progress updates = %v, want three ending at 100", rec.progress)
	}
}

func TestAudioWorkerRetryOverwritesTiers(t *testing.T) {
	content := seedSegments(t)
	storage := client.NewMemoryStorage()
	rec := &fakeRecorder{}
	// Segment "world" fails once, so the first attempt dies in the first
	// tier and the second attempt redoes everything.
	provider := &fakeProvider{failText: "world", failTimes: 1}
	w := NewAudioWorker(rec, content, provider, storage, nil, []float64{0.7, 0.85, 1.0}, testWatchdogConfig())

	task := audioTask(t, "job-2", model.DialogueAudioPayload{EpisodeID: "ep-1", DialogueID: "dlg-1"})

	err := w.ProcessTask(context.Background(), task)
	if err == nil {
		t.Fatal("first attempt should fail")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("provider failure must stay retryable, got %v", err)
	}
	if len(storage.Keys()) != 0 {
		t.Fatalf("failed tier left partial uploads: %v", storage.Keys())
	}

	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("second attempt returned error: %v", err)
	}
	if got := len(storage.Keys()); got != 3 {
		t.Fatalf("storage holds %d objects after retry, want 3 (deterministic keys overwrite)", got)
	}
	if len(rec.completed) != 1 {
		t.Fatalf("Complete called %d times, want 1", len(rec.completed))
	}

	artifacts, err := content.GetAudioArtifacts(context.Background(), "dlg-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(artifacts) != 3 {
		t.Fatalf("store holds %d artifacts, want 3", len(artifacts))
	}
	for i, speed := range []float64{0.7, 0.85, 1.0} {
		if artifacts[i].Speed != speed {
			t.Fatalf("artifact %d speed = %v, want %v", i, artifacts[i].Speed, speed)
		}
	}
}

func TestAudioWorkerMissingDialogueSkipsRetry(t *testing.T) {
	content := store.NewMemoryStore()
	rec := &fakeRecorder{}
	w := NewAudioWorker(rec, content, &fakeProvider{}, client.NewMemoryStorage(), nil, []float64{1.0}, testWatchdogConfig())

	task := audioTask(t, "job-3", model.DialogueAudioPayload{EpisodeID: "ep-x", DialogueID: "dlg-x"})
	err := w.ProcessTask(context.Background(), task)
	if err == nil || !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("missing dialogue should fail terminally, got %v", err)
	}
	if len(rec.completed) != 0 {
		t.Fatal("Complete must not run for a missing dialogue")
	}
}

func TestAudioWorkerCorruptPayloadSkipsRetry(t *testing.T) {
	rec := &fakeRecorder{}
	w := NewAudioWorker(rec, store.NewMemoryStore(), &fakeProvider{}, client.NewMemoryStorage(), nil, []float64{1.0}, testWatchdogConfig())

	env, _ := json.Marshal(struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}{JobID: "job-4", Payload: json.RawMessage(`["not","an","object"]`)})
	task := asynq.NewTask(model.JobTypeDialogueAudio, env)

	err := w.ProcessTask(context.Background(), task)
	if err == nil || !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("corrupt payload should fail terminally, got %v", err)
	}
}
