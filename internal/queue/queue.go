package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/linguacast/api/internal/config"
	"github.com/linguacast/api/internal/model"
)

// ErrJobNotFound is returned when no job record exists for the given id.
var ErrJobNotFound = errors.New("job not found")

// brokerInspector is the broker introspection surface, satisfied by
// *asynq.Inspector.
type brokerInspector interface {
	GetQueueInfo(queueName string) (*asynq.QueueInfo, error)
	RunTask(queueName, id string) error
	DeleteTask(queueName, id string) error
}

// Queue enqueues jobs onto the broker and owns their durable records.
// The record in Redis is what callers poll; it mirrors the broker's task
// state within normal polling latency, not in real time.
type Queue struct {
	redis       *redis.Client
	asynqClient *asynq.Client
	inspector   brokerInspector
	maxAttempts int
	lockFor     time.Duration
	retention   time.Duration
}

// Options tune a single enqueue. Zero values fall back to the queue-wide
// configuration.
type Options struct {
	MaxAttempts int
	UserID      string
}

// JobHandle identifies an enqueued job.
type JobHandle struct {
	ID    string `json:"jobId"`
	Queue string `json:"queue"`
}

func New(redisClient *redis.Client, asynqClient *asynq.Client, inspector *asynq.Inspector, cfg *config.QueueConfig) *Queue {
	return &Queue{
		redis:       redisClient,
		asynqClient: asynqClient,
		inspector:   inspector,
		maxAttempts: cfg.MaxAttempts,
		lockFor:     cfg.LockDuration,
		retention:   cfg.RetentionDuration,
	}
}

// Enqueue creates the durable job record and hands the task to the broker.
// The record is written first so a poll immediately after enqueue always
// finds the job in waiting state.
func (q *Queue) Enqueue(ctx context.Context, queueName, jobType string, payload interface{}, opts Options) (*JobHandle, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.maxAttempts
	}

	jobID := uuid.New().String()
	now := time.Now()
	job := &model.Job{
		ID:          jobID,
		Queue:       queueName,
		Type:        jobType,
		UserID:      opts.UserID,
		State:       model.JobStateWaiting,
		MaxAttempts: maxAttempts,
		Payload:     payloadBytes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job record: %w", err)
	}

	task := asynq.NewTask(jobType, taskEnvelope(jobID, payloadBytes))
	_, err = q.asynqClient.EnqueueContext(ctx, task,
		asynq.Queue(queueName),
		asynq.TaskID(jobID),
		asynq.MaxRetry(maxAttempts-1),
		asynq.Timeout(q.lockFor),
		asynq.Retention(q.retention),
	)
	if err != nil {
		// Roll the record back so a phantom waiting job is not left behind.
		_ = q.redis.Del(ctx, jobKey(jobID)).Err()
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &JobHandle{ID: jobID, Queue: queueName}, nil
}

// GetJob returns the durable record for the given job id.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := q.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("corrupt job record %s: %w", jobID, err)
	}
	return &job, nil
}

// GetJobCounts reports per-state job counts for a queue, taken from the
// broker itself rather than the records.
func (q *Queue) GetJobCounts(ctx context.Context, queueName string) (map[model.JobState]int, error) {
	info, err := q.inspector.GetQueueInfo(queueName)
	if err != nil {
		// The broker only materializes a queue on its first task; before
		// that, a valid queue name simply has zero jobs in every state.
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return map[model.JobState]int{
				model.JobStateWaiting:   0,
				model.JobStateActive:    0,
				model.JobStateDelayed:   0,
				model.JobStateFailed:    0,
				model.JobStateCompleted: 0,
			}, nil
		}
		return nil, fmt.Errorf("failed to inspect queue %s: %w", queueName, err)
	}
	return map[model.JobState]int{
		model.JobStateWaiting:   info.Pending,
		model.JobStateActive:    info.Active,
		model.JobStateDelayed:   info.Retry + info.Scheduled,
		model.JobStateFailed:    info.Archived,
		model.JobStateCompleted: info.Completed,
	}, nil
}

// RetryJob manually requeues a delayed or failed job, moving it back to
// waiting. Active jobs cannot be retried while a worker holds the lease.
func (q *Queue) RetryJob(ctx context.Context, queueName, jobID string) error {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State == model.JobStateActive {
		return fmt.Errorf("job %s is active and cannot be requeued", jobID)
	}
	if err := q.inspector.RunTask(queueName, jobID); err != nil {
		return fmt.Errorf("failed to requeue task: %w", err)
	}
	job.State = model.JobStateWaiting
	job.FailureReason = ""
	return q.SaveJob(ctx, job)
}

// RemoveJob deletes a job from the broker and drops its record.
func (q *Queue) RemoveJob(ctx context.Context, queueName, jobID string) error {
	if err := q.inspector.DeleteTask(queueName, jobID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return q.redis.Del(ctx, jobKey(jobID)).Err()
}

// Record transitions, called by workers while they hold the lease.

// MarkActive records the start of an attempt.
func (q *Queue) MarkActive(ctx context.Context, jobID string, attempt int) error {
	return q.mutate(ctx, jobID, func(job *model.Job) {
		job.State = model.JobStateActive
		job.AttemptsMade = attempt
		if job.StartedAt == nil {
			now := time.Now()
			job.StartedAt = &now
		}
	})
}

// UpdateProgress sets progress (0-100) and the current step label.
func (q *Queue) UpdateProgress(ctx context.Context, jobID string, progress int, step string) error {
	return q.mutate(ctx, jobID, func(job *model.Job) {
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}
		job.Progress = progress
		job.CurrentStep = step
	})
}

// Complete stores the result and moves the job to its terminal success state.
func (q *Queue) Complete(ctx context.Context, jobID string, result interface{}) error {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return q.mutate(ctx, jobID, func(job *model.Job) {
		job.State = model.JobStateCompleted
		job.Progress = 100
		job.CurrentStep = ""
		job.Result = resultBytes
		now := time.Now()
		job.CompletedAt = &now
	})
}

// MarkDelayed records a failed attempt that the broker will retry after the
// backoff delay.
func (q *Queue) MarkDelayed(ctx context.Context, jobID string, reason string) error {
	return q.mutate(ctx, jobID, func(job *model.Job) {
		job.State = model.JobStateDelayed
		job.FailureReason = reason
	})
}

// MarkFailed records terminal failure with its reason.
func (q *Queue) MarkFailed(ctx context.Context, jobID string, reason string) error {
	return q.mutate(ctx, jobID, func(job *model.Job) {
		job.State = model.JobStateFailed
		job.FailureReason = reason
		now := time.Now()
		job.CompletedAt = &now
	})
}

// SaveJob persists the record with the queue-wide retention TTL.
func (q *Queue) SaveJob(ctx context.Context, job *model.Job) error {
	job.UpdatedAt = time.Now()
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.redis.Set(ctx, jobKey(job.ID), data, q.retention).Err()
}

func (q *Queue) mutate(ctx context.Context, jobID string, fn func(*model.Job)) error {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	fn(job)
	return q.SaveJob(ctx, job)
}

func jobKey(jobID string) string {
	return "job:" + jobID
}

// taskEnvelope wraps the job id with the payload so the worker can resolve
// the durable record for the task it claimed.
func taskEnvelope(jobID string, payload json.RawMessage) []byte {
	data, _ := json.Marshal(struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}{JobID: jobID, Payload: payload})
	return data
}

// DecodeEnvelope unpacks a claimed task back into job id and payload.
func DecodeEnvelope(t *asynq.Task) (jobID string, payload json.RawMessage, err error) {
	var env struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(t.Payload(), &env); err != nil {
		return "", nil, fmt.Errorf("failed to unmarshal task envelope: %w", err)
	}
	return env.JobID, env.Payload, nil
}
