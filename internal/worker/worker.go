// Package worker holds the job handlers the queue server dispatches to.
// Each handler processes one attempt of one claimed task; failures feed
// the broker's retry machinery rather than being handled here.
package worker

import "context"

// JobRecorder is the slice of the queue a handler needs to report back:
// progress while running and the result on success. Failure bookkeeping
// happens in the queue server's error handler, not in handlers.
type JobRecorder interface {
	UpdateProgress(ctx context.Context, jobID string, progress int, step string) error
	Complete(ctx context.Context, jobID string, result interface{}) error
}
