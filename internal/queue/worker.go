package queue

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"

	"github.com/linguacast/api/internal/config"
	"github.com/linguacast/api/internal/model"
)

// Handler processes one claimed task. Returning a non-nil error fails the
// attempt; wrap with asynq.SkipRetry to fail terminally regardless of the
// attempts remaining.
type Handler func(ctx context.Context, t *asynq.Task) error

// jobRecords is the slice of the queue the server needs for attempt
// bookkeeping, satisfied by *Queue.
type jobRecords interface {
	MarkActive(ctx context.Context, jobID string, attempt int) error
	MarkDelayed(ctx context.Context, jobID string, reason string) error
	MarkFailed(ctx context.Context, jobID string, reason string) error
}

// Server is the worker process loop. It binds handlers to queue names and
// pulls jobs under the configured concurrency; coordination with other
// worker processes happens entirely through the broker's lease semantics.
type Server struct {
	srv     *asynq.Server
	mux     *asynq.ServeMux
	records jobRecords
	limiter *rate.Limiter
}

// NewServer builds the worker server. lockDuration doubles as the per-task
// timeout: the handler's context is canceled at the same point the broker
// would consider the lease abandoned, so a slow job fails instead of being
// processed twice.
func NewServer(redisOpt asynq.RedisClientOpt, q *Queue, cfg *config.QueueConfig) *Server {
	var limiter *rate.Limiter
	if cfg.RatePerInterval > 0 && cfg.RateInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.RateInterval/time.Duration(cfg.RatePerInterval)), cfg.RatePerInterval)
	}

	s := &Server{records: q, limiter: limiter}

	s.srv = asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			model.QueueAudio:  5,
			model.QueueImage:  3,
			model.QueueCourse: 2,
		},
		RetryDelayFunc:           exponentialBackoff(cfg.BackoffBaseDelay),
		ErrorHandler:             asynq.ErrorHandlerFunc(s.handleError),
		DelayedTaskCheckInterval: cfg.DrainDelay,
		Logger:                   asynqLogger{},
	})
	s.mux = asynq.NewServeMux()
	s.mux.Use(s.trackAttempt)
	if limiter != nil {
		s.mux.Use(s.rateShape)
	}
	return s
}

// Handle binds a handler to a job type.
func (s *Server) Handle(jobType string, h Handler) {
	s.mux.HandleFunc(jobType, h)
}

// Run blocks until shutdown. A broker that is unreachable at startup is a
// process-level failure left to the orchestrator.
func (s *Server) Run() error {
	return s.srv.Run(s.mux)
}

// Shutdown waits for in-flight jobs to finish or time out.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
}

// exponentialBackoff returns base * 2^(n-1) for the nth attempt, matching
// the delayed->waiting retry cycle.
func exponentialBackoff(base time.Duration) asynq.RetryDelayFunc {
	return func(n int, err error, t *asynq.Task) time.Duration {
		if n < 1 {
			n = 1
		}
		return base * time.Duration(math.Pow(2, float64(n-1)))
	}
}

// trackAttempt mirrors the claim into the durable record before the handler
// runs: state active, attemptsMade bumped.
func (s *Server) trackAttempt(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		jobID, ok := asynq.GetTaskID(ctx)
		if !ok {
			return next.ProcessTask(ctx, t)
		}
		retried, _ := asynq.GetRetryCount(ctx)
		if err := s.records.MarkActive(ctx, jobID, retried+1); err != nil && !errors.Is(err, ErrJobNotFound) {
			log.Warn("could not mark job active", "jobId", jobID, "err", err)
		}
		return next.ProcessTask(ctx, t)
	})
}

// rateShape caps job starts independently of concurrency to protect the
// synthesis providers from bursts. Waiting consumes a concurrency slot,
// which is intended: a saturated limiter should slow the whole worker down.
func (s *Server) rateShape(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		return next.ProcessTask(ctx, t)
	})
}

// handleError runs after every failed attempt. If retries remain the job is
// delayed and will re-enter waiting after the backoff; otherwise it is
// terminally failed with the handler's error as the reason.
func (s *Server) handleError(ctx context.Context, t *asynq.Task, err error) {
	jobID, ok := asynq.GetTaskID(ctx)
	if !ok {
		return
	}
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	if recordFailedAttempt(context.Background(), s.records, jobID, retried, maxRetry, err) {
		log.Error("job failed terminally", "jobId", jobID, "type", t.Type(), "attempts", retried+1, "err", err)
		return
	}
	log.Warn("job attempt failed, will retry", "jobId", jobID, "type", t.Type(), "attempt", retried+1, "err", err)
}

// recordFailedAttempt applies the retry policy to the durable record:
// terminal when retries are exhausted or the handler wrapped
// asynq.SkipRetry, otherwise delayed until the broker's backoff expires.
// Reports whether the failure was terminal.
func recordFailedAttempt(ctx context.Context, records jobRecords, jobID string, retried, maxRetry int, err error) bool {
	if retried >= maxRetry || errors.Is(err, asynq.SkipRetry) {
		if uerr := records.MarkFailed(ctx, jobID, err.Error()); uerr != nil {
			log.Error("could not mark job failed", "jobId", jobID, "err", uerr)
		}
		return true
	}
	if uerr := records.MarkDelayed(ctx, jobID, err.Error()); uerr != nil {
		log.Error("could not mark job delayed", "jobId", jobID, "err", uerr)
	}
	return false
}

// asynqLogger routes the broker's own log lines through the process logger.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) { logBroker(log.Debug, args) }
func (asynqLogger) Info(args ...interface{})  { logBroker(log.Info, args) }
func (asynqLogger) Warn(args ...interface{})  { logBroker(log.Warn, args) }
func (asynqLogger) Error(args ...interface{}) { logBroker(log.Error, args) }
func (asynqLogger) Fatal(args ...interface{}) { logBroker(log.Fatal, args) }

func logBroker(fn func(interface{}, ...interface{}), args []interface{}) {
	if len(args) == 0 {
		return
	}
	fn(args[0], args[1:]...)
}
