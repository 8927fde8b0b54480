// internal/jobqueue/queue.go
package jobqueue

import (
	"context"
	"sync"
	"time"

	"compat-optimizer/internal/batch"
	commonerrors "compat-optimizer/internal/common/errors"
	"compat-optimizer/internal/common/logger"
	"compat-optimizer/internal/common/metrics"
	"compat-optimizer/internal/loader"
	"compat-optimizer/internal/models"

	"github.com/google/uuid"
)

// defaultJobDuration seeds the estimate heuristic before any job completes.
const defaultJobDuration = 30 * time.Second

// BatchRunner executes the actual pairwise computation for a job.
type BatchRunner interface {
	Process(ctx context.Context, participantIDs []string, maxPairs int, opts loader.Options) (*batch.Result, error)
}

// Config sizes the worker pool.
type Config struct {
	Workers  int
	Capacity int
	Timeout  time.Duration
}

type jobRecord struct {
	job            models.Job
	participantIDs []string
	maxPairs       int
	opts           loader.Options
	result         *batch.Result
}

// Queue is an in-process bounded worker pool for large scoring runs that
// would blow the synchronous latency budget. Jobs survive only as long as
// the process; callers needing durability should not be here.
type Queue struct {
	runner  BatchRunner
	logger  logger.Logger
	workers int
	timeout time.Duration

	tasks chan string

	mu          sync.Mutex
	jobs        map[string]*jobRecord
	queued      int
	avgDuration time.Duration
	completed   int64
	failed      int64

	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(runner BatchRunner, cfg Config, log logger.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Queue{
		runner:      runner,
		logger:      log.WithFields(map[string]interface{}{"component": "job-queue"}),
		workers:     cfg.Workers,
		timeout:     cfg.Timeout,
		tasks:       make(chan string, cfg.Capacity),
		jobs:        make(map[string]*jobRecord),
		avgDuration: defaultJobDuration,
	}
}

// Start launches the worker pool.
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.logger.Info("job queue started", map[string]interface{}{
		"workers":  q.workers,
		"capacity": cap(q.tasks),
	})
}

// Stop drains the pool: no new work is accepted and running jobs finish.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.tasks)
	})
	q.wg.Wait()
}

// Enqueue registers a bulk computation and returns its handle immediately.
// A full queue is a hard error so callers can fall back to the synchronous
// batch path instead of blocking.
func (q *Queue) Enqueue(ctx context.Context, participantIDs []string, maxPairs int, opts loader.Options) (*models.Job, error) {
	if len(participantIDs) < 2 {
		return nil, commonerrors.NewInvalidRequestError("background job requires at least 2 participants")
	}

	q.mu.Lock()
	position := q.queued + 1
	estStart := time.Now().Add(time.Duration(q.queued) * q.avgDuration / time.Duration(q.workers))
	estDuration := q.avgDuration
	q.mu.Unlock()

	record := &jobRecord{
		job: models.Job{
			JobID:             uuid.New().String(),
			QueuePosition:     position,
			EstimatedStart:    estStart,
			EstimatedDuration: estDuration,
			Status:            models.JobQueued,
			EnqueuedAt:        time.Now().UTC(),
		},
		participantIDs: participantIDs,
		maxPairs:       maxPairs,
		opts:           opts,
	}

	q.mu.Lock()
	q.jobs[record.job.JobID] = record
	q.queued++
	q.mu.Unlock()

	select {
	case q.tasks <- record.job.JobID:
	default:
		q.mu.Lock()
		delete(q.jobs, record.job.JobID)
		q.queued--
		q.mu.Unlock()
		return nil, commonerrors.NewQueueFullError(cap(q.tasks))
	}

	metrics.BackgroundJobsActive.Inc()
	q.logger.Info("job enqueued", map[string]interface{}{
		"jobId":         record.job.JobID,
		"participants":  len(participantIDs),
		"queuePosition": position,
	})

	jobCopy := record.job
	return &jobCopy, nil
}

// Status returns a snapshot of the job handle.
func (q *Queue) Status(jobID string) (*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	record, ok := q.jobs[jobID]
	if !ok {
		return nil, commonerrors.NewJobNotFoundError(jobID)
	}
	jobCopy := record.job
	return &jobCopy, nil
}

// Result returns the batch output of a completed job.
func (q *Queue) Result(jobID string) (*batch.Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	record, ok := q.jobs[jobID]
	if !ok {
		return nil, commonerrors.NewJobNotFoundError(jobID)
	}
	if record.job.Status != models.JobCompleted {
		return nil, commonerrors.NewInvalidRequestError("job has not completed: " + string(record.job.Status))
	}
	return record.result, nil
}

// Cancel is best effort: only jobs still waiting in the queue can be
// cancelled. A worker that already picked the job up runs it to completion.
func (q *Queue) Cancel(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	record, ok := q.jobs[jobID]
	if !ok {
		return commonerrors.NewJobNotFoundError(jobID)
	}
	if record.job.Status != models.JobQueued {
		return commonerrors.NewInvalidRequestError("only queued jobs can be cancelled: " + string(record.job.Status))
	}

	record.job.Status = models.JobCancelled
	q.queued--
	metrics.BackgroundJobsActive.Dec()
	return nil
}

// Stats reports pool counters for health scoring.
func (q *Queue) Stats() (completed, failed int64, queued int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.completed, q.failed, q.queued
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()

	for jobID := range q.tasks {
		q.run(id, jobID)
	}
}

func (q *Queue) run(workerID int, jobID string) {
	q.mu.Lock()
	record, ok := q.jobs[jobID]
	if !ok || record.job.Status != models.JobQueued {
		q.mu.Unlock()
		return
	}
	record.job.Status = models.JobRunning
	q.queued--
	q.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	defer metrics.BackgroundJobsActive.Dec()

	started := time.Now()
	result, err := q.runner.Process(ctx, record.participantIDs, record.maxPairs, record.opts)
	elapsed := time.Since(started)

	q.mu.Lock()
	defer q.mu.Unlock()

	if err != nil {
		record.job.Status = models.JobFailed
		record.job.Error = err.Error()
		q.failed++
		q.logger.Error("job failed", map[string]interface{}{
			"jobId":  jobID,
			"worker": workerID,
			"error":  err,
		})
		return
	}

	record.job.Status = models.JobCompleted
	record.result = result
	q.completed++
	q.avgDuration = ((q.avgDuration * time.Duration(q.completed-1)) + elapsed) / time.Duration(q.completed)

	q.logger.Info("job completed", map[string]interface{}{
		"jobId":          jobID,
		"worker":         workerID,
		"processedPairs": result.ProcessedPairs,
		"failedPairs":    result.FailedPairs,
		"durationMs":     elapsed.Milliseconds(),
	})
}
