package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Orchestrator fans submitted jobs out to a bounded worker pool. Documents
// run concurrently, one per worker; chunks within a document stay
// sequential inside ProcessDocument.
type Orchestrator struct {
	jobs      *JobStore
	queue     chan *Job
	processor *Processor
	log       *slog.Logger

	workers int
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

func NewOrchestrator(processor *Processor, log *slog.Logger, workers, maxQueueSize int, jobTTL time.Duration) *Orchestrator {
	if workers <= 0 {
		workers = 2
	}
	if maxQueueSize <= 0 {
		maxQueueSize = 100
	}
	if jobTTL <= 0 {
		jobTTL = time.Hour
	}
	return &Orchestrator{
		jobs:      NewJobStore(jobTTL),
		queue:     make(chan *Job, maxQueueSize),
		processor: processor,
		log:       log,
		workers:   workers,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.workers {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					o.run(workerCtx, job)
				}
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

func (o *Orchestrator) run(ctx context.Context, job *Job) {
	res, err := o.processor.ProcessDocument(ctx, job.DocumentPath, job)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			o.log.Warn("job canceled", "job_id", job.ID)
		} else {
			o.log.Error("job failed", "job_id", job.ID, "error", err)
		}
		job.Fail(err.Error())
		return
	}
	job.SetResult(res)
}

// Stop gracefully shuts down the pool. Submissions after Stop are
// rejected rather than queued.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// Submit queues a job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		job.Fail("orchestrator stopped")
		return fmt.Errorf("orchestrator stopped")
	}
	select {
	case o.queue <- job:
		return nil
	default:
		job.Fail("job queue is full")
		return fmt.Errorf("job queue is full (%d)", cap(o.queue))
	}
}

// GetJob returns a job by ID, nil if unknown or evicted.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns the number of queued, unstarted jobs.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
