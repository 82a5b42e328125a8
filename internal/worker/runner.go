package worker

import (
	"context"
	"errors"
	"log"
	"sync"
)

var ErrQueueFull = errors.New("job queue is full")

// Task is one pipeline run request.
type Task struct {
	JobID           string
	IncludePhonemes bool
}

// Runner owns the in-process job queue and the worker pool draining it.
// Each start/reprocess call enqueues a Task and returns immediately;
// jobs run concurrently and independently, stages within a job
// sequentially.
type Runner struct {
	pipeline *Pipeline
	tasks    chan Task
	workers  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(pipeline *Pipeline, workers, queueSize int) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		pipeline: pipeline,
		tasks:    make(chan Task, queueSize),
		workers:  workers,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker pool.
func (r *Runner) Start() {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go func(workerID int) {
			defer r.wg.Done()
			for {
				select {
				case <-r.ctx.Done():
					log.Printf("Worker %d shutting down", workerID)
					return
				case task := <-r.tasks:
					log.Printf("Worker %d: processing job %s", workerID, task.JobID)
					r.pipeline.Run(r.ctx, task.JobID, task.IncludePhonemes)
				}
			}
		}(i)
	}
	log.Printf("Runner started, workers: %d", r.workers)
}

// Enqueue hands a task to the pool without blocking the caller.
func (r *Runner) Enqueue(task Task) error {
	select {
	case r.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop cancels in-flight pipelines and waits for the workers to exit.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
	log.Println("Runner stopped")
}
