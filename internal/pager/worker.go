package pager

import (
	"context"
	"log/slog"
	"sync"
)

// Job is one SMS waiting for a worker.
type Job struct {
	PhoneNumber string
	Text        string
}

type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Logger:     logger,
	}
}

// Start registers the worker's channel with the pool until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, process func(Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				w.Logger.Debug("pager worker shutting down", "worker_id", w.ID)
				return
			}

			select {
			case job := <-w.JobChannel:
				process(job)
			case <-ctx.Done():
				w.Logger.Debug("pager worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}
