package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	ErrQueueFull     = errors.New("ingest queue is full")
	ErrWorkerStopped = errors.New("ingest worker is not running")
)

// Job asks the worker to build a new index from the given files.
type Job struct {
	TaskID string
	Files  []string
}

type Handler func(ctx context.Context, job Job)

// IngestWorker runs ingestion jobs one at a time on a background goroutine.
type IngestWorker struct {
	handle Handler
	jobs   chan Job

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewIngestWorker(handle Handler, queueSize int) *IngestWorker {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &IngestWorker{
		handle: handle,
		jobs:   make(chan Job, queueSize),
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		for {
			select {
			case <-workerCtx.Done():
				w.drain(workerCtx)
				return
			case job := <-w.jobs:
				w.run(workerCtx, job)
			}
		}
	}()
	return nil
}

// Enqueue hands a job to the worker without blocking.
func (w *IngestWorker) Enqueue(job Job) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return ErrWorkerStopped
	}
	select {
	case w.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close cancels the running job and waits for the worker to exit. Jobs still
// queued are handed to the handler with a cancelled context so it can clean up.
func (w *IngestWorker) Close() {
	w.mu.Lock()
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

func (w *IngestWorker) drain(ctx context.Context) {
	for {
		select {
		case job := <-w.jobs:
			w.run(ctx, job)
		default:
			return
		}
	}
}

func (w *IngestWorker) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("task_id", job.TaskID).Msg("ingest job panicked")
		}
	}()
	w.handle(ctx, job)
}
