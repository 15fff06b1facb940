package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"docchat/internal/ai"
	"docchat/internal/chunker"
	"docchat/internal/index"
	"docchat/internal/metrics"
	"docchat/internal/pkg/pdfextract"
	"docchat/internal/session"
	"docchat/internal/worker"
)

// Extractor returns the concatenated text of the given files.
type Extractor func(paths []string) (string, error)

type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	// IndexPath is where a successful build is persisted. Empty disables persistence.
	IndexPath    string
	IndexOptions index.Options
	// Extract defaults to pdfextract.ExtractFiles.
	Extract Extractor
}

// IngestService turns uploaded files into a new active index on a background
// worker. Only one ingestion runs at a time.
type IngestService struct {
	session *session.Session
	cfg     IngestConfig
	metrics *metrics.Metrics
	tasks   *taskStore
	worker  *worker.IngestWorker
}

func NewIngestService(sess *session.Session, cfg IngestConfig, m *metrics.Metrics) (*IngestService, error) {
	if cfg.Extract == nil {
		cfg.Extract = pdfextract.ExtractFiles
	}

	s := &IngestService{
		session: sess,
		cfg:     cfg,
		metrics: m,
		tasks:   newTaskStore(),
	}
	s.worker = worker.NewIngestWorker(s.handle, 1)
	if err := s.worker.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("start ingest worker failed: %w", err)
	}
	return s, nil
}

// Submit starts an ingestion of files, which must be paths to temporary copies
// the service may delete. On error the caller still owns the files.
func (s *IngestService) Submit(files []string) (Task, error) {
	if len(files) == 0 {
		return Task{}, fmt.Errorf("%w: no files provided", ErrInvalidInput)
	}
	if err := s.session.BeginProcessing(); err != nil {
		if errors.Is(err, session.ErrBusy) {
			return Task{}, ErrIngestionInProgress
		}
		return Task{}, err
	}

	task := s.tasks.create(files)
	job := worker.Job{TaskID: task.ID, Files: append([]string(nil), files...)}
	if err := s.worker.Enqueue(job); err != nil {
		s.tasks.delete(task.ID)
		s.session.EndProcessing()
		return Task{}, fmt.Errorf("enqueue ingestion failed: %w", err)
	}

	log.Info().Str("task_id", task.ID).Strs("files", task.Files).Msg("ingestion queued")
	return task, nil
}

func (s *IngestService) Task(id string) (Task, error) {
	t, ok := s.tasks.get(id)
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return t, nil
}

// Close cancels a running ingestion and waits for it to finish cleaning up.
func (s *IngestService) Close() {
	s.worker.Close()
}

func (s *IngestService) handle(ctx context.Context, job worker.Job) {
	cleaned := false
	cleanup := func() {
		if cleaned {
			return
		}
		cleaned = true
		removeFiles(job.Files)
		s.session.EndProcessing()
	}
	defer cleanup()

	started := time.Now()
	s.tasks.update(job.TaskID, func(t *Task) {
		t.Status = TaskRunning
		t.StartedAt = &started
	})

	chunks, err := s.ingestRecovered(ctx, job.Files)
	// Release the ingestion slot before the task turns terminal.
	cleanup()

	finished := time.Now()
	s.tasks.update(job.TaskID, func(t *Task) {
		t.FinishedAt = &finished
		if err != nil {
			t.Status = TaskFailed
			t.Error = err.Error()
			return
		}
		t.Status = TaskSucceeded
		t.ChunkCount = chunks
	})

	logger := log.With().Str("task_id", job.TaskID).Dur("elapsed", finished.Sub(started)).Logger()
	if err != nil {
		s.metrics.RecordIngestion(string(TaskFailed), finished.Sub(started))
		logger.Error().Err(err).Msg("ingestion failed, previous index kept")
		return
	}
	s.metrics.RecordIngestion(string(TaskSucceeded), finished.Sub(started))
	logger.Info().Int("chunks", chunks).Msg("ingestion finished")
}

// ingestRecovered turns a panic in the pipeline into a task failure.
func (s *IngestService) ingestRecovered(ctx context.Context, files []string) (chunks int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ingestion panicked: %v", r)
		}
	}()
	return s.ingest(ctx, files)
}

func (s *IngestService) ingest(ctx context.Context, files []string) (int, error) {
	model := s.session.Model()
	if model == nil {
		return 0, ai.ErrModelNotInitialized
	}

	text, err := s.cfg.Extract(files)
	if err != nil {
		return 0, fmt.Errorf("extract text failed: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return 0, ErrNoExtractableText
	}

	chunks := chunker.Collect(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	idx, err := index.Build(ctx, model, chunks)
	if err != nil {
		if errors.Is(err, ai.ErrEmbeddingService) {
			s.metrics.RecordEmbeddingFailure()
		}
		return 0, fmt.Errorf("build index failed: %w", err)
	}

	if s.cfg.IndexPath != "" {
		if err := idx.Save(s.cfg.IndexPath, s.cfg.IndexOptions); err != nil {
			return 0, fmt.Errorf("persist index failed: %w", err)
		}
	}

	s.session.SetIndex(idx)
	s.metrics.SetIndexChunks(idx.Len())
	return idx.Len(), nil
}

// removeFiles deletes the temporary uploads and then their directories if
// they are left empty. Failures are logged and otherwise ignored.
func removeFiles(paths []string) {
	dirs := make(map[string]struct{})
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", p).Msg("remove uploaded file failed")
		}
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for dir := range dirs {
		_ = os.Remove(dir)
	}
}
