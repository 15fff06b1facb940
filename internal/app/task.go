package app

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// Task is the observable state of one ingestion.
type Task struct {
	ID         string     `json:"id"`
	Status     TaskStatus `json:"status"`
	Files      []string   `json:"files"`
	ChunkCount int        `json:"chunkCount"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

func (t *Task) Done() bool {
	return t.Status == TaskSucceeded || t.Status == TaskFailed
}

func (t *Task) clone() Task {
	out := *t
	out.Files = append([]string(nil), t.Files...)
	if t.StartedAt != nil {
		v := *t.StartedAt
		out.StartedAt = &v
	}
	if t.FinishedAt != nil {
		v := *t.FinishedAt
		out.FinishedAt = &v
	}
	return out
}

// taskStore keeps every task for the lifetime of the process.
type taskStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

func newTaskStore() *taskStore {
	return &taskStore{tasks: make(map[string]*Task)}
}

func (s *taskStore) create(paths []string) Task {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	t := &Task{
		ID:        uuid.NewString(),
		Status:    TaskPending,
		Files:     names,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()
	return t.clone()
}

func (s *taskStore) get(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.clone(), true
}

func (s *taskStore) delete(id string) {
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
}

func (s *taskStore) update(id string, fn func(t *Task)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		fn(t)
	}
}
