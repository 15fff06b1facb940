// Package session holds the single user session shared by the HTTP handlers:
// the active index, the model handle, conversation history and the ingestion flag.
package session

import (
	"errors"
	"sync"

	"docchat/internal/ai"
	"docchat/internal/index"
)

var ErrBusy = errors.New("an ingestion is already in progress")

type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Model is what a query needs from the LLM client.
type Model interface {
	ai.Embedder
	ai.Generator
}

// Snapshot is a consistent view of the session taken at one instant.
type Snapshot struct {
	Index   *index.Index
	Model   Model
	History []Turn
}

func (s Snapshot) Ready() bool {
	return s.Index != nil && s.Model != nil
}

type Session struct {
	mu         sync.RWMutex
	model      Model
	index      *index.Index
	history    []Turn
	processing bool
}

// New creates a session. model may be nil when no API key is configured.
func New(model Model, idx *index.Index) *Session {
	return &Session{model: model, index: idx}
}

func (s *Session) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index != nil && s.model != nil
}

func (s *Session) ModelInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model != nil
}

func (s *Session) IndexInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index != nil
}

func (s *Session) IsProcessing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processing
}

// BeginProcessing claims the ingestion slot.
func (s *Session) BeginProcessing() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing {
		return ErrBusy
	}
	s.processing = true
	return nil
}

func (s *Session) EndProcessing() {
	s.mu.Lock()
	s.processing = false
	s.mu.Unlock()
}

func (s *Session) Model() Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

func (s *Session) CurrentIndex() *index.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// SetIndex swaps in a whole new index. Queries already holding a snapshot keep the old one.
func (s *Session) SetIndex(idx *index.Index) {
	s.mu.Lock()
	s.index = idx
	s.mu.Unlock()
}

func (s *Session) AppendTurn(question, answer string) {
	s.mu.Lock()
	s.history = append(s.history, Turn{Question: question, Answer: answer})
	s.mu.Unlock()
}

func (s *Session) ClearHistory() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}

func (s *Session) History() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Turn(nil), s.history...)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Index:   s.index,
		Model:   s.model,
		History: append([]Turn(nil), s.history...),
	}
}
