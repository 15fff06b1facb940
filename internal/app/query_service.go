package app

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"docchat/internal/metrics"
	"docchat/internal/session"
)

const defaultTopK = 3

var errConsumerGone = errors.New("event consumer stopped")

type QueryService struct {
	session *session.Session
	topK    int
	metrics *metrics.Metrics
}

func NewQueryService(sess *session.Session, topK int, m *metrics.Metrics) *QueryService {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &QueryService{session: sess, topK: topK, metrics: m}
}

// Ask validates the question and returns the event stream that answers it.
// ErrInvalidInput and ErrNotReady are returned before any event is produced.
//
// The index, model and history are captured here, so a rebuild that finishes
// while the answer streams does not affect it. The sequence is single use:
// ranging over it runs the retrieval and generation. Breaking out of the loop
// aborts the upstream stream and leaves history untouched.
func (s *QueryService) Ask(ctx context.Context, question string) (iter.Seq[Event], error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	snap := s.session.Snapshot()
	if !snap.Ready() {
		return nil, ErrNotReady
	}

	return func(yield func(Event) bool) {
		started := time.Now()
		outcome := "aborted"
		defer func() { s.metrics.RecordAsk(outcome, time.Since(started)) }()

		if !yield(Event{Type: EventStart}) {
			return
		}

		fail := func(err error) {
			outcome = "failed"
			log.Error().Err(err).Str("question", question).Msg("answer question failed")
			yield(Event{Type: EventError, Message: err.Error()})
		}

		queryVector, err := snap.Model.EmbedQuery(ctx, question)
		if err != nil {
			s.metrics.RecordEmbeddingFailure()
			fail(err)
			return
		}
		matches, err := snap.Index.Search(ctx, queryVector, s.topK)
		if err != nil {
			fail(err)
			return
		}
		if !yield(Event{Type: EventContext, Count: len(matches)}) {
			return
		}

		contexts := make([]string, len(matches))
		for i, m := range matches {
			contexts[i] = m.Content
		}
		prompt := BuildPrompt(contexts, snap.History, question)

		stopped := false
		answer, err := snap.Model.StreamComplete(ctx, prompt, func(chunk string) error {
			if !yield(Event{Type: EventChunk, Text: chunk}) {
				stopped = true
				return errConsumerGone
			}
			return nil
		})
		if stopped {
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Err(ctx.Err()).Msg("question cancelled by client")
				yield(Event{Type: EventError, Message: ctx.Err().Error()})
				return
			}
			fail(err)
			return
		}

		s.session.AppendTurn(question, answer)
		outcome = "completed"
		yield(Event{Type: EventComplete, FullText: answer})
	}, nil
}
