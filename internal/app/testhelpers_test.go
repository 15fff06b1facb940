package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"docchat/internal/ai"
	"docchat/internal/ai/aitest"
	"docchat/internal/index"
	"docchat/internal/session"
)

func newModel(t *testing.T, llm *aitest.Model, emb *aitest.Embedder) *ai.Client {
	t.Helper()
	c, err := ai.NewClient(llm, emb, ai.Options{RetryInterval: time.Millisecond})
	require.NoError(t, err)
	return c
}

func newIndex(t *testing.T, chunks ...string) *index.Index {
	t.Helper()
	idx, err := index.Build(context.Background(), &aitest.Embedder{}, chunks)
	require.NoError(t, err)
	return idx
}

// documentText is 2500 characters, which chunks into three windows.
func documentText() string {
	return strings.Repeat("Gophers write concurrent Go programs. ", 66)[:2500]
}

func collect(seq func(func(Event) bool)) []Event {
	var events []Event
	for e := range seq {
		events = append(events, e)
	}
	return events
}

func types(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func readySession(t *testing.T, llm *aitest.Model) *session.Session {
	t.Helper()
	return session.New(newModel(t, llm, &aitest.Embedder{}), newIndex(t, "alpha chunk", "beta chunk", "gamma chunk"))
}
