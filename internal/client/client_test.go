package client_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/ai"
	"docchat/internal/ai/aitest"
	"docchat/internal/app"
	"docchat/internal/bootstrap"
	"docchat/internal/client"
	"docchat/internal/config"
	"docchat/internal/pkg/jwtutil"
	"docchat/internal/pkg/pdfextract/pdftest"
	httptransport "docchat/internal/transport/http"
	"docchat/internal/transport/http/response"
)

func startServer(t *testing.T, secret string) *httptest.Server {
	t.Helper()
	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	cfg.App.GinMode = gin.TestMode
	cfg.Index.Dir = t.TempDir()
	cfg.Upload.Dir = t.TempDir()
	cfg.Auth.JWTSecret = secret

	model, err := ai.NewClient(&aitest.Model{Chunks: []string{"Channels ", "connect ", "goroutines."}}, &aitest.Embedder{}, ai.Options{})
	require.NoError(t, err)
	a, err := bootstrap.NewWithModel(cfg, model)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srv := httptest.NewServer(httptransport.NewRouter(a))
	t.Cleanup(srv.Close)
	return srv
}

func writePDF(t *testing.T, name, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, pdftest.Build(text), 0o644))
	return path
}

func TestClient_FullSession(t *testing.T) {
	srv := startServer(t, "")
	c := client.New(srv.URL + "/")
	ctx := context.Background()

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.False(t, health.VectorStoreInitialized)

	_, err = c.Ask(ctx, "anything?", nil)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, response.CodeNotReady, apiErr.Code)

	uploaded, err := c.Upload(ctx, []string{writePDF(t, "notes.pdf", "Channels connect goroutines")})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.pdf"}, uploaded.Files)

	task, err := c.WaitTask(ctx, uploaded.TaskID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, app.TaskSucceeded, task.Status, task.Error)

	var events []app.Event
	answer, err := c.Ask(ctx, "what connects goroutines?", func(e app.Event) error {
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Channels connect goroutines.", answer)
	require.Len(t, events, 6)
	assert.Equal(t, app.EventStart, events[0].Type)
	assert.Equal(t, app.EventContext, events[1].Type)
	assert.Equal(t, app.EventComplete, events[5].Type)

	require.NoError(t, c.ClearHistory(ctx))

	_, err = c.Task(ctx, "missing")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestClient_SendsBearerToken(t *testing.T) {
	const secret = "cli-secret"
	srv := startServer(t, secret)
	ctx := context.Background()

	err := client.New(srv.URL).ClearHistory(ctx)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	authed := client.New(srv.URL, client.WithToken(func() (string, error) {
		return jwtutil.GenerateToken(secret, "cli", time.Minute)
	}))
	assert.NoError(t, authed.ClearHistory(ctx))
}

func TestClient_UploadMissingFile(t *testing.T) {
	c := client.New("http://127.0.0.1:0")
	_, err := c.Upload(context.Background(), []string{filepath.Join(t.TempDir(), "nope.pdf")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func sseServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_AskErrorEvent(t *testing.T) {
	srv := sseServer(t,
		`data: {"type":"start"}`,
		`data: {"type":"error","message":"generation service error: quota"}`,
	)

	_, err := client.New(srv.URL).Ask(context.Background(), "q", nil)

	require.ErrorIs(t, err, client.ErrAnswerFailed)
	assert.Contains(t, err.Error(), "quota")
}

func TestClient_AskTruncatedStream(t *testing.T) {
	srv := sseServer(t, `data: {"type":"start"}`, `data: {"type":"chunk","text":"par"}`)

	_, err := client.New(srv.URL).Ask(context.Background(), "q", nil)

	assert.ErrorIs(t, err, client.ErrStreamTruncated)
}

func TestClient_AskCallbackStops(t *testing.T) {
	srv := sseServer(t, `data: {"type":"start"}`, `data: {"type":"complete","fullText":"x"}`)
	stop := errors.New("stop")

	_, err := client.New(srv.URL).Ask(context.Background(), "q", func(app.Event) error { return stop })

	assert.ErrorIs(t, err, stop)
}

func TestClient_AskStopsReadingAtComplete(t *testing.T) {
	srv := sseServer(t,
		`data: {"type":"start"}`,
		`data: {"type":"complete","fullText":"done"}`,
		`data: {"type":"chunk","text":"late"}`,
	)
	var seen []app.EventType

	answer, err := client.New(srv.URL).Ask(context.Background(), "q", func(e app.Event) error {
		seen = append(seen, e.Type)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", answer)
	assert.Equal(t, []app.EventType{app.EventStart, app.EventComplete}, seen)
}
