package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/ai"
	"docchat/internal/ai/aitest"
	"docchat/internal/app"
	"docchat/internal/bootstrap"
	"docchat/internal/config"
	"docchat/internal/index"
	"docchat/internal/pkg/jwtutil"
	"docchat/internal/pkg/pdfextract/pdftest"
	httptransport "docchat/internal/transport/http"
	"docchat/internal/transport/http/response"
)

type testServer struct {
	app    *bootstrap.App
	llm    *aitest.Model
	router *gin.Engine
}

func newTestServer(t *testing.T, configure func(cfg *config.Config)) *testServer {
	t.Helper()
	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	cfg.App.GinMode = gin.TestMode
	cfg.Index.Dir = t.TempDir()
	cfg.Upload.Dir = t.TempDir()
	if configure != nil {
		configure(cfg)
	}

	llm := &aitest.Model{Chunks: []string{"Go ", "is ", "fun."}}
	client, err := ai.NewClient(llm, &aitest.Embedder{}, ai.Options{RetryInterval: time.Millisecond})
	require.NoError(t, err)

	a, err := bootstrap.NewWithModel(cfg, client)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return &testServer{app: a, llm: llm, router: httptransport.NewRouter(a)}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) makeReady(t *testing.T) {
	t.Helper()
	idx, err := index.Build(context.Background(), &aitest.Embedder{}, []string{"alpha chunk", "beta chunk", "gamma chunk"})
	require.NoError(t, err)
	s.app.Session.SetIndex(idx)
}

func askRequest(question string) *http.Request {
	body, _ := json.Marshal(map[string]string{"question": question})
	req := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, files map[string][]byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func readEvents(t *testing.T, body []byte) []app.Event {
	t.Helper()
	var events []app.Event
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e app.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e))
		events = append(events, e)
	}
	return events
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAsk_BeforeUploadIsNotReady(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(askRequest("what is go?"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[response.ErrorBody](t, rec)
	assert.False(t, body.Success)
	assert.Equal(t, response.CodeNotReady, body.Code)
	assert.Zero(t, s.llm.Calls())
}

func TestAsk_BlankQuestion(t *testing.T) {
	s := newTestServer(t, nil)
	s.makeReady(t)

	rec := s.do(askRequest("   "))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeBadRequest, decode[response.ErrorBody](t, rec).Code)
}

func TestAsk_StreamsEvents(t *testing.T) {
	s := newTestServer(t, nil)
	s.makeReady(t)

	rec := s.do(askRequest("tell me about alpha"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	events := readEvents(t, rec.Body.Bytes())
	require.Len(t, events, 6)
	assert.Equal(t, app.EventStart, events[0].Type)
	assert.Equal(t, app.Event{Type: app.EventContext, Count: 3}, events[1])
	assert.Equal(t, app.Event{Type: app.EventChunk, Text: "Go "}, events[2])
	assert.Equal(t, app.Event{Type: app.EventChunk, Text: "is "}, events[3])
	assert.Equal(t, app.Event{Type: app.EventChunk, Text: "fun."}, events[4])
	assert.Equal(t, app.Event{Type: app.EventComplete, FullText: "Go is fun."}, events[5])

	history := s.app.Session.History()
	require.Len(t, history, 1)
	assert.Equal(t, "Go is fun.", history[0].Answer)
}

func TestAsk_QueryParameter(t *testing.T) {
	s := newTestServer(t, nil)
	s.makeReady(t)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/ask?question=beta", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	events := readEvents(t, rec.Body.Bytes())
	require.NotEmpty(t, events)
	assert.Equal(t, app.EventComplete, events[len(events)-1].Type)
	require.Len(t, s.llm.Prompts(), 1)
	assert.Contains(t, s.llm.Prompts()[0], "Question: beta")
}

func TestClearHistory_DropsPreviousConversation(t *testing.T) {
	s := newTestServer(t, nil)
	s.makeReady(t)

	s.do(askRequest("first question"))
	s.do(askRequest("second question"))

	rec := s.do(httptest.NewRequest(http.MethodPost, "/clear-history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[response.MessageBody](t, rec)
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.Message)

	s.do(askRequest("third question"))

	prompts := s.llm.Prompts()
	require.Len(t, prompts, 3)
	assert.NotContains(t, prompts[0], "Previous conversation")
	assert.Contains(t, prompts[1], "Previous conversation")
	assert.Contains(t, prompts[1], "User: first question")
	assert.NotContains(t, prompts[2], "Previous conversation")
}

func TestUpload_IngestsAndEnablesAsk(t *testing.T) {
	s := newTestServer(t, nil)

	health := decode[map[string]any](t, s.do(httptest.NewRequest(http.MethodGet, "/health", nil)))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, true, health["modelInitialized"])
	assert.Equal(t, false, health["vectorStoreInitialized"])

	rec := s.do(uploadRequest(t, map[string][]byte{"guide.pdf": pdftest.Build("Gophers love channels")}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	uploaded := decode[struct {
		Success bool     `json:"success"`
		Message string   `json:"message"`
		Files   []string `json:"files"`
		TaskID  string   `json:"taskId"`
	}](t, rec)
	assert.True(t, uploaded.Success)
	assert.Equal(t, []string{"guide.pdf"}, uploaded.Files)
	require.NotEmpty(t, uploaded.TaskID)

	var task app.Task
	require.Eventually(t, func() bool {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/tasks/"+uploaded.TaskID, nil))
		if rec.Code != http.StatusOK {
			return false
		}
		task = decode[app.Task](t, rec)
		return task.Done()
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, app.TaskSucceeded, task.Status, task.Error)
	assert.Equal(t, 1, task.ChunkCount)

	health = decode[map[string]any](t, s.do(httptest.NewRequest(http.MethodGet, "/health", nil)))
	assert.Equal(t, true, health["vectorStoreInitialized"])
	assert.Equal(t, false, health["isProcessing"])

	events := readEvents(t, s.do(askRequest("what do gophers love?")).Body.Bytes())
	require.NotEmpty(t, events)
	assert.Equal(t, app.Event{Type: app.EventContext, Count: 1}, events[1])
	assert.Contains(t, s.llm.Prompts()[0], "Gophers love channels")
}

func TestUpload_Validation(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("no files", func(t *testing.T) {
		rec := s.do(uploadRequest(t, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, response.CodeBadRequest, decode[response.ErrorBody](t, rec).Code)
	})

	t.Run("not a pdf", func(t *testing.T) {
		rec := s.do(uploadRequest(t, map[string][]byte{"notes.txt": []byte("hello")}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, response.CodeInvalidFile, decode[response.ErrorBody](t, rec).Code)
	})

	t.Run("too many files", func(t *testing.T) {
		s := newTestServer(t, func(cfg *config.Config) { cfg.Upload.MaxFiles = 1 })
		rec := s.do(uploadRequest(t, map[string][]byte{
			"a.pdf": pdftest.Build("a"),
			"b.pdf": pdftest.Build("b"),
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, response.CodeInvalidFile, decode[response.ErrorBody](t, rec).Code)
	})

	t.Run("file too large", func(t *testing.T) {
		s := newTestServer(t, func(cfg *config.Config) { cfg.Upload.MaxFileSizeMB = 1 })
		big := append(pdftest.Build("big"), bytes.Repeat([]byte(" "), 3<<19)...)
		rec := s.do(uploadRequest(t, map[string][]byte{"big.pdf": big}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, response.CodeInvalidFile, decode[response.ErrorBody](t, rec).Code)
	})

	assert.False(t, s.app.Session.IsProcessing())
}

func TestUpload_RejectsWhileProcessing(t *testing.T) {
	s := newTestServer(t, nil)
	require.NoError(t, s.app.Session.BeginProcessing())
	defer s.app.Session.EndProcessing()

	rec := s.do(uploadRequest(t, map[string][]byte{"guide.pdf": pdftest.Build("text")}))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, response.CodeBusy, decode[response.ErrorBody](t, rec).Code)
}

func TestTask_Unknown(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/tasks/does-not-exist", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, response.CodeTaskNotFound, decode[response.ErrorBody](t, rec).Code)
}

func TestMetrics_Exposed(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "docchat_http_requests_total")
}

func TestAuth_RequiresBearerTokenWhenSecretSet(t *testing.T) {
	const secret = "test-secret"
	s := newTestServer(t, func(cfg *config.Config) { cfg.Auth.JWTSecret = secret })

	assert.Equal(t, http.StatusOK, s.do(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)

	rec := s.do(httptest.NewRequest(http.MethodPost, "/clear-history", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, response.CodeUnauthorized, decode[response.ErrorBody](t, rec).Code)

	token, err := jwtutil.GenerateToken(secret, "cli", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/clear-history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, s.do(req).Code)
}
