// Package client talks to the docchat HTTP API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docchat/internal/app"
)

var (
	ErrAnswerFailed    = errors.New("answer failed")
	ErrStreamTruncated = errors.New("answer stream ended without a terminal event")
)

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type Health struct {
	Status                 string `json:"status"`
	ModelInitialized       bool   `json:"modelInitialized"`
	VectorStoreInitialized bool   `json:"vectorStoreInitialized"`
	IsProcessing           bool   `json:"isProcessing"`
	IndexChunks            int    `json:"indexChunks"`
}

type UploadResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Files   []string `json:"files"`
	TaskID  string   `json:"taskId"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      func() (string, error)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets a bearer token source, called once per request.
func WithToken(token func() (string, error)) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.doJSON(ctx, http.MethodGet, "/health", nil, "", &out)
	return out, err
}

// Upload sends the files at paths as one multipart request.
func (c *Client) Upload(ctx context.Context, paths []string) (UploadResult, error) {
	var out UploadResult
	if len(paths) == 0 {
		return out, errors.New("no files to upload")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range paths {
		if err := addFile(mw, p); err != nil {
			return out, err
		}
	}
	if err := mw.Close(); err != nil {
		return out, err
	}

	err := c.doJSON(ctx, http.MethodPost, "/upload", &body, mw.FormDataContentType(), &out)
	return out, err
}

func addFile(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s failed: %w", path, err)
	}
	defer f.Close()

	part, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read %s failed: %w", path, err)
	}
	return nil
}

// Ask streams the answer to question, calling onEvent for every event. It
// returns the full answer once the complete event arrives.
func (c *Client) Ask(ctx context.Context, question string, onEvent func(app.Event) error) (string, error) {
	payload, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return "", err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/ask", bytes.NewReader(payload), "application/json")
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ask request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		var event app.Event
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &event); err != nil {
			return "", fmt.Errorf("decode event failed: %w", err)
		}
		if onEvent != nil {
			if err := onEvent(event); err != nil {
				return "", err
			}
		}
		if !event.Terminal() {
			continue
		}
		if event.Type == app.EventError {
			return "", fmt.Errorf("%w: %s", ErrAnswerFailed, event.Message)
		}
		return event.FullText, nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read answer stream failed: %w", err)
	}
	return "", ErrStreamTruncated
}

func (c *Client) ClearHistory(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/clear-history", nil, "", nil)
}

func (c *Client) Task(ctx context.Context, id string) (app.Task, error) {
	var out app.Task
	err := c.doJSON(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, "", &out)
	return out, err
}

// WaitTask polls the task until it succeeds or fails.
func (c *Client) WaitTask(ctx context.Context, id string, interval time.Duration) (app.Task, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		task, err := c.Task(ctx, id)
		if err != nil {
			return task, err
		}
		if task.Done() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != nil {
		token, err := c.token()
		if err != nil {
			return nil, fmt.Errorf("create token failed: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response failed: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	}
	return apiErr
}
