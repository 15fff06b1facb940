package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"docchat/internal/app"
	"docchat/internal/transport/http/response"
)

type AskHandler struct {
	query *app.QueryService
}

type AskRequest struct {
	Question string `json:"question"`
}

func NewAskHandler(query *app.QueryService) *AskHandler {
	return &AskHandler{query: query}
}

// Ask answers a question as a server-sent event stream. The question comes
// from a JSON body or the "question" query parameter.
func (h *AskHandler) Ask(c *gin.Context) {
	question := c.Query("question")
	if strings.Contains(c.ContentType(), "json") {
		var req AskRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
			return
		}
		if strings.TrimSpace(req.Question) != "" {
			question = req.Question
		}
	}

	events, err := h.query.Ask(c.Request.Context(), question)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "no question provided")
		case errors.Is(err, app.ErrNotReady):
			response.Error(c, http.StatusBadRequest, response.CodeNotReady, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ask failed")
		}
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for event := range events {
		if err := writeEvent(c.Writer, event); err != nil {
			log.Warn().Err(err).Msg("client went away while streaming answer")
			break
		}
		flusher.Flush()
	}
}

// writeEvent frames v as a single "data:" line of an event stream.
func writeEvent(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
