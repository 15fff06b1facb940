package handler

import (
	"github.com/gin-gonic/gin"

	"docchat/internal/session"
	"docchat/internal/transport/http/response"
)

type HistoryHandler struct {
	session *session.Session
}

func NewHistoryHandler(sess *session.Session) *HistoryHandler {
	return &HistoryHandler{session: sess}
}

func (h *HistoryHandler) Clear(c *gin.Context) {
	h.session.ClearHistory()
	response.Message(c, "Conversation history cleared")
}
