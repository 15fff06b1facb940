package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docchat/internal/bootstrap"
)

type HealthHandler struct {
	app *bootstrap.App
}

type HealthResponse struct {
	Status                 string `json:"status"`
	ModelInitialized       bool   `json:"modelInitialized"`
	VectorStoreInitialized bool   `json:"vectorStoreInitialized"`
	IsProcessing           bool   `json:"isProcessing"`
	IndexChunks            int    `json:"indexChunks"`
	App                    string `json:"app"`
	Env                    string `json:"env"`
	UptimeSec              int    `json:"uptime_sec"`
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

func (h *HealthHandler) Check(c *gin.Context) {
	sess := h.app.Session
	c.JSON(http.StatusOK, HealthResponse{
		Status:                 "ok",
		ModelInitialized:       sess.ModelInitialized(),
		VectorStoreInitialized: sess.IndexInitialized(),
		IsProcessing:           sess.IsProcessing(),
		IndexChunks:            sess.CurrentIndex().Len(),
		App:                    h.app.Config.App.Name,
		Env:                    h.app.Config.App.Env,
		UptimeSec:              int(time.Since(h.app.StartedAt).Seconds()),
	})
}
