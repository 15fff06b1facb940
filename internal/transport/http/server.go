package http

import (
	"github.com/gin-gonic/gin"

	"docchat/internal/bootstrap"
	"docchat/internal/transport/http/handler"
	"docchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Metrics), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	documentHandler := handler.NewDocumentHandler(app.Ingest, app.Config.Upload)
	askHandler := handler.NewAskHandler(app.Query)
	historyHandler := handler.NewHistoryHandler(app.Session)

	router.GET("/health", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(app.Metrics.Handler()))

	api := router.Group("/")
	if secret := app.Config.Auth.JWTSecret; secret != "" {
		api.Use(middleware.AuthJWT(secret))
	}
	api.POST("/upload", documentHandler.Upload)
	api.POST("/ask", askHandler.Ask)
	api.GET("/ask", askHandler.Ask)
	api.POST("/clear-history", historyHandler.Clear)
	api.GET("/tasks/:id", documentHandler.Task)

	return router
}
