package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/outreach-agent/internal/httpapi/handlers"
	"github.com/suPer8Hu/outreach-agent/internal/httpapi/middleware"
	"github.com/suPer8Hu/outreach-agent/internal/metrics"
)

func NewRouter(h *handlers.Handler, jwtSecret string, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.Recovery(log))
	r.Use(metrics.Middleware())

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)
	r.GET("/metrics", metrics.Handler())

	// operator API (JWT required when a secret is configured)
	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(jwtSecret))

	authGroup.GET("/leads/manual", h.ListManualLeads)
	authGroup.GET("/leads/:lead_id/conversation", h.GetConversation)
	authGroup.POST("/leads/:lead_id/outreach", h.RecordOutreach)
	authGroup.POST("/leads/:lead_id/replies", h.HandleReply)
	authGroup.POST("/leads/:lead_id/replies/async", h.HandleReplyAsync)
	authGroup.POST("/leads/:lead_id/manual", h.MarkManual)

	authGroup.GET("/jobs/:job_id", h.GetJob)
	return r
}
