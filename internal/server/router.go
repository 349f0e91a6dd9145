package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"remoteprompt-server/internal/certs"
	"remoteprompt-server/internal/discovery"
	"remoteprompt-server/internal/handler"
	"remoteprompt-server/internal/jobs"
	"remoteprompt-server/internal/metrics"
	"remoteprompt-server/internal/middleware"
	"remoteprompt-server/internal/runner"
	"remoteprompt-server/internal/store"
	"remoteprompt-server/internal/stream"
)

type Deps struct {
	Store        *store.Store
	Registry     *runner.Registry
	Orchestrator *jobs.Orchestrator
	Broadcaster  *stream.Broadcaster
	Metrics      *metrics.Collector
	APIKey       string
	AllowedRoots []string
	CertParams   certs.Params
	Discovery    *discovery.Publisher
	Version      string
	CertFallback bool
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	healthHandler := &handler.HealthHandler{Version: deps.Version, CertFallback: deps.CertFallback}
	r.GET("/health", healthHandler.Check)
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	protected := r.Group("/v1")
	protected.Use(middleware.RequireAPIKey(deps.APIKey))

	jobHandler := &handler.JobHandler{Store: deps.Store, Orchestrator: deps.Orchestrator, AllowedRoots: deps.AllowedRoots}
	protected.POST("/jobs", jobHandler.Submit)
	protected.GET("/jobs", jobHandler.List)
	protected.GET("/jobs/:id", jobHandler.Get)

	eventHandler := &handler.EventHandler{Broadcaster: deps.Broadcaster, Metrics: deps.Metrics}
	protected.GET("/jobs/:id/events", eventHandler.StreamJob)
	protected.GET("/events", eventHandler.StreamGlobal)
	protected.POST("/events", eventHandler.Publish)

	wsHandler := &handler.WebSocketHandler{Broadcaster: deps.Broadcaster, Metrics: deps.Metrics}
	protected.GET("/ws", wsHandler.Serve)

	sessionHandler := &handler.SessionHandler{Registry: deps.Registry}
	protected.GET("/sessions/:runner", sessionHandler.Get)

	roomHandler := &handler.RoomHandler{Store: deps.Store, AllowedRoots: deps.AllowedRoots}
	protected.POST("/rooms", roomHandler.Create)
	protected.GET("/rooms", roomHandler.List)
	protected.GET("/rooms/:id", roomHandler.Get)
	protected.PATCH("/rooms/:id", roomHandler.Update)
	protected.DELETE("/rooms/:id", roomHandler.Delete)

	threadHandler := &handler.ThreadHandler{Store: deps.Store}
	protected.POST("/rooms/:id/threads", threadHandler.Create)
	protected.GET("/rooms/:id/threads", threadHandler.List)
	protected.PATCH("/threads/:id", threadHandler.Rename)
	protected.DELETE("/threads/:id", threadHandler.Delete)
	protected.POST("/threads/:id/read", threadHandler.MarkRead)

	fileHandler := &handler.FileHandler{Store: deps.Store, AllowedRoots: deps.AllowedRoots}
	protected.GET("/rooms/:id/files", fileHandler.List)
	protected.GET("/rooms/:id/files/content", fileHandler.GetContent)
	protected.PUT("/rooms/:id/files/content", fileHandler.PutContent)
	protected.POST("/rooms/:id/files/image", fileHandler.UploadImage)

	registerLimiter := middleware.NewRateLimiter(10, time.Minute)
	deviceHandler := &handler.DeviceHandler{Store: deps.Store}
	protected.POST("/devices", middleware.RateLimit(registerLimiter), deviceHandler.Register)

	certHandler := &handler.CertHandler{Params: deps.CertParams, Broadcaster: deps.Broadcaster, Discovery: deps.Discovery}
	protected.GET("/cert", certHandler.Info)
	protected.POST("/cert/rotate", certHandler.Rotate)

	return r
}
