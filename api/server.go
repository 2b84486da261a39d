package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"cam-chunker/config"
	"cam-chunker/database"
	"cam-chunker/service"

	"github.com/gin-gonic/gin"
)

// Pipeline starts extraction runs in the background.
type Pipeline interface {
	Start(ctx context.Context, job config.Job, trigger string, done func(*service.RunResult, error)) (string, error)
	Busy() bool
}

type Server struct {
	config        *config.ConfigManager
	db            database.Database
	pipeline      Pipeline
	uploadService *service.UploadService
	nextRun       func() time.Time

	baseCtx   context.Context
	startTime time.Time
	http      *http.Server
}

// NewServer creates the API server. uploadService is nil when R2 publishing is
// disabled. Runs started through the API are cancelled with ctx.
func NewServer(ctx context.Context, cfg *config.ConfigManager, db database.Database, pipeline Pipeline, uploadService *service.UploadService) *Server {
	return &Server{
		config:        cfg,
		db:            db,
		pipeline:      pipeline,
		uploadService: uploadService,
		baseCtx:       ctx,
		startTime:     time.Now(),
	}
}

// SetNextRun reports the scheduler's next extraction in the health check.
func (s *Server) SetNextRun(next func() time.Time) {
	s.nextRun = next
}

// Start serves the API until Shutdown is called.
func (s *Server) Start() error {
	r := gin.Default()
	s.setupCORS(r)
	s.setupRoutes(r)

	portAddr := ":" + s.config.GetConfig().ServerPort
	s.http = &http.Server{Addr: portAddr, Handler: r}
	log.Printf("[API] Starting API server on %s", portAddr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) setupCORS(r *gin.Engine) {
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})
}

func (s *Server) setupRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/health", s.handleHealthCheck)
		api.GET("/runs", s.listRuns)
		api.POST("/runs", s.createRun)
		api.GET("/runs/:id", s.getRun)
		api.GET("/runs/:id/manifest", s.getRunManifest)
		api.POST("/runs/:id/upload", s.uploadRun)
	}
}
