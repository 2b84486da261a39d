package api

import (
	"errors"
	"log"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"cam-chunker/database"
	"cam-chunker/manifest"
	"cam-chunker/monitoring"
	"cam-chunker/service"

	"github.com/gin-gonic/gin"
)

// RunRequest overrides the configured extraction for one API-triggered run.
// Omitted fields fall back to the configuration.
type RunRequest struct {
	Camera      string `json:"camera"`
	Date        string `json:"date"`       // YYYY-MM-DD
	StartTime   string `json:"start_time"` // HH:MM
	EndTime     string `json:"end_time"`   // HH:MM
	ChunkLength *int   `json:"chunk_length"`
	Reencode    *bool  `json:"reencode"`
}

// handleHealthCheck reports database reachability, pipeline state and resource usage
func (s *Server) handleHealthCheck(c *gin.Context) {
	now := time.Now()
	cfg := s.config.GetConfig()

	healthResponse := gin.H{
		"status":      "healthy",
		"timestamp":   now.UTC().Format(time.RFC3339),
		"uptime":      time.Since(s.startTime).String(),
		"instance_id": os.Getenv("HOSTNAME"),
		"busy":        s.pipeline.Busy(),
		"go_version":  runtime.Version(),
	}

	if _, err := s.db.ListRuns(1, 0); err != nil {
		healthResponse["status"] = "unhealthy"
		healthResponse["database"] = gin.H{
			"status": "failed",
			"error":  err.Error(),
		}
		c.JSON(http.StatusServiceUnavailable, healthResponse)
		return
	}
	healthResponse["database"] = gin.H{"status": "connected"}

	if usage, err := monitoring.Snapshot(cfg.OutputFolder); err == nil {
		healthResponse["system"] = usage
		if usage.LowDisk(cfg.MinFreeSpaceMB) {
			healthResponse["status"] = "degraded"
		}
	} else {
		log.Printf("[API] Error getting resource usage: %v", err)
	}

	if s.nextRun != nil {
		if next := s.nextRun(); !next.IsZero() {
			healthResponse["next_scheduled_run"] = next.Format(time.RFC3339)
		}
	}

	healthResponse["response_time_ms"] = time.Since(now).Milliseconds()
	c.JSON(http.StatusOK, healthResponse)
}

// listRuns returns recorded runs, newest first, optionally filtered by status
func (s *Server) listRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > 100 {
		limit = 100
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}

	var runs []database.Run
	if status := c.Query("status"); status != "" {
		runs, err = s.db.GetRunsByStatus(database.RunStatus(status), limit, offset)
	} else {
		runs, err = s.db.ListRuns(limit, offset)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []database.Run{}
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":   runs,
		"limit":  limit,
		"offset": offset,
	})
}

// getRun returns one run with its output files
func (s *Server) getRun(c *gin.Context) {
	run, ok := s.lookupRun(c)
	if !ok {
		return
	}
	outputs, err := s.db.GetRunOutputs(run.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if outputs == nil {
		outputs = []database.RunOutput{}
	}
	c.JSON(http.StatusOK, gin.H{
		"run":     run,
		"outputs": outputs,
	})
}

// getRunManifest serves the manifest written by a run
func (s *Server) getRunManifest(c *gin.Context) {
	run, ok := s.lookupRun(c)
	if !ok {
		return
	}
	if run.ManifestPath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "run has no manifest"})
		return
	}
	entries, err := manifest.Read(run.ManifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "manifest no longer exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// createRun starts an extraction in the background and returns its run ID
func (s *Server) createRun(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	cfg := s.config.GetConfig()
	if req.Camera != "" {
		cfg.Camera = req.Camera
	}
	if req.Date != "" {
		cfg.Date = req.Date
	}
	if req.StartTime != "" {
		cfg.StartTime = req.StartTime
	}
	if req.EndTime != "" {
		cfg.EndTime = req.EndTime
	}
	if req.ChunkLength != nil {
		cfg.ChunkLength = *req.ChunkLength
	}
	if req.Reencode != nil {
		cfg.Reencode = *req.Reencode
	}

	job, err := cfg.Job()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID, err := s.pipeline.Start(s.baseCtx, job, service.TriggerAPI, func(res *service.RunResult, err error) {
		if err != nil {
			log.Printf("[API] Run for camera %s failed: %v", job.Camera, err)
		}
	})
	if errors.Is(err, service.ErrBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	log.Printf("[API] Started run %s for camera %s", runID, job.Camera)
	c.JSON(http.StatusAccepted, gin.H{
		"id":     runID,
		"status": database.StatusProcessing,
		"camera": job.Camera,
		"date":   job.Date.Format("2006-01-02"),
	})
}

// uploadRun publishes any outputs of a run that are not yet in R2 storage
func (s *Server) uploadRun(c *gin.Context) {
	if s.uploadService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "R2 publishing is disabled"})
		return
	}
	run, ok := s.lookupRun(c)
	if !ok {
		return
	}
	n, err := s.uploadService.UploadRun(c.Request.Context(), run.ID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "uploaded": n})
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploaded": n})
}

func (s *Server) lookupRun(c *gin.Context) (*database.Run, bool) {
	run, err := s.db.GetRun(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return nil, false
	}
	return run, true
}
