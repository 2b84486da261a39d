package database

import (
	"time"
)

// RunStatus represents the current state of an extraction run
type RunStatus string

const (
	StatusProcessing RunStatus = "processing" // Run is scanning, extracting or splitting
	StatusCompleted  RunStatus = "completed"  // Every planned chunk was written
	StatusPartial    RunStatus = "partial"    // Output written but some sources or chunks were dropped
	StatusFailed     RunStatus = "failed"     // Run aborted without a usable clip
)

// OutputKind identifies what a run output file is.
type OutputKind string

const (
	KindCombined OutputKind = "combined"
	KindChunk    OutputKind = "chunk"
	KindManifest OutputKind = "manifest"
)

// Run is the persisted record of one extraction.
type Run struct {
	ID             string     `json:"id"`
	Trigger        string     `json:"trigger"` // cli, api or cron
	Camera         string     `json:"camera"`
	Date           string     `json:"date"` // YYYY-MM-DD in the reference zone
	WindowStart    time.Time  `json:"windowStart"`
	WindowEnd      time.Time  `json:"windowEnd"`
	ChunkLength    int        `json:"chunkLength"`
	Reencode       bool       `json:"reencode"`
	Status         RunStatus  `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	FinishedAt     *time.Time `json:"finishedAt"`
	SourceCount    int        `json:"sourceCount"`    // catalog entries for the day
	DroppedSources int        `json:"droppedSources"` // overlapping sources lost to probe or trim failures
	ChunksPlanned  int        `json:"chunksPlanned"`
	ChunksWritten  int        `json:"chunksWritten"`
	Duration       float64    `json:"duration"` // seconds of content in the combined clip
	OutputFolder   string     `json:"outputFolder"`
	ManifestPath   string     `json:"manifestPath"`
	ErrorMessage   string     `json:"errorMessage"`
}

// RunOutput is a file produced by a run.
type RunOutput struct {
	RunID     string     `json:"runId"`
	Kind      OutputKind `json:"kind"`
	File      string     `json:"file"` // base name
	Path      string     `json:"path"`
	StartTime *time.Time `json:"startTime"` // nil for the manifest
	EndTime   *time.Time `json:"endTime"`
	Size      int64      `json:"size"`
	R2Key     string     `json:"r2Key"`
	R2URL     string     `json:"r2Url"`
}

// Database defines the interface for database operations
type Database interface {
	// Run operations
	CreateRun(run Run) error
	GetRun(id string) (*Run, error)
	UpdateRun(run Run) error
	ListRuns(limit, offset int) ([]Run, error)
	DeleteRun(id string) error

	// Status operations
	GetRunsByStatus(status RunStatus, limit, offset int) ([]Run, error)
	UpdateRunStatus(id string, status RunStatus, errorMsg string) error

	// Output operations
	AddRunOutput(output RunOutput) error
	GetRunOutputs(runID string) ([]RunOutput, error)
	UpdateOutputR2(runID, file, key, url string) error

	// Helper operations
	Close() error
}
