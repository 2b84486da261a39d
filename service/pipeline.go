package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"cam-chunker/config"
	"cam-chunker/database"
	"cam-chunker/manifest"
	"cam-chunker/metrics"
	"cam-chunker/recording"
	"cam-chunker/storage"
)

// ErrBusy is returned by TryRun while another run holds the pipeline.
var ErrBusy = errors.New("another extraction is already running")

// Run triggers
const (
	TriggerCLI  = "cli"
	TriggerAPI  = "api"
	TriggerCron = "cron"
)

// Media is the set of ffmpeg capabilities a run needs.
type Media interface {
	recording.DurationProbe
	recording.MediaTrimmer
	recording.MediaConcatenator
}

// Uploader publishes run outputs to remote storage.
type Uploader interface {
	ObjectKey(camera, date, runID, file string) string
	ObjectExists(ctx context.Context, key string) (bool, error)
	PublicURL(key string) string
	UploadFile(ctx context.Context, localPath, remotePath string) (string, error)
}

// PipelineConfig wires a Pipeline. Only Media is required.
type PipelineConfig struct {
	Media          Media
	DB             database.Database
	Uploader       Uploader
	Metrics        *metrics.MetricsCollector
	MinFreeSpaceMB uint64
	Logger         *log.Logger
}

// Pipeline runs catalog scan, extraction, chunking, manifest writing and
// optional upload for one camera and window at a time.
type Pipeline struct {
	media          Media
	db             database.Database
	uploader       Uploader
	metrics        *metrics.MetricsCollector
	minFreeSpaceMB uint64
	logger         *log.Logger
	gate           *semaphore.Weighted
	newID          func() string
}

// RunResult describes a finished run, successful or not.
type RunResult struct {
	RunID         string
	Job           config.Job
	Status        database.RunStatus
	Sources       int
	Extraction    *recording.Extraction
	ChunksPlanned int
	Chunks        []recording.Chunk
	OutputFolder  string // per-run folder under the configured output folder
	CombinedPath  string
	ManifestPath  string
	Manifest      []manifest.Entry
	Uploaded      map[string]string // file name -> public URL
	UploadErrors  int
	Timings       map[string]float64
	Err           error
}

// RunFolder is where a run writes its combined clip, chunks and manifest:
// <output>/<camera>/<YYYY-MM-DD>/<run id>.
func RunFolder(outputFolder, camera, date, runID string) string {
	return filepath.Join(outputFolder, camera, date, runID)
}

// NewPipeline creates a pipeline from cfg.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		media:          cfg.Media,
		db:             cfg.DB,
		uploader:       cfg.Uploader,
		metrics:        cfg.Metrics,
		minFreeSpaceMB: cfg.MinFreeSpaceMB,
		logger:         logger,
		gate:           semaphore.NewWeighted(1),
		newID:          func() string { return uuid.New().String() },
	}
}

// Run waits for the pipeline to be free and then processes job.
func (p *Pipeline) Run(ctx context.Context, job config.Job, trigger string) (*RunResult, error) {
	if err := p.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.gate.Release(1)
	return p.run(ctx, p.newID(), job, trigger)
}

// TryRun processes job if no other run is in progress, otherwise it returns ErrBusy.
func (p *Pipeline) TryRun(ctx context.Context, job config.Job, trigger string) (*RunResult, error) {
	if !p.gate.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer p.gate.Release(1)
	return p.run(ctx, p.newID(), job, trigger)
}

// Start validates job and processes it in the background, returning the run
// ID immediately. It returns ErrBusy if another run is in progress. done, if
// set, is called with the outcome.
func (p *Pipeline) Start(ctx context.Context, job config.Job, trigger string, done func(*RunResult, error)) (string, error) {
	if err := validateJob(job); err != nil {
		return "", err
	}
	if !p.gate.TryAcquire(1) {
		return "", ErrBusy
	}
	id := p.newID()
	go func() {
		defer p.gate.Release(1)
		res, err := p.run(ctx, id, job, trigger)
		if done != nil {
			done(res, err)
		}
	}()
	return id, nil
}

// Busy reports whether a run is in progress.
func (p *Pipeline) Busy() bool {
	if p.gate.TryAcquire(1) {
		p.gate.Release(1)
		return false
	}
	return true
}

func validateJob(job config.Job) error {
	if err := job.Window.Validate(); err != nil {
		return err
	}
	if job.ChunkLength <= 0 {
		return fmt.Errorf("chunk_length must be a positive integer (seconds), got %d", job.ChunkLength)
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, id string, job config.Job, trigger string) (*RunResult, error) {
	if err := validateJob(job); err != nil {
		return nil, err
	}

	res := &RunResult{
		RunID:    id,
		Job:      job,
		Status:   database.StatusProcessing,
		Uploaded: make(map[string]string),
	}
	var m *metrics.RunMetrics
	if p.metrics != nil {
		m = p.metrics.StartRun(res.RunID, p.logger)
	} else {
		m = metrics.NewRunMetrics(res.RunID, p.logger)
	}

	date := job.Date.Format("2006-01-02")
	res.OutputFolder = RunFolder(job.OutputFolder, job.Camera, date, res.RunID)
	p.logger.Printf("[Pipeline] Run %s: camera %s, %s %s-%s, chunks of %ds (trigger: %s)",
		res.RunID, job.Camera, date, job.Window.Start.Format("15:04"), job.Window.End.Format("15:04"), job.ChunkLength, trigger)

	run := database.Run{
		ID:           res.RunID,
		Trigger:      trigger,
		Camera:       job.Camera,
		Date:         date,
		WindowStart:  job.Window.Start,
		WindowEnd:    job.Window.End,
		ChunkLength:  job.ChunkLength,
		Reencode:     job.Reencode,
		Status:       database.StatusProcessing,
		CreatedAt:    time.Now(),
		OutputFolder: res.OutputFolder,
	}
	if p.db != nil {
		if err := p.db.CreateRun(run); err != nil {
			p.logger.Printf("[Pipeline] Error recording run %s: %v", res.RunID, err)
		}
	}

	fail := func(err error) (*RunResult, error) {
		m.Finalize()
		res.Status = database.StatusFailed
		res.Err = err
		res.Timings = m.Timings()
		// drop the run folder if nothing was published into it
		os.Remove(res.OutputFolder)
		p.logger.Printf("[Pipeline] Run %s failed: %v", res.RunID, err)
		p.finishRun(run, res, err.Error())
		return res, err
	}

	if _, err := storage.EnsurePath(job.OutputFolder); err != nil {
		return fail(fmt.Errorf("failed to create output folder: %w", err))
	}
	if _, err := storage.CheckFreeSpace(job.OutputFolder, p.minFreeSpaceMB); err != nil {
		return fail(err)
	}

	m.Start(metrics.StageScan)
	sources, err := recording.ScanFolder(job.InputFolder, job.Camera, job.Date, job.Location, p.logger)
	m.End(metrics.StageScan)
	if err != nil {
		return fail(err)
	}
	res.Sources = len(sources)
	if len(sources) == 0 {
		return fail(fmt.Errorf("%w for camera %s on %s in %s", recording.ErrCatalogEmpty, job.Camera, date, job.InputFolder))
	}

	if _, err := storage.EnsurePath(res.OutputFolder); err != nil {
		return fail(fmt.Errorf("failed to create run folder: %w", err))
	}

	m.Start(metrics.StageExtract)
	res.CombinedPath = filepath.Join(res.OutputFolder, recording.CombinedFileName(job.Camera, job.Window))
	extractor := recording.NewExtractor(p.media, p.media, p.media, p.logger)
	extraction, err := extractor.Extract(ctx, sources, job.Window, res.CombinedPath, job.Reencode)
	m.End(metrics.StageExtract)
	if err != nil {
		return fail(fmt.Errorf("failed to extract time segment: %w", err))
	}
	res.Extraction = extraction
	p.recordOutput(res.RunID, database.KindCombined, res.CombinedPath, &job.Window.Start, &job.Window.End)

	m.Start(metrics.StageSplit)
	chunkLength := float64(job.ChunkLength)
	res.ChunksPlanned = len(recording.PlanChunks(extraction.Duration(), chunkLength, job.Window.Start))
	splitter := recording.NewSplitter(p.media, p.media, p.logger)
	res.Chunks, err = splitter.Split(ctx, res.CombinedPath, chunkLength, job.Window.Start, job.Camera, res.OutputFolder, job.Reencode)
	m.End(metrics.StageSplit)
	if err != nil {
		return fail(fmt.Errorf("failed to split into chunks: %w", err))
	}
	for i := range res.Chunks {
		c := res.Chunks[i]
		p.recordOutput(res.RunID, database.KindChunk, c.Path, &c.Start, &c.End)
	}

	res.Manifest = manifest.Build(job.Camera, res.CombinedPath, job.Window, res.Chunks)
	res.ManifestPath = filepath.Join(res.OutputFolder, manifest.FileName)
	if err := manifest.Write(res.ManifestPath, res.Manifest); err != nil {
		return fail(err)
	}
	p.recordOutput(res.RunID, database.KindManifest, res.ManifestPath, nil, nil)

	if p.uploader != nil {
		m.Start(metrics.StageUpload)
		p.upload(ctx, res, date)
		m.End(metrics.StageUpload)
		if ctx.Err() != nil {
			return fail(ctx.Err())
		}
	}

	res.Status = database.StatusCompleted
	if extraction.Dropped > 0 || len(res.Chunks) < res.ChunksPlanned || res.UploadErrors > 0 {
		res.Status = database.StatusPartial
	}

	m.Finalize()
	res.Timings = m.Timings()

	var msg string
	if res.UploadErrors > 0 {
		msg = fmt.Sprintf("%d upload(s) failed", res.UploadErrors)
	}
	p.finishRun(run, res, msg)

	p.logger.Printf("[Pipeline] Run %s %s: %d of %d chunk(s), %d source(s) dropped. Manifest saved to %s",
		res.RunID, res.Status, len(res.Chunks), res.ChunksPlanned, extraction.Dropped, res.ManifestPath)
	return res, nil
}

// upload publishes the combined clip, every chunk and the manifest. Failures are
// counted and logged; remaining files are still attempted.
func (p *Pipeline) upload(ctx context.Context, res *RunResult, date string) {
	files := []string{res.CombinedPath}
	for _, c := range res.Chunks {
		files = append(files, c.Path)
	}
	files = append(files, res.ManifestPath)

	for _, path := range files {
		if ctx.Err() != nil {
			return
		}
		name := filepath.Base(path)
		key := p.uploader.ObjectKey(res.Job.Camera, date, res.RunID, name)
		url, err := p.uploader.UploadFile(ctx, path, key)
		if err != nil {
			res.UploadErrors++
			p.logger.Printf("[Pipeline] Error uploading %s: %v", name, err)
			continue
		}
		res.Uploaded[name] = url
		if p.db != nil {
			if err := p.db.UpdateOutputR2(res.RunID, name, key, url); err != nil {
				p.logger.Printf("[Pipeline] Error recording upload of %s: %v", name, err)
			}
		}
	}
}

func (p *Pipeline) recordOutput(runID string, kind database.OutputKind, path string, start, end *time.Time) {
	if p.db == nil {
		return
	}
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	out := database.RunOutput{
		RunID:     runID,
		Kind:      kind,
		File:      filepath.Base(path),
		Path:      path,
		StartTime: start,
		EndTime:   end,
		Size:      size,
	}
	if err := p.db.AddRunOutput(out); err != nil {
		p.logger.Printf("[Pipeline] Error recording output %s: %v", out.File, err)
	}
}

func (p *Pipeline) finishRun(run database.Run, res *RunResult, errMsg string) {
	if p.db == nil {
		return
	}
	now := time.Now()
	run.Status = res.Status
	run.FinishedAt = &now
	run.SourceCount = res.Sources
	run.ChunksPlanned = res.ChunksPlanned
	run.ChunksWritten = len(res.Chunks)
	run.ManifestPath = res.ManifestPath
	run.ErrorMessage = errMsg
	if res.Extraction != nil {
		run.DroppedSources = res.Extraction.Dropped
		run.Duration = res.Extraction.Duration()
	}
	if err := p.db.UpdateRun(run); err != nil {
		p.logger.Printf("[Pipeline] Error updating run %s: %v", run.ID, err)
	}
}
