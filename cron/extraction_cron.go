package cron

import (
	"context"
	"fmt"
	"log"
	"time"

	"cam-chunker/config"
	"cam-chunker/database"
	"cam-chunker/metrics"
	"cam-chunker/service"

	"github.com/robfig/cron/v3"
)

// stuckRunTimeout is how long a run may stay in processing before it is
// considered abandoned by a crashed process.
const stuckRunTimeout = 6 * time.Hour

// Runner executes one extraction job.
type Runner interface {
	Run(ctx context.Context, job config.Job, trigger string) (*service.RunResult, error)
}

// ExtractionCron runs the daily extraction for every scheduled camera and
// housekeeping for the run history.
type ExtractionCron struct {
	cron      *cron.Cron
	runner    Runner
	cfg       *config.ConfigManager
	db        database.Database
	collector *metrics.MetricsCollector
	isRunning bool
	now       func() time.Time
}

// NewExtractionCron creates the scheduler. db and collector may be nil.
// The schedule is evaluated in the configured reference zone.
func NewExtractionCron(runner Runner, cfg *config.ConfigManager, db database.Database, collector *metrics.MetricsCollector) (*ExtractionCron, error) {
	loc, err := cfg.GetConfig().Location()
	if err != nil {
		return nil, err
	}
	return &ExtractionCron{
		cron:      cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		runner:    runner,
		cfg:       cfg,
		db:        db,
		collector: collector,
		now:       time.Now,
	}, nil
}

// Start registers the jobs and starts the scheduler
func (ec *ExtractionCron) Start() error {
	if ec.isRunning {
		log.Println("[ExtractionCron] Cron is already running")
		return nil
	}

	current := ec.cfg.GetConfig()
	spec := current.Schedule.Cron
	if spec == "" {
		spec = "0 30 0 * * *"
	}

	if _, err := ec.cron.AddFunc(spec, func() {
		ec.RunScheduled(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	// Housekeeping hourly at :05
	if _, err := ec.cron.AddFunc("0 5 * * * *", func() {
		ec.cleanupStuckRuns()
		if ec.collector != nil {
			ec.collector.CleanupOldMetrics(24 * time.Hour)
		}
	}); err != nil {
		return err
	}

	ec.cleanupStuckRuns()
	ec.cron.Start()
	ec.isRunning = true

	log.Printf("[ExtractionCron] Extraction cron started")
	log.Printf("[ExtractionCron] • Extraction: %q for %v (day offset %d)", spec, current.ScheduledCameras(), current.Schedule.DayOffset)
	log.Printf("[ExtractionCron] • Housekeeping: Hourly at :05")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (ec *ExtractionCron) Stop() {
	if !ec.isRunning {
		return
	}

	log.Println("[ExtractionCron] Stopping extraction cron...")
	ctx := ec.cron.Stop()

	select {
	case <-ctx.Done():
		log.Println("[ExtractionCron] Extraction cron stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Println("[ExtractionCron] Extraction cron stopped with timeout")
	}

	ec.isRunning = false
}

// IsRunning returns whether the cron is currently running
func (ec *ExtractionCron) IsRunning() bool {
	return ec.isRunning
}

// NextRun returns the next scheduled extraction, zero when stopped
func (ec *ExtractionCron) NextRun() time.Time {
	if !ec.isRunning {
		return time.Time{}
	}
	entries := ec.cron.Entries()
	if len(entries) > 0 {
		return entries[0].Next
	}
	return time.Time{}
}

// RunScheduled extracts the configured window for each scheduled camera on
// the day DayOffset days before today. Cameras run one after another; a
// failure is logged and does not stop the rest.
func (ec *ExtractionCron) RunScheduled(ctx context.Context) []*service.RunResult {
	cfg := ec.cfg.GetConfig()
	cameras := cfg.ScheduledCameras()
	if len(cameras) == 0 {
		log.Println("[ExtractionCron] No cameras scheduled, skipping")
		return nil
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Printf("[ExtractionCron] Error resolving timezone: %v", err)
		return nil
	}
	day := ec.now().In(loc).AddDate(0, 0, -cfg.Schedule.DayOffset)

	startTime := time.Now()
	log.Printf("[ExtractionCron] Starting scheduled extraction for %s (%d camera(s))", day.Format("2006-01-02"), len(cameras))

	var results []*service.RunResult
	for _, camera := range cameras {
		if ctx.Err() != nil {
			break
		}
		job, err := cfg.JobFor(camera, day)
		if err != nil {
			log.Printf("[ExtractionCron] Invalid job for camera %s: %v", camera, err)
			continue
		}
		res, err := ec.runner.Run(ctx, job, service.TriggerCron)
		if err != nil {
			log.Printf("[ExtractionCron] Extraction for camera %s failed: %v", camera, err)
		}
		if res != nil {
			results = append(results, res)
		}
	}

	log.Printf("[ExtractionCron] Scheduled extraction finished in %v", time.Since(startTime))
	return results
}

// cleanupStuckRuns marks runs left in processing by a crashed process as failed.
func (ec *ExtractionCron) cleanupStuckRuns() {
	if ec.db == nil {
		return
	}
	runs, err := ec.db.GetRunsByStatus(database.StatusProcessing, 100, 0)
	if err != nil {
		log.Printf("[ExtractionCron] Error getting stuck runs: %v", err)
		return
	}

	cutoff := ec.now().Add(-stuckRunTimeout)
	cleaned := 0
	for _, run := range runs {
		if run.CreatedAt.After(cutoff) {
			continue
		}
		if err := ec.db.UpdateRunStatus(run.ID, database.StatusFailed, "abandoned while processing"); err != nil {
			log.Printf("[ExtractionCron] Error updating stuck run %s: %v", run.ID, err)
			continue
		}
		cleaned++
	}
	if cleaned > 0 {
		log.Printf("[ExtractionCron] Marked %d stuck run(s) as failed", cleaned)
	}
}
