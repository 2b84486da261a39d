package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"cam-chunker/database"
)

// UploadService publishes run outputs that are not yet in R2 storage
type UploadService struct {
	db       database.Database
	uploader Uploader
	logger   *log.Logger
}

// NewUploadService creates a new upload service
func NewUploadService(db database.Database, uploader Uploader, logger *log.Logger) *UploadService {
	if logger == nil {
		logger = log.Default()
	}
	return &UploadService{
		db:       db,
		uploader: uploader,
		logger:   logger,
	}
}

// StartUploadWorker retries outputs of finished runs that failed to upload,
// checking every interval until ctx is cancelled.
func (s *UploadService) StartUploadWorker(ctx context.Context, interval time.Duration) {
	go func() {
		s.logger.Println("[Upload] Starting R2 upload worker")
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			// Only partial runs can carry missing uploads
			runs, err := s.db.GetRunsByStatus(database.StatusPartial, 10, 0)
			if err != nil {
				s.logger.Printf("[Upload] Error fetching runs for upload: %v", err)
				continue
			}
			for _, run := range runs {
				if ctx.Err() != nil {
					return
				}
				if _, err := s.UploadRun(ctx, run.ID); err != nil {
					s.logger.Printf("[Upload] Error uploading run %s: %v", run.ID, err)
				}
			}
		}
	}()
}

// UploadRun uploads every output of a run that has no R2 URL yet and returns
// how many files were uploaded. Outputs missing from disk are skipped.
func (s *UploadService) UploadRun(ctx context.Context, runID string) (int, error) {
	run, err := s.db.GetRun(runID)
	if err != nil {
		return 0, fmt.Errorf("error fetching run %s: %w", runID, err)
	}
	if run == nil {
		return 0, fmt.Errorf("run %s not found", runID)
	}
	if run.Status == database.StatusProcessing || run.Status == database.StatusFailed {
		return 0, fmt.Errorf("run %s is %s and has nothing to upload", runID, run.Status)
	}

	outputs, err := s.db.GetRunOutputs(runID)
	if err != nil {
		return 0, fmt.Errorf("error fetching outputs for run %s: %w", runID, err)
	}

	uploaded, failed := 0, 0
	for _, out := range outputs {
		if out.R2URL != "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return uploaded, err
		}
		if _, err := os.Stat(out.Path); os.IsNotExist(err) {
			s.logger.Printf("[Upload] Skipping %s: local file no longer exists", out.Path)
			continue
		}

		key := s.uploader.ObjectKey(run.Camera, run.Date, run.ID, out.File)
		// an earlier upload may have landed without its URL being recorded
		if exists, err := s.uploader.ObjectExists(ctx, key); err != nil {
			s.logger.Printf("[Upload] Could not check %s, uploading anyway: %v", key, err)
		} else if exists {
			if err := s.db.UpdateOutputR2(runID, out.File, key, s.uploader.PublicURL(key)); err != nil {
				s.logger.Printf("[Upload] Error recording upload of %s: %v", out.File, err)
			}
			continue
		}

		url, err := s.uploader.UploadFile(ctx, out.Path, key)
		if err != nil {
			failed++
			s.logger.Printf("[Upload] Error uploading %s: %v", out.File, err)
			continue
		}
		if err := s.db.UpdateOutputR2(runID, out.File, key, url); err != nil {
			s.logger.Printf("[Upload] Error recording upload of %s: %v", out.File, err)
		}
		uploaded++
	}

	if failed > 0 {
		return uploaded, fmt.Errorf("%d upload(s) failed for run %s", failed, runID)
	}

	// A partial run whose only shortfall was uploads is now complete
	if run.Status == database.StatusPartial && run.DroppedSources == 0 && run.ChunksWritten == run.ChunksPlanned {
		if err := s.db.UpdateRunStatus(runID, database.StatusCompleted, ""); err != nil {
			s.logger.Printf("[Upload] Error updating run status: %v", err)
		}
	}

	s.logger.Printf("[Upload] Uploaded %d file(s) for run %s", uploaded, runID)
	return uploaded, nil
}
