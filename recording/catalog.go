package recording

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// SourceTimestampLayout is the 14-digit capture timestamp embedded in source file names.
const SourceTimestampLayout = "20060102150405"

// ScanFolder returns the <camera>_<YYYYMMDDHHMMSS>.mp4 files in folder that were
// recorded on date (calendar day in loc), sorted by capture start.
// Timestamps carry no zone in the name and are read in loc.
func ScanFolder(folder, camera string, date time.Time, loc *time.Location, logger *log.Logger) ([]SourceFile, error) {
	if logger == nil {
		logger = log.Default()
	}
	if loc == nil {
		loc = time.Local
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(camera) + `_(\d{14})\.mp4$`)
	wantY, wantM, wantD := date.In(loc).Date()

	var matches []SourceFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := pattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		path := filepath.Join(folder, entry.Name())
		if !entry.Type().IsRegular() {
			// symlinks count when they resolve to a regular file
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
		}
		ts, err := time.ParseInLocation(SourceTimestampLayout, m[1], loc)
		if err != nil {
			logger.Printf("[Catalog] Skipping file with invalid timestamp: %s", entry.Name())
			continue
		}
		if y, mo, d := ts.Date(); y != wantY || mo != wantM || d != wantD {
			continue
		}
		matches = append(matches, SourceFile{Path: path, Start: ts})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Start.Before(matches[j].Start)
	})

	logger.Printf("[Catalog] Found %d file(s) for camera %s on %s in %s", len(matches), camera, date.Format("2006-01-02"), folder)
	return matches, nil
}
