package recording

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Extractor cuts a wall-clock window out of a set of sequential source files
// and stitches the pieces into one continuous clip.
type Extractor struct {
	probe        DurationProbe
	trimmer      MediaTrimmer
	concatenator MediaConcatenator
	logger       *log.Logger
}

// Extraction describes a finished extraction.
type Extraction struct {
	Path     string
	Window   TimeWindow
	Segments []Segment // segments that made it into the clip, in order
	Dropped  int       // sources lost to probe or trim failures
}

// Duration returns the summed length of the included segments in seconds.
func (x *Extraction) Duration() float64 {
	var total float64
	for _, s := range x.Segments {
		total += s.Duration
	}
	return total
}

// NewExtractor creates an extractor backed by the given media capabilities.
func NewExtractor(probe DurationProbe, trimmer MediaTrimmer, concatenator MediaConcatenator, logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.Default()
	}
	return &Extractor{
		probe:        probe,
		trimmer:      trimmer,
		concatenator: concatenator,
		logger:       logger,
	}
}

// Extract writes the part of sources that overlaps w to outputPath.
// Sources must be sorted by start time. A source that cannot be probed or
// trimmed is logged and dropped; the run only fails when nothing usable is left
// or when the final concatenation fails. outputPath is only ever written by
// rename of a finished file.
func (e *Extractor) Extract(ctx context.Context, sources []SourceFile, w TimeWindow, outputPath string, reencode bool) (*Extraction, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	segments, dropped, err := e.planSegments(ctx, sources, w)
	if err != nil {
		return nil, err
	}
	e.logger.Printf("[Extractor] %d of %d file(s) overlap %s - %s", len(segments), len(sources),
		w.Start.Format("15:04:05"), w.End.Format("15:04:05"))

	workDir, err := os.MkdirTemp(filepath.Dir(outputPath), ".extract-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	mode := TrimCopy
	if reencode {
		mode = TrimReencode
	}

	var pieces []string
	var included []Segment
	var lastErr error
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		piece := filepath.Join(workDir, fmt.Sprintf("%03d_%s_%d_%d%s", i,
			seg.Source.Start.Format(SourceTimestampLayout), int(seg.Offset), int(seg.Duration), filepath.Ext(outputPath)))
		req := TrimRequest{
			Input:    seg.Source.Path,
			Output:   piece,
			Offset:   seg.Offset,
			Duration: seg.Duration,
			Mode:     mode,
		}
		if err := e.trimmer.Trim(ctx, req); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = &TrimError{Path: seg.Source.Path, Offset: seg.Offset, Duration: seg.Duration, Err: err}
			e.logger.Printf("[Extractor] Error extracting segment from %s: %v", seg.Source.Path, err)
			dropped++
			continue
		}
		pieces = append(pieces, piece)
		included = append(included, seg)
	}

	if len(pieces) == 0 {
		return nil, fmt.Errorf("all %d overlapping segment(s) failed to trim: %w", len(segments), lastErr)
	}

	partial := filepath.Join(workDir, "combined"+filepath.Ext(outputPath))
	if err := e.concatenator.Concat(ctx, pieces, partial, reencode); err != nil {
		e.logger.Printf("[Extractor] Error concatenating segments: %v", err)
		return nil, &ConcatError{Output: outputPath, Err: err}
	}
	if err := os.Rename(partial, outputPath); err != nil {
		return nil, &ConcatError{Output: outputPath, Err: fmt.Errorf("publish output: %w", err)}
	}

	x := &Extraction{Path: outputPath, Window: w, Segments: included, Dropped: dropped}
	e.logger.Printf("[Extractor] Wrote %s from %d segment(s), %.1fs total", outputPath, len(included), x.Duration())
	return x, nil
}

// planSegments probes each source and keeps its overlap with w.
func (e *Extractor) planSegments(ctx context.Context, sources []SourceFile, w TimeWindow) ([]Segment, int, error) {
	var segments []Segment
	var probeErr error
	probeFailures := 0

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		duration, err := e.probe.Duration(ctx, src.Path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			var pe *ProbeError
			if !errors.As(err, &pe) {
				err = &ProbeError{Path: src.Path, Err: err}
			}
			probeErr = err
			probeFailures++
			e.logger.Printf("[Extractor] Skipping %s: %v", src.Path, err)
			continue
		}
		if seg, ok := PlanSegment(src, duration, w); ok {
			segments = append(segments, seg)
		}
	}

	if len(segments) == 0 {
		if probeFailures > 0 && probeFailures == len(sources) {
			return nil, 0, probeErr
		}
		e.logger.Printf("[Extractor] No overlapping segments found for given time range.")
		return nil, 0, ErrNoOverlap
	}
	return segments, probeFailures, nil
}
