package recording

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"
)

// Splitter slices a combined clip into fixed-length, wall-clock named chunks.
type Splitter struct {
	probe   DurationProbe
	trimmer MediaTrimmer
	logger  *log.Logger
}

// NewSplitter creates a splitter backed by the given media capabilities.
func NewSplitter(probe DurationProbe, trimmer MediaTrimmer, logger *log.Logger) *Splitter {
	if logger == nil {
		logger = log.Default()
	}
	return &Splitter{probe: probe, trimmer: trimmer, logger: logger}
}

// Split cuts clipPath into chunks of chunkLength seconds and writes them to
// outputFolder. clipStart is the wall-clock instant of the clip's first frame;
// chunk names and intervals are expressed in its location.
// A chunk that fails to extract is logged and left out of the result.
func (s *Splitter) Split(ctx context.Context, clipPath string, chunkLength float64, clipStart time.Time, camera, outputFolder string, reencode bool) ([]Chunk, error) {
	if chunkLength <= 0 {
		return nil, fmt.Errorf("chunk length must be positive, got %v", chunkLength)
	}

	total, err := s.probe.Duration(ctx, clipPath)
	if err != nil {
		var pe *ProbeError
		if !errors.As(err, &pe) {
			err = &ProbeError{Path: clipPath, Err: err}
		}
		return nil, err
	}

	planned := PlanChunks(total, chunkLength, clipStart)
	s.logger.Printf("[Splitter] Splitting %s (%.1fs) into %d chunk(s) of %.0fs", filepath.Base(clipPath), total, len(planned), chunkLength)

	mode := TrimCopyVideoAACAudio
	if reencode {
		mode = TrimReencode
	}

	chunks := make([]Chunk, 0, len(planned))
	for _, c := range planned {
		if err := ctx.Err(); err != nil {
			return chunks, err
		}
		name := ChunkFileName(camera, c.Start, c.End)
		c.Path = filepath.Join(outputFolder, name)

		req := TrimRequest{
			Input:    clipPath,
			Output:   c.Path,
			Offset:   c.Offset,
			Duration: c.Duration,
			Mode:     mode,
		}
		if err := s.trimmer.Trim(ctx, req); err != nil {
			if ctx.Err() != nil {
				return chunks, ctx.Err()
			}
			cerr := &ChunkError{Index: c.Index, Path: c.Path, Err: err}
			s.logger.Printf("[Splitter] Error creating chunk %s: %v", name, cerr)
			continue
		}
		chunks = append(chunks, c)
	}

	s.logger.Printf("[Splitter] Created %d of %d chunk(s)", len(chunks), len(planned))
	return chunks, nil
}
