package recording

import (
	"fmt"
	"math"
	"time"
)

// minChunkSeconds is the shortest trailing remainder still worth a chunk.
// Anything below it is floating point noise from the probed duration.
const minChunkSeconds = 0.001

// SourceFile is a recorded file and the instant its recording began.
type SourceFile struct {
	Path  string
	Start time.Time
}

// TimeWindow is the half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Validate rejects windows that do not end after they start.
func (w TimeWindow) Validate() error {
	if !w.End.After(w.Start) {
		return fmt.Errorf("%w: %s - %s", ErrInvalidWindow, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return nil
}

// Seconds returns the window length in seconds.
func (w TimeWindow) Seconds() float64 {
	return w.End.Sub(w.Start).Seconds()
}

// Segment is the part of a source file that falls inside a window.
// Offset is measured from the start of the source file.
type Segment struct {
	Source   SourceFile
	Offset   float64
	Duration float64
}

// Chunk is a fixed-length slice of a combined clip.
// Offset is measured from the start of the clip; Start and End are wall-clock.
type Chunk struct {
	Index    int
	Path     string
	Offset   float64
	Duration float64
	Start    time.Time
	End      time.Time
}

// PlanSegment intersects a source file of the given duration with the window.
// ok is false when the overlap is empty.
func PlanSegment(src SourceFile, duration float64, w TimeWindow) (seg Segment, ok bool) {
	fileEnd := src.Start.Add(secondsToDuration(duration))

	overlapStart := src.Start
	if w.Start.After(overlapStart) {
		overlapStart = w.Start
	}
	overlapEnd := fileEnd
	if w.End.Before(overlapEnd) {
		overlapEnd = w.End
	}
	if !overlapEnd.After(overlapStart) {
		return Segment{}, false
	}

	return Segment{
		Source:   src,
		Offset:   overlapStart.Sub(src.Start).Seconds(),
		Duration: overlapEnd.Sub(overlapStart).Seconds(),
	}, true
}

// PlanChunks partitions [0, total) into consecutive pieces of chunkLength
// seconds, the last one possibly shorter, anchored at clipStart.
func PlanChunks(total, chunkLength float64, clipStart time.Time) []Chunk {
	if total <= 0 || chunkLength <= 0 {
		return nil
	}

	n := int(math.Ceil(total / chunkLength))
	chunks := make([]Chunk, 0, n)
	for i := 0; i < n; i++ {
		offset := float64(i) * chunkLength
		length := math.Min(chunkLength, total-offset)
		if length < minChunkSeconds {
			break
		}
		start := clipStart.Add(secondsToDuration(offset))
		chunks = append(chunks, Chunk{
			Index:    i,
			Offset:   offset,
			Duration: length,
			Start:    start,
			End:      start.Add(secondsToDuration(length)),
		})
	}
	return chunks
}

// ChunkFileName returns <camera>_<HHMMSS>_<HHMMSS>.mp4 for a chunk interval.
func ChunkFileName(camera string, start, end time.Time) string {
	return fmt.Sprintf("%s_%s_%s.mp4", camera, start.Format("150405"), end.Format("150405"))
}

// CombinedFileName returns <camera>_<YYYYMMDD>_<HHMMSS>_<HHMMSS>.mp4 for a window.
func CombinedFileName(camera string, w TimeWindow) string {
	return fmt.Sprintf("%s_%s_%s_%s.mp4", camera, w.Start.Format("20060102"), w.Start.Format("150405"), w.End.Format("150405"))
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
