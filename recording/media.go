package recording

import "context"

// TrimMode selects how a trim treats the source streams.
type TrimMode int

const (
	// TrimCopy copies every stream without re-encoding. Cuts land on keyframes.
	TrimCopy TrimMode = iota
	// TrimReencode re-encodes every stream.
	TrimReencode
	// TrimCopyVideoAACAudio copies video and transcodes audio to AAC for MP4 compliance.
	TrimCopyVideoAACAudio
)

func (m TrimMode) String() string {
	switch m {
	case TrimReencode:
		return "reencode"
	case TrimCopyVideoAACAudio:
		return "copy-video-aac"
	default:
		return "copy"
	}
}

// TrimRequest describes a single [Offset, Offset+Duration) cut of Input into Output.
type TrimRequest struct {
	Input    string
	Output   string
	Offset   float64
	Duration float64
	Mode     TrimMode
}

// DurationProbe reports the container duration of a media file in seconds.
type DurationProbe interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// MediaTrimmer cuts a time range out of a media file.
type MediaTrimmer interface {
	Trim(ctx context.Context, req TrimRequest) error
}

// MediaConcatenator joins media files, in order, into one output.
type MediaConcatenator interface {
	Concat(ctx context.Context, inputs []string, output string, reencode bool) error
}
