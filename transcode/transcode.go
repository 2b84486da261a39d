package transcode

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cam-chunker/config"
	"cam-chunker/recording"
)

// FFmpeg runs ffprobe and ffmpeg on behalf of the extractor and splitter.
// It implements recording.DurationProbe, recording.MediaTrimmer and
// recording.MediaConcatenator.
type FFmpeg struct {
	FFmpegBin     string
	FFprobeBin    string
	HardwareAccel string
	Codec         string
	Timeout       time.Duration // per invocation, 0 means none
	Logger        *log.Logger
}

// NewFFmpeg creates an FFmpeg runner from configuration.
func NewFFmpeg(cfg config.Config, logger *log.Logger) *FFmpeg {
	if logger == nil {
		logger = log.Default()
	}
	return &FFmpeg{
		FFmpegBin:     cfg.FFmpegPath,
		FFprobeBin:    cfg.FFprobePath,
		HardwareAccel: cfg.HardwareAccel,
		Codec:         cfg.Codec,
		Timeout:       cfg.ToolTimeout(),
		Logger:        logger,
	}
}

func (f *FFmpeg) ffmpeg() string {
	if f.FFmpegBin == "" {
		return "ffmpeg"
	}
	return f.FFmpegBin
}

func (f *FFmpeg) ffprobe() string {
	if f.FFprobeBin == "" {
		return "ffprobe"
	}
	return f.FFprobeBin
}

func (f *FFmpeg) logf(format string, args ...interface{}) {
	if f.Logger != nil {
		f.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// run executes name with args, bounded by the configured timeout, and returns
// its stdout. Failures carry the tail of stderr.
func (f *FFmpeg) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if f.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out, fmt.Errorf("%s timed out after %s: %w", filepath.Base(name), f.Timeout, ctx.Err())
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, fmt.Errorf("%s failed: %w\nOutput: %s", filepath.Base(name), err, tail(stderr.String(), 20))
	}
	return out, nil
}

// Duration returns the container duration of path in seconds using ffprobe.
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, &recording.ProbeError{Path: path, Err: fmt.Errorf("video file does not exist: %w", err)}
	}

	out, err := f.run(ctx, f.ffprobe(), ProbeArgs(path)...)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, &recording.ProbeError{Path: path, Err: err}
	}

	duration, err := ParseDuration(string(out))
	if err != nil {
		return 0, &recording.ProbeError{Path: path, Err: err}
	}
	return duration, nil
}

// Trim cuts req.Offset..req.Offset+req.Duration out of req.Input.
func (f *FFmpeg) Trim(ctx context.Context, req recording.TrimRequest) error {
	args := TrimArgs(req, f.HardwareAccel, f.Codec)
	f.logf("[FFmpeg] Trimming %s at %.3fs for %.3fs (%s)", filepath.Base(req.Input), req.Offset, req.Duration, req.Mode)
	if _, err := f.run(ctx, f.ffmpeg(), args...); err != nil {
		os.Remove(req.Output)
		return err
	}
	return nil
}

// Concat joins inputs in order into output with the concat demuxer.
func (f *FFmpeg) Concat(ctx context.Context, inputs []string, output string, reencode bool) error {
	if len(inputs) == 0 {
		return errors.New("no inputs to concatenate")
	}

	listFile, err := os.CreateTemp(filepath.Dir(output), "concat_list_*.txt")
	if err != nil {
		return fmt.Errorf("failed to create concat list file: %w", err)
	}
	listPath := listFile.Name()
	defer os.Remove(listPath)

	if _, err := listFile.WriteString(ConcatList(inputs)); err != nil {
		listFile.Close()
		return fmt.Errorf("failed to write to concat list: %w", err)
	}
	if err := listFile.Close(); err != nil {
		return fmt.Errorf("failed to write to concat list: %w", err)
	}

	f.logf("[FFmpeg] Concatenating %d segment(s) into %s", len(inputs), filepath.Base(output))
	if _, err := f.run(ctx, f.ffmpeg(), ConcatArgs(listPath, output, reencode, f.HardwareAccel, f.Codec)...); err != nil {
		os.Remove(output)
		return err
	}
	return nil
}

// ProbeArgs returns the ffprobe arguments that print only the container duration.
func ProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
}

// ParseDuration parses ffprobe's duration output.
func ParseDuration(output string) (float64, error) {
	s := strings.TrimSpace(output)
	if s == "" {
		return 0, errors.New("empty duration output from ffprobe")
	}
	// some containers report one value per program
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration '%s': %w", s, err)
	}
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0, fmt.Errorf("invalid duration '%s'", s)
	}
	return d, nil
}

// TrimArgs builds the ffmpeg arguments for a single trim.
func TrimArgs(req recording.TrimRequest, hwAccel, codec string) []string {
	args := []string{"-y"}
	if req.Mode == recording.TrimReencode {
		args = append(args, GetInputParams(hwAccel)...)
	}
	args = append(args,
		"-ss", FormatSeconds(req.Offset),
		"-i", req.Input,
		"-t", FormatSeconds(req.Duration),
	)

	switch req.Mode {
	case recording.TrimReencode:
		args = append(args, GetEncodeParams(hwAccel, codec)...)
	case recording.TrimCopyVideoAACAudio:
		args = append(args, "-c:v", "copy", "-c:a", "aac")
	default:
		args = append(args, "-c", "copy", "-avoid_negative_ts", "make_zero")
	}

	return append(args, req.Output)
}

// ConcatArgs builds the ffmpeg arguments for joining the files listed in listPath.
func ConcatArgs(listPath, output string, reencode bool, hwAccel, codec string) []string {
	args := []string{"-y"}
	if reencode {
		args = append(args, GetInputParams(hwAccel)...)
	}
	args = append(args,
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
	)
	if reencode {
		args = append(args, GetEncodeParams(hwAccel, codec)...)
	} else {
		args = append(args, "-c", "copy")
	}
	return append(args, output)
}

// ConcatList renders the concat demuxer list for paths, one quoted entry per line.
func ConcatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(p))
	}
	return b.String()
}

// escapeConcatPath closes the quote, emits an escaped quote and reopens it.
func escapeConcatPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}

// FormatSeconds renders s with millisecond precision for -ss and -t.
func FormatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// GetInputParams returns appropriate FFmpeg input parameters based on hardware acceleration
func GetInputParams(hwAccel string) []string {
	switch hwAccel {
	case "nvidia":
		return []string{"-hwaccel", "cuda"}
	case "intel":
		return []string{"-hwaccel", "qsv"}
	case "amd":
		return []string{"-hwaccel", "amf"}
	default:
		// Software encoding (CPU)
		return nil
	}
}

// GetVideoCodec returns the appropriate video codec for the hardware acceleration and codec
func GetVideoCodec(hwAccel, codec string) string {
	hevc := codec == "hevc"

	switch hwAccel {
	case "nvidia":
		if hevc {
			return "hevc_nvenc"
		}
		return "h264_nvenc"
	case "intel":
		if hevc {
			return "hevc_qsv"
		}
		return "h264_qsv"
	case "amd":
		if hevc {
			return "hevc_amf"
		}
		return "h264_amf"
	default:
		if hevc {
			return "libx265"
		}
		return "libx264"
	}
}

// GetEncodeParams returns the output parameters used when a trim or concat re-encodes.
// Resolution and frame rate are left as recorded.
func GetEncodeParams(hwAccel, codec string) []string {
	hevc := codec == "hevc"
	params := []string{"-c:v", GetVideoCodec(hwAccel, codec)}

	switch hwAccel {
	case "nvidia":
		if hevc {
			params = append(params, "-preset", "p4", "-profile:v", "main", "-rc", "vbr", "-cq", "28")
		} else {
			params = append(params, "-preset", "p4", "-profile:v", "high", "-rc", "vbr", "-cq", "23")
		}
	case "intel":
		if hevc {
			params = append(params, "-preset", "medium", "-profile:v", "main")
		} else {
			params = append(params, "-preset", "medium", "-profile:v", "high")
		}
	case "amd":
		if hevc {
			params = append(params, "-quality", "speed", "-profile:v", "main", "-level", "5.2")
		} else {
			params = append(params, "-quality", "speed", "-profile:v", "high", "-level", "5.2")
		}
	default:
		if hevc {
			params = append(params, "-preset", "ultrafast", "-crf", "28")
		} else {
			params = append(params, "-preset", "ultrafast", "-profile:v", "high", "-crf", "23")
		}
	}

	return append(params, "-c:a", "aac", "-b:a", "128k")
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
