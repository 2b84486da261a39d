package transcode

import (
	"context"
	"strings"
)

// HardwareAuto makes ResolveHardwareAccel probe for a usable encoder.
const HardwareAuto = "auto"

// hardwareCandidates are tried in order; the first that encodes wins.
var hardwareCandidates = []string{"nvidia", "intel", "amd"}

// HasEncoder reports whether `ffmpeg -encoders` output lists encoder.
func HasEncoder(encodersOutput, encoder string) bool {
	for _, line := range strings.Split(encodersOutput, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == encoder {
			return true
		}
	}
	return false
}

// TestEncodeArgs encodes one second of test pattern with encoder and discards it.
func TestEncodeArgs(encoder string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "lavfi",
		"-i", "testsrc2=duration=1:size=320x240:rate=1",
		"-c:v", encoder,
		"-f", "null",
		"-",
	}
}

// DetectHardwareAccel returns the first hardware family whose H.264 encoder is
// compiled into ffmpeg and survives a test encode, or "software".
func (f *FFmpeg) DetectHardwareAccel(ctx context.Context) string {
	out, err := f.run(ctx, f.ffmpeg(), "-hide_banner", "-encoders")
	if err != nil {
		f.logf("[hwaccel] Failed to check FFmpeg encoders: %v", err)
		return "software"
	}

	for _, hw := range hardwareCandidates {
		encoder := GetVideoCodec(hw, "h264")
		if !HasEncoder(string(out), encoder) {
			continue
		}
		if _, err := f.run(ctx, f.ffmpeg(), TestEncodeArgs(encoder)...); err != nil {
			f.logf("[hwaccel] %s test encode failed: %v", encoder, err)
			continue
		}
		f.logf("[hwaccel] Using %s (%s)", hw, encoder)
		return hw
	}

	f.logf("[hwaccel] No hardware acceleration available, using software encoding")
	return "software"
}

// ResolveHardwareAccel replaces an "auto" setting with the detected family.
func (f *FFmpeg) ResolveHardwareAccel(ctx context.Context) {
	if f.HardwareAccel == HardwareAuto {
		f.HardwareAccel = f.DetectHardwareAccel(ctx)
	}
}
