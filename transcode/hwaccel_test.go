package transcode

import (
	"context"
	"testing"
)

const encodersOutput = `Encoders:
 V..... = Video
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC / MPEG-4 part 10 (codec h264)
 V....D h264_nvenc           NVIDIA NVENC H.264 encoder (codec h264)
 V....D h264_qsv             H.264 / AVC / MPEG-4 AVC / MPEG-4 part 10 (Intel Quick Sync Video acceleration) (codec h264)
 A....D aac                  AAC (Advanced Audio Coding)`

func TestHasEncoder(t *testing.T) {
	tests := []struct {
		encoder string
		want    bool
	}{
		{"h264_nvenc", true},
		{"h264_qsv", true},
		{"h264_amf", false},
		{"aac", true},
		{"h264", false}, // only appears inside descriptions
	}
	for _, tt := range tests {
		if got := HasEncoder(encodersOutput, tt.encoder); got != tt.want {
			t.Errorf("HasEncoder(%q) = %v, want %v", tt.encoder, got, tt.want)
		}
	}
}

func TestDetectHardwareAccel(t *testing.T) {
	f := quietFFmpeg()
	// nvenc is listed but has no device, qsv works
	f.FFmpegBin = fakeTool(t, "ffmpeg", `case "$*" in
  *-encoders*) printf ' V....D h264_nvenc           NVIDIA NVENC\n V....D h264_qsv             QSV\n' ;;
  *h264_qsv*) exit 0 ;;
  *) echo "No NVENC capable devices found" >&2; exit 1 ;;
esac`)

	if got := f.DetectHardwareAccel(context.Background()); got != "intel" {
		t.Errorf("Expected intel, got %s", got)
	}
}

func TestResolveHardwareAccel(t *testing.T) {
	f := quietFFmpeg()
	f.FFmpegBin = fakeTool(t, "ffmpeg", `exit 1`)

	f.HardwareAccel = "nvidia"
	f.ResolveHardwareAccel(context.Background())
	if f.HardwareAccel != "nvidia" {
		t.Errorf("Expected explicit setting to be kept, got %s", f.HardwareAccel)
	}

	f.HardwareAccel = HardwareAuto
	f.ResolveHardwareAccel(context.Background())
	if f.HardwareAccel != "software" {
		t.Errorf("Expected software fallback, got %s", f.HardwareAccel)
	}
}
