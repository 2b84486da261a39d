package transcode

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const FfmpegInstallURL = "https://ffmpeg.org/download.html"

// DependencyError contains information about a missing dependency
type DependencyError struct {
	Name       string
	InstallURL string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s not found. Install from: %s", e.Name, e.InstallURL)
}

// CheckBinary checks that bin resolves to an executable in PATH.
func CheckBinary(bin string) error {
	if _, err := exec.LookPath(bin); err != nil {
		return &DependencyError{
			Name:       bin,
			InstallURL: FfmpegInstallURL,
		}
	}
	return nil
}

// CheckAll checks ffmpeg and ffprobe and returns an error for each one missing.
func (f *FFmpeg) CheckAll() []error {
	var errs []error
	for _, bin := range []string{f.ffmpeg(), f.ffprobe()} {
		if err := CheckBinary(bin); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Versions returns the first line of `-version` output for ffmpeg and ffprobe,
// keyed by binary name. Missing binaries are left out.
func (f *FFmpeg) Versions(ctx context.Context) map[string]string {
	versions := make(map[string]string)
	for _, bin := range []string{f.ffmpeg(), f.ffprobe()} {
		out, err := f.run(ctx, bin, "-version")
		if err != nil {
			continue
		}
		line, _, _ := strings.Cut(string(out), "\n")
		versions[bin] = strings.TrimSpace(line)
	}
	return versions
}
