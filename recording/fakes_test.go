package recording

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var ist = time.FixedZone("IST", 5*3600+30*60)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// fakeProbe returns fixed durations keyed by path.
type fakeProbe struct {
	durations map[string]float64
	fail      map[string]error
	calls     []string
}

func (p *fakeProbe) Duration(ctx context.Context, path string) (float64, error) {
	p.calls = append(p.calls, path)
	if err, ok := p.fail[path]; ok {
		return 0, err
	}
	d, ok := p.durations[path]
	if !ok {
		return 0, errors.New("unknown file")
	}
	return d, nil
}

// fakeTrimmer records requests and writes a placeholder output file.
// Requests whose input or output base name is listed in failOn fail.
type fakeTrimmer struct {
	requests []TrimRequest
	failOn   map[string]bool
}

func (f *fakeTrimmer) Trim(ctx context.Context, req TrimRequest) error {
	f.requests = append(f.requests, req)
	if f.failOn[req.Input] || f.failOn[filepath.Base(req.Output)] {
		return errors.New("exit status 1")
	}
	return os.WriteFile(req.Output, []byte("trimmed"), 0644)
}

// fakeConcat records its inputs and writes the output unless err is set.
type fakeConcat struct {
	inputs   []string
	reencode bool
	err      error
	called   bool
}

func (f *fakeConcat) Concat(ctx context.Context, inputs []string, output string, reencode bool) error {
	f.called = true
	f.inputs = append([]string(nil), inputs...)
	f.reencode = reencode
	if f.err != nil {
		// leave a partial file the way a dying ffmpeg would
		_ = os.WriteFile(output, []byte("partial"), 0644)
		return f.err
	}
	return os.WriteFile(output, []byte("combined"), 0644)
}

func at(h, m, s int) time.Time {
	return time.Date(2024, 1, 1, h, m, s, 0, ist)
}

func assertNoWorkDirs(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", dir, err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".extract-") {
			t.Errorf("Working directory %s was not removed", e.Name())
		}
	}
}
