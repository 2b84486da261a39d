package service

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"cam-chunker/config"
	"cam-chunker/database"
	"cam-chunker/recording"
)

var ist = time.FixedZone("IST", 5*3600+30*60)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// mockDatabase implements the Database interface for testing
type mockDatabase struct {
	mu      sync.Mutex
	runs    map[string]database.Run
	outputs map[string][]database.RunOutput
}

func newMockDatabase() *mockDatabase {
	return &mockDatabase{
		runs:    make(map[string]database.Run),
		outputs: make(map[string][]database.RunOutput),
	}
}

func (m *mockDatabase) CreateRun(run database.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *mockDatabase) GetRun(id string) (*database.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run, exists := m.runs[id]; exists {
		return &run, nil
	}
	return nil, nil
}

func (m *mockDatabase) UpdateRun(run database.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *mockDatabase) ListRuns(limit, offset int) ([]database.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []database.Run
	for _, run := range m.runs {
		all = append(all, run)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, limit, offset), nil
}

func (m *mockDatabase) DeleteRun(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, id)
	delete(m.outputs, id)
	return nil
}

func (m *mockDatabase) GetRunsByStatus(status database.RunStatus, limit, offset int) ([]database.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []database.Run
	for _, run := range m.runs {
		if run.Status == status {
			matched = append(matched, run)
		}
	}
	return page(matched, limit, offset), nil
}

func (m *mockDatabase) UpdateRunStatus(id string, status database.RunStatus, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return errors.New("run not found")
	}
	run.Status = status
	run.ErrorMessage = errorMsg
	m.runs[id] = run
	return nil
}

func (m *mockDatabase) AddRunOutput(output database.RunOutput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	outs := m.outputs[output.RunID]
	for i := range outs {
		if outs[i].File == output.File {
			outs[i] = output
			return nil
		}
	}
	m.outputs[output.RunID] = append(outs, output)
	return nil
}

func (m *mockDatabase) GetRunOutputs(runID string) ([]database.RunOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.RunOutput(nil), m.outputs[runID]...), nil
}

func (m *mockDatabase) UpdateOutputR2(runID, file, key, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	outs := m.outputs[runID]
	for i := range outs {
		if outs[i].File == file {
			outs[i].R2Key = key
			outs[i].R2URL = url
			return nil
		}
	}
	return errors.New("output not found")
}

func (m *mockDatabase) Close() error {
	return nil
}

func page(runs []database.Run, limit, offset int) []database.Run {
	if offset >= len(runs) {
		return nil
	}
	runs = runs[offset:]
	if limit < len(runs) {
		runs = runs[:limit]
	}
	return runs
}

// fakeMedia probes by base name and writes placeholder files for trims and
// concatenations. Paths it does not know probe as clipDuration.
type fakeMedia struct {
	mu           sync.Mutex
	durations    map[string]float64
	clipDuration float64
	failTrim     map[string]bool // keyed by output base name
	concatErr    error
	trims        []recording.TrimRequest
	block        chan struct{} // when set, Concat waits for it to close
}

func (f *fakeMedia) Duration(ctx context.Context, path string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.durations[filepath.Base(path)]; ok {
		return d, nil
	}
	return f.clipDuration, nil
}

func (f *fakeMedia) Trim(ctx context.Context, req recording.TrimRequest) error {
	f.mu.Lock()
	f.trims = append(f.trims, req)
	fail := f.failTrim[filepath.Base(req.Output)]
	f.mu.Unlock()
	if fail {
		return errors.New("exit status 1")
	}
	return os.WriteFile(req.Output, []byte("trimmed"), 0644)
}

func (f *fakeMedia) Concat(ctx context.Context, inputs []string, output string, reencode bool) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.concatErr != nil {
		return f.concatErr
	}
	return os.WriteFile(output, []byte("combined"), 0644)
}

// fakeUploader records uploads and fails files listed in fail.
type fakeUploader struct {
	mu       sync.Mutex
	uploaded map[string]string // key -> local path
	fail     map[string]bool   // keyed by file base name
	puts     int
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{uploaded: make(map[string]string), fail: make(map[string]bool)}
}

func (u *fakeUploader) ObjectKey(camera, date, runID, file string) string {
	return "footage/" + camera + "/" + date + "/" + runID + "/" + file
}

func (u *fakeUploader) ObjectExists(ctx context.Context, key string) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.uploaded[key]
	return ok, nil
}

func (u *fakeUploader) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func (u *fakeUploader) UploadFile(ctx context.Context, localPath, remotePath string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fail[filepath.Base(localPath)] {
		return "", errors.New("upload failed")
	}
	u.uploaded[remotePath] = localPath
	u.puts++
	return "https://cdn.example.com/" + remotePath, nil
}

// writeSources creates two ten-minute cam1 recordings starting 09:00 and 09:10
// plus files that must not be picked up.
func writeSources(t *testing.T, dir string) {
	t.Helper()
	for _, name := range []string{
		"cam1_20240101090000.mp4",
		"cam1_20240101091000.mp4",
		"cam1_20240102090000.mp4",
		"cam2_20240101090000.mp4",
		"notes.txt",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("src"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
}

func scenarioMedia() *fakeMedia {
	return &fakeMedia{
		durations: map[string]float64{
			"cam1_20240101090000.mp4": 600,
			"cam1_20240101091000.mp4": 600,
		},
		clipDuration: 420,
		failTrim:     map[string]bool{},
	}
}

// scenarioJob asks for cam1 09:05-09:12 on 2024-01-01 in five-minute chunks.
func scenarioJob(input, output string) config.Job {
	return config.Job{
		Camera: "cam1",
		Date:   time.Date(2024, 1, 1, 0, 0, 0, 0, ist),
		Window: recording.TimeWindow{
			Start: time.Date(2024, 1, 1, 9, 5, 0, 0, ist),
			End:   time.Date(2024, 1, 1, 9, 12, 0, 0, ist),
		},
		ChunkLength:  300,
		InputFolder:  input,
		OutputFolder: output,
		Location:     ist,
	}
}
