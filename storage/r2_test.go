package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// TestNewR2Storage tests the creation of a new R2Storage instance
func TestNewR2Storage(t *testing.T) {
	config := R2Config{
		AccessKey: "test-access-key",
		SecretKey: "test-secret-key",
		AccountID: "test-account-id",
		Bucket:    "test-bucket",
	}

	r2, err := NewR2Storage(config)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if r2.config.Endpoint != "https://test-account-id.r2.cloudflarestorage.com" {
		t.Errorf("Expected endpoint to be set, got: %s", r2.config.Endpoint)
	}
	if r2.config.Region != "auto" {
		t.Errorf("Expected default region auto, got: %s", r2.config.Region)
	}

	// Test with custom endpoint
	config.Endpoint = "https://custom.endpoint.com"
	r2, err = NewR2Storage(config)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if r2.config.Endpoint != "https://custom.endpoint.com" {
		t.Errorf("Expected custom endpoint, got: %s", r2.config.Endpoint)
	}
	if r2.GetBaseURL() != "https://custom.endpoint.com/test-bucket" {
		t.Errorf("Expected endpoint/bucket base URL, got: %s", r2.GetBaseURL())
	}
}

func TestObjectKeyAndPublicURL(t *testing.T) {
	r2, err := NewR2Storage(R2Config{Bucket: "clips", BaseURL: "https://media.example.com/", Prefix: "/footage/"})
	if err != nil {
		t.Fatalf("NewR2Storage failed: %v", err)
	}

	key := r2.ObjectKey("cam1", "2024-01-01", "run-1", "cam1_090500_091000.mp4")
	if key != "footage/cam1/2024-01-01/run-1/cam1_090500_091000.mp4" {
		t.Errorf("Unexpected key %s", key)
	}
	if got := r2.PublicURL(key); got != "https://media.example.com/footage/cam1/2024-01-01/run-1/cam1_090500_091000.mp4" {
		t.Errorf("Unexpected public URL %s", got)
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"clip.mp4":      "video/mp4",
		"CLIP.MP4":      "video/mp4",
		"manifest.json": "application/json",
		"notes.txt":     "application/octet-stream",
	}
	for name, want := range tests {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%s) = %s, want %s", name, got, want)
		}
	}
}

// fakeS3 accepts path-style PutObject and HeadObject requests, failing the
// first failures PUTs.
type fakeS3 struct {
	mu       sync.Mutex
	failures int
	attempts int
	objects  map[string][]byte
	types    map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Method == http.MethodHead {
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	f.attempts++
	body, _ := io.ReadAll(r.Body)
	if f.failures > 0 {
		f.failures--
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `<Error><Code>InvalidRequest</Code><Message>try again</Message></Error>`)
		return
	}
	f.objects[r.URL.Path] = body
	f.types[r.URL.Path] = r.Header.Get("Content-Type")
	w.Header().Set("ETag", `"etag"`)
	w.WriteHeader(http.StatusOK)
}

func newTestR2(t *testing.T, failures int) (*R2Storage, *fakeS3) {
	t.Helper()
	fake := &fakeS3{failures: failures, objects: map[string][]byte{}, types: map[string]string{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	r2, err := NewR2Storage(R2Config{
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "clips",
		Endpoint:  server.URL,
		BaseURL:   "https://media.example.com",
	})
	if err != nil {
		t.Fatalf("NewR2Storage failed: %v", err)
	}
	r2.backoff = func(int) time.Duration { return 0 }
	return r2, fake
}

func writeClip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cam1_090500_091000.mp4")
	if err := os.WriteFile(path, []byte("fake mp4 content"), 0644); err != nil {
		t.Fatalf("Failed to create test MP4 file: %v", err)
	}
	return path
}

func TestUploadFile(t *testing.T) {
	r2, fake := newTestR2(t, 0)
	clip := writeClip(t)

	url, err := r2.UploadFile(context.Background(), clip, "cam1/2024-01-01/cam1_090500_091000.mp4")
	if err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}
	if url != "https://media.example.com/cam1/2024-01-01/cam1_090500_091000.mp4" {
		t.Errorf("Unexpected URL %s", url)
	}

	got, ok := fake.objects["/clips/cam1/2024-01-01/cam1_090500_091000.mp4"]
	if !ok {
		t.Fatalf("Expected object to be stored, have %v", fake.objects)
	}
	if string(got) != "fake mp4 content" {
		t.Errorf("Unexpected uploaded body %q", got)
	}
	if ct := fake.types["/clips/cam1/2024-01-01/cam1_090500_091000.mp4"]; ct != "video/mp4" {
		t.Errorf("Expected video/mp4 content type, got %s", ct)
	}
}

func TestUploadFileRetries(t *testing.T) {
	r2, fake := newTestR2(t, 2)

	if _, err := r2.UploadFile(context.Background(), writeClip(t), "k.mp4"); err != nil {
		t.Fatalf("Expected upload to succeed on third attempt, got %v", err)
	}
	if fake.attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", fake.attempts)
	}
}

func TestUploadFileGivesUp(t *testing.T) {
	r2, fake := newTestR2(t, maxUploadAttempts)

	if _, err := r2.UploadFile(context.Background(), writeClip(t), "k.mp4"); err == nil {
		t.Fatal("Expected upload to fail after all attempts")
	}
	if fake.attempts != maxUploadAttempts {
		t.Errorf("Expected %d attempts, got %d", maxUploadAttempts, fake.attempts)
	}
}

func TestObjectExists(t *testing.T) {
	r2, fake := newTestR2(t, 0)
	fake.objects["/clips/cam1/2024-01-01/run-1/manifest.json"] = []byte("[]")

	ok, err := r2.ObjectExists(context.Background(), "cam1/2024-01-01/run-1/manifest.json")
	if err != nil || !ok {
		t.Errorf("Expected stored object to exist, got %v, %v", ok, err)
	}
	ok, err = r2.ObjectExists(context.Background(), "cam1/2024-01-01/run-2/manifest.json")
	if err != nil || ok {
		t.Errorf("Expected missing object to report false without error, got %v, %v", ok, err)
	}
}

func TestUploadFileMissing(t *testing.T) {
	r2, _ := newTestR2(t, 0)
	_, err := r2.UploadFile(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"), "k.mp4")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()

	if _, err := CheckFreeSpace(dir, 0); err != nil {
		t.Errorf("Expected disabled check to pass, got %v", err)
	}
	if _, err := CheckFreeSpace(dir, 1); err != nil {
		t.Errorf("Expected 1 MB to be available, got %v", err)
	}
	_, err := CheckFreeSpace(dir, 1<<50)
	if !errors.Is(err, ErrInsufficientSpace) {
		t.Errorf("Expected ErrInsufficientSpace, got %v", err)
	}
}

func TestEnsurePath(t *testing.T) {
	base := t.TempDir()
	got, err := EnsurePath(base, "output", "cam1")
	if err != nil {
		t.Fatalf("EnsurePath failed: %v", err)
	}
	if info, err := os.Stat(got); err != nil || !info.IsDir() {
		t.Errorf("Expected directory at %s", got)
	}
}
