package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cam-chunker/config"
	"cam-chunker/database"
	"cam-chunker/recording"
	"cam-chunker/service"

	"github.com/spf13/cobra"
)

func newTestRunCmd() *cobra.Command {
	c := &cobra.Command{Use: "run"}
	c.Flags().StringVar(&configPath, "config", defaultConfigPath, "")
	addRunFlags(c)
	return c
}

func TestApplyRunFlags(t *testing.T) {
	c := newTestRunCmd()
	if err := c.ParseFlags([]string{"--camera", "cam7", "--start", "10:00", "--chunk-length", "60", "--reencode"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}

	cfg := config.Default()
	cfg.Camera = "cam1"
	cfg.EndTime = "11:00"
	applyRunFlags(c, &cfg)

	if cfg.Camera != "cam7" || cfg.StartTime != "10:00" || cfg.ChunkLength != 60 || !cfg.Reencode {
		t.Errorf("Flags not applied: %+v", cfg)
	}
	if cfg.EndTime != "11:00" {
		t.Errorf("Expected unset flag to keep config value, got %q", cfg.EndTime)
	}
}

func TestLoadConfigMissingDefault(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	c := newTestRunCmd()
	if err := c.ParseFlags(nil); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		t.Fatalf("Expected defaults without config.yaml, got %v", err)
	}
	if cfg.ChunkLength != 300 {
		t.Errorf("Expected default chunk length, got %d", cfg.ChunkLength)
	}

	c = newTestRunCmd()
	if err := c.ParseFlags([]string{"--config", filepath.Join(dir, "missing.yaml")}); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(c); err == nil {
		t.Error("Expected error for explicitly named missing config")
	}
}

func TestPrintResult(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+30*60)
	start := time.Date(2024, 1, 1, 9, 5, 0, 0, loc)
	res := &service.RunResult{
		RunID:  "run-1",
		Status: database.StatusPartial,
		Job: config.Job{
			Camera: "cam1",
			Window: recording.TimeWindow{Start: start, End: start.Add(7 * time.Minute)},
		},
		CombinedPath:  "/out/cam1_20240101_090500_091200.mp4",
		ManifestPath:  "/out/manifest.json",
		ChunksPlanned: 2,
		Chunks: []recording.Chunk{
			{Index: 0, Path: "/out/cam1_090500_091000.mp4", Start: start, End: start.Add(5 * time.Minute)},
		},
		Extraction: &recording.Extraction{Dropped: 1},
	}

	var buf bytes.Buffer
	printResult(&buf, res)
	out := buf.String()

	for _, want := range []string{"run-1", "partial", "1 of 2", "cam1_090500_091000.mp4", "1 source file(s) dropped", "Manifest saved to /out/manifest.json"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q:\n%s", want, out)
		}
	}
}
