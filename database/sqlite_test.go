package database

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create SQLite database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testRun(id string, created time.Time) Run {
	loc := time.FixedZone("IST", 5*3600+30*60)
	return Run{
		ID:           id,
		Trigger:      "cli",
		Camera:       "cam1",
		Date:         "2024-01-01",
		WindowStart:  time.Date(2024, 1, 1, 9, 5, 0, 0, loc),
		WindowEnd:    time.Date(2024, 1, 1, 9, 12, 0, 0, loc),
		ChunkLength:  300,
		Status:       StatusProcessing,
		CreatedAt:    created,
		OutputFolder: "/out",
	}
}

// TestSQLiteDB tests SQLite database operations
func TestSQLiteDB(t *testing.T) {
	db := newTestDB(t)

	testCreateAndGetRun(t, db)
	testListRuns(t, db)
	testUpdateRunStatus(t, db)
	testRunOutputs(t, db)
	testDeleteRun(t, db)
}

// testCreateAndGetRun tests creating and retrieving a run
func testCreateAndGetRun(t *testing.T, db *SQLiteDB) {
	run := testRun("run-1", time.Now().Add(-2*time.Hour))
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}

	retrieved, err := db.GetRun("run-1")
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	if retrieved == nil {
		t.Fatal("Retrieved run is nil")
	}
	if retrieved.Camera != "cam1" || retrieved.Date != "2024-01-01" || retrieved.ChunkLength != 300 {
		t.Errorf("Unexpected run fields: %+v", retrieved)
	}
	if !retrieved.WindowStart.Equal(run.WindowStart) || !retrieved.WindowEnd.Equal(run.WindowEnd) {
		t.Errorf("Window mismatch: got %s - %s", retrieved.WindowStart, retrieved.WindowEnd)
	}
	if retrieved.Status != StatusProcessing {
		t.Errorf("Expected status %s, got %s", StatusProcessing, retrieved.Status)
	}
	if retrieved.FinishedAt != nil {
		t.Error("Expected FinishedAt to be nil for a processing run")
	}

	// Update counters the way the pipeline does at the end of a run
	now := time.Now()
	retrieved.Status = StatusPartial
	retrieved.FinishedAt = &now
	retrieved.SourceCount = 4
	retrieved.DroppedSources = 1
	retrieved.ChunksPlanned = 2
	retrieved.ChunksWritten = 2
	retrieved.Duration = 420
	retrieved.ManifestPath = "/out/manifest.json"
	if err := db.UpdateRun(*retrieved); err != nil {
		t.Fatalf("Failed to update run: %v", err)
	}

	updated, err := db.GetRun("run-1")
	if err != nil {
		t.Fatalf("Failed to get updated run: %v", err)
	}
	if updated.Status != StatusPartial || updated.Duration != 420 || updated.DroppedSources != 1 {
		t.Errorf("Update not persisted: %+v", updated)
	}
	if updated.FinishedAt == nil {
		t.Error("Expected FinishedAt to be set")
	}

	missing, err := db.GetRun("nope")
	if err != nil {
		t.Fatalf("Expected no error for missing run, got %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for missing run")
	}
}

// testListRuns tests listing runs newest first
func testListRuns(t *testing.T, db *SQLiteDB) {
	if err := db.CreateRun(testRun("run-2", time.Now().Add(-time.Hour))); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}
	if err := db.CreateRun(testRun("run-3", time.Now())); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}

	runs, err := db.ListRuns(10, 0)
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-3" || runs[2].ID != "run-1" {
		t.Errorf("Expected newest first, got %s, %s, %s", runs[0].ID, runs[1].ID, runs[2].ID)
	}

	page, err := db.ListRuns(1, 1)
	if err != nil {
		t.Fatalf("Failed to list runs with offset: %v", err)
	}
	if len(page) != 1 || page[0].ID != "run-2" {
		t.Errorf("Expected run-2 on second page, got %+v", page)
	}

	processing, err := db.GetRunsByStatus(StatusProcessing, 10, 0)
	if err != nil {
		t.Fatalf("Failed to get runs by status: %v", err)
	}
	if len(processing) != 2 {
		t.Errorf("Expected 2 processing runs, got %d", len(processing))
	}
}

// testUpdateRunStatus tests status transitions
func testUpdateRunStatus(t *testing.T, db *SQLiteDB) {
	if err := db.UpdateRunStatus("run-2", StatusFailed, "no input files found"); err != nil {
		t.Fatalf("Failed to update run status: %v", err)
	}

	run, err := db.GetRun("run-2")
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	if run.Status != StatusFailed {
		t.Errorf("Expected status %s, got %s", StatusFailed, run.Status)
	}
	if run.ErrorMessage != "no input files found" {
		t.Errorf("Unexpected error message %q", run.ErrorMessage)
	}
	if run.FinishedAt == nil {
		t.Error("Expected FinishedAt to be set for a failed run")
	}
}

// testRunOutputs tests recording outputs and their R2 locations
func testRunOutputs(t *testing.T, db *SQLiteDB) {
	run, _ := db.GetRun("run-1")
	chunkStart := run.WindowStart.Add(5 * time.Minute)

	outputs := []RunOutput{
		{RunID: "run-1", Kind: KindManifest, File: "manifest.json", Path: "/out/manifest.json"},
		{RunID: "run-1", Kind: KindChunk, File: "cam1_091000_091200.mp4", Path: "/out/cam1_091000_091200.mp4", StartTime: &chunkStart, EndTime: &run.WindowEnd, Size: 10},
		{RunID: "run-1", Kind: KindChunk, File: "cam1_090500_091000.mp4", Path: "/out/cam1_090500_091000.mp4", StartTime: &run.WindowStart, EndTime: &chunkStart, Size: 20},
		{RunID: "run-1", Kind: KindCombined, File: "cam1_20240101_090500_091200.mp4", Path: "/out/cam1_20240101_090500_091200.mp4", StartTime: &run.WindowStart, EndTime: &run.WindowEnd, Size: 30},
	}
	for _, o := range outputs {
		if err := db.AddRunOutput(o); err != nil {
			t.Fatalf("Failed to add output %s: %v", o.File, err)
		}
	}

	got, err := db.GetRunOutputs("run-1")
	if err != nil {
		t.Fatalf("Failed to get outputs: %v", err)
	}
	want := []string{"cam1_20240101_090500_091200.mp4", "cam1_090500_091000.mp4", "cam1_091000_091200.mp4", "manifest.json"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d outputs, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].File != want[i] {
			t.Errorf("Output %d: expected %s, got %s", i, want[i], got[i].File)
		}
	}
	if got[3].StartTime != nil {
		t.Error("Expected manifest output to have no start time")
	}

	if err := db.UpdateOutputR2("run-1", "manifest.json", "cam1/2024-01-01/manifest.json", "https://cdn.example.com/cam1/2024-01-01/manifest.json"); err != nil {
		t.Fatalf("Failed to update output R2: %v", err)
	}
	got, _ = db.GetRunOutputs("run-1")
	if got[3].R2URL != "https://cdn.example.com/cam1/2024-01-01/manifest.json" {
		t.Errorf("R2 URL not persisted, got %q", got[3].R2URL)
	}

	if err := db.UpdateOutputR2("run-1", "missing.mp4", "k", "u"); err == nil {
		t.Error("Expected error updating an unknown output")
	}
}

// testDeleteRun tests that deleting a run removes its outputs
func testDeleteRun(t *testing.T, db *SQLiteDB) {
	if err := db.DeleteRun("run-1"); err != nil {
		t.Fatalf("Failed to delete run: %v", err)
	}
	run, err := db.GetRun("run-1")
	if err != nil {
		t.Fatalf("Failed to get deleted run: %v", err)
	}
	if run != nil {
		t.Error("Run still exists after deletion")
	}
	outputs, err := db.GetRunOutputs("run-1")
	if err != nil {
		t.Fatalf("Failed to get outputs: %v", err)
	}
	if len(outputs) != 0 {
		t.Errorf("Expected outputs to be removed with the run, got %d", len(outputs))
	}
}
