package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cam-chunker/recording"
)

// FileName is the manifest's name inside the output folder.
const FileName = "manifest.json"

// TimeLayout is RFC 3339 with up to microsecond precision, zone offset included.
const TimeLayout = "2006-01-02T15:04:05.999999Z07:00"

// Entry describes one output file: the combined clip or a chunk.
type Entry struct {
	Camera    string
	File      string // base name inside the output folder
	StartTime time.Time
	EndTime   time.Time
}

type entryJSON struct {
	Camera    string `json:"camera"`
	File      string `json:"file"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		Camera:    e.Camera,
		File:      e.File,
		StartTime: e.StartTime.Format(TimeLayout),
		EndTime:   e.EndTime.Format(TimeLayout),
	})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := time.Parse(time.RFC3339Nano, raw.StartTime)
	if err != nil {
		return fmt.Errorf("invalid start_time: %w", err)
	}
	end, err := time.Parse(time.RFC3339Nano, raw.EndTime)
	if err != nil {
		return fmt.Errorf("invalid end_time: %w", err)
	}
	*e = Entry{Camera: raw.Camera, File: raw.File, StartTime: start, EndTime: end}
	return nil
}

// Build returns the combined clip entry followed by one entry per chunk.
// The combined clip is described by the requested window.
func Build(camera, clipPath string, window recording.TimeWindow, chunks []recording.Chunk) []Entry {
	entries := make([]Entry, 0, len(chunks)+1)
	entries = append(entries, Entry{
		Camera:    camera,
		File:      filepath.Base(clipPath),
		StartTime: window.Start,
		EndTime:   window.End,
	})
	for _, c := range chunks {
		entries = append(entries, Entry{
			Camera:    camera,
			File:      filepath.Base(c.Path),
			StartTime: c.Start,
			EndTime:   c.End,
		})
	}
	return entries
}

// Write stores entries at path as an indented JSON array. The file is written
// to a temporary name in the same directory and renamed into place.
func Write(path string, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*.json")
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close manifest: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set manifest permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to publish manifest: %w", err)
	}
	return nil
}

// Read loads a manifest written by Write.
func Read(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return entries, nil
}
