package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // reference zone must resolve on hosts without zoneinfo

	"gopkg.in/yaml.v3"

	"cam-chunker/recording"
)

// R2Config holds the Cloudflare R2 publishing settings.
type R2Config struct {
	Enabled   bool   `yaml:"enabled"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	AccountID string `yaml:"account_id"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	BaseURL   string `yaml:"base_url"` // public URL prefix for uploaded objects
	Prefix    string `yaml:"prefix"`   // key prefix inside the bucket
}

// ScheduleConfig drives the daily extraction job in server mode.
type ScheduleConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Cron      string   `yaml:"cron"`       // six-field spec, seconds first
	Cameras   []string `yaml:"cameras"`    // defaults to the top-level camera
	DayOffset int      `yaml:"day_offset"` // 1 processes yesterday's footage
}

// Config contains all configuration for the application
type Config struct {
	// Extraction request
	Camera      string `yaml:"camera"`
	Date        string `yaml:"date"`       // YYYY-MM-DD
	StartTime   string `yaml:"start_time"` // HH:MM
	EndTime     string `yaml:"end_time"`   // HH:MM
	ChunkLength int    `yaml:"chunk_length"`
	Reencode    bool   `yaml:"reencode"`

	// Folders
	InputFolder  string `yaml:"input_folder"`
	OutputFolder string `yaml:"output_folder"`

	// Reference zone for source file names and manifest timestamps
	Timezone string `yaml:"timezone"`

	// Media tools
	FFmpegPath         string `yaml:"ffmpeg_path"`
	FFprobePath        string `yaml:"ffprobe_path"`
	HardwareAccel      string `yaml:"hardware_accel"` // nvidia, intel, amd, software or auto
	Codec              string `yaml:"codec"`          // h264 or hevc
	ToolTimeoutSeconds int    `yaml:"tool_timeout_seconds"`

	// Free space required in the output folder before a run starts, 0 disables the check
	MinFreeSpaceMB uint64 `yaml:"min_free_space_mb"`

	// Server Configuration
	DatabasePath string `yaml:"database_path"`
	ServerPort   string `yaml:"server_port"`

	R2       R2Config       `yaml:"r2"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// Default returns a configuration populated with default values.
func Default() Config {
	return Config{
		StartTime:    "09:00",
		EndTime:      "12:00",
		ChunkLength:  300,
		Reencode:     false,
		InputFolder:  ".",
		OutputFolder: "./output",
		Timezone:     "Asia/Kolkata",
		FFmpegPath:   "ffmpeg",
		FFprobePath:  "ffprobe",
		Codec:        "h264",
		DatabasePath: "./data/runs.db",
		ServerPort:   "3000",
		R2: R2Config{
			Region: "auto",
		},
		Schedule: ScheduleConfig{
			Cron:      "0 30 0 * * *",
			DayOffset: 1,
		},
	}
}

// LoadConfig reads the YAML file at path on top of the defaults and then
// applies environment overrides. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overrides secrets and deployment settings from the environment.
func applyEnv(cfg *Config) {
	cfg.DatabasePath = getEnv("DATABASE_PATH", cfg.DatabasePath)
	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.Timezone = getEnv("TIMEZONE", cfg.Timezone)

	cfg.R2.AccessKey = getEnv("R2_ACCESS_KEY", cfg.R2.AccessKey)
	cfg.R2.SecretKey = getEnv("R2_SECRET_KEY", cfg.R2.SecretKey)
	cfg.R2.AccountID = getEnv("R2_ACCOUNT_ID", cfg.R2.AccountID)
	cfg.R2.Bucket = getEnv("R2_BUCKET", cfg.R2.Bucket)
	cfg.R2.Endpoint = getEnv("R2_ENDPOINT", cfg.R2.Endpoint)
	cfg.R2.Region = getEnv("R2_REGION", cfg.R2.Region)
	cfg.R2.BaseURL = getEnv("R2_BASE_URL", cfg.R2.BaseURL)

	if v := getEnv("R2_ENABLED", ""); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			log.Printf("Warning: ignoring invalid R2_ENABLED value %q", v)
		} else {
			cfg.R2.Enabled = enabled
		}
	}
}

// getEnv returns environment variable or fallback value
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Location resolves the configured reference time zone.
func (c Config) Location() (*time.Location, error) {
	name := c.Timezone
	if name == "" {
		name = "Asia/Kolkata"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// ToolTimeout returns the per-invocation limit for ffmpeg and ffprobe, 0 for none.
func (c Config) ToolTimeout() time.Duration {
	if c.ToolTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.ToolTimeoutSeconds) * time.Second
}

// ScheduledCameras returns the cameras the scheduler should process.
func (c Config) ScheduledCameras() []string {
	if len(c.Schedule.Cameras) > 0 {
		return c.Schedule.Cameras
	}
	if c.Camera != "" {
		return []string{c.Camera}
	}
	return nil
}

// EnsurePaths creates necessary paths
func EnsurePaths(cfg Config) {
	dbDir := filepath.Dir(cfg.DatabasePath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		log.Printf("Failed to create database directory %s: %v", dbDir, err)
	}
	if err := os.MkdirAll(cfg.OutputFolder, 0755); err != nil {
		log.Printf("Failed to create output folder %s: %v", cfg.OutputFolder, err)
	}
}

// Job is a validated extraction request ready to hand to the pipeline.
type Job struct {
	Camera       string
	Date         time.Time // midnight of the requested day in Location
	Window       recording.TimeWindow
	ChunkLength  int // seconds
	Reencode     bool
	InputFolder  string
	OutputFolder string
	Location     *time.Location
}

// Job validates the request fields of the configuration.
func (c Config) Job() (Job, error) {
	if strings.TrimSpace(c.Camera) == "" {
		return Job{}, errors.New("camera not specified in config")
	}
	if strings.TrimSpace(c.Date) == "" {
		return Job{}, errors.New("date not specified in config")
	}
	loc, err := c.Location()
	if err != nil {
		return Job{}, err
	}
	date, err := time.ParseInLocation("2006-01-02", c.Date, loc)
	if err != nil {
		return Job{}, errors.New("invalid date format, expected YYYY-MM-DD")
	}
	return c.JobFor(c.Camera, date)
}

// JobFor builds a job for camera on the calendar day of date, using the
// configured window and chunking settings.
func (c Config) JobFor(camera string, date time.Time) (Job, error) {
	if strings.TrimSpace(camera) == "" {
		return Job{}, errors.New("camera not specified in config")
	}
	loc, err := c.Location()
	if err != nil {
		return Job{}, err
	}

	start, err := parseClock(c.StartTime, "09:00")
	if err != nil {
		return Job{}, err
	}
	end, err := parseClock(c.EndTime, "12:00")
	if err != nil {
		return Job{}, err
	}

	y, m, d := date.In(loc).Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	window := recording.TimeWindow{
		Start: time.Date(y, m, d, start.Hour(), start.Minute(), 0, 0, loc),
		End:   time.Date(y, m, d, end.Hour(), end.Minute(), 0, 0, loc),
	}
	if !window.End.After(window.Start) {
		return Job{}, fmt.Errorf("end_time must be after start_time: %w", recording.ErrInvalidWindow)
	}

	if c.ChunkLength <= 0 {
		return Job{}, fmt.Errorf("chunk_length must be a positive integer (seconds), got %d", c.ChunkLength)
	}

	input := c.InputFolder
	if input == "" {
		input = "."
	}
	output := c.OutputFolder
	if output == "" {
		output = "./output"
	}

	return Job{
		Camera:       camera,
		Date:         day,
		Window:       window,
		ChunkLength:  c.ChunkLength,
		Reencode:     c.Reencode,
		InputFolder:  input,
		OutputFolder: output,
		Location:     loc,
	}, nil
}

func parseClock(value, fallback string) (time.Time, error) {
	if value == "" {
		value = fallback
	}
	t, err := time.Parse("15:04", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time format %q, expected HH:MM", value)
	}
	return t, nil
}
