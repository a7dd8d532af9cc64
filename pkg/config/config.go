// Package config loads the time-lapse manifest.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/video-system/go-timelapse/pkg/schedule"
)

// ErrInvalid is returned when a manifest fails validation
var ErrInvalid = errors.New("invalid manifest")

// Manifest holds all time-lapse configuration
type Manifest struct {
	Config   RunConfig     `yaml:"config" envPrefix:"TIMELAPSE_"`
	Export   ExportConfig  `yaml:"export" envPrefix:"TIMELAPSE_EXPORT_"`
	Catalog  CatalogConfig `yaml:"catalog" envPrefix:"TIMELAPSE_CATALOG_"`
	API      APIConfig     `yaml:"api" envPrefix:"TIMELAPSE_API_"`
	Settings Settings      `yaml:"settings"` // Device settings, parsed by the capture backend
}

// RunConfig configures sampling and where artifacts go
type RunConfig struct {
	OutputFolder string `yaml:"output_folder" env:"OUTPUT_FOLDER"`
	LogFolder    string `yaml:"log_folder" env:"LOG_FOLDER"` // Empty logs to stderr only
	LockFile     string `yaml:"lock_file" env:"LOCK_FILE"`   // Removing it stops the run

	SampleInterval time.Duration `yaml:"sample_interval" env:"SAMPLE_INTERVAL"` // Time between frames (5s)
	SampleIdle     time.Duration `yaml:"sample_idle" env:"SAMPLE_IDLE"`         // Poll granularity (100ms)
	TimeScale      float64       `yaml:"time_scale" env:"TIME_SCALE"`
	MaxSamples     int           `yaml:"max_samples" env:"MAX_SAMPLES"` // 0 runs until the lock is removed

	UseNTP  bool   `yaml:"use_ntp" env:"USE_NTP"`
	NTPHost string `yaml:"ntp_host" env:"NTP_HOST"`
}

// ExportConfig configures video assembly
type ExportConfig struct {
	ExportFile      string `yaml:"export_file" env:"FILE"`
	ExportFramerate int    `yaml:"export_framerate" env:"FRAMERATE"`
	Pattern         string `yaml:"pattern" env:"PATTERN"`
}

// CatalogConfig configures the SQLite frame catalog
type CatalogConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

// APIConfig configures the status API
type APIConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Host    string `yaml:"host" env:"HOST"`
	Port    int    `yaml:"port" env:"PORT"`
}

// Addr returns host:port
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load loads a manifest from a YAML file, applies TIMELAPSE_* environment
// overrides and defaults, and validates it
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data)
}

// Parse is Load for manifest bytes
func Parse(data []byte) (*Manifest, error) {
	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if err := ParseEnv(&m); err != nil {
		return nil, err
	}

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Config.SampleIdle <= 0 {
		m.Config.SampleIdle = 100 * time.Millisecond
	}
	if m.Config.TimeScale <= 0 {
		m.Config.TimeScale = 1
	}
	if m.Config.LockFile == "" && m.Config.OutputFolder != "" {
		m.Config.LockFile = filepath.Join(m.Config.OutputFolder, "timelapse.lock")
	}
	if m.Config.UseNTP && m.Config.NTPHost == "" {
		m.Config.NTPHost = schedule.DefaultNTPHost
	}

	if m.Export.ExportFile == "" {
		m.Export.ExportFile = "output.webm"
	}
	if m.Export.ExportFramerate == 0 {
		m.Export.ExportFramerate = 24
	}
	if m.Export.Pattern == "" {
		m.Export.Pattern = "*.png"
	}

	if m.Catalog.Enabled && m.Catalog.Path == "" && m.Config.OutputFolder != "" {
		m.Catalog.Path = filepath.Join(m.Config.OutputFolder, "frames.db")
	}

	if m.API.Host == "" {
		m.API.Host = "127.0.0.1"
	}
	if m.API.Port == 0 {
		m.API.Port = 8080
	}

	if m.Settings == nil {
		m.Settings = Settings{}
	}
}

// MinSampleInterval keeps successive frames on distinct millisecond
// timestamps, which frame names are built from
const MinSampleInterval = time.Millisecond

// Validate reports the first invalid field
func (m *Manifest) Validate() error {
	switch {
	case m.Config.OutputFolder == "":
		return fmt.Errorf("%w: config.output_folder is required", ErrInvalid)
	case m.Config.LockFile == "":
		return fmt.Errorf("%w: config.lock_file is required", ErrInvalid)
	case m.Config.SampleInterval < MinSampleInterval:
		return fmt.Errorf("%w: config.sample_interval must be at least %s, got %s", ErrInvalid, MinSampleInterval, m.Config.SampleInterval)
	case m.Export.ExportFramerate < 0:
		return fmt.Errorf("%w: export.export_framerate must be positive, got %d", ErrInvalid, m.Export.ExportFramerate)
	case m.API.Port < 0 || m.API.Port > 65535:
		return fmt.Errorf("%w: api.port %d out of range", ErrInvalid, m.API.Port)
	}
	return nil
}

// Schedule returns the scheduler configuration
func (m *Manifest) Schedule() schedule.Config {
	limit := m.Config.MaxSamples
	if limit <= 0 {
		limit = schedule.Unbounded
	}
	return schedule.Config{
		Interval:   m.Config.SampleInterval,
		Idle:       m.Config.SampleIdle,
		TimeScale:  m.Config.TimeScale,
		MaxSamples: limit,
	}
}

// ExportPath resolves the export file to an absolute path
func (m *Manifest) ExportPath() (string, error) {
	path, err := filepath.Abs(m.Export.ExportFile)
	if err != nil {
		return "", fmt.Errorf("resolve export path: %w", err)
	}
	return path, nil
}
