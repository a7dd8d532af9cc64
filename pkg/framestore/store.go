// Package framestore persists captured frames as PNG files and keeps an
// optional SQLite catalog of what was written.
package framestore

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/video-system/go-timelapse/pkg/capture"
	"github.com/video-system/go-timelapse/pkg/pixfmt"
	"github.com/video-system/go-timelapse/pkg/schedule"
)

var (
	// ErrNoFrames is returned by Latest before any frame was saved
	ErrNoFrames = errors.New("no frames saved")
	// ErrFrameExists is returned when a frame name is already taken
	ErrFrameExists = errors.New("frame already exists")
)

// Config holds store configuration
type Config struct {
	Dir     string // Frame folder, created if missing
	Catalog string // SQLite catalog path (optional)
	RunID   string // Recorded with every catalog row
}

// Record describes one saved frame
type Record struct {
	RunID     string        `json:"run_id"`
	Sequence  int64         `json:"sequence"`
	Path      string        `json:"path"`
	Timestamp int64         `json:"timestamp_ms"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
}

// Store writes frames into a folder
type Store struct {
	cfg     Config
	log     *slog.Logger
	catalog *catalog
	encoder png.Encoder
	saveMu  sync.Mutex

	mu    sync.RWMutex
	saved int64
	last  *Record
}

// New creates the frame folder and opens the catalog when configured
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dir == "" {
		return nil, errors.New("frame folder is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create frame folder: %w", err)
	}

	s := &Store{
		cfg:     cfg,
		log:     logger.With("component", "framestore"),
		encoder: png.Encoder{CompressionLevel: png.DefaultCompression},
	}

	if cfg.Catalog != "" {
		c, err := openCatalog(ctx, cfg.Catalog)
		if err != nil {
			return nil, err
		}
		s.catalog = c
	}

	s.log.Info("Frame store ready", "dir", cfg.Dir, "catalog", cfg.Catalog, "run_id", cfg.RunID)
	return s, nil
}

// Dir returns the frame folder
func (s *Store) Dir() string {
	return s.cfg.Dir
}

// FrameName returns the file name for a snapshot. Names sort lexically in
// capture order.
func FrameName(snap schedule.Snapshot) string {
	return fmt.Sprintf("%013d_%s.png", snap.Timestamp, snap.UTC.UTC().Format("20060102T150405Z"))
}

// Save validates the frame, writes it as PNG and records it. The frame is
// written to a temporary file first so a partial PNG is never visible
// under its final name. An existing frame is never overwritten.
func (s *Store) Save(ctx context.Context, frame capture.Frame, snap schedule.Snapshot) (string, error) {
	if err := frame.Validate(); err != nil {
		return "", fmt.Errorf("save frame: %w", err)
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	path := filepath.Join(s.cfg.Dir, FrameName(snap))
	if _, err := os.Lstat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrFrameExists, filepath.Base(path))
	}
	if err := s.writePNG(path, frame); err != nil {
		return "", err
	}

	s.mu.RLock()
	rec := Record{
		RunID:     s.cfg.RunID,
		Sequence:  s.saved + 1,
		Path:      path,
		Timestamp: snap.Timestamp,
		Elapsed:   snap.Elapsed,
		Width:     frame.Width,
		Height:    frame.Height,
	}
	c := s.catalog
	s.mu.RUnlock()

	if c != nil {
		if err := c.insert(ctx, rec); err != nil {
			if rerr := os.Remove(path); rerr != nil {
				s.log.Warn("Failed to remove uncatalogued frame", "path", path, "error", rerr)
			}
			return "", err
		}
	}

	s.mu.Lock()
	s.saved = rec.Sequence
	s.last = &rec
	s.mu.Unlock()

	s.log.Debug("Frame saved", "path", path, "sequence", rec.Sequence, "elapsed", snap.Elapsed)
	return path, nil
}

func (s *Store) writePNG(path string, frame capture.Frame) (err error) {
	tmp, err := os.CreateTemp(s.cfg.Dir, ".frame-*.tmp")
	if err != nil {
		return fmt.Errorf("create frame file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	rgb, err := pixfmt.NewRGB(frame.Pix, frame.Width, frame.Height)
	if err != nil {
		return fmt.Errorf("save frame: %w", err)
	}
	if err := s.encoder.Encode(tmp, rgb.NRGBA()); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close frame file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename frame file: %w", err)
	}
	return nil
}

// Last returns the most recent frame saved by this store
func (s *Store) Last() (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Record{}, false
	}
	return *s.last, true
}

func (s *Store) activeCatalog() *catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Latest returns the most recent frame of this run, from the catalog while
// it is open
func (s *Store) Latest(ctx context.Context) (Record, error) {
	if c := s.activeCatalog(); c != nil {
		return c.latest(ctx, s.cfg.RunID)
	}
	if rec, ok := s.Last(); ok {
		return rec, nil
	}
	return Record{}, ErrNoFrames
}

// Count returns how many frames this run saved
func (s *Store) Count(ctx context.Context) (int64, error) {
	if c := s.activeCatalog(); c != nil {
		return c.count(ctx, s.cfg.RunID)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saved, nil
}

// Close closes the catalog. Latest and Count keep answering from memory.
func (s *Store) Close() error {
	s.mu.Lock()
	c := s.catalog
	s.catalog = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.close()
}
