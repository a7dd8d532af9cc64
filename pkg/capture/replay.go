package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/video-system/go-timelapse/pkg/pixfmt"
)

// Replay serves the still images of a folder in name order, standing in
// for a camera when no hardware is attached
type Replay struct {
	lifecycle
	log *slog.Logger

	settings ReplaySettings
	files    []string
	offset   int
	buf      []byte
	guard    teardown
	seq      int64
}

// NewReplay creates an uninitialized replay session
func NewReplay(opts ...Option) *Replay {
	o := buildOptions(opts)
	return &Replay{
		log: o.logger.With("component", "capture", "backend", KindReplay.String()),
	}
}

// State returns the lifecycle state
func (r *Replay) State() State {
	return r.state
}

// Files returns the frame files in replay order
func (r *Replay) Files() []string {
	return r.files
}

// Initialize lists the image files of the configured folder
func (r *Replay) Initialize(_ context.Context, settings Settings) (err error) {
	if err := r.beginInitialize(); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = r.guard.run()
			r.files = nil
			r.state = Failed
		}
	}()

	rs, err := ParseReplaySettings(settings)
	if err != nil {
		return err
	}
	r.settings = rs

	files, err := listFrames(rs.Folder)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceFailed, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: no frames in %s", ErrDeviceFailed, rs.Folder)
	}
	r.files = files
	r.guard.add("frame list", func() error {
		r.files = nil
		return nil
	})
	r.guard.add("frame buffer", func() error {
		r.buf = nil
		return nil
	})

	r.state = Ready
	r.log.Info("Replay opened", "folder", rs.Folder, "frames", len(files), "repeat", rs.Repeat)
	return nil
}

// listFrames returns the regular, non-hidden files of dir sorted by name
func listFrames(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open frame folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open frame folder: %s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list frame folder: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// Next decodes the next image. Once the folder is exhausted it fails with
// ErrDeviceNoLongerAvailable unless repeat is set, in which case it wraps.
func (r *Replay) Next(ctx context.Context) (Frame, error) {
	if err := r.beginNext(); err != nil {
		return Frame{}, err
	}
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	if r.offset >= len(r.files) {
		if !r.settings.Repeat {
			return Frame{}, fmt.Errorf("%w: ran out of replay frames", ErrDeviceNoLongerAvailable)
		}
		r.offset = 0
	}
	path := r.files[r.offset]
	r.offset++

	img, err := decodeImage(path)
	if err != nil {
		return Frame{}, err
	}

	if r.settings.Width > 0 {
		b := img.Bounds()
		if b.Dx() != r.settings.Width || b.Dy() != r.settings.Height {
			img, err = pixfmt.ScaleImage(img, r.settings.Width, r.settings.Height)
			if err != nil {
				return Frame{}, fmt.Errorf("%w: %v", ErrInvalidBuffer, err)
			}
		}
	}

	b := img.Bounds()
	size := pixfmt.RGB24Size(b.Dx(), b.Dy())
	if cap(r.buf) < size {
		r.buf = make([]byte, size)
	}
	r.buf = r.buf[:size]
	if err := pixfmt.PackImage(r.buf, img); err != nil {
		return Frame{}, fmt.Errorf("%w: %s: %v", ErrInvalidBuffer, filepath.Base(path), err)
	}

	frame := Frame{
		Pix:      r.buf,
		Width:    b.Dx(),
		Height:   b.Dy(),
		Sequence: r.seq + 1,
		Source:   path,
	}
	if err := frame.Validate(); err != nil {
		return Frame{}, err
	}

	r.seq++
	r.state = Streaming
	return frame, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: frame %s removed", ErrDeviceNoLongerAvailable, path)
		}
		return nil, fmt.Errorf("%w: open frame: %v", ErrDeviceNoLongerAvailable, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidBuffer, filepath.Base(path), err)
	}
	return img, nil
}

// Shutdown drops the frame list and buffer. Calling it again is a no-op.
func (r *Replay) Shutdown() error {
	if r.state == Closed {
		return nil
	}
	r.state = Closed
	if err := r.guard.run(); err != nil {
		return fmt.Errorf("shutdown replay session: %w", err)
	}
	return nil
}
