// Package pixfmt converts raw video frames into packed 24-bit RGB.
//
// Format names follow FFmpeg pix_fmt names so that the layout requested from
// the decoder and the layout expected by the converter are spelled the same.
package pixfmt

import (
	"errors"
	"fmt"
)

// Format is a raw pixel layout
type Format string

const (
	RGB24   Format = "rgb24"
	BGR24   Format = "bgr24"
	RGBA    Format = "rgba"
	BGRA    Format = "bgra"
	ARGB    Format = "argb"
	ABGR    Format = "abgr"
	XRGB    Format = "0rgb"
	RGBX    Format = "rgb0"
	XBGR    Format = "0bgr"
	BGRX    Format = "bgr0"
	Gray    Format = "gray"
	YUYV422 Format = "yuyv422"
	UYVY422 Format = "uyvy422"
	NV12    Format = "nv12"
	NV21    Format = "nv21"
	YUV420P Format = "yuv420p"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
	ErrInvalidGeometry   = errors.New("invalid frame geometry")
	ErrInvalidLength     = errors.New("invalid buffer length")
	ErrReleased          = errors.New("converter released")
)

// packed describes byte offsets of RGB channels inside one pixel
type packed struct {
	size    int
	r, g, b int
}

var packedFormats = map[Format]packed{
	RGB24: {3, 0, 1, 2},
	BGR24: {3, 2, 1, 0},
	RGBA:  {4, 0, 1, 2},
	BGRA:  {4, 2, 1, 0},
	ARGB:  {4, 1, 2, 3},
	ABGR:  {4, 3, 2, 1},
	XRGB:  {4, 1, 2, 3},
	RGBX:  {4, 0, 1, 2},
	XBGR:  {4, 3, 2, 1},
	BGRX:  {4, 2, 1, 0},
}

// Supported reports whether f can be converted
func Supported(f Format) bool {
	if _, ok := packedFormats[f]; ok {
		return true
	}
	switch f {
	case Gray, YUYV422, UYVY422, NV12, NV21, YUV420P:
		return true
	}
	return false
}

// Formats lists every convertible format
func Formats() []Format {
	return []Format{
		RGB24, BGR24, RGBA, BGRA, ARGB, ABGR, XRGB, RGBX, XBGR, BGRX,
		Gray, YUYV422, UYVY422, NV12, NV21, YUV420P,
	}
}

// FrameSize returns the byte length of one w x h frame in format f
func FrameSize(f Format, w, h int) (int, error) {
	if w <= 0 || h <= 0 {
		return 0, fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, w, h)
	}
	if p, ok := packedFormats[f]; ok {
		return w * h * p.size, nil
	}

	switch f {
	case Gray:
		return w * h, nil
	case YUYV422, UYVY422:
		if w%2 != 0 {
			return 0, fmt.Errorf("%w: %s requires an even width, got %d", ErrInvalidGeometry, f, w)
		}
		return w * h * 2, nil
	case NV12, NV21, YUV420P:
		cw, ch := (w+1)/2, (h+1)/2
		return w*h + 2*cw*ch, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// RGB24Size returns the packed RGB24 length of a w x h frame
func RGB24Size(w, h int) int {
	return w * h * 3
}

// CheckRGB24 verifies that buf holds exactly one w x h RGB24 frame
func CheckRGB24(buf []byte, w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, w, h)
	}
	if want := RGB24Size(w, h); len(buf) != want {
		return fmt.Errorf("%w: %dx%d needs %d bytes, got %d", ErrInvalidLength, w, h, want, len(buf))
	}
	return nil
}
