package capture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/video-system/go-timelapse/internal/ffmpeg"
	"github.com/video-system/go-timelapse/pkg/pixfmt"
)

// Settings keys understood by the backends
const (
	KeyUseMock      = "use_mock"
	KeyMockFolder   = "use_mock_folder"
	KeyMockRepeat   = "use_mock_repeat_frames"
	KeyBackend      = "backend"
	KeyDevice       = "device"
	KeyResolution   = "resolution"
	KeyFramerate    = "framerate"
	KeyPixelFormat  = "pixel_format"
	KeyDecodeFormat = "decode_format"
)

const (
	DefaultResolution = "640x480"
	DefaultFramerate  = 1
	DefaultDecode     = pixfmt.YUV420P
)

// ParseResolution parses a WIDTHxHEIGHT string such as 640x480
func ParseResolution(value string) (width, height int, err error) {
	parts := strings.Split(strings.TrimSpace(value), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q is not a valid resolution; use the format WIDTHxHEIGHT, eg. 640x480",
			ErrInvalidSettings, value)
	}

	sides := [2]int{}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("%w: %q in %q is not a valid resolution; use the format WIDTHxHEIGHT, eg. 640x480",
				ErrInvalidSettings, p, value)
		}
		sides[i] = n
	}
	return sides[0], sides[1], nil
}

// HardwareSettings is the typed form of the hardware backend settings
type HardwareSettings struct {
	Backend      string
	Device       string
	Width        int
	Height       int
	Framerate    int
	PixelFormat  string
	DecodeFormat pixfmt.Format
}

// CaptureConfig returns the FFmpeg capture description for these settings
func (s HardwareSettings) CaptureConfig() ffmpeg.CaptureConfig {
	return ffmpeg.CaptureConfig{
		Backend:      s.Backend,
		Device:       s.Device,
		Width:        s.Width,
		Height:       s.Height,
		Framerate:    s.Framerate,
		PixelFormat:  s.PixelFormat,
		OutputFormat: string(s.DecodeFormat),
	}
}

// ParseHardwareSettings validates the hardware keys of settings.
// An unsupported decode_format is not rejected here; Initialize reports it
// as a missing capability.
func ParseHardwareSettings(settings Settings) (HardwareSettings, error) {
	hs := HardwareSettings{
		Backend:     settings.StringOr(KeyBackend, ffmpeg.DefaultBackend()),
		Device:      settings.StringOr(KeyDevice, ""),
		PixelFormat: settings.StringOr(KeyPixelFormat, ""),
		Framerate:   DefaultFramerate,
	}
	if hs.Backend == "" {
		return hs, fmt.Errorf("%w: %s is empty", ErrInvalidSettings, KeyBackend)
	}
	if hs.Device == "" {
		return hs, fmt.Errorf("%w: %s is required", ErrInvalidSettings, KeyDevice)
	}

	w, h, err := ParseResolution(settings.StringOr(KeyResolution, DefaultResolution))
	if err != nil {
		return hs, err
	}
	hs.Width, hs.Height = w, h

	fps, ok, err := settings.Uint(KeyFramerate)
	if err != nil {
		return hs, fmt.Errorf("%w: %s: %v", ErrInvalidSettings, KeyFramerate, err)
	}
	if ok {
		if fps == 0 {
			return hs, fmt.Errorf("%w: %s must be positive", ErrInvalidSettings, KeyFramerate)
		}
		hs.Framerate = int(fps)
	}

	switch decode, ok := settings.String(KeyDecodeFormat); {
	case ok && decode != "":
		hs.DecodeFormat = pixfmt.Format(decode)
	case pixfmt.Supported(pixfmt.Format(hs.PixelFormat)):
		hs.DecodeFormat = pixfmt.Format(hs.PixelFormat)
	default:
		hs.DecodeFormat = DefaultDecode
	}

	return hs, nil
}

// ReplaySettings is the typed form of the replay backend settings
type ReplaySettings struct {
	Folder string
	Repeat bool

	// Width and Height are zero unless a resolution was given, in which
	// case every image is resampled to that geometry.
	Width  int
	Height int
}

// ParseReplaySettings validates the replay keys of settings
func ParseReplaySettings(settings Settings) (ReplaySettings, error) {
	folder, ok := settings.String(KeyMockFolder)
	if !ok || strings.TrimSpace(folder) == "" {
		return ReplaySettings{}, fmt.Errorf("%w: %s is required", ErrInvalidSettings, KeyMockFolder)
	}

	rs := ReplaySettings{
		Folder: folder,
		Repeat: settings.Flag(KeyMockRepeat),
	}
	if res, ok := settings.String(KeyResolution); ok {
		w, h, err := ParseResolution(res)
		if err != nil {
			return rs, err
		}
		rs.Width, rs.Height = w, h
	}
	return rs, nil
}
