package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/video-system/go-timelapse/internal/ffmpeg"
	"github.com/video-system/go-timelapse/pkg/pixfmt"
)

const exitGrace = time.Second

// Stream is a raw frame source such as an FFmpeg capture process
type Stream interface {
	io.Reader
	Close() error
}

// StartFunc opens a raw capture stream for cfg. ctx lives as long as the
// session; it is cancelled after the stream is closed at Shutdown.
type StartFunc func(ctx context.Context, cfg ffmpeg.CaptureConfig) (Stream, error)

// WithStreamStarter replaces FFmpeg discovery with start
func WithStreamStarter(start StartFunc) Option {
	return func(o *options) {
		o.start = start
	}
}

// Hardware captures from a device through an FFmpeg rawvideo pipe
type Hardware struct {
	lifecycle
	log   *slog.Logger
	start StartFunc

	settings HardwareSettings
	guard    teardown
	stream   Stream
	packet   []byte
	conv     *pixfmt.Converter
	seq      int64
}

// NewHardware creates an uninitialized hardware session
func NewHardware(opts ...Option) *Hardware {
	o := buildOptions(opts)
	return &Hardware{
		log:   o.logger.With("component", "capture", "backend", KindHardware.String()),
		start: o.start,
	}
}

// State returns the lifecycle state
func (h *Hardware) State() State {
	return h.state
}

// Settings returns the parsed settings of an initialized session
func (h *Hardware) Settings() HardwareSettings {
	return h.settings
}

// Initialize parses settings, starts the capture stream and prepares the
// packet buffer and converter.
func (h *Hardware) Initialize(ctx context.Context, settings Settings) (err error) {
	if err := h.beginInitialize(); err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		if rerr := h.guard.run(); rerr != nil {
			h.log.Warn("release after failed initialize", "error", rerr)
		}
		h.stream, h.packet, h.conv = nil, nil, nil
		h.state = Failed
	}()

	hs, err := ParseHardwareSettings(settings)
	if err != nil {
		return err
	}
	h.settings = hs

	start := h.start
	if start == nil {
		start, err = locateFFmpeg()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMissingCapability, err)
		}
	}

	if !pixfmt.Supported(hs.DecodeFormat) {
		return fmt.Errorf("%w: no converter for decode format %q (supported: %v)", ErrMissingCapability, hs.DecodeFormat, pixfmt.Formats())
	}
	size, err := pixfmt.FrameSize(hs.DecodeFormat, hs.Width, hs.Height)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	// The stream outlives the Initialize call
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.guard.add("capture context", func() error {
		cancel()
		return nil
	})

	stream, err := start(streamCtx, hs.CaptureConfig())
	if err != nil {
		return fmt.Errorf("%w: open %s device %q: %v", ErrDeviceFailed, hs.Backend, hs.Device, err)
	}
	h.stream = stream
	h.guard.add("capture stream", stream.Close)

	h.packet = make([]byte, size)
	h.guard.add("packet buffer", func() error {
		h.packet = nil
		return nil
	})

	conv, err := pixfmt.NewConverter(hs.DecodeFormat, hs.Width, hs.Height, hs.Width, hs.Height)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingCapability, err)
	}
	h.conv = conv
	h.guard.add("converter", func() error {
		conv.Release()
		return nil
	})

	h.state = Ready
	h.log.Info("Capture started",
		"device", hs.Device,
		"input", hs.Backend,
		"resolution", fmt.Sprintf("%dx%d", hs.Width, hs.Height),
		"framerate", hs.Framerate,
		"decode_format", hs.DecodeFormat)
	return nil
}

// Next reads exactly one raw frame and converts it to RGB24
func (h *Hardware) Next(ctx context.Context) (Frame, error) {
	if err := h.beginNext(); err != nil {
		return Frame{}, err
	}

	if err := h.readPacket(ctx); err != nil {
		return Frame{}, err
	}

	pix, err := h.conv.Convert(h.packet)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidBuffer, err)
	}

	h.state = Streaming
	h.seq++
	w, ht := h.conv.TargetSize()
	return Frame{
		Pix:      pix,
		Width:    w,
		Height:   ht,
		Sequence: h.seq,
		Source:   h.settings.Device,
	}, nil
}

// readPacket fills the packet buffer. Empty reads mean no frame is ready
// yet and are retried.
func (h *Hardware) readPacket(ctx context.Context) error {
	for n := 0; n < len(h.packet); {
		if err := ctx.Err(); err != nil {
			return err
		}

		m, err := h.stream.Read(h.packet[n:])
		n += m
		if err == nil {
			continue
		}
		if n == len(h.packet) && errors.Is(err, io.EOF) {
			return nil
		}
		return h.disconnected(n, err)
	}
	return nil
}

func (h *Hardware) disconnected(read int, err error) error {
	// Give an exiting process a moment so its status and stderr are known
	if waiter, ok := h.stream.(interface{ Done() <-chan struct{} }); ok {
		select {
		case <-waiter.Done():
		case <-time.After(exitGrace):
		}
	}
	if reporter, ok := h.stream.(interface{ Err() error }); ok {
		if perr := reporter.Err(); perr != nil {
			err = fmt.Errorf("%v: %w", err, perr)
		}
	}
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe), errors.Is(err, os.ErrClosed):
		return fmt.Errorf("%w: stream ended after %d of %d bytes: %v",
			ErrDeviceNoLongerAvailable, read, len(h.packet), err)
	default:
		return fmt.Errorf("%w: read frame: %v", ErrDeviceNoLongerAvailable, err)
	}
}

// Shutdown releases the converter, the packet buffer and the capture
// stream, in that order.
func (h *Hardware) Shutdown() error {
	if h.state == Closed {
		return nil
	}
	h.state = Closed

	err := h.guard.run()
	h.stream, h.packet, h.conv = nil, nil, nil
	if err != nil {
		return fmt.Errorf("shutdown hardware session: %w", err)
	}
	h.log.Info("Capture stopped", "frames", h.seq)
	return nil
}

func locateFFmpeg() (StartFunc, error) {
	ff, err := ffmpeg.New()
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, cfg ffmpeg.CaptureConfig) (Stream, error) {
		proc, err := ff.StartCapture(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return proc, nil
	}, nil
}
