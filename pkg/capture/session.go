// Package capture provides camera sessions that produce packed RGB24 frames.
//
// A Session has an explicit lifecycle: it is created Uninitialized, becomes
// Ready after Initialize, Streaming while frames are pulled and Closed after
// Shutdown. Closed is terminal. Every resource acquired during Initialize is
// released exactly once, either when Initialize fails or at Shutdown.
package capture

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/video-system/go-timelapse/pkg/config"
	"github.com/video-system/go-timelapse/pkg/pixfmt"
)

// Settings is the key/value dictionary a backend parses during Initialize
type Settings = config.Settings

// State is the lifecycle state of a session
type State int

const (
	Uninitialized State = iota
	Ready
	Streaming
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Streaming:
		return "streaming"
	case Failed:
		return "failed"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is a single exclusively owned frame source
type Session interface {
	// Initialize opens the underlying resources. On failure everything
	// acquired so far is released and the session moves to Failed.
	Initialize(ctx context.Context, settings Settings) error

	// Next blocks until one frame is available
	Next(ctx context.Context) (Frame, error)

	// Shutdown releases all resources. Calling it again is a no-op.
	Shutdown() error

	State() State
}

// Frame is a packed RGB24 image. Pix is owned by the session and is only
// valid until the next call to Next or Shutdown.
type Frame struct {
	Pix      []byte
	Width    int
	Height   int
	Sequence int64
	Source   string
}

// Image returns an image.Image view over the frame buffer
func (f Frame) Image() image.Image {
	return &pixfmt.RGB{Pix: f.Pix, Rect: image.Rect(0, 0, f.Width, f.Height)}
}

// Validate checks that Pix holds exactly Width*Height*3 bytes
func (f Frame) Validate() error {
	if err := pixfmt.CheckRGB24(f.Pix, f.Width, f.Height); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBuffer, err)
	}
	return nil
}

// Kind selects a backend
type Kind int

const (
	KindHardware Kind = iota
	KindReplay
)

func (k Kind) String() string {
	switch k {
	case KindHardware:
		return "hardware"
	case KindReplay:
		return "replay"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// KindFor picks the backend named by settings: use_mock selects replay
func KindFor(settings Settings) Kind {
	if settings.Flag(KeyUseMock) {
		return KindReplay
	}
	return KindHardware
}

// Option configures a session
type Option func(*options)

type options struct {
	logger *slog.Logger
	start  StartFunc
}

// WithLogger sets the session logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New creates an uninitialized session of the given kind
func New(kind Kind, opts ...Option) (Session, error) {
	switch kind {
	case KindHardware:
		return NewHardware(opts...), nil
	case KindReplay:
		return NewReplay(opts...), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %s", ErrInvalidSettings, kind)
	}
}

// Open selects a backend from settings and initializes it
func Open(ctx context.Context, settings Settings, opts ...Option) (Session, error) {
	kind := KindFor(settings)
	session, err := New(kind, opts...)
	if err != nil {
		return nil, err
	}
	if err := session.Initialize(ctx, settings); err != nil {
		return nil, fmt.Errorf("initialize %s session: %w", kind, err)
	}
	return session, nil
}

// lifecycle holds the state shared by every backend
type lifecycle struct {
	state State
}

func (l *lifecycle) beginInitialize() error {
	if l.state != Uninitialized {
		return fmt.Errorf("%w: initialize in state %s", ErrNotReady, l.state)
	}
	return nil
}

func (l *lifecycle) beginNext() error {
	switch l.state {
	case Ready, Streaming:
		return nil
	default:
		return fmt.Errorf("%w: next in state %s", ErrNotReady, l.state)
	}
}
