// Package timelapse couples the scheduler, a capture session and the frame
// store into a single-threaded capture run.
package timelapse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/video-system/go-timelapse/pkg/capture"
	"github.com/video-system/go-timelapse/pkg/schedule"
)

// ErrAlreadyRun is returned when Run is called on a controller that has
// already run
var ErrAlreadyRun = errors.New("controller already run")

// Ticker produces sampling instants
type Ticker interface {
	Next(ctx context.Context) (schedule.Snapshot, error)
}

// Flag is the cooperative cancellation signal. The run continues while
// Held reports true.
type Flag interface {
	Held() bool
}

// Sink persists frames and returns where each one went
type Sink interface {
	Save(ctx context.Context, frame capture.Frame, snap schedule.Snapshot) (string, error)
}

// Components are the collaborators of a run. Flag may be nil, in which
// case the run ends only when the ticker is exhausted or on error.
type Components struct {
	Scheduler Ticker
	Session   capture.Session
	Flag      Flag
	Sink      Sink
	Logger    *slog.Logger
	RunID     string
}

// Controller drives the capture loop
type Controller struct {
	ticker  Ticker
	session capture.Session
	flag    Flag
	sink    Sink
	log     *slog.Logger

	mu      sync.RWMutex
	started bool
	status  Status
}

// NewController creates a controller. The session must already be
// initialized; the controller owns it from here on and shuts it down
// when Run returns.
func NewController(c Components) *Controller {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		ticker:  c.Scheduler,
		session: c.Session,
		flag:    c.Flag,
		sink:    c.Sink,
		log:     logger.With("component", "controller"),
		status: Status{
			RunID: c.RunID,
			State: StateIdle,
		},
	}
}

// Run samples until the scheduler is exhausted, the flag is released or
// an error occurs. The session is shut down exactly once on every path.
//
// The flag is checked once per completed sample, so a stop request takes
// effect after the sample in progress.
func (c *Controller) Run(ctx context.Context) (err error) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyRun
	}
	c.started = true
	c.status.State = StateRunning
	c.status.StartedAt = time.Now()
	c.status.Session = c.session.State().String()
	c.mu.Unlock()

	c.log.Info("Run started", "run_id", c.status.RunID)

	var reason string
	defer func() {
		if serr := c.session.Shutdown(); serr != nil {
			c.log.Error("Session shutdown failed", "error", serr)
			err = errors.Join(err, fmt.Errorf("shutdown session: %w", serr))
		}
		c.finish(reason, err)
	}()

	for {
		snap, err := c.ticker.Next(ctx)
		if errors.Is(err, schedule.ErrExhausted) {
			reason = StopExhausted
			return nil
		}
		if err != nil {
			reason = StopError
			return fmt.Errorf("next sample: %w", err)
		}

		c.log.Info("Snapshot start", "utc", snap.UTC.Format(time.RFC1123Z), "elapsed", snap.Elapsed)
		begin := time.Now()

		frame, err := c.session.Next(ctx)
		if err != nil {
			reason = StopError
			return fmt.Errorf("capture frame: %w", err)
		}
		c.log.Info("Captured frame", "width", frame.Width, "height", frame.Height, "source", frame.Source)

		path, err := c.sink.Save(ctx, frame, snap)
		if err != nil {
			reason = StopError
			return fmt.Errorf("save frame: %w", err)
		}

		c.record(snap, path)
		c.log.Info("Snapshot end", "path", path, "took_ms", time.Since(begin).Milliseconds())

		if c.flag != nil && !c.flag.Held() {
			c.log.Info("Lock removed, halting capture")
			reason = StopCancelled
			return nil
		}
	}
}

func (c *Controller) record(snap schedule.Snapshot, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Samples++
	c.status.LastSnapshot = &snap
	c.status.LastFrame = path
	c.status.Session = c.session.State().String()
}

func (c *Controller) finish(reason string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.State = StateStopped
	c.status.StopReason = reason
	c.status.StoppedAt = time.Now()
	c.status.Session = c.session.State().String()
	if err != nil {
		c.status.State = StateFailed
		c.status.Error = err.Error()
	}

	if err != nil {
		c.log.Error("Run failed", "samples", c.status.Samples, "error", err)
		return
	}
	c.log.Info("Run finished", "samples", c.status.Samples, "reason", reason)
}

// Status returns a snapshot of the run state. Safe to call concurrently
// with Run.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.status
	if s.LastSnapshot != nil {
		snap := *s.LastSnapshot
		s.LastSnapshot = &snap
	}
	return s
}
