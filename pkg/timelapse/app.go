package timelapse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/video-system/go-timelapse/pkg/capture"
	"github.com/video-system/go-timelapse/pkg/config"
	"github.com/video-system/go-timelapse/pkg/framestore"
	"github.com/video-system/go-timelapse/pkg/runlock"
	"github.com/video-system/go-timelapse/pkg/schedule"
)

// AppOption configures an App
type AppOption func(*App)

// WithClock sets the scheduler clock
func WithClock(c schedule.Clock) AppOption {
	return func(a *App) { a.clock = c }
}

// WithTimeSource replaces the NTP time source used when use_ntp is set
func WithTimeSource(src schedule.TimeSource) AppOption {
	return func(a *App) { a.timeSource = src }
}

// WithSessionOptions passes options to the capture session
func WithSessionOptions(opts ...capture.Option) AppOption {
	return func(a *App) { a.sessionOpts = append(a.sessionOpts, opts...) }
}

// App runs one capture from a manifest
type App struct {
	manifest    *config.Manifest
	log         *slog.Logger
	runID       string
	lock        *runlock.Lock
	clock       schedule.Clock
	timeSource  schedule.TimeSource
	sessionOpts []capture.Option

	stopRequested atomic.Bool

	mu         sync.RWMutex
	store      *framestore.Store
	controller *Controller
}

// NewApp creates an app for manifest. Every app gets a fresh run id.
func NewApp(manifest *config.Manifest, logger *slog.Logger, opts ...AppOption) *App {
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	a := &App{
		manifest: manifest,
		log:      logger.With("run_id", runID),
		runID:    runID,
		lock:     runlock.New(manifest.Config.LockFile),
		clock:    schedule.SystemClock{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RunID returns the run identifier
func (a *App) RunID() string {
	return a.runID
}

// Run opens the store and camera, takes the run lock and samples until the
// lock is removed, the sample budget is spent or an error occurs.
func (a *App) Run(ctx context.Context) (err error) {
	cfg := a.manifest.Config

	catalog := ""
	if a.manifest.Catalog.Enabled {
		catalog = a.manifest.Catalog.Path
	}
	store, err := framestore.New(ctx, framestore.Config{
		Dir:     cfg.OutputFolder,
		Catalog: catalog,
		RunID:   a.runID,
	}, a.log)
	if err != nil {
		return fmt.Errorf("open frame store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close frame store: %w", cerr))
		}
	}()
	a.mu.Lock()
	a.store = store
	a.mu.Unlock()

	// The lookup happens before the camera opens so a failure never leaves a
	// device open; the scheduler is anchored only once the camera is ready.
	var synced *offsetSource
	if cfg.UseNTP {
		src := a.timeSource
		if src == nil {
			src = schedule.NTPSource{Host: cfg.NTPHost, Timeout: 5 * time.Second}
		}
		t, err := src.Time(ctx)
		if err != nil {
			return fmt.Errorf("synchronize time: %w", &schedule.ClockSyncError{Source: src.String(), Err: err})
		}
		synced = &offsetSource{name: src.String(), reported: t, read: a.clock.Now(), clock: a.clock}
	}

	opts := append([]capture.Option{capture.WithLogger(a.log)}, a.sessionOpts...)
	session, err := capture.Open(ctx, a.manifest.Settings, opts...)
	if err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	abort := func(cause error) error {
		if serr := session.Shutdown(); serr != nil {
			a.log.Error("Session shutdown failed", "error", serr)
		}
		return cause
	}

	if err := a.lock.Acquire(); err != nil {
		return abort(fmt.Errorf("acquire run lock: %w", err))
	}
	defer func() {
		if lerr := a.lock.Release(); lerr != nil {
			err = errors.Join(err, fmt.Errorf("release run lock: %w", lerr))
		}
	}()
	// Stop may have run before the marker existed
	if a.stopRequested.Load() {
		a.log.Info("Stop requested before capture started")
		return abort(nil)
	}

	sched := schedule.New(a.manifest.Schedule(), schedule.WithClock(a.clock))
	if synced != nil {
		if err := sched.Sync(ctx, synced); err != nil {
			return abort(fmt.Errorf("synchronize time: %w", err))
		}
		a.log.Info("Synchronized time", "source", synced.name, "utc", sched.Reference().UTC().Format(time.RFC1123Z))
	}

	controller := NewController(Components{
		Scheduler: sched,
		Session:   session,
		Flag:      a.lock,
		Sink:      store,
		Logger:    a.log,
		RunID:     a.runID,
	})
	a.mu.Lock()
	a.controller = controller
	a.mu.Unlock()

	a.log.Info("Capturing",
		"output", cfg.OutputFolder,
		"lock", a.lock.Path(),
		"interval", cfg.SampleInterval,
		"max_samples", cfg.MaxSamples)
	return controller.Run(ctx)
}

// Status returns the current run status
func (a *App) Status() Status {
	a.mu.RLock()
	controller := a.controller
	a.mu.RUnlock()

	if controller == nil {
		st := Status{RunID: a.runID, State: StateIdle, Session: capture.Uninitialized.String()}
		if a.stopRequested.Load() {
			st.State, st.StopReason = StateStopped, StopCancelled
		}
		return st
	}
	return controller.Status()
}

// Latest returns the most recent saved frame
func (a *App) Latest(ctx context.Context) (framestore.Record, error) {
	a.mu.RLock()
	store := a.store
	a.mu.RUnlock()

	if store == nil {
		return framestore.Record{}, framestore.ErrNoFrames
	}
	return store.Latest(ctx)
}

// Stop removes the run lock. The run ends after the sample in progress, or
// before the first one when Stop arrives during start-up.
func (a *App) Stop() error {
	a.log.Info("Stop requested", "lock", a.lock.Path())
	a.stopRequested.Store(true)
	return a.lock.Release()
}

// offsetSource replays an earlier time lookup, advanced by the local time
// elapsed since it was taken
type offsetSource struct {
	name     string
	reported time.Time
	read     time.Time
	clock    schedule.Clock
}

func (o *offsetSource) Time(context.Context) (time.Time, error) {
	return o.reported.Add(o.clock.Now().Sub(o.read)), nil
}

func (o *offsetSource) String() string {
	return o.name
}
