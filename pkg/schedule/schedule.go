package schedule

import (
	"context"
	"errors"
	"iter"
	"math"
	"time"
)

// Unbounded disables the sample limit
const Unbounded = -1

var (
	// ErrExhausted is returned by Next once MaxSamples snapshots have been produced
	ErrExhausted = errors.New("schedule exhausted")

	// ErrStarted is returned by Sync once the first snapshot has been produced
	ErrStarted = errors.New("schedule already started")
)

// Config holds the sampling cadence
type Config struct {
	Interval   time.Duration // Scaled time between samples
	Idle       time.Duration // Poll granularity while waiting
	TimeScale  float64       // Multiplier applied to elapsed real time (<=0 means 1)
	MaxSamples int           // Number of samples, or Unbounded
}

// Snapshot is one scheduler tick
type Snapshot struct {
	Timestamp int64         `json:"timestamp"` // Unix ms, reference anchored
	Elapsed   time.Duration `json:"elapsed"`   // Scaled time since the scheduler started
	UTC       time.Time     `json:"utc"`
}

// anchor ties the epoch reference to monotonic instants
type anchor struct {
	reference int64 // Unix ms
	start     time.Time
	last      time.Time
}

// Scheduler produces drift-corrected snapshots at a fixed interval.
// It is not safe for concurrent use.
type Scheduler struct {
	cfg     Config
	clock   Clock
	anchor  anchor
	sampled int
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces the system clock
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// New creates a scheduler anchored to the current wall clock
func New(cfg Config, opts ...Option) *Scheduler {
	if cfg.TimeScale <= 0 || math.IsNaN(cfg.TimeScale) || math.IsInf(cfg.TimeScale, 0) {
		cfg.TimeScale = 1
	}
	if cfg.Idle <= 0 {
		cfg.Idle = time.Millisecond
	}

	s := &Scheduler{
		cfg:   cfg,
		clock: SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}

	now := s.clock.Now()
	s.anchor = anchor{
		reference: now.UnixMilli(),
		start:     now,
		last:      now,
	}
	return s
}

// Config returns the normalized configuration
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Sampled returns the number of snapshots produced so far
func (s *Scheduler) Sampled() int {
	return s.sampled
}

// Reference returns the epoch time the scheduler is anchored to
func (s *Scheduler) Reference() time.Time {
	return time.UnixMilli(s.anchor.reference).UTC()
}

// Sync replaces the epoch reference with the time reported by src and
// restarts the monotonic anchors. Only whole seconds of the result are used.
func (s *Scheduler) Sync(ctx context.Context, src TimeSource) error {
	if s.sampled > 0 {
		return ErrStarted
	}

	t, err := src.Time(ctx)
	if err != nil {
		return &ClockSyncError{Source: src.String(), Err: err}
	}

	now := s.clock.Now()
	s.anchor = anchor{
		reference: t.Unix() * 1000,
		start:     now,
		last:      now,
	}
	return nil
}

// Next blocks until the next sample is due and returns its snapshot
func (s *Scheduler) Next(ctx context.Context) (Snapshot, error) {
	if s.cfg.MaxSamples >= 0 && s.sampled >= s.cfg.MaxSamples {
		return Snapshot{}, ErrExhausted
	}

	for {
		now := s.clock.Now()
		if s.scale(now.Sub(s.anchor.last)) > s.cfg.Interval {
			s.sampled++
			s.anchor.last = now
			return s.snapshot(s.scale(now.Sub(s.anchor.start))), nil
		}

		if err := s.clock.Sleep(ctx, s.cfg.Idle); err != nil {
			return Snapshot{}, err
		}
	}
}

// Samples returns the remaining snapshots as a sequence. Iteration stops at
// exhaustion or when ctx is done; the sequence cannot be restarted.
func (s *Scheduler) Samples(ctx context.Context) iter.Seq[Snapshot] {
	return func(yield func(Snapshot) bool) {
		for {
			snap, err := s.Next(ctx)
			if err != nil {
				return
			}
			if !yield(snap) {
				return
			}
		}
	}
}

// scale applies the time scale, flooring to whole nanoseconds
func (s *Scheduler) scale(d time.Duration) time.Duration {
	return time.Duration(math.Floor(float64(d) * s.cfg.TimeScale))
}

func (s *Scheduler) snapshot(elapsed time.Duration) Snapshot {
	ts := s.anchor.reference + elapsed.Milliseconds()
	return Snapshot{
		Timestamp: ts,
		Elapsed:   elapsed,
		UTC:       time.UnixMilli(ts).UTC(),
	}
}
