package timelapse

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/video-system/go-timelapse/pkg/capture"
	"github.com/video-system/go-timelapse/pkg/runlock"
	"github.com/video-system/go-timelapse/pkg/schedule"
)

// fakeClock advances only when slept on, overshooting each sleep slightly
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d + 50*time.Microsecond)
	return nil
}

// countingSession wraps a session and counts Shutdown calls
type countingSession struct {
	capture.Session
	shutdowns   int
	shutdownErr error
}

func (s *countingSession) Shutdown() error {
	s.shutdowns++
	if err := s.Session.Shutdown(); err != nil {
		return err
	}
	return s.shutdownErr
}

type saved struct {
	color string
	snap  schedule.Snapshot
}

// recordingSink keeps what it was given; hook runs after each save
type recordingSink struct {
	saved []saved
	err   error
	hook  func(n int)
}

func (s *recordingSink) Save(_ context.Context, frame capture.Frame, snap schedule.Snapshot) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if err := frame.Validate(); err != nil {
		return "", err
	}
	name := "other"
	switch {
	case frame.Pix[0] == 255 && frame.Pix[2] == 0:
		name = "A"
	case frame.Pix[0] == 0 && frame.Pix[2] == 255:
		name = "B"
	}
	s.saved = append(s.saved, saved{color: name, snap: snap})
	if s.hook != nil {
		s.hook(len(s.saved))
	}
	return name + ".png", nil
}

// tickHook calls fn before each tick is produced
type tickHook struct {
	Ticker
	ticks int
	fn    func(tick int)
}

func (h *tickHook) Next(ctx context.Context) (schedule.Snapshot, error) {
	h.ticks++
	h.fn(h.ticks)
	return h.Ticker.Next(ctx)
}

func writeFrame(t *testing.T, path string, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for p := 0; p < len(img.Pix); p += 4 {
		img.Pix[p], img.Pix[p+1], img.Pix[p+2], img.Pix[p+3] = c.R, c.G, c.B, c.A
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

// replayFolder holds two frames: A (red) then B (blue)
func replayFolder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFrame(t, filepath.Join(dir, "a.png"), color.NRGBA{R: 255, A: 255})
	writeFrame(t, filepath.Join(dir, "b.png"), color.NRGBA{B: 255, A: 255})
	return dir
}

func openReplay(t *testing.T, repeat bool) *countingSession {
	t.Helper()
	settings := capture.Settings{capture.KeyMockFolder: replayFolder(t)}
	if repeat {
		settings.Set(capture.KeyMockRepeat, "1")
	}
	s := capture.NewReplay()
	if err := s.Initialize(context.Background(), settings); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return &countingSession{Session: s}
}

func heldLock(t *testing.T) *runlock.Lock {
	t.Helper()
	l := runlock.New(filepath.Join(t.TempDir(), "run.lock"))
	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	return l
}

func TestRunEndToEnd(t *testing.T) {
	interval := 500 * time.Millisecond
	idle := 100 * time.Millisecond
	sched := schedule.New(schedule.Config{
		Interval:   interval,
		Idle:       idle,
		TimeScale:  1,
		MaxSamples: 4,
	}, schedule.WithClock(newFakeClock()))

	session := openReplay(t, true)
	sink := &recordingSink{}
	c := NewController(Components{Scheduler: sched, Session: session, Flag: heldLock(t), Sink: sink, RunID: "e2e"})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sink.saved) != 4 {
		t.Fatalf("saved %d pairs, want 4", len(sink.saved))
	}
	for i, want := range []string{"A", "B", "A", "B"} {
		got := sink.saved[i]
		if got.color != want {
			t.Errorf("pair %d = %s, want %s", i, got.color, want)
		}
		target := time.Duration(i+1) * interval
		if d := got.snap.Elapsed - target; d < 0 || d > idle {
			t.Errorf("pair %d elapsed = %s, want within %s of %s", i, got.snap.Elapsed, idle, target)
		}
	}

	if session.shutdowns != 1 {
		t.Errorf("Shutdown called %d times, want 1", session.shutdowns)
	}
	if session.State() != capture.Closed {
		t.Errorf("session state = %s, want closed", session.State())
	}

	st := c.Status()
	if st.State != StateStopped || st.StopReason != StopExhausted || st.Samples != 4 {
		t.Errorf("status = %+v", st)
	}
	if st.LastFrame != "B.png" || st.LastSnapshot == nil || st.RunID != "e2e" {
		t.Errorf("status = %+v", st)
	}
}

func TestRunCancellation(t *testing.T) {
	lock := heldLock(t)
	sched := schedule.New(schedule.Config{
		Interval:   time.Second,
		Idle:       100 * time.Millisecond,
		TimeScale:  1,
		MaxSamples: schedule.Unbounded,
	}, schedule.WithClock(newFakeClock()))

	// The marker disappears after the second sample completed, while the
	// third is being waited for
	ticker := &tickHook{Ticker: sched, fn: func(tick int) {
		if tick == 3 {
			if err := os.Remove(lock.Path()); err != nil {
				t.Errorf("remove marker: %v", err)
			}
		}
	}}

	session := openReplay(t, true)
	sink := &recordingSink{}
	c := NewController(Components{Scheduler: ticker, Session: session, Flag: lock, Sink: sink})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.saved) != 3 {
		t.Errorf("saved %d samples, want 3", len(sink.saved))
	}
	if ticker.ticks != 3 {
		t.Errorf("ticker pulled %d times, want 3", ticker.ticks)
	}
	if session.shutdowns != 1 {
		t.Errorf("Shutdown called %d times, want 1", session.shutdowns)
	}
	if st := c.Status(); st.StopReason != StopCancelled {
		t.Errorf("stop reason = %q", st.StopReason)
	}
}

func TestRunCancellationCheckedAfterSample(t *testing.T) {
	lock := heldLock(t)
	sched := schedule.New(schedule.Config{
		Interval:   time.Second,
		Idle:       100 * time.Millisecond,
		MaxSamples: schedule.Unbounded,
	}, schedule.WithClock(newFakeClock()))

	// Removing the marker while a sample is being saved stops the run after
	// that same sample
	sink := &recordingSink{hook: func(n int) {
		if n == 2 {
			lock.Release()
		}
	}}
	c := NewController(Components{Scheduler: sched, Session: openReplay(t, true), Flag: lock, Sink: sink})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.saved) != 2 {
		t.Errorf("saved %d samples, want 2", len(sink.saved))
	}
}

func TestRunSessionExhausted(t *testing.T) {
	sched := schedule.New(schedule.Config{
		Interval:   time.Second,
		Idle:       100 * time.Millisecond,
		MaxSamples: schedule.Unbounded,
	}, schedule.WithClock(newFakeClock()))

	session := openReplay(t, false)
	sink := &recordingSink{}
	c := NewController(Components{Scheduler: sched, Session: session, Flag: heldLock(t), Sink: sink})

	err := c.Run(context.Background())
	if !errors.Is(err, capture.ErrDeviceNoLongerAvailable) {
		t.Fatalf("Run = %v, want ErrDeviceNoLongerAvailable", err)
	}
	if len(sink.saved) != 2 {
		t.Errorf("saved %d samples, want 2", len(sink.saved))
	}
	if session.shutdowns != 1 {
		t.Errorf("Shutdown called %d times, want 1", session.shutdowns)
	}

	st := c.Status()
	if st.State != StateFailed || st.Error == "" || st.Session != capture.Closed.String() {
		t.Errorf("status = %+v", st)
	}
}

func TestRunSinkAndShutdownErrors(t *testing.T) {
	sched := schedule.New(schedule.Config{Interval: time.Second, Idle: 100 * time.Millisecond, MaxSamples: 5},
		schedule.WithClock(newFakeClock()))

	saveErr := errors.New("disk full")
	closeErr := errors.New("device busy")
	session := openReplay(t, true)
	session.shutdownErr = closeErr

	c := NewController(Components{Scheduler: sched, Session: session, Flag: heldLock(t), Sink: &recordingSink{err: saveErr}})
	err := c.Run(context.Background())
	if !errors.Is(err, saveErr) || !errors.Is(err, closeErr) {
		t.Fatalf("Run = %v, want both save and shutdown errors", err)
	}
	if session.shutdowns != 1 {
		t.Errorf("Shutdown called %d times, want 1", session.shutdowns)
	}
}

func TestRunContextCancelled(t *testing.T) {
	sched := schedule.New(schedule.Config{Interval: time.Second, Idle: 100 * time.Millisecond, MaxSamples: schedule.Unbounded},
		schedule.WithClock(newFakeClock()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := openReplay(t, true)
	c := NewController(Components{Scheduler: sched, Session: session, Sink: &recordingSink{}})
	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if session.shutdowns != 1 {
		t.Errorf("Shutdown called %d times, want 1", session.shutdowns)
	}
}

func TestRunTwice(t *testing.T) {
	sched := schedule.New(schedule.Config{Interval: time.Second, MaxSamples: 0})
	c := NewController(Components{Scheduler: sched, Session: openReplay(t, true), Sink: &recordingSink{}})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := c.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("second Run = %v, want ErrAlreadyRun", err)
	}
}
