package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for p := 0; p < len(img.Pix); p += 4 {
		img.Pix[p], img.Pix[p+1], img.Pix[p+2], img.Pix[p+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

var (
	red  = color.NRGBA{R: 255, A: 255}
	blue = color.NRGBA{B: 255, A: 255}
)

// replayFolder writes a.png (red) and b.png (blue)
func replayFolder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), solid(4, 2, red))
	writePNG(t, filepath.Join(dir, "b.png"), solid(4, 2, blue))
	return dir
}

func openReplay(t *testing.T, settings Settings) *Replay {
	t.Helper()
	r := NewReplay()
	if err := r.Initialize(context.Background(), settings); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { r.Shutdown() })
	return r
}

func frameColor(f Frame) string {
	switch {
	case f.Pix[0] == 255 && f.Pix[2] == 0:
		return "red"
	case f.Pix[0] == 0 && f.Pix[2] == 255:
		return "blue"
	default:
		return "other"
	}
}

func TestReplayNoRepeat(t *testing.T) {
	r := openReplay(t, Settings{KeyMockFolder: replayFolder(t)})

	for _, want := range []string{"red", "blue"} {
		frame, err := r.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got := frameColor(frame); got != want {
			t.Errorf("frame = %s, want %s", got, want)
		}
		if len(frame.Pix) != 4*2*3 {
			t.Errorf("len(Pix) = %d", len(frame.Pix))
		}
	}

	for i := 0; i < 2; i++ {
		if _, err := r.Next(context.Background()); !errors.Is(err, ErrDeviceNoLongerAvailable) {
			t.Errorf("Next after exhaustion = %v, want ErrDeviceNoLongerAvailable", err)
		}
	}
}

func TestReplayRepeat(t *testing.T) {
	r := openReplay(t, Settings{KeyMockFolder: replayFolder(t), KeyMockRepeat: "1"})

	want := []string{"red", "blue", "red", "blue", "red"}
	for i, w := range want {
		frame, err := r.Next(context.Background())
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if got := frameColor(frame); got != w {
			t.Errorf("frame %d = %s, want %s", i, got, w)
		}
		if frame.Sequence != int64(i+1) {
			t.Errorf("sequence = %d, want %d", frame.Sequence, i+1)
		}
	}
}

func TestReplayResample(t *testing.T) {
	r := openReplay(t, Settings{KeyMockFolder: replayFolder(t), KeyResolution: "8x6"})

	frame, err := r.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if frame.Width != 8 || frame.Height != 6 || len(frame.Pix) != 8*6*3 {
		t.Errorf("frame = %dx%d len %d, want 8x6 len 144", frame.Width, frame.Height, len(frame.Pix))
	}
	if frameColor(frame) != "red" {
		t.Errorf("resampled pixel = %v", frame.Pix[:3])
	}
}

func TestReplayDecoders(t *testing.T) {
	dir := t.TempDir()

	f, err := os.Create(filepath.Join(dir, "1.bmp"))
	if err != nil {
		t.Fatal(err)
	}
	if err := bmp.Encode(f, solid(4, 2, red)); err != nil {
		t.Fatalf("encode bmp: %v", err)
	}
	f.Close()

	f, err = os.Create(filepath.Join(dir, "2.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if err := jpeg.Encode(f, solid(16, 16, blue), &jpeg.Options{Quality: 100}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	f.Close()

	// Hidden files are not frames
	if err := os.WriteFile(filepath.Join(dir, ".DS_Store"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := openReplay(t, Settings{KeyMockFolder: dir})
	if len(r.Files()) != 2 {
		t.Fatalf("files = %v", r.Files())
	}

	frame, err := r.Next(context.Background())
	if err != nil {
		t.Fatalf("Next bmp: %v", err)
	}
	if frameColor(frame) != "red" {
		t.Errorf("bmp pixel = %v", frame.Pix[:3])
	}

	frame, err = r.Next(context.Background())
	if err != nil {
		t.Fatalf("Next jpeg: %v", err)
	}
	if frame.Width != 16 || len(frame.Pix) != 16*16*3 {
		t.Errorf("jpeg frame = %dx%d", frame.Width, frame.Height)
	}
}

func TestReplayUndecodableFrame(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.png"), []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(dir, "b.png"), solid(2, 2, blue))

	r := openReplay(t, Settings{KeyMockFolder: dir})
	if _, err := r.Next(context.Background()); !errors.Is(err, ErrInvalidBuffer) {
		t.Fatalf("Next = %v, want ErrInvalidBuffer", err)
	}

	frame, err := r.Next(context.Background())
	if err != nil {
		t.Fatalf("Next after bad frame: %v", err)
	}
	if frameColor(frame) != "blue" {
		t.Errorf("pixel = %v", frame.Pix[:3])
	}
}

func TestReplayInitializeFailures(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		settings Settings
		want     error
	}{
		{"missing folder key", Settings{KeyUseMock: "1"}, ErrInvalidSettings},
		{"missing folder", Settings{KeyMockFolder: filepath.Join(t.TempDir(), "nope")}, ErrDeviceFailed},
		{"not a folder", Settings{KeyMockFolder: file}, ErrDeviceFailed},
		{"empty folder", Settings{KeyMockFolder: t.TempDir()}, ErrDeviceFailed},
		{"bad resolution", Settings{KeyMockFolder: t.TempDir(), KeyResolution: "big"}, ErrInvalidSettings},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReplay()
			if err := r.Initialize(context.Background(), tt.settings); !errors.Is(err, tt.want) {
				t.Fatalf("Initialize = %v, want %v", err, tt.want)
			}
			if r.State() != Failed {
				t.Errorf("state = %s, want failed", r.State())
			}
			if _, err := r.Next(context.Background()); !errors.Is(err, ErrNotReady) {
				t.Errorf("Next after failed Initialize = %v, want ErrNotReady", err)
			}
			if err := r.Shutdown(); err != nil {
				t.Errorf("Shutdown: %v", err)
			}
		})
	}
}

func TestReplayShutdown(t *testing.T) {
	r := openReplay(t, Settings{KeyMockFolder: replayFolder(t)})
	if _, err := r.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}

	if err := r.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := r.Shutdown(); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
	if r.State() != Closed {
		t.Errorf("state = %s, want closed", r.State())
	}
	if _, err := r.Next(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("Next after Shutdown = %v, want ErrNotReady", err)
	}
}

func TestOpen(t *testing.T) {
	dir := replayFolder(t)

	if KindFor(Settings{}) != KindHardware {
		t.Error("empty settings should select hardware")
	}

	session, err := Open(context.Background(), Settings{KeyUseMock: "yes", KeyMockFolder: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Shutdown()
	if _, ok := session.(*Replay); !ok {
		t.Errorf("Open returned %T, want *Replay", session)
	}
	if session.State() != Ready {
		t.Errorf("state = %s, want ready", session.State())
	}

	if _, err := Open(context.Background(), Settings{KeyUseMock: "true"}); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("Open without folder = %v, want ErrInvalidSettings", err)
	}

	if _, err := New(Kind(7)); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("New(unknown) = %v, want ErrInvalidSettings", err)
	}
}

func TestFrameImage(t *testing.T) {
	frame := Frame{Pix: []byte{1, 2, 3, 4, 5, 6}, Width: 2, Height: 1}
	if err := frame.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	r, g, b, _ := frame.Image().At(1, 0).RGBA()
	if r>>8 != 4 || g>>8 != 5 || b>>8 != 6 {
		t.Errorf("At(1,0) = %d,%d,%d", r>>8, g>>8, b>>8)
	}

	frame.Pix = frame.Pix[:5]
	if err := frame.Validate(); !errors.Is(err, ErrInvalidBuffer) {
		t.Errorf("Validate short frame = %v, want ErrInvalidBuffer", err)
	}
}
