package ffmpeg

import (
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	ff, err := New()
	if err != nil {
		t.Skipf("FFmpeg not found: %v", err)
	}

	version, err := ff.Version(context.Background())
	if err != nil {
		t.Fatalf("Failed to get version: %v", err)
	}

	t.Logf("FFmpeg version: %s", version)
}

func TestBuildCaptureArgs(t *testing.T) {
	args := buildCaptureArgs(CaptureConfig{
		Backend:      "v4l2",
		Device:       "/dev/video0",
		Width:        640,
		Height:       480,
		Framerate:    1,
		PixelFormat:  "yuyv422",
		OutputFormat: "yuyv422",
	})

	want := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-f", "v4l2",
		"-framerate", "1",
		"-video_size", "640x480",
		"-pixel_format", "yuyv422",
		"-i", "/dev/video0",
		"-an", "-f", "rawvideo", "-pix_fmt", "yuyv422",
		"-s", "640x480",
		"pipe:1",
	}
	if !slices.Equal(args, want) {
		t.Errorf("args = %v\nwant %v", args, want)
	}
}

func TestBuildCaptureArgsMinimal(t *testing.T) {
	args := buildCaptureArgs(CaptureConfig{
		Backend:      "avfoundation",
		Device:       "0:none",
		OutputFormat: "rgb24",
	})

	for _, flag := range []string{"-framerate", "-video_size", "-pixel_format", "-s"} {
		if slices.Contains(args, flag) {
			t.Errorf("unexpected %s in %v", flag, args)
		}
	}
	if args[len(args)-1] != "pipe:1" {
		t.Errorf("output must be stdout, got %q", args[len(args)-1])
	}
}

func TestBuildAssembleArgs(t *testing.T) {
	args := buildAssembleArgs(AssembleConfig{
		Pattern:   "*.png",
		Output:    "/tmp/out.webm",
		Framerate: 30,
	})

	want := []string{
		"-y", "-hide_banner",
		"-framerate", "30",
		"-pattern_type", "glob",
		"-i", "*.png",
		"-c:v", "libvpx-vp9",
		"-pix_fmt", "yuva420p",
		"-lossless", "1",
		"/tmp/out.webm",
	}
	if !slices.Equal(args, want) {
		t.Errorf("args = %v\nwant %v", args, want)
	}
}

func TestParseFramerate(t *testing.T) {
	tests := map[string]float64{
		"30/1":       30,
		"30000/1001": 30000.0 / 1001.0,
		"24":         24,
		"0/0":        0,
		"bogus":      0,
	}
	for in, want := range tests {
		if got := parseFramerate(in); got != want {
			t.Errorf("parseFramerate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestProbeVideoInfo(t *testing.T) {
	out := []byte(`{
		"streams": [
			{"index": 0, "codec_name": "vp9", "codec_type": "video", "width": 640, "height": 480,
			 "pix_fmt": "yuva420p", "r_frame_rate": "24/1", "avg_frame_rate": "24/1", "nb_frames": "48"}
		],
		"format": {"filename": "out.webm", "format_name": "matroska,webm", "duration": "2.000000", "size": "12345"}
	}`)

	probe, err := parseProbe(out)
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	info := probe.VideoInfo()
	if info.Resolution() != "640x480" || info.Codec != "vp9" || info.Framerate != 24 {
		t.Errorf("info = %+v", info)
	}
	if info.Frames != 48 || info.Duration != 2 || info.SizeBytes != 12345 {
		t.Errorf("info = %+v", info)
	}
}

func TestAssemble(t *testing.T) {
	ff, err := New()
	if err != nil {
		t.Skipf("FFmpeg not found: %v", err)
	}

	dir := t.TempDir()
	for i := 0; i < 4; i++ {
		img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p], img.Pix[p+3] = uint8(i*60), 0xff
		}
		f, err := os.Create(filepath.Join(dir, "frame_"+string(rune('a'+i))+".png"))
		if err != nil {
			t.Fatalf("create frame: %v", err)
		}
		if err := png.Encode(f, img); err != nil {
			t.Fatalf("encode frame: %v", err)
		}
		f.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	output := filepath.Join(dir, "out.webm")
	if err := ff.Assemble(ctx, AssembleConfig{Dir: dir, Output: output, Framerate: 4}); err != nil {
		if errors.Is(err, ErrRender) {
			t.Skipf("FFmpeg build cannot render vp9: %v", err)
		}
		t.Fatalf("Assemble: %v", err)
	}

	info, err := ff.GetVideoInfo(ctx, output)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	t.Logf("Video info: %dx%d @ %.2f fps, codec=%s, duration=%.2fs",
		info.Width, info.Height, info.Framerate, info.Codec, info.Duration)

	if info.Width != 32 || info.Height != 32 {
		t.Errorf("resolution = %s", info.Resolution())
	}
}

func TestAssembleMissingFrames(t *testing.T) {
	ff, err := New()
	if err != nil {
		t.Skipf("FFmpeg not found: %v", err)
	}

	err = ff.Assemble(context.Background(), AssembleConfig{
		Dir:    t.TempDir(),
		Output: filepath.Join(t.TempDir(), "out.webm"),
	})
	if !errors.Is(err, ErrRender) {
		t.Errorf("Assemble on empty folder = %v, want ErrRender", err)
	}
}

func TestListDevices(t *testing.T) {
	ff, err := New()
	if err != nil {
		t.Skipf("FFmpeg not found: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	output, err := ff.ListInputDevices(ctx)
	if err != nil {
		t.Logf("List devices error (expected): %v", err)
	}
	t.Logf("Devices:\n%s", output)
}

func shell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("sh not found: %v", err)
	}
	return sh
}

func TestProcessDrainsAfterExit(t *testing.T) {
	const frameSize, frames = 1000, 4
	proc, err := startProcess(context.Background(), shell(t), "-c", "head -c 4000 /dev/zero")
	if err != nil {
		t.Fatalf("startProcess: %v", err)
	}
	defer proc.Close()

	select {
	case <-proc.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit")
	}
	if err := proc.Err(); err != nil {
		t.Fatalf("Err = %v", err)
	}

	buf := make([]byte, frameSize)
	for i := range frames {
		if _, err := io.ReadFull(proc, buf); err != nil {
			t.Fatalf("frame %d: %v", i+1, err)
		}
	}
	if _, err := proc.Read(buf); !errors.Is(err, io.EOF) {
		t.Errorf("read after last frame = %v, want io.EOF", err)
	}
}

func TestProcessExitError(t *testing.T) {
	proc, err := startProcess(context.Background(), shell(t), "-c", "echo no such device >&2; exit 3")
	if err != nil {
		t.Fatalf("startProcess: %v", err)
	}
	defer proc.Close()

	if _, err := io.ReadAll(proc); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	<-proc.Done()

	var exitErr *exec.ExitError
	if err := proc.Err(); !errors.As(err, &exitErr) || exitErr.ExitCode() != 3 {
		t.Fatalf("Err = %v, want exit status 3", err)
	}
}

func TestProcessClose(t *testing.T) {
	proc, err := startProcess(context.Background(), shell(t), "-c", "exec sleep 30")
	if err != nil {
		t.Fatalf("startProcess: %v", err)
	}

	closed := make(chan error, 1)
	go func() { closed <- proc.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Close = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Close did not stop the process")
	}
	if err := proc.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if _, err := proc.Read(make([]byte, 1)); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Read after Close = %v, want os.ErrClosed", err)
	}
}
