package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// ErrNotFound is returned when the ffmpeg or ffprobe binary cannot be located
var ErrNotFound = errors.New("binary not found")

// FFmpeg wraps FFmpeg binary execution
type FFmpeg struct {
	binaryPath string
	probePath  string
}

// New creates a new FFmpeg wrapper
func New() (*FFmpeg, error) {
	ffmpegPath, err := findBinary("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	ffprobePath, err := findBinary("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	return &FFmpeg{
		binaryPath: ffmpegPath,
		probePath:  ffprobePath,
	}, nil
}

// findBinary locates a binary in PATH or common locations
func findBinary(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/opt/homebrew/bin/" + name,
			"/usr/local/bin/" + name,
		}
	case "linux":
		paths = []string{
			"/usr/bin/" + name,
			"/usr/local/bin/" + name,
		}
	case "windows":
		paths = []string{
			"C:\\ffmpeg\\bin\\" + name + ".exe",
			"C:\\Program Files\\ffmpeg\\bin\\" + name + ".exe",
		}
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w: %s not in PATH or common locations", ErrNotFound, name)
}

// Version returns the FFmpeg version string
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, f.binaryPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}
	return "", fmt.Errorf("no version output")
}

// Process is a running FFmpeg capture process streaming raw frames on stdout.
// Frames already written stay readable after the process exits; Read
// returns io.EOF once they are drained.
type Process struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr bytes.Buffer
	done   chan struct{}
	err    error

	closeOnce sync.Once
	closeErr  error
}

// CaptureConfig describes a device capture that emits rawvideo on stdout
type CaptureConfig struct {
	Backend      string // v4l2, avfoundation, dshow
	Device       string // /dev/video0, "0:0", "video=Webcam"
	Width        int
	Height       int
	Framerate    int
	PixelFormat  string // Pixel format negotiated with the device (optional)
	OutputFormat string // rawvideo pix_fmt written to stdout
}

// StartCapture starts an FFmpeg process reading from a capture device
func (f *FFmpeg) StartCapture(ctx context.Context, cfg CaptureConfig) (*Process, error) {
	proc, err := startProcess(ctx, f.binaryPath, buildCaptureArgs(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return proc, nil
}

// startProcess runs name with stdout on a pipe owned by the Process, so
// Wait never closes the read end under a pending reader.
func startProcess(ctx context.Context, name string, args ...string) (*Process, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	proc := &Process{
		cmd:    cmd,
		stdout: r,
		done:   make(chan struct{}),
	}
	cmd.Stdout = w
	cmd.Stderr = &proc.stderr

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	// The child holds its own copy; ours must go for EOF to arrive
	w.Close()

	go func() {
		proc.err = cmd.Wait()
		close(proc.done)
	}()

	return proc, nil
}

// Read reads raw frame bytes from FFmpeg stdout
func (p *Process) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

// Close terminates the process, waits for it to exit and closes stdout
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		select {
		case <-p.done:
		default:
			if p.cmd.Process != nil {
				_ = p.cmd.Process.Kill()
			}
			<-p.done
		}
		p.closeErr = p.stdout.Close()
	})
	return p.closeErr
}

// Done returns a channel closed when the process exits
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the exit error and stderr once the process has exited
func (p *Process) Err() error {
	select {
	case <-p.done:
	default:
		return nil
	}
	if p.err == nil {
		return nil
	}
	if msg := strings.TrimSpace(p.stderr.String()); msg != "" {
		return fmt.Errorf("%w: %s", p.err, msg)
	}
	return p.err
}

// buildCaptureArgs builds FFmpeg arguments for single-stream raw capture.
// Equivalent to: ffmpeg -f BACKEND -framerate N -video_size WxH -i DEVICE -f rawvideo -pix_fmt FMT -
func buildCaptureArgs(cfg CaptureConfig) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-f", cfg.Backend,
	}

	if cfg.Framerate > 0 {
		args = append(args, "-framerate", fmt.Sprintf("%d", cfg.Framerate))
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height))
	}
	if cfg.PixelFormat != "" {
		args = append(args, "-pixel_format", cfg.PixelFormat)
	}

	args = append(args,
		"-i", cfg.Device,
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", cfg.OutputFormat,
	)

	// Pin the output geometry so every frame has the same size
	if cfg.Width > 0 && cfg.Height > 0 {
		args = append(args, "-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height))
	}

	return append(args, "pipe:1")
}

// ListInputDevices lists available input devices (macOS AVFoundation, Linux v4l2)
func (f *FFmpeg) ListInputDevices(ctx context.Context) (string, error) {
	var args []string

	switch runtime.GOOS {
	case "darwin":
		args = []string{"-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""}
	case "linux":
		args = []string{"-hide_banner", "-f", "v4l2", "-list_formats", "all", "-i", "/dev/video0"}
	case "windows":
		args = []string{"-hide_banner", "-f", "dshow", "-list_devices", "true", "-i", "dummy"}
	default:
		return "", fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}

	cmd := exec.CommandContext(ctx, f.binaryPath, args...)
	output, _ := cmd.CombinedOutput() // This will "fail" but output device list
	return string(output), nil
}

// DefaultBackend returns the capture backend for the running OS
func DefaultBackend() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "v4l2"
	}
}
