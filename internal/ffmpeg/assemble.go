package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ErrRender is returned when FFmpeg fails to produce the output video
var ErrRender = errors.New("failed to render video")

// AssembleConfig holds configuration for turning a frame folder into a video
type AssembleConfig struct {
	Dir       string // Folder holding the frames; FFmpeg runs here
	Pattern   string // Glob matched inside Dir (default *.png)
	Output    string // Absolute output path
	Framerate int    // Output frames per second (default 24)
}

// Assemble encodes every frame matching Pattern into a lossless VP9 video
func (f *FFmpeg) Assemble(ctx context.Context, cfg AssembleConfig) error {
	if cfg.Pattern == "" {
		cfg.Pattern = "*.png"
	}
	if cfg.Framerate <= 0 {
		cfg.Framerate = 24
	}

	cmd := exec.CommandContext(ctx, f.binaryPath, buildAssembleArgs(cfg)...)
	cmd.Dir = cfg.Dir
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %v\noutput: %s", ErrRender, err, output)
	}

	return nil
}

// buildAssembleArgs builds the fixed filter chain:
// ffmpeg -y -framerate N -pattern_type glob -i PATTERN -c:v libvpx-vp9 -pix_fmt yuva420p -lossless 1 OUT
func buildAssembleArgs(cfg AssembleConfig) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-framerate", fmt.Sprintf("%d", cfg.Framerate),
		"-pattern_type", "glob",
		"-i", cfg.Pattern,
		"-c:v", "libvpx-vp9",
		"-pix_fmt", "yuva420p",
		"-lossless", "1",
		cfg.Output,
	}
}
