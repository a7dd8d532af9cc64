package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// ProbeResult holds ffprobe output for an assembled video
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat holds container-level information
type ProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

// ProbeStream holds stream-level information
type ProbeStream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	PixFmt       string `json:"pix_fmt,omitempty"`
	FrameRate    string `json:"r_frame_rate,omitempty"`
	AvgFrameRate string `json:"avg_frame_rate,omitempty"`
	NbFrames     string `json:"nb_frames,omitempty"`
}

// Probe analyzes a media file and returns metadata
func (f *FFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, f.probePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbe(output)
}

func parseProbe(output []byte) (*ProbeResult, error) {
	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &result, nil
}

// VideoInfo is the simplified view of the first video stream
type VideoInfo struct {
	Width     int
	Height    int
	Duration  float64
	Framerate float64
	Frames    int64
	Codec     string
	PixelFmt  string
	SizeBytes int64
}

// GetVideoInfo returns simplified video information
func (f *FFmpeg) GetVideoInfo(ctx context.Context, path string) (*VideoInfo, error) {
	probe, err := f.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	return probe.VideoInfo(), nil
}

// VideoInfo extracts the first video stream
func (p *ProbeResult) VideoInfo() *VideoInfo {
	info := &VideoInfo{}

	for _, stream := range p.Streams {
		if stream.CodecType != "video" {
			continue
		}
		info.Width = stream.Width
		info.Height = stream.Height
		info.Codec = stream.CodecName
		info.PixelFmt = stream.PixFmt

		// Parse framerate (format: "30/1" or "30000/1001")
		if stream.AvgFrameRate != "" && stream.AvgFrameRate != "0/0" {
			info.Framerate = parseFramerate(stream.AvgFrameRate)
		} else if stream.FrameRate != "" {
			info.Framerate = parseFramerate(stream.FrameRate)
		}

		if stream.NbFrames != "" {
			info.Frames, _ = strconv.ParseInt(stream.NbFrames, 10, 64)
		}
		break
	}

	if p.Format.Duration != "" {
		info.Duration, _ = strconv.ParseFloat(p.Format.Duration, 64)
	}
	if p.Format.Size != "" {
		info.SizeBytes, _ = strconv.ParseInt(p.Format.Size, 10, 64)
	}

	return info
}

// parseFramerate parses a framerate string like "30/1" or "30000/1001"
func parseFramerate(s string) float64 {
	var num, den int
	if n, _ := fmt.Sscanf(s, "%d/%d", &num, &den); n == 2 && den != 0 {
		return float64(num) / float64(den)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return 0
}

// Resolution returns resolution string like "1920x1080"
func (v *VideoInfo) Resolution() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}
