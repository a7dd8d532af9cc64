package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/video-system/go-timelapse/internal/ffmpeg"
	"github.com/video-system/go-timelapse/internal/logging"
	"github.com/video-system/go-timelapse/pkg/config"
)

func main() {
	configPath := flag.String("config", "manifest.yaml", "Path to manifest file")
	flag.Parse()

	manifest, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load manifest: %v", err)
	}

	logger, err := logging.New(logging.Config{Folder: manifest.Config.LogFolder}, os.Stderr)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := assemble(ctx, manifest, logger.Logger); err != nil {
		logger.Error("Assembly failed", "error", err)
		logger.Close()
		os.Exit(1)
	}
}

func assemble(ctx context.Context, manifest *config.Manifest, logger *slog.Logger) error {
	output, err := manifest.ExportPath()
	if err != nil {
		return err
	}

	frames := manifest.Config.OutputFolder
	if info, err := os.Stat(frames); err != nil || !info.IsDir() {
		return fmt.Errorf("frame folder %s does not exist", frames)
	}

	ff, err := ffmpeg.New()
	if err != nil {
		return err
	}

	logger.Info("Assembling video",
		"frames", frames,
		"pattern", manifest.Export.Pattern,
		"output", output,
		"framerate", manifest.Export.ExportFramerate)

	if err := ff.Assemble(ctx, ffmpeg.AssembleConfig{
		Dir:       frames,
		Pattern:   manifest.Export.Pattern,
		Output:    output,
		Framerate: manifest.Export.ExportFramerate,
	}); err != nil {
		return err
	}

	info, err := ff.GetVideoInfo(ctx, output)
	if err != nil {
		logger.Warn("Failed to probe output", "error", err)
		return nil
	}
	logger.Info("Video written",
		"output", output,
		"resolution", info.Resolution(),
		"frames", info.Frames,
		"duration", info.Duration,
		"size_bytes", info.SizeBytes)
	return nil
}
