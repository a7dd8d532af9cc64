package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/video-system/go-timelapse/internal/ffmpeg"
	"github.com/video-system/go-timelapse/internal/logging"
	"github.com/video-system/go-timelapse/pkg/api"
	"github.com/video-system/go-timelapse/pkg/config"
	"github.com/video-system/go-timelapse/pkg/timelapse"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "manifest.yaml", "Path to manifest file")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	listDevices := flag.Bool("list-devices", false, "List capture devices and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("snapshot", version)
		return
	}

	if *listDevices {
		ff, err := ffmpeg.New()
		if err != nil {
			log.Fatalf("Failed to find FFmpeg: %v", err)
		}
		out, err := ff.ListInputDevices(context.Background())
		if err != nil {
			log.Fatalf("Failed to list devices: %v", err)
		}
		fmt.Print(out)
		return
	}

	os.Exit(run(*configPath, *logLevel))
}

func run(configPath, level string) int {
	manifest, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load manifest: %v", err)
		return 1
	}

	logger, err := logging.New(logging.Config{
		Folder: manifest.Config.LogFolder,
		Level:  logging.ParseLevel(level),
	}, os.Stderr)
	if err != nil {
		log.Printf("Failed to create logger: %v", err)
		return 1
	}
	defer logger.Close()

	app := timelapse.NewApp(manifest, logger.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The first signal removes the lock so the run ends after the sample in
	// progress; a second one aborts
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, finishing current sample")
		if err := app.Stop(); err != nil {
			logger.Error("Failed to remove lock", "error", err)
		}
		<-sigChan
		logger.Warn("Second signal received, aborting")
		cancel()
	}()

	if manifest.API.Enabled {
		apiServer := api.NewServer(api.ServerConfig{
			Host:   manifest.API.Host,
			Port:   manifest.API.Port,
			Engine: app,
			Logger: logger.Logger,
		})
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("API server error", "error", err)
			}
		}()
		defer apiServer.Stop()
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("Capture failed", "error", err)
		return 1
	}

	logger.Info("Capture stopped", "samples", app.Status().Samples)
	return 0
}
