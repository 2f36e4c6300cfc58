package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/petems/spectro-tray/internal/audio"
	"github.com/petems/spectro-tray/internal/capture"
	"github.com/petems/spectro-tray/internal/config"
	"github.com/petems/spectro-tray/internal/dsp"
	"github.com/petems/spectro-tray/internal/logging"
	"github.com/petems/spectro-tray/internal/permissions"
	"github.com/petems/spectro-tray/internal/server"
	"github.com/petems/spectro-tray/internal/spectrum"
	"github.com/petems/spectro-tray/internal/tray"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	// Load config from XDG/Library/AppData
	cfg, err := config.Load()
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)

	// macOS requires explicit audio capture approval before loopback works
	if err := permissions.EnsurePermissions(); err != nil {
		log.Fatal().Err(err).Msg("Required permissions not granted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the portaudio backend (device enumeration + loopback)
	backend, err := audio.NewPortAudio(log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}
	defer backend.Close()

	monitor := audio.NewMonitor(backend, log)
	defer monitor.Close()

	// Spectrum pipeline: scale + smooth, cached for the render layer
	pipeline := spectrum.New(spectrum.Options{
		SmoothingFactor:        cfg.Spectrum.SmoothingFactor,
		OverlaySmoothingFactor: cfg.Spectrum.OverlaySmoothingFactor,
	})

	// Analysis transform feeding the pipeline at the configured bar count
	analyzer := dsp.New(dsp.Options{
		FFTSize: cfg.Analysis.FFTSize,
		Window:  cfg.Analysis.Window,
		Scale:   cfg.Analysis.Scale,
	}, func(raw []float64) {
		pipeline.Process(raw, cfg.Spectrum.Bars)
	}, log)
	defer analyzer.Close()

	// Create tray UI first (we'll pass it the orchestrator below)
	trayUI := tray.New(nil, cfg, pipeline.SetOverlayMode, Version, Commit, log)

	orchestrator := capture.New(capture.Config{
		Monitor:  monitor,
		Loopback: backend,
		Analyzer: analyzer,
		Pipeline: pipeline,
		Downmix:  cfg.Analysis.Downmix,
		Logger:   log,
		Options: capture.Options{
			StartRetries: cfg.Capture.StartRetries,
			RetryDelay:   time.Duration(cfg.Capture.RetryDelayMs) * time.Millisecond,
			PollInterval: time.Duration(cfg.Capture.PollIntervalMs) * time.Millisecond,
			SettleDelay:  time.Duration(cfg.Capture.SettleDelayMs) * time.Millisecond,
			StopTimeout:  time.Duration(cfg.Capture.StopTimeoutMs) * time.Millisecond,
		},
		OnStateChanged: func(s capture.State) {
			switch s {
			case capture.StateRecording:
				trayUI.SetRecording()
			case capture.StateIdle:
				trayUI.SetIdle()
			}
		},
		OnError: trayUI.SetError,
	})

	// Set orchestrator reference in tray
	trayUI.SetController(orchestrator)

	// Optional WebSocket broadcast for render clients
	var wsServer *server.Server
	if cfg.Server.Enabled {
		wsServer = server.New(cfg.Server.Listen, pipeline, orchestrator, log)
		wsServer.Start()
	}

	log.Info().Str("version", Version).Msg("SpectroTray starting...")

	// Begin capturing on launch; a missing device just leaves us idle
	// until the tray or a device notification starts us again.
	if err := orchestrator.StartCapture(ctx); err != nil {
		log.Warn().Err(err).Msg("Initial capture start rejected")
	}

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if wsServer != nil {
			if err := wsServer.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Server shutdown error")
			}
		}
		if err := orchestrator.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Shutdown error")
		}
		os.Exit(0)
	}()

	// Start tray UI - MUST run on main thread
	if err := trayUI.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Tray error")
	}
}
