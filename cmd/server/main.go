// Game translator server: captures a game window, reads configured regions
// with OCR and translates stable text through an OpenAI-compatible endpoint.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/GriffinCanCode/game-translator/internal/config"
	"github.com/GriffinCanCode/game-translator/internal/gamekey"
	"github.com/GriffinCanCode/game-translator/internal/grpcclient"
	"github.com/GriffinCanCode/game-translator/internal/ocr"
	"github.com/GriffinCanCode/game-translator/internal/orchestrator"
	"github.com/GriffinCanCode/game-translator/internal/region"
	"github.com/GriffinCanCode/game-translator/internal/screen"
	"github.com/GriffinCanCode/game-translator/internal/server"
	"github.com/GriffinCanCode/game-translator/internal/translate"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg)

	// OCR engines
	registry := ocr.NewRegistry()
	defer registry.Close()
	if !ocr.RegisterTesseract(registry) {
		slog.Warn("tesseract not built in; only the remote engine is available")
	}
	if cfg.RemoteOCRAddr != "" {
		client, err := grpcclient.New(cfg.RemoteOCRAddr)
		if err != nil {
			slog.Error("failed to create remote OCR client", "addr", cfg.RemoteOCRAddr, "error", err)
			os.Exit(1)
		}
		defer func() { _ = client.Close() }()
		registry.Register(ocr.NewRemote(client))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := <-registry.InitAsync(ctx, cfg.OCREngine); err != nil {
			slog.Error("OCR engine failed to start", "engine", cfg.OCREngine, "error", err)
			return
		}
		slog.Info("OCR engine ready", "engine", cfg.OCREngine)
	}()

	// Translation
	preset, err := cfg.ActivePreset()
	if err != nil {
		slog.Warn("no usable translation preset", "preset", cfg.Preset, "error", err)
		preset = config.Preset{Name: cfg.Preset}
	}
	presets := loadPresets(cfg, preset)
	slog.Info("translation preset", "name", preset.Name, "model", preset.Model,
		"base_url", preset.BaseURL, "api_key", config.RedactKey(preset.APIKey))

	cache := translate.NewCacheStore(filepath.Join(cfg.DataDir, "translations"))
	history := translate.NewConversationStore(filepath.Join(cfg.DataDir, "translations"))
	coord := translate.NewCoordinator(translate.NewHTTPClient(cfg.TranslateTimeout), cache, history)

	// Capture
	platform := screen.NewPlatform()
	source := screen.NewSource(platform, screen.ScreenGrabber{})

	settings := orchestrator.Settings{
		TargetLang:       cfg.TargetLang,
		OCRLang:          cfg.OCRLang,
		OCREngine:        cfg.OCREngine,
		ExtraContext:     cfg.ExtraContext,
		ContextLimit:     cfg.ContextLimit,
		StableThreshold:  cfg.StableThreshold,
		Preset:           preset,
		TranslateTimeout: cfg.TranslateTimeout,
	}
	if err := settings.Validate(); err != nil {
		slog.Error("invalid translation settings", "error", err)
		os.Exit(1)
	}

	mgr := orchestrator.New(orchestrator.Deps{
		Source:          source,
		OCR:             registry,
		Translator:      coord,
		Regions:         region.NewStore(filepath.Join(cfg.DataDir, "regions")),
		Resolve:         func(h screen.Handle) string { return gamekey.Resolve(platform, h) },
		MaxHashDistance: cfg.OCRSkipHashDistance,
	}, settings, orchestrator.Timing{
		CaptureInterval: cfg.CaptureInterval(),
		DisplayInterval: cfg.DisplayInterval(),
		SnapshotPoll:    cfg.SnapshotPoll,
		CaptureBackoff:  cfg.CaptureBackoff,
	}, cfg.AutoTranslate)

	srv := server.New(ctx, server.Deps{
		Controller: mgr,
		Cache:      cache,
		Context:    history,
		Engines:    registry,
		Presets:    presets,
	}, cfg)

	// Capture loops and translations outlive requests, so the server has no
	// write timeout.
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("game translator starting", "http", cfg.HTTPAddr, "data", cfg.DataDir,
			"engine", cfg.OCREngine, "ocr_lang", cfg.OCRLang, "target", cfg.TargetLang)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	if err := mgr.Close(); err != nil {
		slog.Error("capture shutdown error", "error", err)
	}
	cancel()
	slog.Info("shutdown complete")
}

func setupLogging(cfg *config.Config) {
	level, _ := config.ParseLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

// loadPresets returns every selectable preset. Without a presets file the
// active one is the only choice.
func loadPresets(cfg *config.Config, active config.Preset) map[string]config.Preset {
	single := map[string]config.Preset{active.Name: active}
	if _, err := os.Stat(cfg.PresetsFile); errors.Is(err, fs.ErrNotExist) {
		return single
	}
	presets, err := config.LoadPresets(cfg.PresetsFile)
	if err != nil {
		slog.Warn("failed to load presets", "path", cfg.PresetsFile, "error", err)
		return single
	}
	return presets
}
