// Package config loads runtime settings from the environment, optionally
// seeded from a .env file, and translation presets from an INI file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
)

// EnvFileVar points at an explicit .env file.
const EnvFileVar = "GAME_TRANSLATOR_ENV"

type Config struct {
	HTTPAddr       string
	AllowedOrigins []string
	DataDir        string
	LogLevel       string
	LogFormat      string

	CaptureFPS     float64
	DisplayFPS     float64
	SnapshotPoll   time.Duration
	CaptureBackoff time.Duration

	StableThreshold int
	AutoTranslate   bool

	OCREngine           string
	OCRLang             string
	RemoteOCRAddr       string
	OCRSkipHashDistance int // negative disables the perceptual-hash skip

	TargetLang       string
	ContextLimit     int
	ExtraContext     string
	PresetsFile      string
	Preset           string
	TranslateTimeout time.Duration

	// Fallback preset when PresetsFile is absent.
	LLMModel   string
	LLMBaseURL string
	LLMAPIKey  string
}

// Load reads configuration. A .env file, when found, fills variables that are
// not already set in the process environment.
func Load() *Config {
	if path := resolveEnvPath(); path != "" {
		if err := godotenv.Load(path); err != nil {
			slog.Warn("failed to load env file", "path", path, "error", err)
		} else {
			slog.Debug("loaded env file", "path", path)
		}
	}

	return &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost", "http://127.0.0.1"}),
		DataDir:        getEnv("DATA_DIR", "./data"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),

		CaptureFPS:     getEnvFloat("CAPTURE_FPS", 10),
		DisplayFPS:     getEnvFloat("DISPLAY_FPS", 5),
		SnapshotPoll:   time.Duration(getEnvInt("SNAPSHOT_POLL_MS", 250)) * time.Millisecond,
		CaptureBackoff: time.Duration(getEnvInt("CAPTURE_BACKOFF_MS", 500)) * time.Millisecond,

		StableThreshold: getEnvInt("STABLE_THRESHOLD", 3),
		AutoTranslate:   getEnvBool("AUTO_TRANSLATE", true),

		OCREngine:           getEnv("OCR_ENGINE", "tesseract"),
		OCRLang:             getEnv("OCR_LANG", "ja"),
		RemoteOCRAddr:       getEnv("REMOTE_OCR_ADDR", ""),
		OCRSkipHashDistance: getEnvInt("OCR_SKIP_HASH_DISTANCE", 0),

		TargetLang:       getEnv("TARGET_LANG", "English"),
		ContextLimit:     getEnvInt("CONTEXT_LIMIT", 5),
		ExtraContext:     getEnv("EXTRA_CONTEXT", ""),
		PresetsFile:      getEnv("PRESETS_FILE", "presets.ini"),
		Preset:           getEnv("PRESET", "default"),
		TranslateTimeout: time.Duration(getEnvInt("TRANSLATE_TIMEOUT_SEC", 60)) * time.Second,

		LLMModel:   getEnv("LLM_MODEL", ""),
		LLMBaseURL: getEnv("LLM_BASE_URL", ""),
		LLMAPIKey:  getEnv("LLM_API_KEY", ""),
	}
}

// Validate clamps out-of-range values to their defaults and rejects settings
// the service cannot run without.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return apperrors.New(apperrors.CodeConfigMissing, "DATA_DIR is empty")
	}
	if c.StableThreshold < 1 {
		slog.Warn("STABLE_THRESHOLD must be at least 1, using 1", "value", c.StableThreshold)
		c.StableThreshold = 1
	}
	if c.CaptureFPS <= 0 {
		slog.Warn("CAPTURE_FPS must be positive, using 10", "value", c.CaptureFPS)
		c.CaptureFPS = 10
	}
	if c.DisplayFPS <= 0 {
		slog.Warn("DISPLAY_FPS must be positive, using 5", "value", c.DisplayFPS)
		c.DisplayFPS = 5
	}
	if c.ContextLimit < 0 {
		c.ContextLimit = 0
	}
	if c.SnapshotPoll <= 0 {
		c.SnapshotPoll = 250 * time.Millisecond
	}
	if c.CaptureBackoff <= 0 {
		c.CaptureBackoff = 500 * time.Millisecond
	}
	if c.TranslateTimeout <= 0 {
		c.TranslateTimeout = 60 * time.Second
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// CaptureInterval is the target delay between capture cycles.
func (c *Config) CaptureInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.CaptureFPS)
}

// DisplayInterval is the minimum delay between frame pushes to viewers.
func (c *Config) DisplayInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.DisplayFPS)
}

// ParseLevel maps LOG_LEVEL to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, apperrors.Newf(apperrors.CodeConfigInvalid, "unknown LOG_LEVEL %q", s)
}

// RedactKey masks an API key for logging: xxxx...yyyy.
func RedactKey(k string) string {
	if len(k) <= 8 {
		return "********"
	}
	return fmt.Sprintf("%s...%s", k[:4], k[len(k)-4:])
}

// resolveEnvPath prefers $GAME_TRANSLATOR_ENV, then ./.env, then .env beside the executable.
func resolveEnvPath() string {
	candidates := []string{os.Getenv(EnvFileVar), ".env"}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), ".env"))
	}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			result = append(result, t)
		}
	}
	return result
}
