// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/manash/banafit/pkg/models"
)

const (
	JoinAll     = "all"
	JoinPartial = "partial"

	DisplayAuto = "auto"
	DisplayOn   = "on"
	DisplayOff  = "off"
)

type Config struct {
	GeminiAPIKey  string
	GeminiBaseURL string
	Model         string

	LogLevel string
	AppEnv   string

	ExportDir  string
	LedgerPath string

	MaxConcurrent  int
	JoinPolicy     string
	RequestTimeout time.Duration
	Display        string

	DefaultCount int
	DefaultType  models.GenerationType
}

// Load reads the configuration through getenv, typically os.Getenv after
// godotenv has populated the process environment.
func Load(getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	e := env(getenv)

	cfg := Config{
		GeminiAPIKey:   strings.TrimSpace(getenv("GEMINI_API_KEY")),
		GeminiBaseURL:  e.str("GEMINI_BASE_URL", ""),
		Model:          e.str("BANAFIT_MODEL", models.DefaultModel),
		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		AppEnv:         e.str("APP_ENV", "production"),
		ExportDir:      e.str("EXPORT_DIR", "exports"),
		LedgerPath:     e.str("LEDGER_PATH", ""),
		MaxConcurrent:  e.int("MAX_CONCURRENT", 0),
		JoinPolicy:     strings.ToLower(e.str("JOIN_POLICY", JoinAll)),
		RequestTimeout: time.Duration(e.int("REQUEST_TIMEOUT_SECONDS", 0)) * time.Second,
		Display:        strings.ToLower(e.str("DISPLAY_IMAGES", DisplayAuto)),
		DefaultCount:   e.int("BANAFIT_COUNT", 3),
	}

	typ, err := models.ParseGenerationType(e.str("BANAFIT_TYPE", string(models.TypeModelChange)))
	if err != nil {
		return Config{}, fmt.Errorf("BANAFIT_TYPE: %w", err)
	}
	cfg.DefaultType = typ

	switch {
	case cfg.JoinPolicy != JoinAll && cfg.JoinPolicy != JoinPartial:
		return Config{}, fmt.Errorf("JOIN_POLICY must be %q or %q, got %q", JoinAll, JoinPartial, cfg.JoinPolicy)
	case !slices.Contains([]string{DisplayAuto, DisplayOn, DisplayOff}, cfg.Display):
		return Config{}, fmt.Errorf("DISPLAY_IMAGES must be auto, on or off, got %q", cfg.Display)
	case !slices.Contains(models.AllowedCounts(), cfg.DefaultCount):
		return Config{}, fmt.Errorf("BANAFIT_COUNT: %w: got %d", models.ErrInvalidCount, cfg.DefaultCount)
	}

	if cfg.MaxConcurrent < 0 {
		cfg.MaxConcurrent = 0
	}
	if cfg.RequestTimeout < 0 {
		cfg.RequestTimeout = 0
	}

	return cfg, nil
}

// GenerationConfig returns the session defaults derived from the settings.
func (c Config) GenerationConfig() models.GenerationConfig {
	g := models.DefaultGenerationConfig()
	if c.DefaultCount != 0 {
		g.Count = c.DefaultCount
	}
	if c.DefaultType != "" {
		g.Type = c.DefaultType
	}
	return g
}

type env func(string) string

func (e env) str(key, fallback string) string {
	if value := strings.TrimSpace(e(key)); value != "" {
		return value
	}
	return fallback
}

func (e env) int(key string, fallback int) int {
	value := strings.TrimSpace(e(key))
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}
