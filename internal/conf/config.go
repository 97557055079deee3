// Package conf loads the renderer's configuration via viper: config.yaml is
// read from the search paths (the embedded default is written out first if
// none is found there), and the result is unmarshaled over the built-in
// defaults into Settings.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// RotationType controls how render-trace log files are rotated.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// LogConfig configures the rotating render-trace log (internal/logging.NewFileLogger).
type LogConfig struct {
	Enabled      bool
	Path         string
	Rotation     RotationType
	MaxSizeBytes int64
}

// Settings holds every recognized configuration option. The four fields
// under Render are exactly the options named in spec.md §6.
type Settings struct {
	Debug bool
	Log   LogConfig

	Render struct {
		// SingingTeacherStyleID is the style used for all four engine calls.
		SingingTeacherStyleID int

		// FirstRestMinDurationSeconds floors a phrase's leading rest.
		FirstRestMinDurationSeconds float64

		// LastRestDurationSeconds is the fixed trailing rest appended to
		// every phrase's notes-for-engine sequence.
		LastRestDurationSeconds float64

		// FadeOutDurationSeconds bounds the trailing-pau linear ramp.
		FadeOutDurationSeconds float64
	}

	Engine struct {
		// BaseURL of the remote synthesis engine HTTP API.
		BaseURL string
		// TimeoutSeconds bounds each of the four engine calls.
		TimeoutSeconds float64
		// FrameRates maps engine id to its frame rate (frames/second).
		FrameRates map[string]float64
		// EditorFrameRate is the frame rate pitch edits are sampled at.
		EditorFrameRate float64
	}
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Default returns the built-in defaults without touching viper or disk,
// useful for tests and library callers that don't want file-based config.
func Default() *Settings {
	s := &Settings{}
	s.Log.Enabled = true
	s.Log.Path = "logs/render.log"
	s.Log.Rotation = RotationSize
	s.Log.MaxSizeBytes = 100 * 1024 * 1024

	s.Render.SingingTeacherStyleID = 6000
	s.Render.FirstRestMinDurationSeconds = 0.12
	s.Render.LastRestDurationSeconds = 0.5
	s.Render.FadeOutDurationSeconds = 0.15

	s.Engine.BaseURL = "http://127.0.0.1:50021"
	s.Engine.TimeoutSeconds = 30
	s.Engine.FrameRates = map[string]float64{"default": 93.75}
	s.Engine.EditorFrameRate = 93.75
	return s
}

// Load reads config.yaml from the configured search paths (creating one
// from the embedded default on first run) and unmarshals it into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := Default()

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("initializing viper: %w", err)
	}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	settingsInstance = settings
	return settings, nil
}

func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	for _, path := range defaultConfigPaths() {
		viper.AddConfigPath(path)
	}

	setViperDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createDefaultConfig()
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	return nil
}

func setViperDefaults() {
	d := Default()
	viper.SetDefault("debug", d.Debug)
	viper.SetDefault("log.enabled", d.Log.Enabled)
	viper.SetDefault("log.path", d.Log.Path)
	viper.SetDefault("log.rotation", string(d.Log.Rotation))
	viper.SetDefault("log.maxsizebytes", d.Log.MaxSizeBytes)

	viper.SetDefault("render.singingteacherstyleid", d.Render.SingingTeacherStyleID)
	viper.SetDefault("render.firstrestmindurationseconds", d.Render.FirstRestMinDurationSeconds)
	viper.SetDefault("render.lastrestdurationseconds", d.Render.LastRestDurationSeconds)
	viper.SetDefault("render.fadeoutdurationseconds", d.Render.FadeOutDurationSeconds)

	viper.SetDefault("engine.baseurl", d.Engine.BaseURL)
	viper.SetDefault("engine.timeoutseconds", d.Engine.TimeoutSeconds)
	viper.SetDefault("engine.framerates", d.Engine.FrameRates)
	viper.SetDefault("engine.editorframerate", d.Engine.EditorFrameRate)
}

func createDefaultConfig() error {
	paths := defaultConfigPaths()
	configPath := filepath.Join(paths[0], "config.yaml")
	defaultConfig, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("reading embedded default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("writing default config file: %w", err)
	}
	return viper.ReadInConfig()
}

func defaultConfigPaths() []string {
	if dir := os.Getenv("PHRASE_RENDERER_CONFIG_DIR"); dir != "" {
		return []string{dir}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return []string{"."}
	}
	return []string{filepath.Join(home, ".config", "phrase-renderer"), "."}
}

// Setting returns the process-wide settings instance, loading defaults if
// Load has not been called yet.
func Setting() *Settings {
	settingsMutex.RLock()
	if settingsInstance != nil {
		defer settingsMutex.RUnlock()
		return settingsInstance
	}
	settingsMutex.RUnlock()

	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	if settingsInstance == nil {
		settingsInstance = Default()
	}
	return settingsInstance
}

// EngineTimeout returns Engine.TimeoutSeconds as a time.Duration.
func (s *Settings) EngineTimeout() time.Duration {
	return time.Duration(s.Engine.TimeoutSeconds * float64(time.Second))
}
