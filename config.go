package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/Snd-R/Komelia-sub005/internal/panels"
	"github.com/Snd-R/Komelia-sub005/internal/processing"
	"github.com/Snd-R/Komelia-sub005/internal/raster"
	"github.com/Snd-R/Komelia-sub005/internal/source"
	"github.com/Snd-R/Komelia-sub005/internal/tiling"
)

// Window size constants
const (
	defaultWidth  = 1000
	defaultHeight = 1400
	minWidth      = 400
	minHeight     = 300
)

const (
	defaultFontSize  = 24.0
	minFontSize      = 12.0
	maxCacheSize     = 64
	maxColorAdjust   = 100.0
	defaultLogLevel  = "info"
	configEnvPrefix  = "KOMELIA"
	configFileName   = ".komelia.json"
	configStatusOK   = "OK"
	configStatusDef  = "Default"
	configStatusWarn = "Warning"
	configStatusErr  = "Error"
)

// ConfigLoadResult contains the result of loading configuration
type ConfigLoadResult struct {
	Config   Config
	HasError bool
	Warnings []string
	Status   string // "OK", "Default", "Warning", "Error"
}

type Config struct {
	WindowWidth        int                 `json:"window_width" mapstructure:"window_width"`
	WindowHeight       int                 `json:"window_height" mapstructure:"window_height"`
	RightToLeft        bool                `json:"right_to_left" mapstructure:"right_to_left"`
	HelpFontSize       float64             `json:"help_font_size" mapstructure:"help_font_size"`
	SortMethod         int                 `json:"sort_method" mapstructure:"sort_method"`
	Fullscreen         bool                `json:"fullscreen" mapstructure:"fullscreen"`
	CacheSize          int                 `json:"cache_size" mapstructure:"cache_size"`
	StretchToFit       bool                `json:"stretch_to_fit" mapstructure:"stretch_to_fit"`
	UpsamplingKernel   string              `json:"upsampling_kernel" mapstructure:"upsampling_kernel"`
	DownsamplingKernel string              `json:"downsampling_kernel" mapstructure:"downsampling_kernel"`
	ShowTileGrid       bool                `json:"show_tile_grid" mapstructure:"show_tile_grid"`
	Brightness         float64             `json:"brightness" mapstructure:"brightness"`
	Contrast           float64             `json:"contrast" mapstructure:"contrast"`
	Saturation         float64             `json:"saturation" mapstructure:"saturation"`
	Gamma              float64             `json:"gamma" mapstructure:"gamma"`
	CoverageThreshold  float64             `json:"coverage_threshold" mapstructure:"coverage_threshold"`
	TrimThreshold      int                 `json:"trim_threshold" mapstructure:"trim_threshold"`
	LogLevel           string              `json:"log_level" mapstructure:"log_level"`
	Keybindings        map[string][]string `json:"keybindings" mapstructure:"keybindings"`
	Mousebindings      map[string][]string `json:"mousebindings" mapstructure:"mousebindings"`
	MouseSettings      MouseSettings       `json:"mouse_settings" mapstructure:"mouse_settings"`
	Tiling             TilingSettings      `json:"tiling" mapstructure:"tiling"`
}

// TilingSettings picks between a full resize and tiling. Edges are in
// pixels; a page whose target area stays under FullResizeMaxEdge squared is
// resized in one piece.
type TilingSettings struct {
	FullResizeMaxEdge int     `json:"full_resize_max_edge" mapstructure:"full_resize_max_edge"`
	Tile1024MaxEdge   int     `json:"tile_1024_max_edge" mapstructure:"tile_1024_max_edge"`
	Tile512MaxEdge    int     `json:"tile_512_max_edge" mapstructure:"tile_512_max_edge"`
	LookAhead         float64 `json:"look_ahead" mapstructure:"look_ahead"`
	DebounceMs        int     `json:"debounce_ms" mapstructure:"debounce_ms"`
}

func defaultTilingSettings() TilingSettings {
	t := tiling.DefaultTuning()
	return TilingSettings{
		FullResizeMaxEdge: edgeOf(t.FullResizeMaxPixels),
		Tile1024MaxEdge:   edgeOf(t.Tile1024MaxPixels),
		Tile512MaxEdge:    edgeOf(t.Tile512MaxPixels),
		LookAhead:         t.LookAhead,
		DebounceMs:        int(t.Debounce / time.Millisecond),
	}
}

func edgeOf(pixels int) int {
	return int(math.Round(math.Sqrt(float64(pixels))))
}

func defaultConfig() Config {
	render := tiling.DefaultRenderSettings()
	return Config{
		WindowWidth:        defaultWidth,
		WindowHeight:       defaultHeight,
		HelpFontSize:       defaultFontSize,
		SortMethod:         source.SortNatural,
		CacheSize:          panels.DefaultCacheSize,
		StretchToFit:       render.StretchToFit,
		UpsamplingKernel:   render.Upsampling.String(),
		DownsamplingKernel: render.Downsampling.String(),
		Gamma:              1,
		CoverageThreshold:  panels.DefaultCoverageThreshold,
		TrimThreshold:      panels.DefaultTrimThreshold,
		LogLevel:           defaultLogLevel,
		Keybindings:        GetDefaultKeybindings(),
		Mousebindings:      GetDefaultMousebindings(),
		MouseSettings:      GetDefaultMouseSettings(),
		Tiling:             defaultTilingSettings(),
	}
}

// ReadingDirection maps the stored flag to a panel order.
func (c Config) ReadingDirection() panels.ReadingDirection {
	if c.RightToLeft {
		return panels.RightToLeft
	}
	return panels.LeftToRight
}

// RenderSettings returns the tiling settings; kernel names were validated on
// load.
func (c Config) RenderSettings() tiling.RenderSettings {
	settings := tiling.DefaultRenderSettings()
	settings.StretchToFit = c.StretchToFit
	if k, err := raster.ParseKernel(c.UpsamplingKernel); err == nil {
		settings.Upsampling = k
	}
	if k, err := raster.ParseKernel(c.DownsamplingKernel); err == nil {
		settings.Downsampling = k
	}
	return settings
}

func (c Config) Tuning() tiling.Tuning {
	debounce := time.Duration(c.Tiling.DebounceMs) * time.Millisecond
	if c.Tiling.DebounceMs == 0 {
		debounce = -1
	}
	return tiling.Tuning{
		FullResizeMaxPixels: c.Tiling.FullResizeMaxEdge * c.Tiling.FullResizeMaxEdge,
		Tile1024MaxPixels:   c.Tiling.Tile1024MaxEdge * c.Tiling.Tile1024MaxEdge,
		Tile512MaxPixels:    c.Tiling.Tile512MaxEdge * c.Tiling.Tile512MaxEdge,
		LookAhead:           c.Tiling.LookAhead,
		Debounce:            debounce,
	}
}

func (c Config) Correction() processing.Correction {
	return processing.Correction{
		Brightness: c.Brightness,
		Contrast:   c.Contrast,
		Saturation: c.Saturation,
		Gamma:      c.Gamma,
	}
}

func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func getConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return strings.TrimPrefix(configFileName, ".")
	}
	return filepath.Join(homeDir, configFileName)
}

func newConfigViper(configPath string) *viper.Viper {
	v := viper.New()
	defaults := defaultConfig()
	v.SetDefault("window_width", defaults.WindowWidth)
	v.SetDefault("window_height", defaults.WindowHeight)
	v.SetDefault("right_to_left", defaults.RightToLeft)
	v.SetDefault("help_font_size", defaults.HelpFontSize)
	v.SetDefault("sort_method", defaults.SortMethod)
	v.SetDefault("fullscreen", defaults.Fullscreen)
	v.SetDefault("cache_size", defaults.CacheSize)
	v.SetDefault("stretch_to_fit", defaults.StretchToFit)
	v.SetDefault("upsampling_kernel", defaults.UpsamplingKernel)
	v.SetDefault("downsampling_kernel", defaults.DownsamplingKernel)
	v.SetDefault("show_tile_grid", defaults.ShowTileGrid)
	v.SetDefault("brightness", defaults.Brightness)
	v.SetDefault("contrast", defaults.Contrast)
	v.SetDefault("saturation", defaults.Saturation)
	v.SetDefault("gamma", defaults.Gamma)
	v.SetDefault("coverage_threshold", defaults.CoverageThreshold)
	v.SetDefault("trim_threshold", defaults.TrimThreshold)
	v.SetDefault("log_level", defaults.LogLevel)

	// KOMELIA_LOG_LEVEL=debug and friends
	v.SetEnvPrefix(configEnvPrefix)
	v.AutomaticEnv()

	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	return v
}

func loadConfigFromPath(configPath string) ConfigLoadResult {
	return readConfig(newConfigViper(configPath))
}

// readConfig reads the file behind v, falling back to defaults when it is
// missing or broken, and clamps every value into its valid range.
func readConfig(v *viper.Viper) ConfigLoadResult {
	result := ConfigLoadResult{
		Config:   defaultConfig(),
		Warnings: []string{},
		Status:   configStatusOK,
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			result.Status = configStatusDef
			return result
		}
		result.HasError = true
		result.Status = configStatusErr
		result.Warnings = append(result.Warnings, fmt.Sprintf("Invalid config file: %v", err))
		return result
	}

	config := defaultConfig()
	config.Keybindings = nil
	config.Mousebindings = nil
	if err := v.Unmarshal(&config); err != nil {
		result.HasError = true
		result.Status = configStatusErr
		result.Warnings = append(result.Warnings, fmt.Sprintf("Invalid config values: %v", err))
		return result
	}

	warnings := validateConfig(&config)
	if len(warnings) > 0 {
		result.Status = configStatusWarn
		result.Warnings = append(result.Warnings, warnings...)
	}
	result.Config = config
	return result
}

// validateConfig clamps config in place and returns what it had to reset.
func validateConfig(config *Config) []string {
	var warnings []string
	defaults := defaultConfig()

	if config.WindowWidth < minWidth {
		config.WindowWidth = defaults.WindowWidth
	}
	if config.WindowHeight < minHeight {
		config.WindowHeight = defaults.WindowHeight
	}

	// Minimum 12px for readability
	if config.HelpFontSize <= minFontSize {
		config.HelpFontSize = defaults.HelpFontSize
	}

	if config.SortMethod < source.SortNatural || config.SortMethod > source.SortEntryOrder {
		config.SortMethod = source.SortNatural
	}

	if config.CacheSize < 1 {
		config.CacheSize = defaults.CacheSize
	} else if config.CacheSize > maxCacheSize {
		config.CacheSize = maxCacheSize
	}

	if _, err := raster.ParseKernel(config.UpsamplingKernel); err != nil {
		warnings = append(warnings, fmt.Sprintf("upsampling_kernel: %v", err))
		config.UpsamplingKernel = defaults.UpsamplingKernel
	}
	if _, err := raster.ParseKernel(config.DownsamplingKernel); err != nil {
		warnings = append(warnings, fmt.Sprintf("downsampling_kernel: %v", err))
		config.DownsamplingKernel = defaults.DownsamplingKernel
	}

	config.Brightness = clampFloat(config.Brightness, -maxColorAdjust, maxColorAdjust)
	config.Contrast = clampFloat(config.Contrast, -maxColorAdjust, maxColorAdjust)
	config.Saturation = clampFloat(config.Saturation, -maxColorAdjust, maxColorAdjust)
	if config.Gamma <= 0 {
		config.Gamma = defaults.Gamma
	}

	if config.CoverageThreshold <= 0 || config.CoverageThreshold > 1 {
		config.CoverageThreshold = defaults.CoverageThreshold
	}
	if config.TrimThreshold < 1 || config.TrimThreshold > 255 {
		config.TrimThreshold = defaults.TrimThreshold
	}

	tilingDefaults := defaults.Tiling
	t := &config.Tiling
	if t.FullResizeMaxEdge < 1 || t.Tile1024MaxEdge < t.FullResizeMaxEdge || t.Tile512MaxEdge < t.Tile1024MaxEdge {
		warnings = append(warnings, "tiling: edges must be positive and ascending")
		t.FullResizeMaxEdge = tilingDefaults.FullResizeMaxEdge
		t.Tile1024MaxEdge = tilingDefaults.Tile1024MaxEdge
		t.Tile512MaxEdge = tilingDefaults.Tile512MaxEdge
	}
	if t.LookAhead < 1 {
		t.LookAhead = tilingDefaults.LookAhead
	}
	if t.DebounceMs < 0 {
		t.DebounceMs = tilingDefaults.DebounceMs
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(config.LogLevel)); err != nil {
		warnings = append(warnings, fmt.Sprintf("log_level: %v", err))
		config.LogLevel = defaults.LogLevel
	}

	if config.MouseSettings.WheelSensitivity <= 0 {
		config.MouseSettings.WheelSensitivity = defaults.MouseSettings.WheelSensitivity
	}
	if config.MouseSettings.DoubleClickTime <= 0 {
		config.MouseSettings.DoubleClickTime = defaults.MouseSettings.DoubleClickTime
	}
	if config.MouseSettings.DragThreshold < 0 {
		config.MouseSettings.DragThreshold = defaults.MouseSettings.DragThreshold
	}
	if config.MouseSettings.DragSensitivity <= 0 {
		config.MouseSettings.DragSensitivity = defaults.MouseSettings.DragSensitivity
	}

	config.Keybindings = withDefaultBindings(config.Keybindings, defaults.Keybindings)
	if err := validateKeybindings(config.Keybindings); err != nil {
		warnings = append(warnings, fmt.Sprintf("Keybinding errors: %v", err))
		config.Keybindings = defaults.Keybindings
	}
	config.Mousebindings = withDefaultBindings(config.Mousebindings, defaults.Mousebindings)
	if err := validateMousebindings(config.Mousebindings); err != nil {
		warnings = append(warnings, fmt.Sprintf("Mouse binding errors: %v", err))
		config.Mousebindings = defaults.Mousebindings
	}
	return warnings
}

// withDefaultBindings fills in actions missing from bindings.
func withDefaultBindings(bindings, defaults map[string][]string) map[string][]string {
	if bindings == nil {
		return defaults
	}
	for action, keys := range defaults {
		if _, exists := bindings[action]; !exists {
			bindings[action] = keys
		}
	}
	return bindings
}

func clampFloat(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}

// validateKeybindings validates the keybindings configuration
func validateKeybindings(keybindings map[string][]string) error {
	keyToAction := make(map[string]string)
	for action, keys := range keybindings {
		for _, keyStr := range keys {
			if _, err := parseKeyString(keyStr); err != nil {
				return fmt.Errorf("invalid key '%s' for action '%s': %w", keyStr, action, err)
			}
			if existingAction, exists := keyToAction[keyStr]; exists {
				return fmt.Errorf("key conflict: '%s' is bound to both '%s' and '%s'", keyStr, existingAction, action)
			}
			keyToAction[keyStr] = action
		}
	}
	return nil
}

func validateMousebindings(mousebindings map[string][]string) error {
	inputToAction := make(map[string]string)
	for action, inputs := range mousebindings {
		for _, mouseStr := range inputs {
			if _, err := parseMouseString(mouseStr); err != nil {
				return fmt.Errorf("invalid mouse input '%s' for action '%s': %w", mouseStr, action, err)
			}
			if existingAction, exists := inputToAction[mouseStr]; exists {
				return fmt.Errorf("mouse conflict: '%s' is bound to both '%s' and '%s'", mouseStr, existingAction, action)
			}
			inputToAction[mouseStr] = action
		}
	}
	return nil
}

// getSortMethodName returns the human-readable name of a sort method
func getSortMethodName(sortMethod int) string {
	return source.GetSortStrategy(sortMethod).Name()
}

func saveConfigToPath(config Config, configPath string) error {
	if config.WindowWidth < minWidth || config.WindowHeight < minHeight {
		return fmt.Errorf("not saving config with invalid window size %dx%d", config.WindowWidth, config.WindowHeight)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("save config to %s: %w", configPath, err)
	}
	return nil
}

// ConfigManager owns the config file: it loads it, saves it and reloads it
// when it changes on disk.
type ConfigManager struct {
	path   string
	v      *viper.Viper
	logger *slog.Logger

	mu        sync.RWMutex
	result    ConfigLoadResult
	callbacks []func(Config)
}

// NewConfigManager loads the config at path. A missing or invalid file is
// not an error; the defaults are used and the problem is reported by Status.
func NewConfigManager(path string, logger *slog.Logger) *ConfigManager {
	if logger == nil {
		logger = slog.Default()
	}
	cm := &ConfigManager{
		path:   path,
		v:      newConfigViper(path),
		logger: logger.With("component", "config"),
	}
	cm.result = readConfig(cm.v)
	for _, w := range cm.result.Warnings {
		cm.logger.Warn("config problem", "path", path, "warning", w)
	}
	return cm
}

func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.result.Config
}

func (cm *ConfigManager) Status() ConfigLoadResult {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.result
}

func (cm *ConfigManager) Path() string { return cm.path }

// OnChange registers a callback for config changes made on disk.
func (cm *ConfigManager) OnChange(fn func(Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of the config file.
func (cm *ConfigManager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cm.reload(e.Name)
	})
	cm.v.WatchConfig()
}

func (cm *ConfigManager) reload(name string) {
	result := readConfig(cm.v)
	if result.HasError {
		cm.logger.Warn("ignoring invalid config change", "path", name, "warnings", result.Warnings)
		return
	}

	cm.mu.Lock()
	changed := !reflect.DeepEqual(cm.result.Config, result.Config)
	cm.result = result
	callbacks := make([]func(Config), len(cm.callbacks))
	copy(callbacks, cm.callbacks)
	cm.mu.Unlock()

	if !changed {
		return
	}
	cm.logger.Info("config reloaded", "path", name)
	for _, fn := range callbacks {
		fn(result.Config)
	}
}

// Save writes config to disk and makes it current. Callbacks are not run for
// the reload the write triggers since nothing changed.
func (cm *ConfigManager) Save(config Config) error {
	cm.mu.Lock()
	cm.result.Config = config
	cm.mu.Unlock()
	return saveConfigToPath(config, cm.path)
}
