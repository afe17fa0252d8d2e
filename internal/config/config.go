package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"salesdesk/internal/errors"
	"salesdesk/pkg/types"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultEncodingEnv forces the engine's standard streams to UTF-8.
const DefaultEncodingEnv = "PYTHONIOENCODING=utf-8"

// Config represents the persisted application settings.
type Config struct {
	Paths struct {
		OutputPath       string `yaml:"outputPath"`       // Output directory for processed files
		InputPath        string `yaml:"inputPath"`        // Root scanned in directory mode
		LastSelectedPath string `yaml:"lastSelectedPath"` // Last directory used in a file dialog
	} `yaml:"paths"`
	Options struct {
		ConflictIndex       int  `yaml:"conflictIndex"`       // 0 rename, 1 overwrite, 2 skip
		OutputToSource      bool `yaml:"outputToSource"`      // Write results next to the inputs
		UseDirectoryMode    bool `yaml:"useDirectoryMode"`    // Populate the task list by scanning InputPath
		DontAskOnModeChange bool `yaml:"dontAskOnModeChange"` // Skip the confirmation when switching modes
	} `yaml:"options"`
	Engine struct {
		Path        string   `yaml:"path"`        // Engine executable, empty for the bundled one
		EncodingEnv string   `yaml:"encodingEnv"` // KEY=VALUE forced into the engine environment
		Env         []string `yaml:"env"`         // Extra KEY=VALUE entries
	} `yaml:"engine"`
	Logging struct {
		Level string `yaml:"level"` // logrus level name
		JSON  bool   `yaml:"json"`  // Emit JSON lines
		File  string `yaml:"file"`  // Optional log file
	} `yaml:"logging"`
	Watch struct {
		Enabled    bool `yaml:"enabled"`     // Rescan the input directory on change
		CoalesceMS int  `yaml:"coalesce_ms"` // Quiet period before a rescan fires
	} `yaml:"watch"`
	Theme struct {
		Name string `yaml:"name"` // Terminal theme name
	} `yaml:"theme"`
}

// DefaultPath returns ~/.config/salesdesk/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "salesdesk", "config.yaml"), nil
}

// LoadConfig loads configuration from the default location.
func LoadConfig() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadConfigFile(path)
}

// LoadConfigFile loads configuration from a specific file path.
// If the file doesn't exist, returns default configuration.
func LoadConfigFile(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Keys absent from the file keep their defaults.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}

	if home, err := os.UserHomeDir(); err == nil {
		cfg.Paths.LastSelectedPath = home
	}

	cfg.Options.ConflictIndex = types.DefaultConflictPolicy.Index()

	cfg.Engine.EncodingEnv = DefaultEncodingEnv
	cfg.Engine.Env = []string{}

	cfg.Logging.Level = "info"

	cfg.Watch.Enabled = true
	cfg.Watch.CoalesceMS = 500

	cfg.Theme.Name = "default"

	return cfg
}

// SaveConfig saves the configuration to the specified file.
// It creates parent directories if they don't exist.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid. An out of range conflict
// index is not an error; Policy falls back to skip.
func (c *Config) Validate() error {
	if c == nil {
		return errors.NewConfigError("nil config", "", errors.InvalidConfig, nil)
	}

	if c.Logging.Level != "" {
		if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
			return errors.NewConfigError("invalid log level", "logging.level", errors.InvalidConfig, err)
		}
	}

	if c.Engine.EncodingEnv != "" && !validEnvEntry(c.Engine.EncodingEnv) {
		return errors.NewConfigError("encoding override must be KEY=VALUE", "engine.encodingEnv", errors.InvalidConfig, nil)
	}
	for i, entry := range c.Engine.Env {
		if !validEnvEntry(entry) {
			return errors.NewConfigError(fmt.Sprintf("env entry %d must be KEY=VALUE", i), "engine.env", errors.InvalidConfig, nil)
		}
	}

	if c.Watch.CoalesceMS < 0 {
		return errors.NewConfigError("coalesce period must be >= 0", "watch.coalesce_ms", errors.InvalidConfig, nil)
	}

	return nil
}

func validEnvEntry(entry string) bool {
	key, _, ok := strings.Cut(entry, "=")
	return ok && key != ""
}

// New creates a new configuration instance with default values.
func New() *Config {
	return defaultConfig()
}

// Policy returns the conflict policy selected by Options.ConflictIndex.
func (c *Config) Policy() types.ConflictPolicy {
	return types.ConflictPolicyFromIndex(c.Options.ConflictIndex)
}

// SetPolicy stores p as the conflict index.
func (c *Config) SetPolicy(p types.ConflictPolicy) {
	c.Options.ConflictIndex = p.Index()
}

// InputMode returns the persisted input mode.
func (c *Config) InputMode() types.InputMode {
	return types.InputModeFromBool(c.Options.UseDirectoryMode)
}

// EnginePath returns the configured engine or the bundled default.
func (c *Config) EnginePath() string {
	if c.Engine.Path != "" {
		return c.Engine.Path
	}
	return DefaultEnginePath()
}

// EngineEnv returns the extra environment for the engine, encoding override
// first.
func (c *Config) EngineEnv() []string {
	env := make([]string, 0, len(c.Engine.Env)+1)
	if c.Engine.EncodingEnv != "" {
		env = append(env, c.Engine.EncodingEnv)
	}
	return append(env, c.Engine.Env...)
}

// DefaultEnginePath returns <executable dir>/backend_engine/backend_engine,
// with .exe on windows.
func DefaultEnginePath() string {
	name := "backend_engine"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	dir := "."
	if exe, err := os.Executable(); err == nil {
		dir = filepath.Dir(exe)
	}
	return filepath.Join(dir, "backend_engine", name)
}

type setting struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringSetting(field func(c *Config) *string) setting {
	return setting{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			*field(c) = v
			return nil
		},
	}
}

func boolSetting(key string, field func(c *Config) *bool) setting {
	return setting{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return errors.NewConfigError("expected true or false", key, errors.InvalidConfig, err)
			}
			*field(c) = b
			return nil
		},
	}
}

var settings = map[string]setting{
	"paths.outputPath":       stringSetting(func(c *Config) *string { return &c.Paths.OutputPath }),
	"paths.inputPath":        stringSetting(func(c *Config) *string { return &c.Paths.InputPath }),
	"paths.lastSelectedPath": stringSetting(func(c *Config) *string { return &c.Paths.LastSelectedPath }),
	"options.conflictIndex": {
		get: func(c *Config) string { return strconv.Itoa(c.Options.ConflictIndex) },
		set: func(c *Config, v string) error {
			if n, err := strconv.Atoi(v); err == nil {
				c.Options.ConflictIndex = n
				return nil
			}
			p, err := types.ParseConflictPolicy(v)
			if err != nil {
				return errors.NewConfigError("expected an index or policy name", "options.conflictIndex", errors.InvalidConfig, err)
			}
			c.SetPolicy(p)
			return nil
		},
	},
	"options.outputToSource":      boolSetting("options.outputToSource", func(c *Config) *bool { return &c.Options.OutputToSource }),
	"options.useDirectoryMode":    boolSetting("options.useDirectoryMode", func(c *Config) *bool { return &c.Options.UseDirectoryMode }),
	"options.dontAskOnModeChange": boolSetting("options.dontAskOnModeChange", func(c *Config) *bool { return &c.Options.DontAskOnModeChange }),
}

// Keys returns the addressable setting keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Value returns the setting stored under a dotted key.
func (c *Config) Value(key string) (string, error) {
	s, ok := settings[key]
	if !ok {
		return "", errors.NewConfigError("unknown setting", key, errors.UnknownConfigKey, nil)
	}
	return s.get(c), nil
}

// SetValue parses v and stores it under a dotted key.
func (c *Config) SetValue(key, v string) error {
	s, ok := settings[key]
	if !ok {
		return errors.NewConfigError("unknown setting", key, errors.UnknownConfigKey, nil)
	}
	return s.set(c, v)
}

// GetTheme returns a predefined terminal palette by name.
// If the theme doesn't exist, returns the default theme.
func GetTheme(name string) map[string]string {
	themes := map[string]map[string]string{
		"default": {
			"primary": "213", // Purple
			"success": "114", // Green
			"warning": "220", // Yellow
			"error":   "196", // Red
			"info":    "39",  // Blue
			"muted":   "245", // Grey
		},
		"dark": {
			"primary": "105",
			"success": "78",
			"warning": "214",
			"error":   "160",
			"info":    "33",
			"muted":   "240",
		},
		"monochrome": {
			"primary": "255",
			"success": "252",
			"warning": "248",
			"error":   "255",
			"info":    "250",
			"muted":   "241",
		},
	}

	if theme, exists := themes[name]; exists {
		return theme
	}

	return themes["default"]
}

// ListThemes returns a list of available theme names.
func ListThemes() []string {
	return []string{"default", "dark", "monochrome"}
}
