package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"salesdesk/internal/config"
	"salesdesk/internal/errors"
	"salesdesk/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create a temporary YAML config file
func createTestYAML(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	require.NoError(t, err)
	_, err = tmpFile.WriteString(content)
	require.NoError(t, err)
	err = tmpFile.Close()
	require.NoError(t, err)
	return tmpFile.Name()
}

const (
	validYAML = `
paths:
  outputPath: "/data/out"
  inputPath: "/data/in"
options:
  conflictIndex: 0
  outputToSource: true
  useDirectoryMode: true
engine:
  path: "/opt/engine/backend_engine"
logging:
  level: debug
`
	invalidSyntaxYAML = `
paths:
  outputPath: "/data/out
options: # Missing closing quote and incorrect indentation
  conflictIndex: [
`
	invalidLevelYAML = `
logging:
  level: chatty
`
	invalidEnvYAML = `
engine:
  env: ["NOEQUALS"]
`
)

func TestLoadConfigFile(t *testing.T) {
	t.Run("load valid config", func(t *testing.T) {
		cfg, err := config.LoadConfigFile(createTestYAML(t, validYAML))
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "/data/out", cfg.Paths.OutputPath)
		assert.Equal(t, "/data/in", cfg.Paths.InputPath)
		assert.Equal(t, 0, cfg.Options.ConflictIndex)
		assert.Equal(t, types.ConflictRename, cfg.Policy())
		assert.True(t, cfg.Options.OutputToSource)
		assert.Equal(t, types.ModeDirectoryScan, cfg.InputMode())
		assert.Equal(t, "/opt/engine/backend_engine", cfg.EnginePath())
		assert.Equal(t, "debug", cfg.Logging.Level)

		// Keys absent from the file keep their defaults
		assert.Equal(t, config.DefaultEncodingEnv, cfg.Engine.EncodingEnv)
		assert.False(t, cfg.Options.DontAskOnModeChange)
	})

	t.Run("load non-existent file", func(t *testing.T) {
		cfg, err := config.LoadConfigFile(filepath.Join(t.TempDir(), "does_not_exist.yaml"))
		require.NoError(t, err, "Loading non-existent file should return default config, not an error")
		require.NotNil(t, cfg)

		defaultCfg := config.New()
		assert.Equal(t, defaultCfg, cfg)
		assert.Equal(t, 2, cfg.Options.ConflictIndex)
		assert.Equal(t, types.ConflictSkip, cfg.Policy())
		assert.Equal(t, types.ModeManual, cfg.InputMode())
	})

	t.Run("load file with invalid YAML syntax", func(t *testing.T) {
		_, err := config.LoadConfigFile(createTestYAML(t, invalidSyntaxYAML))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error parsing config file")
	})

	t.Run("load file with invalid log level", func(t *testing.T) {
		_, err := config.LoadConfigFile(createTestYAML(t, invalidLevelYAML))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.True(t, errors.IsInvalidConfig(err))
	})

	t.Run("load file with invalid env entry", func(t *testing.T) {
		_, err := config.LoadConfigFile(createTestYAML(t, invalidEnvYAML))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "engine.env")
	})
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := config.New()
	cfg.Paths.OutputPath = "/out"
	cfg.SetPolicy(types.ConflictOverwrite)
	cfg.Options.DontAskOnModeChange = true
	require.NoError(t, config.SaveConfig(cfg, path))

	loaded, err := config.LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Equal(t, types.ConflictOverwrite, loaded.Policy())
}

func TestPolicyFallback(t *testing.T) {
	cfg := config.New()
	for _, idx := range []int{-1, 3, 99} {
		cfg.Options.ConflictIndex = idx
		assert.Equal(t, types.ConflictSkip, cfg.Policy(), "index %d", idx)
		assert.NoError(t, cfg.Validate())
	}
}

func TestValueAndSetValue(t *testing.T) {
	tests := []struct {
		key   string
		value string
		want  string
	}{
		{"paths.outputPath", "/tmp/out", "/tmp/out"},
		{"paths.inputPath", "/tmp/in", "/tmp/in"},
		{"paths.lastSelectedPath", "/tmp", "/tmp"},
		{"options.conflictIndex", "1", "1"},
		{"options.conflictIndex", "rename", "0"},
		{"options.outputToSource", "true", "true"},
		{"options.useDirectoryMode", "true", "true"},
		{"options.dontAskOnModeChange", "false", "false"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			cfg := config.New()
			require.NoError(t, cfg.SetValue(tt.key, tt.value))
			got, err := cfg.Value(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown key", func(t *testing.T) {
		cfg := config.New()
		_, err := cfg.Value("options.nope")
		require.Error(t, err)
		assert.Equal(t, errors.UnknownConfigKey, errors.KindOf(err))
		assert.Error(t, cfg.SetValue("options.nope", "1"))
	})

	t.Run("bad values", func(t *testing.T) {
		cfg := config.New()
		assert.True(t, errors.IsInvalidConfig(cfg.SetValue("options.outputToSource", "maybe")))
		assert.True(t, errors.IsInvalidConfig(cfg.SetValue("options.conflictIndex", "merge")))
	})

	assert.Len(t, config.Keys(), 7)
}

func TestEngineDefaults(t *testing.T) {
	cfg := config.New()

	path := cfg.EnginePath()
	assert.Equal(t, "backend_engine", filepath.Base(filepath.Dir(path)))
	if runtime.GOOS == "windows" {
		assert.True(t, strings.HasSuffix(path, "backend_engine.exe"))
	} else {
		assert.Equal(t, "backend_engine", filepath.Base(path))
	}

	cfg.Engine.Env = []string{"A=1"}
	assert.Equal(t, []string{config.DefaultEncodingEnv, "A=1"}, cfg.EngineEnv())

	cfg.Engine.EncodingEnv = ""
	assert.Equal(t, []string{"A=1"}, cfg.EngineEnv())
}

func TestGetTheme(t *testing.T) {
	assert.Equal(t, config.GetTheme("default"), config.GetTheme("missing"))
	for _, name := range config.ListThemes() {
		assert.Contains(t, config.GetTheme(name), "primary")
	}
}
