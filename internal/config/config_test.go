// Package config_test tests the configuration loading for the lesson audio builder.
package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/lesson-audio/internal/config"
	"github.com/book-expert/lesson-audio/internal/core"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullTOML = `
[tts]
base_url = "http://127.0.0.1:9000"
model_id = "eleven_turbo_v2"
timeout_seconds = 30
workers = 4
requests_per_second = 2.5

[audio]
codec = "wav"
format = "wav"
sample_rate = 22050
channels = 1
max_chunk_seconds = 300

[cache]
backend = "nats"
bucket = "CACHE"

[voices]
config_path = "voices.json"

[llm]
model = "claude-test"
max_tokens = 1000

[nats]
url = "nats://127.0.0.1:4222"
assemble_subject = "scripts.ready"

[paths]
base_logs_dir = "logs"
lessons_root = "danish"
`

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	err := toml.Unmarshal([]byte(fullTOML), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:9000", cfg.TTS.BaseURL)
	assert.Equal(t, "eleven_turbo_v2", cfg.TTS.ModelID)
	assert.Equal(t, 4, cfg.TTS.Workers)
	assert.InEpsilon(t, 2.5, cfg.TTS.RequestsPerSecond, 0.001)
	assert.Equal(t, "wav", cfg.Audio.Codec)
	assert.Equal(t, 22050, cfg.Audio.SampleRate)
	assert.Equal(t, 300, cfg.Audio.MaxChunkSeconds)
	assert.Equal(t, "nats", cfg.Cache.Backend)
	assert.Equal(t, "voices.json", cfg.Voices.ConfigPath)
	assert.Equal(t, "claude-test", cfg.LLM.Model)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "danish", cfg.Paths.LessonsRoot)
}

func TestParse_AppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse([]byte(`[paths]
lessons_root = "danish"
`))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultTTSBaseURL, cfg.TTS.BaseURL)
	assert.Equal(t, config.DefaultTTSModelID, cfg.TTS.ModelID)
	assert.Equal(t, 1, cfg.TTS.Workers)
	assert.Equal(t, config.DefaultCodec, cfg.Audio.Codec)
	assert.Equal(t, 600000, cfg.Audio.MaxChunkDurationMs())
	assert.Equal(t, config.CacheBackendFile, cfg.Cache.Backend)
	assert.Equal(t, config.DefaultVoiceConfigPath, cfg.Voices.ConfigPath)
	assert.Equal(t, config.DefaultLLMMaxTokens, cfg.LLM.MaxTokens)
	assert.Zero(t, cfg.TTS.Timeout())
}

func TestParse_RejectsInvalidValues(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"workers":          "[tts]\nworkers = 100\n",
		"codec":            "[audio]\ncodec = \"flac\"\n",
		"backend":          "[cache]\nbackend = \"redis\"\n",
		"nats-no-url":      "[cache]\nbackend = \"nats\"\n",
		"negative-timeout": "[tts]\ntimeout_seconds = -1\n",
		"bad-toml":         "[tts\n",
	}

	for name, data := range cases {
		_, err := config.Parse([]byte(data))
		require.ErrorIs(t, err, core.ErrConfiguration, name)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "project.toml")
	require.NoError(t, os.WriteFile(path, []byte(fullTOML), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.TTS.Workers)

	_, err = config.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, core.ErrConfiguration)
}

func TestAPIKey_MissingIsConfigurationError(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.TTS.APIKeyEnv = "LESSON_AUDIO_TEST_KEY_THAT_IS_NEVER_SET"

	_, err := cfg.TTS.APIKey()
	require.ErrorIs(t, err, core.ErrConfiguration)
	require.ErrorIs(t, err, config.ErrNoAPIKey)
}

func TestEnsureDirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.BaseLogsDir = filepath.Join(root, "logs")
	cfg.Cache.Dir = filepath.Join(root, "cache")

	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, cfg.Paths.BaseLogsDir)
	assert.DirExists(t, cfg.Cache.Dir)
}
