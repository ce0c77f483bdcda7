// Package config provides the configuration structure for the lesson audio builder.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/lesson-audio/internal/core"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Default values applied to any field left empty.
const (
	DefaultTTSBaseURL        = "https://api.elevenlabs.io"
	DefaultTTSModelID        = "eleven_multilingual_v2"
	DefaultTTSAPIKeyEnv      = "ELEVENLABS_API_KEY"
	DefaultLLMBaseURL        = "https://api.anthropic.com/"
	DefaultLLMModel          = "claude-3-5-sonnet-20241022"
	DefaultLLMAPIKeyEnv      = "ANTHROPIC_API_KEY"
	DefaultLLMMaxTokens      = 4000
	DefaultCodec             = "ffmpeg"
	DefaultAudioFormat       = "mp3"
	DefaultSampleRate        = 44100
	DefaultChannels          = 1
	DefaultBitrate           = "128k"
	DefaultFFmpegPath        = "ffmpeg"
	DefaultMaxChunkSeconds   = 600
	DefaultCacheBackend      = CacheBackendFile
	DefaultCacheDir          = "audio_cache"
	DefaultVoiceConfigPath   = "resources/voice_config.json"
	DefaultPromptsDir        = "lesson_builder/prompts"
	DefaultAssembleSubject   = "lesson.script.ready"
	DefaultAudioSubject      = "lesson.audio.created"
	DefaultScriptBucket      = "LESSON_SCRIPTS"
	DefaultAudioBucket       = "LESSON_AUDIO"
	DefaultCacheBucket       = "LESSON_AUDIO_CACHE"
	defaultDirPermissions    = 0o750
	maxSynthesisWorkers      = 16
	errFmtInvalidConfigValue = "%w: %s"
)

// Cache backends.
const (
	CacheBackendFile = "file"
	CacheBackendNATS = "nats"
)

// ErrNoAPIKey is returned when a credential environment variable is empty.
var ErrNoAPIKey = errors.New("api key not set")

// TTSConfig holds the speech synthesis settings.
type TTSConfig struct {
	BaseURL           string  `toml:"base_url"`
	ModelID           string  `toml:"model_id"`
	APIKeyEnv         string  `toml:"api_key_env"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	Workers           int     `toml:"workers"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	TestMode          bool    `toml:"test_mode"`
}

// AudioConfig holds decoding, encoding and chunking settings.
type AudioConfig struct {
	Codec           string `toml:"codec"`
	Format          string `toml:"format"`
	SampleRate      int    `toml:"sample_rate"`
	Channels        int    `toml:"channels"`
	Bitrate         string `toml:"bitrate"`
	FFmpegPath      string `toml:"ffmpeg_path"`
	MaxChunkSeconds int    `toml:"max_chunk_seconds"`
}

// CacheConfig selects where synthesized audio is cached.
type CacheConfig struct {
	Backend string `toml:"backend"`
	Dir     string `toml:"dir"`
	Bucket  string `toml:"bucket"`
}

// VoicesConfig points at the voice registry file.
type VoicesConfig struct {
	ConfigPath string `toml:"config_path"`
}

// LLMConfig holds the lesson text generation settings.
type LLMConfig struct {
	BaseURL     string  `toml:"base_url"`
	Model       string  `toml:"model"`
	APIKeyEnv   string  `toml:"api_key_env"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`
	PromptsDir  string  `toml:"prompts_dir"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                      string `toml:"url"`
	AssembleSubject          string `toml:"assemble_subject"`
	AudioChunkCreatedSubject string `toml:"audio_chunk_created_subject"`
	ScriptObjectStoreBucket  string `toml:"script_object_store_bucket"`
	AudioObjectStoreBucket   string `toml:"audio_object_store_bucket"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	LessonsRoot string `toml:"lessons_root"`
}

// Config is the root configuration structure.
type Config struct {
	TTS    TTSConfig    `toml:"tts"`
	Audio  AudioConfig  `toml:"audio"`
	Cache  CacheConfig  `toml:"cache"`
	Voices VoicesConfig `toml:"voices"`
	LLM    LLMConfig    `toml:"llm"`
	NATS   NATSConfig   `toml:"nats"`
	Paths  PathsConfig  `toml:"paths"`
}

// Load loads the configuration through the central configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFile loads the configuration from a TOML file on disk.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file '%s': %v", core.ErrConfiguration, path, err)
	}

	return Parse(data)
}

// Parse decodes TOML data, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	err := toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", core.ErrConfiguration, err)
	}

	cfg.ApplyDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()

	return cfg
}

// ApplyDefaults fills every empty field with its default value.
func (c *Config) ApplyDefaults() {
	setString(&c.TTS.BaseURL, DefaultTTSBaseURL)
	setString(&c.TTS.ModelID, DefaultTTSModelID)
	setString(&c.TTS.APIKeyEnv, DefaultTTSAPIKeyEnv)

	if c.TTS.Workers == 0 {
		c.TTS.Workers = 1
	}

	setString(&c.Audio.Codec, DefaultCodec)
	setString(&c.Audio.Format, DefaultAudioFormat)
	setInt(&c.Audio.SampleRate, DefaultSampleRate)
	setInt(&c.Audio.Channels, DefaultChannels)
	setString(&c.Audio.Bitrate, DefaultBitrate)
	setString(&c.Audio.FFmpegPath, DefaultFFmpegPath)
	setInt(&c.Audio.MaxChunkSeconds, DefaultMaxChunkSeconds)

	setString(&c.Cache.Backend, DefaultCacheBackend)
	setString(&c.Cache.Dir, DefaultCacheDir)
	setString(&c.Cache.Bucket, DefaultCacheBucket)

	setString(&c.Voices.ConfigPath, DefaultVoiceConfigPath)

	setString(&c.LLM.BaseURL, DefaultLLMBaseURL)
	setString(&c.LLM.Model, DefaultLLMModel)
	setString(&c.LLM.APIKeyEnv, DefaultLLMAPIKeyEnv)
	setInt(&c.LLM.MaxTokens, DefaultLLMMaxTokens)
	setString(&c.LLM.PromptsDir, DefaultPromptsDir)

	setString(&c.NATS.AssembleSubject, DefaultAssembleSubject)
	setString(&c.NATS.AudioChunkCreatedSubject, DefaultAudioSubject)
	setString(&c.NATS.ScriptObjectStoreBucket, DefaultScriptBucket)
	setString(&c.NATS.AudioObjectStoreBucket, DefaultAudioBucket)

	setString(&c.Paths.BaseLogsDir, os.TempDir())
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	switch {
	case c.TTS.TimeoutSeconds < 0:
		return fmt.Errorf(errFmtInvalidConfigValue, core.ErrConfiguration, "tts.timeout_seconds must be >= 0")
	case c.TTS.Workers < 1 || c.TTS.Workers > maxSynthesisWorkers:
		return fmt.Errorf(errFmtInvalidConfigValue, core.ErrConfiguration,
			fmt.Sprintf("tts.workers must be between 1 and %d", maxSynthesisWorkers))
	case c.TTS.RequestsPerSecond < 0:
		return fmt.Errorf(errFmtInvalidConfigValue, core.ErrConfiguration, "tts.requests_per_second must be >= 0")
	case c.Audio.Codec != "ffmpeg" && c.Audio.Codec != "wav":
		return fmt.Errorf(errFmtInvalidConfigValue, core.ErrConfiguration, "audio.codec must be 'ffmpeg' or 'wav'")
	case c.Audio.SampleRate <= 0 || c.Audio.Channels <= 0:
		return fmt.Errorf(errFmtInvalidConfigValue, core.ErrConfiguration, "audio sample_rate and channels must be positive")
	case c.Audio.MaxChunkSeconds <= 0:
		return fmt.Errorf(errFmtInvalidConfigValue, core.ErrConfiguration, "audio.max_chunk_seconds must be positive")
	case c.Cache.Backend != CacheBackendFile && c.Cache.Backend != CacheBackendNATS:
		return fmt.Errorf(errFmtInvalidConfigValue, core.ErrConfiguration, "cache.backend must be 'file' or 'nats'")
	case c.Cache.Backend == CacheBackendNATS && c.NATS.URL == "":
		return fmt.Errorf(errFmtInvalidConfigValue, core.ErrConfiguration, "nats.url is required for the nats cache backend")
	case c.LLM.MaxTokens <= 0 || c.LLM.Temperature < 0:
		return fmt.Errorf(errFmtInvalidConfigValue, core.ErrConfiguration, "llm.max_tokens must be positive and temperature >= 0")
	}

	return nil
}

// EnsureDirectories creates the directories the builder writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.BaseLogsDir}
	if c.Cache.Backend == CacheBackendFile {
		dirs = append(dirs, c.Cache.Dir)
	}

	for _, dir := range dirs {
		err := os.MkdirAll(dir, defaultDirPermissions)
		if err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Timeout returns the HTTP timeout for remote TTS calls. Zero means none.
func (c *TTSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// APIKey reads the TTS credential from the environment.
func (c *TTSConfig) APIKey() (string, error) {
	return apiKey(c.APIKeyEnv)
}

// APIKey reads the LLM credential from the environment.
func (c *LLMConfig) APIKey() (string, error) {
	return apiKey(c.APIKeyEnv)
}

// MaxChunkDurationMs returns the chunking budget in milliseconds.
func (c *AudioConfig) MaxChunkDurationMs() int {
	return c.MaxChunkSeconds * 1000
}

func apiKey(envName string) (string, error) {
	key := os.Getenv(envName)
	if key == "" {
		return "", fmt.Errorf("%w: %w: please set the %s environment variable", core.ErrConfiguration, ErrNoAPIKey, envName)
	}

	return key, nil
}

func setString(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func setInt(field *int, value int) {
	if *field == 0 {
		*field = value
	}
}
