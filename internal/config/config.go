// Package config loads the lexvoice server configuration from defaults, an
// optional lexvoice.yaml, a .env file and LEXVOICE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/satriahrh/lexvoice/domain/entities"
)

// Config is the root configuration of the server
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Storage   StorageConfig   `mapstructure:"storage"`
	STT       STTConfig       `mapstructure:"stt"`
	TTS       TTSConfig       `mapstructure:"tts"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Synthesis SynthesisConfig `mapstructure:"synthesis"`
	Streaming StreamingConfig `mapstructure:"streaming"`
	User      UserDefaults    `mapstructure:"user"`
	Users     []entities.User `mapstructure:"users"`
}

type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	PublicDir string `mapstructure:"public_dir"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"` // debug, info, warn, error
	Development bool   `mapstructure:"development"`
}

// StorageConfig selects where users and conversations live
type StorageConfig struct {
	Backend string      `mapstructure:"backend"` // memory, mongo, bolt
	Mongo   MongoConfig `mapstructure:"mongo"`
	Bolt    BoltConfig  `mapstructure:"bolt"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BoltConfig struct {
	Path string `mapstructure:"path"`
}

type STTConfig struct {
	Provider string         `mapstructure:"provider"` // deepgram, google, mock
	Language string         `mapstructure:"language"`
	Deepgram DeepgramConfig `mapstructure:"deepgram"`
}

type TTSConfig struct {
	Provider   string           `mapstructure:"provider"` // deepgram, elevenlabs, mock
	Deepgram   DeepgramConfig   `mapstructure:"deepgram"`
	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
}

type DeepgramConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type ElevenLabsConfig struct {
	APIKey  string `mapstructure:"api_key"`
	VoiceID string `mapstructure:"voice_id"`
	ModelID string `mapstructure:"model_id"`
}

// LLMConfig configures response generation
type LLMConfig struct {
	Provider        string        `mapstructure:"provider"` // gemini, mock
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	TimeoutSeconds  int           `mapstructure:"timeout_seconds"`
	MaxOutputTokens int32         `mapstructure:"max_output_tokens"`
	Temperature     float32       `mapstructure:"temperature"`
	TopP            float32       `mapstructure:"top_p"`
	TopK            float32       `mapstructure:"top_k"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BackoffStep     time.Duration `mapstructure:"backoff_step"`
	Mode            string        `mapstructure:"mode"` // generation mode of the REST driver
}

type SynthesisConfig struct {
	Encoding        string        `mapstructure:"encoding"` // inline, file, stream
	MaxChars        int           `mapstructure:"max_chars"`
	CutChars        int           `mapstructure:"cut_chars"`
	FilePrefix      string        `mapstructure:"file_prefix"`
	AudioDir        string        `mapstructure:"audio_dir"`
	PublicBaseURL   string        `mapstructure:"public_base_url"`
	FileTTL         time.Duration `mapstructure:"file_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type StreamingConfig struct {
	BusyPolicy     string `mapstructure:"busy_policy"` // reject, queue
	QueueSize      int    `mapstructure:"queue_size"`
	GenerationMode string `mapstructure:"generation_mode"`
}

// UserDefaults fill in preferences a user has not set
type UserDefaults struct {
	DefaultJurisdiction string `mapstructure:"default_jurisdiction"`
	DefaultStyle        string `mapstructure:"default_style"`
	DefaultVoice        string `mapstructure:"default_voice"`
}

// Context returns the defaults as a user context
func (d UserDefaults) Context() entities.UserContext {
	return entities.UserContext{
		Jurisdiction:      d.DefaultJurisdiction,
		ConversationStyle: d.DefaultStyle,
		VoiceID:           d.DefaultVoice,
	}
}

// providerEnv maps config keys to the well-known variables providers document
var providerEnv = map[string]string{
	"server.port":               "PORT",
	"storage.mongo.uri":         "MONGODB_URI",
	"llm.api_key":               "GEMINI_API_KEY",
	"tts.elevenlabs.api_key":    "ELEVEN_LABS_API_KEY",
	"stt.deepgram.api_key":      "DEEPGRAM_API_KEY",
	"tts.deepgram.api_key":      "DEEPGRAM_API_KEY",
	"tts.elevenlabs.voice_id":   "ELEVEN_LABS_VOICE_ID",
	"synthesis.public_base_url": "PUBLIC_BASE_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.public_dir", "public")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.mongo.uri", "")
	v.SetDefault("storage.mongo.database", "lexvoice")
	v.SetDefault("storage.bolt.path", "data/lexvoice.bolt")
	v.SetDefault("stt.provider", "mock")
	v.SetDefault("stt.language", "en-US")
	v.SetDefault("stt.deepgram.api_key", "")
	v.SetDefault("stt.deepgram.model", "nova-2")
	v.SetDefault("tts.provider", "mock")
	v.SetDefault("tts.deepgram.api_key", "")
	v.SetDefault("tts.deepgram.model", "")
	v.SetDefault("tts.elevenlabs.api_key", "")
	v.SetDefault("tts.elevenlabs.voice_id", "")
	v.SetDefault("tts.elevenlabs.model_id", "")
	v.SetDefault("llm.provider", "mock")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.5-flash-lite")
	v.SetDefault("llm.timeout_seconds", 30)
	v.SetDefault("llm.max_output_tokens", 800)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.top_p", 0.9)
	v.SetDefault("llm.top_k", 40)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.backoff_step", 2*time.Second)
	v.SetDefault("llm.mode", "history")
	v.SetDefault("synthesis.encoding", "file")
	v.SetDefault("synthesis.max_chars", 2000)
	v.SetDefault("synthesis.cut_chars", 1900)
	v.SetDefault("synthesis.file_prefix", "response")
	v.SetDefault("synthesis.audio_dir", "public/audio")
	v.SetDefault("synthesis.public_base_url", "")
	v.SetDefault("synthesis.file_ttl", time.Hour)
	v.SetDefault("synthesis.cleanup_interval", time.Hour)
	v.SetDefault("streaming.busy_policy", "reject")
	v.SetDefault("streaming.queue_size", 4)
	v.SetDefault("streaming.generation_mode", "single")
	v.SetDefault("user.default_jurisdiction", entities.DefaultJurisdiction)
	v.SetDefault("user.default_style", entities.StyleFormal)
	v.SetDefault("user.default_voice", entities.DefaultVoiceID)
}

// Load reads the configuration. If configFile is empty the search order is
// ./lexvoice.yaml, ./configs/lexvoice.yaml, /etc/lexvoice/lexvoice.yaml; a
// missing file is not an error.
func Load(configFile string) (*Config, error) {
	// .env is optional, real environment variables win
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("lexvoice")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/lexvoice")
	}

	// LEXVOICE_SERVER_PORT, LEXVOICE_LLM_MODE, ...
	v.SetEnvPrefix("LEXVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range providerEnv {
		prefixed := "LEXVOICE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.LLM.APIKey = resolveEnvRef(cfg.LLM.APIKey)
	cfg.STT.Deepgram.APIKey = resolveEnvRef(cfg.STT.Deepgram.APIKey)
	cfg.TTS.Deepgram.APIKey = resolveEnvRef(cfg.TTS.Deepgram.APIKey)
	cfg.TTS.ElevenLabs.APIKey = resolveEnvRef(cfg.TTS.ElevenLabs.APIKey)
	cfg.Storage.Mongo.URI = resolveEnvRef(cfg.Storage.Mongo.URI)

	return &cfg, nil
}

// resolveEnvRef replaces "${VAR_NAME}" with the value of VAR_NAME
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		if envVal := os.Getenv(val[2 : len(val)-1]); envVal != "" {
			return envVal
		}
	}
	return val
}

// Validate checks enums, limits and the credentials the selected providers need
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port must be between 1 and 65535, got %d", c.Server.Port)
	check(oneOf(c.Logging.Level, "debug", "info", "warn", "error"), "logging.level %q is not one of debug, info, warn, error", c.Logging.Level)

	check(oneOf(c.Storage.Backend, "memory", "mongo", "bolt"), "storage.backend %q is not one of memory, mongo, bolt", c.Storage.Backend)
	if c.Storage.Backend == "mongo" {
		check(c.Storage.Mongo.URI != "", "storage.mongo.uri is required for the mongo backend")
		check(c.Storage.Mongo.Database != "", "storage.mongo.database is required for the mongo backend")
	}
	if c.Storage.Backend == "bolt" {
		check(c.Storage.Bolt.Path != "", "storage.bolt.path is required for the bolt backend")
	}

	check(oneOf(c.STT.Provider, "deepgram", "google", "mock"), "stt.provider %q is not one of deepgram, google, mock", c.STT.Provider)
	if c.STT.Provider == "deepgram" {
		check(c.STT.Deepgram.APIKey != "", "stt.deepgram.api_key (DEEPGRAM_API_KEY) is required")
	}
	check(oneOf(c.TTS.Provider, "deepgram", "elevenlabs", "mock"), "tts.provider %q is not one of deepgram, elevenlabs, mock", c.TTS.Provider)
	if c.TTS.Provider == "deepgram" {
		check(c.TTS.Deepgram.APIKey != "", "tts.deepgram.api_key (DEEPGRAM_API_KEY) is required")
	}
	if c.TTS.Provider == "elevenlabs" {
		check(c.TTS.ElevenLabs.APIKey != "", "tts.elevenlabs.api_key (ELEVEN_LABS_API_KEY) is required")
	}

	check(oneOf(c.LLM.Provider, "gemini", "mock"), "llm.provider %q is not one of gemini, mock", c.LLM.Provider)
	if c.LLM.Provider == "gemini" {
		check(c.LLM.APIKey != "", "llm.api_key (GEMINI_API_KEY) is required")
	}
	check(c.LLM.MaxAttempts > 0, "llm.max_attempts must be positive, got %d", c.LLM.MaxAttempts)
	check(c.LLM.BackoffStep >= 0, "llm.backoff_step must not be negative")
	check(c.LLM.MaxOutputTokens > 0, "llm.max_output_tokens must be positive, got %d", c.LLM.MaxOutputTokens)
	check(oneOf(c.LLM.Mode, "single", "history"), "llm.mode %q is not one of single, history", c.LLM.Mode)

	check(oneOf(c.Synthesis.Encoding, "inline", "file", "stream"), "synthesis.encoding %q is not one of inline, file, stream", c.Synthesis.Encoding)
	check(c.Synthesis.CutChars > 0, "synthesis.cut_chars must be positive, got %d", c.Synthesis.CutChars)
	check(c.Synthesis.MaxChars >= c.Synthesis.CutChars, "synthesis.max_chars (%d) must not be below synthesis.cut_chars (%d)", c.Synthesis.MaxChars, c.Synthesis.CutChars)
	if c.Synthesis.Encoding == "file" {
		check(c.Synthesis.AudioDir != "", "synthesis.audio_dir is required for file encoding")
		check(c.Synthesis.FileTTL > 0, "synthesis.file_ttl must be positive")
		check(c.Synthesis.CleanupInterval > 0, "synthesis.cleanup_interval must be positive")
	}

	check(oneOf(c.Streaming.BusyPolicy, "reject", "queue"), "streaming.busy_policy %q is not one of reject, queue", c.Streaming.BusyPolicy)
	check(c.Streaming.QueueSize > 0, "streaming.queue_size must be positive, got %d", c.Streaming.QueueSize)
	check(oneOf(c.Streaming.GenerationMode, "single", "history"), "streaming.generation_mode %q is not one of single, history", c.Streaming.GenerationMode)

	check(oneOf(c.User.DefaultStyle, entities.StyleFormal, entities.StyleCasual, entities.StyleTechnical),
		"user.default_style %q is not one of formal, casual, technical", c.User.DefaultStyle)
	for i := range c.Users {
		if err := c.Users[i].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("users[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
