package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/snarg/whisper-worker/internal/transcript"
	"github.com/snarg/whisper-worker/internal/whisper"
)

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"0s"` // uploads wait for the whole job
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	MaxUploadMB  int64         `env:"MAX_UPLOAD_MB" envDefault:"512"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	RecordsDir string `env:"RECORDS_DIR" envDefault:"./records"`
	WatchDir   string `env:"WATCH_DIR"`

	WhisperDir           string `env:"WHISPER_DIR" envDefault:"./whisper.cpp"`
	WhisperModel         string `env:"WHISPER_MODEL,required"`
	WhisperGPU           bool   `env:"WHISPER_GPU" envDefault:"false"`
	WhisperCoreML        bool   `env:"WHISPER_COREML" envDefault:"false"`
	WhisperLanguage      string `env:"WHISPER_LANGUAGE"`
	WhisperPrompt        string `env:"WHISPER_PROMPT"`
	WhisperMaxLen        int    `env:"WHISPER_MAX_LEN" envDefault:"0"`
	WhisperOutputFormats string `env:"WHISPER_OUTPUT_FORMATS"`

	FFmpegPath string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	Workers    int           `env:"WORKERS" envDefault:"1"`
	QueueSize  int           `env:"QUEUE_SIZE" envDefault:"100"`
	JobTimeout time.Duration `env:"JOB_TIMEOUT" envDefault:"0s"`

	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"whisper-worker"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`
	MQTTPrefix    string `env:"MQTT_TOPIC_PREFIX" envDefault:"whisper"`

	EventReplaySize int `env:"EVENT_REPLAY_SIZE" envDefault:"500"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	RecordsDir    string
	WatchDir      string
	WhisperDir    string
	WhisperModel  string
	MQTTBrokerURL string
	Workers       int
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	// A model given on the command line satisfies the required tag.
	opts := env.Options{}
	if overrides.WhisperModel != "" {
		opts.Environment = env.ToMap(os.Environ())
		opts.Environment["WHISPER_MODEL"] = overrides.WhisperModel
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.RecordsDir != "" {
		cfg.RecordsDir = overrides.RecordsDir
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}
	if overrides.WhisperDir != "" {
		cfg.WhisperDir = overrides.WhisperDir
	}
	if overrides.MQTTBrokerURL != "" {
		cfg.MQTTBrokerURL = overrides.MQTTBrokerURL
	}
	if overrides.Workers > 0 {
		cfg.Workers = overrides.Workers
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be >= 1, got %d", c.Workers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("QUEUE_SIZE must be >= 1, got %d", c.QueueSize)
	}
	if c.WhisperMaxLen < 0 {
		return fmt.Errorf("WHISPER_MAX_LEN must be >= 0, got %d", c.WhisperMaxLen)
	}
	if c.EventReplaySize < 1 {
		return fmt.Errorf("EVENT_REPLAY_SIZE must be >= 1, got %d", c.EventReplaySize)
	}
	if !transcript.SupportedLanguage(c.WhisperLanguage) {
		return fmt.Errorf("WHISPER_LANGUAGE %q is not supported", c.WhisperLanguage)
	}
	if _, err := whisper.ParseOutputFormats(c.WhisperOutputFormats); err != nil {
		return fmt.Errorf("WHISPER_OUTPUT_FORMATS: %w", err)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// WhisperOptions returns the default engine options. Jobs may override the
// language and prompt.
func (c *Config) WhisperOptions() whisper.Options {
	formats, _ := whisper.ParseOutputFormats(c.WhisperOutputFormats)
	return whisper.Options{
		Language:      c.WhisperLanguage,
		Prompt:        c.WhisperPrompt,
		OutputFormats: formats,
		MaxLen:        c.WhisperMaxLen,
	}
}

// Model returns the model selection for the command builder.
func (c *Config) Model() whisper.ModelSelection {
	return whisper.ModelSelection{
		ModelPath:     c.WhisperModel,
		GPUEnabled:    c.WhisperGPU,
		CoreMLEnabled: c.WhisperCoreML,
	}
}
