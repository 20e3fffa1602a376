package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthToken   string   `env:"AUTH_TOKEN"`
	CORSOrigins []string `env:"CORS_ORIGINS"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`

	// Per-client HTTP request cap. 0 disables the limiter.
	HTTPRateLimit float64 `env:"HTTP_RATE_LIMIT" envDefault:"0"`
	HTTPRateBurst int     `env:"HTTP_RATE_BURST" envDefault:"30"`

	SupportedLanguages []string `env:"SUPPORTED_LANGUAGES" envDefault:"en,fr,es,de,it,nl,pt,ru,zh,ja"`

	// End-to-end budget and per-stage attempt ceilings.
	PipelineTimeout    time.Duration `env:"PIPELINE_TIMEOUT" envDefault:"4s"`
	STTTimeout         time.Duration `env:"STT_TIMEOUT" envDefault:"1s"`
	TranslationTimeout time.Duration `env:"TRANSLATION_TIMEOUT" envDefault:"500ms"`
	TTSTimeout         time.Duration `env:"TTS_TIMEOUT" envDefault:"1500ms"`

	// Fixed-window request caps per stage. 0 disables the cap for that stage.
	STTRateLimit         int           `env:"STT_RATE_LIMIT" envDefault:"10"`
	TranslationRateLimit int           `env:"TRANSLATION_RATE_LIMIT" envDefault:"50"`
	TTSRateLimit         int           `env:"TTS_RATE_LIMIT" envDefault:"20"`
	RateLimitWindow      time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	STTProvider         string `env:"STT_PROVIDER" envDefault:"whisper"`
	STTFallback         string `env:"STT_FALLBACK"`
	TranslationProvider string `env:"TRANSLATION_PROVIDER" envDefault:"deepl"`
	TranslationFallback string `env:"TRANSLATION_FALLBACK"`
	TTSProvider         string `env:"TTS_PROVIDER" envDefault:"elevenlabs"`
	TTSFallback         string `env:"TTS_FALLBACK"`

	OpenAIAPIKey       string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL      string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com"`
	OpenAITTSModel     string `env:"OPENAI_TTS_MODEL" envDefault:"tts-1-hd"`
	OpenAITTSVoice     string `env:"OPENAI_TTS_VOICE" envDefault:"alloy"`
	OpenAIChatModel    string `env:"OPENAI_CHAT_MODEL" envDefault:"gpt-4o"`
	WhisperURL         string `env:"WHISPER_URL"`
	WhisperModel       string `env:"WHISPER_MODEL" envDefault:"whisper-1"`
	ElevenLabsAPIKey   string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsVoiceID  string `env:"ELEVENLABS_VOICE_ID" envDefault:"21m00Tcm4TlvDq8ikWAM"`
	ElevenLabsModel    string `env:"ELEVENLABS_MODEL" envDefault:"eleven_multilingual_v2"`
	ElevenLabsSTTModel string `env:"ELEVENLABS_STT_MODEL" envDefault:"scribe_v1"`
	DeepLAPIKey        string `env:"DEEPL_API_KEY"`
	DeepLBaseURL       string `env:"DEEPL_BASE_URL" envDefault:"https://api-free.deepl.com"`
	GoogleAPIKey       string `env:"GOOGLE_API_KEY"`
	DeepInfraAPIKey    string `env:"DEEPINFRA_API_KEY"`
	DeepInfraModel     string `env:"DEEPINFRA_MODEL" envDefault:"openai/whisper-large-v3-turbo"`

	ProviderTimeout time.Duration `env:"PROVIDER_HTTP_TIMEOUT" envDefault:"30s"`

	// MQTT ingest is optional; empty broker URL disables it.
	MQTTBrokerURL    string `env:"MQTT_BROKER_URL"`
	MQTTRequestTopic string `env:"MQTT_REQUEST_TOPIC" envDefault:"echo/requests/+"`
	MQTTResultTopic  string `env:"MQTT_RESULT_TOPIC" envDefault:"echo/results"`
	MQTTClientID     string `env:"MQTT_CLIENT_ID" envDefault:"echo"`
	MQTTUsername     string `env:"MQTT_USERNAME"`
	MQTTPassword     string `env:"MQTT_PASSWORD"`

	// Drop-dir ingest is optional; empty dir disables the watcher.
	WatchDir  string `env:"WATCH_DIR"`
	Workers   int    `env:"WORKERS" envDefault:"4"`
	QueueSize int    `env:"QUEUE_SIZE" envDefault:"64"`

	AudioDir        string        `env:"AUDIO_DIR" envDefault:"./audio"`
	OutputRetention time.Duration `env:"OUTPUT_RETENTION" envDefault:"24h"`

	S3 S3Config `envPrefix:"S3_"`
}

// S3Config selects the S3 audio store when Bucket is set.
type S3Config struct {
	Endpoint      string        `env:"ENDPOINT"`
	Region        string        `env:"REGION" envDefault:"us-east-1"`
	Bucket        string        `env:"BUCKET"`
	AccessKey     string        `env:"ACCESS_KEY"`
	SecretKey     string        `env:"SECRET_KEY"`
	Prefix        string        `env:"PREFIX"`
	PresignExpiry time.Duration `env:"PRESIGN_EXPIRY" envDefault:"1h"`
}

func (s S3Config) Enabled() bool { return s.Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	MQTTBrokerURL string
	AudioDir      string
	WatchDir      string
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

	// Parse environment variables into config struct
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.MQTTBrokerURL != "" {
		cfg.MQTTBrokerURL = overrides.MQTTBrokerURL
	}
	if overrides.AudioDir != "" {
		cfg.AudioDir = overrides.AudioDir
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}

	return cfg, nil
}
