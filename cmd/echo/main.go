package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Ajirohack/echo/internal/api"
	"github.com/Ajirohack/echo/internal/config"
	"github.com/Ajirohack/echo/internal/ingest"
	"github.com/Ajirohack/echo/internal/metrics"
	"github.com/Ajirohack/echo/internal/mqttclient"
	"github.com/Ajirohack/echo/internal/pipeline"
	"github.com/Ajirohack/echo/internal/provider"
	"github.com/Ajirohack/echo/internal/storage"
	"github.com/Ajirohack/echo/internal/stt"
	"github.com/Ajirohack/echo/internal/translate"
	"github.com/Ajirohack/echo/internal/tts"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flag.StringVar(&overrides.MQTTBrokerURL, "mqtt-broker", "", "MQTT broker URL")
	flag.StringVar(&overrides.AudioDir, "audio-dir", "", "output audio directory")
	flag.StringVar(&overrides.WatchDir, "watch-dir", "", "job drop directory")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("echo starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Output audio store
	store, err := storage.New(cfg.S3, cfg.AudioDir, log.With().Str("component", "storage").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init audio store")
	}

	// Provider registry from whatever credentials are configured
	reg := buildRegistry(cfg)
	for _, stage := range pipeline.Stages {
		log.Info().Str("stage", string(stage)).Strs("backends", reg.Names(stage)).Msg("backends registered")
	}

	limiter := pipeline.NewWindowLimiter(pipeline.Limits{
		STT:         cfg.STTRateLimit,
		Translation: cfg.TranslationRateLimit,
		TTS:         cfg.TTSRateLimit,
		Window:      cfg.RateLimitWindow,
	})

	pl, err := pipeline.New(reg, limiter, pipeline.Options{
		Languages:          cfg.SupportedLanguages,
		TotalBudget:        cfg.PipelineTimeout,
		STTCeiling:         cfg.STTTimeout,
		TranslationCeiling: cfg.TranslationTimeout,
		TTSCeiling:         cfg.TTSTimeout,
		STT:                pipeline.Selection{Preferred: cfg.STTProvider, Fallback: cfg.STTFallback},
		Translation:        pipeline.Selection{Preferred: cfg.TranslationProvider, Fallback: cfg.TranslationFallback},
		TTS:                pipeline.Selection{Preferred: cfg.TTSProvider, Fallback: cfg.TTSFallback},
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build pipeline")
	}

	// MQTT ingest is optional
	var mqtt *mqttclient.Client
	if cfg.MQTTBrokerURL != "" {
		mqtt, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Topics:    cfg.MQTTRequestTopic,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
	}

	// Worker pool for asynchronous jobs
	var publisher ingest.ResultPublisher
	if mqtt != nil {
		publisher = mqtt
	}
	pool := ingest.NewWorkerPool(ingest.WorkerPoolOptions{
		Pipeline:        pl,
		Store:           store,
		Publisher:       publisher,
		ResultTopic:     cfg.MQTTResultTopic,
		WatchDir:        cfg.WatchDir,
		AudioDir:        cfg.AudioDir,
		PipelineTimeout: cfg.PipelineTimeout,
		Workers:         cfg.Workers,
		QueueSize:       cfg.QueueSize,
		Log:             log,
	})
	pool.Start()

	if mqtt != nil {
		listener := ingest.NewListener(pool, log)
		mqtt.SetMessageHandler(listener.Handle)
	}

	// Drop-dir ingest is optional
	var watcher *ingest.FileWatcher
	if cfg.WatchDir != "" {
		watcher = ingest.NewFileWatcher(pool, cfg.WatchDir, log)
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start file watcher")
		}
	}

	// Output retention
	pruner := storage.NewOutputPruner(cfg.AudioDir, cfg.OutputRetention, log)
	pruner.Start()

	// Live gauges read at scrape time
	prometheus.MustRegister(metrics.NewCollector(pl, limiter, pool))

	// HTTP server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, api.Deps{
		Engine:  pl,
		Limiter: limiter,
		Store:   store,
		MQTT:    mqtt,
		Pool:    pool,
		Watcher: watcher,
	}, version, startTime, httpLog)

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown. Intake stops first so nothing enqueues into a
	// draining pool; the broker connection stays up until queued results
	// have been published.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	if watcher != nil {
		watcher.Stop()
	}
	if mqtt != nil {
		mqtt.Unsubscribe()
	}
	pool.Stop()
	if mqtt != nil {
		mqtt.Close()
	}
	pruner.Stop()

	log.Info().Msg("echo stopped")
}

// buildRegistry constructs an adapter for every backend whose
// credentials are present. Provider selection is validated later by
// pipeline.New against what actually got registered.
func buildRegistry(cfg *config.Config) pipeline.Registry {
	reg := pipeline.Registry{
		STT:          make(map[string]provider.SpeechToText),
		Translators:  make(map[string]provider.Translator),
		Synthesizers: make(map[string]provider.SpeechSynthesizer),
	}

	// Speech to text
	if cfg.WhisperURL != "" || cfg.OpenAIAPIKey != "" {
		base := cfg.WhisperURL
		if base == "" {
			base = cfg.OpenAIBaseURL
		}
		reg.STT["whisper"] = stt.NewWhisperClient(base, cfg.OpenAIAPIKey, cfg.WhisperModel, cfg.ProviderTimeout)
	}
	if cfg.ElevenLabsAPIKey != "" {
		reg.STT["elevenlabs"] = stt.NewElevenLabsClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsSTTModel, cfg.ProviderTimeout)
	}
	if cfg.DeepInfraAPIKey != "" {
		reg.STT["deepinfra"] = stt.NewDeepInfraClient(cfg.DeepInfraAPIKey, cfg.DeepInfraModel, cfg.ProviderTimeout)
	}

	// Text translation
	if cfg.DeepLAPIKey != "" {
		reg.Translators["deepl"] = translate.NewDeepLClient(cfg.DeepLBaseURL, cfg.DeepLAPIKey, cfg.ProviderTimeout)
	}
	if cfg.GoogleAPIKey != "" {
		reg.Translators["google"] = translate.NewGoogleClient(cfg.GoogleAPIKey, cfg.ProviderTimeout)
	}
	if cfg.OpenAIAPIKey != "" {
		reg.Translators["openai"] = translate.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIChatModel, cfg.ProviderTimeout)
	}

	// Speech synthesis
	if cfg.ElevenLabsAPIKey != "" {
		reg.Synthesizers["elevenlabs"] = tts.NewElevenLabsClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID, cfg.ElevenLabsModel, cfg.ProviderTimeout)
	}
	if cfg.OpenAIAPIKey != "" {
		reg.Synthesizers["openai"] = tts.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAITTSModel, cfg.OpenAITTSVoice, cfg.ProviderTimeout)
	}
	if cfg.GoogleAPIKey != "" {
		reg.Synthesizers["google"] = tts.NewGoogleClient(cfg.GoogleAPIKey, cfg.ProviderTimeout)
	}

	return reg
}
