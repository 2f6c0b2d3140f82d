package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/snarg/whisper-worker/internal/api"
	"github.com/snarg/whisper-worker/internal/config"
	"github.com/snarg/whisper-worker/internal/events"
	"github.com/snarg/whisper-worker/internal/intake"
	"github.com/snarg/whisper-worker/internal/jobs"
	"github.com/snarg/whisper-worker/internal/metrics"
	"github.com/snarg/whisper-worker/internal/mqttclient"
	"github.com/snarg/whisper-worker/internal/transcode"
	"github.com/snarg/whisper-worker/internal/whisper"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.RecordsDir, "records-dir", "", "upload directory (overrides RECORDS_DIR)")
	flag.StringVar(&overrides.WatchDir, "watch-dir", "", "drop folder to watch (overrides WATCH_DIR)")
	flag.StringVar(&overrides.WhisperDir, "whisper-dir", "", "whisper.cpp root (overrides WHISPER_DIR)")
	flag.StringVar(&overrides.WhisperModel, "model", "", "ggml model path (overrides WHISPER_MODEL)")
	flag.StringVar(&overrides.MQTTBrokerURL, "mqtt-broker", "", "MQTT broker URL (overrides MQTT_BROKER_URL)")
	flag.IntVar(&overrides.Workers, "workers", 0, "concurrent jobs (overrides WORKERS)")
	flag.Parse()

	if *showVersion {
		fmt.Println("whisper-worker", version)
		return
	}

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
	log.Info().Str("version", version).Msg("whisper-worker starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Engine
	platform := whisper.DetectPlatform()
	builder := whisper.NewCommandBuilder(cfg.WhisperDir, platform)
	invoker := whisper.NewInvoker(whisper.ExecRunner{}, log.With().Str("component", "whisper").Logger())
	ffmpeg := transcode.NewFFmpeg(cfg.FFmpegPath, log.With().Str("component", "ffmpeg").Logger())
	if !ffmpeg.Available() {
		log.Warn().Str("path", cfg.FFmpegPath).Msg("ffmpeg not found, every job will fail to transcode")
	}
	log.Info().
		Str("os", platform.OS).
		Str("arch", platform.Arch).
		Str("model", cfg.WhisperModel).
		Bool("gpu", cfg.WhisperGPU).
		Bool("coreml", cfg.WhisperCoreML).
		Msg("whisper engine configured")

	// Live events fan out to the event bus and, when connected, the broker.
	bus := events.NewBus(cfg.EventReplaySize)
	var mq *mqttclient.Client
	publish := func(eventType, jobID string, payload any) {
		bus.Publish(eventType, jobID, payload)
		if mq != nil {
			mq.Publish(eventType, jobID, payload)
		}
	}

	// Job queue
	processor := jobs.NewProcessor(jobs.ProcessorOptions{
		Transcoder: ffmpeg,
		Engine:     invoker,
		Builder:    builder,
		Model:      cfg.Model(),
		Options:    cfg.WhisperOptions(),
		JobTimeout: cfg.JobTimeout,
		Publish:    publish,
		Log:        log.With().Str("component", "processor").Logger(),
	})
	pool := jobs.NewWorkerPool(jobs.PoolOptions{
		Processor: processor,
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Log:       log.With().Str("component", "queue").Logger(),
	})

	// Intake
	uploads, err := intake.NewUploads(cfg.RecordsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare records directory")
	}

	// MQTT (optional)
	if cfg.MQTTBrokerURL != "" {
		mq, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTPrefix,
			Queue:       pool,
			Uploads:     uploads,
			Log:         log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
	}

	pool.Start()
	prometheus.MustRegister(metrics.NewCollector(pool, bus))

	health := api.HealthOptions{
		Queue:     pool,
		FFmpeg:    ffmpeg,
		Version:   version,
		StartTime: startTime,
	}
	if mq != nil {
		health.MQTT = mq
	}

	var watcher *intake.Watcher
	if cfg.WatchDir != "" {
		watcher = intake.NewWatcher(cfg.WatchDir, uploads, pool, log)
		if err := watcher.Start(ctx); err != nil {
			log.Fatal().Err(err).Str("watch_dir", cfg.WatchDir).Msg("failed to start file watcher")
		}
		health.Watcher = watcher
	}

	// HTTP Server
	srv := api.NewServer(api.ServerOptions{
		Addr:         cfg.HTTPAddr,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		MaxUploadMB:  cfg.MaxUploadMB,
		Uploads:      uploads,
		Queue:        pool,
		Events:       bus,
		Health:       health,
		Log:          log.With().Str("component", "http").Logger(),
	})

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

	// Stop intake first, then let queued jobs drain before the broker goes away
	// so their results are still published.
	if watcher != nil {
		watcher.Stop()
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelDrain()
	pool.Stop(drainCtx)

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	if mq != nil {
		mq.Close()
	}

	log.Info().Msg("whisper-worker stopped")
}
