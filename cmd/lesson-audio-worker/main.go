// main package for the lesson-audio-worker
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/lesson-audio/internal/audio"
	"github.com/book-expert/lesson-audio/internal/cache"
	"github.com/book-expert/lesson-audio/internal/config"
	"github.com/book-expert/lesson-audio/internal/objectstore"
	"github.com/book-expert/lesson-audio/internal/pipeline"
	"github.com/book-expert/lesson-audio/internal/tts"
	"github.com/book-expert/lesson-audio/internal/voices"
	"github.com/book-expert/lesson-audio/internal/worker"
	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	_ = godotenv.Load()

	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), "lesson-audio-worker-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() {
		_ = bootstrapLog.Close()
	}()

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "lesson-audio-worker.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	// 4. Connect to NATS and open the object stores
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	scriptStore, err := objectstore.New(jetstreamContext, cfg.NATS.ScriptObjectStoreBucket)
	if err != nil {
		return err
	}

	audioStore, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return err
	}

	cacheStore, err := objectstore.New(jetstreamContext, cfg.Cache.Bucket)
	if err != nil {
		return err
	}

	// 5. Build the assembly pipeline
	assembler, err := newAssembler(cfg, cacheStore, finalLog)
	if err != nil {
		finalLog.Error("Failed to build assembler: %v", err)

		return err
	}

	natsWorker, err := worker.NewNatsWorker(
		natsConnection,
		worker.Options{
			Subject:        cfg.NATS.AssembleSubject,
			CreatedSubject: cfg.NATS.AudioChunkCreatedSubject,
		},
		scriptStore,
		audioStore,
		assembler,
		finalLog,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	// 6. Serve until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	finalLog.System("Lesson-Audio-Worker successfully initialized. Listening for jobs on subject: %s", cfg.NATS.AssembleSubject)

	err = natsWorker.Run(ctx)
	if err != nil {
		return fmt.Errorf("worker stopped with error: %w", err)
	}

	finalLog.System("Lesson-Audio-Worker shut down.")

	return nil
}

func newAssembler(cfg *config.Config, cacheStore *objectstore.NatsObjectStore, log *logger.Logger) (*pipeline.Assembler, error) {
	registry, err := voices.LoadOrInit(cfg.Voices.ConfigPath)
	if err != nil {
		return nil, err
	}

	apiKey, err := cfg.TTS.APIKey()
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.TTS.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.TTS.RequestsPerSecond), 1)
	}

	synth := tts.NewSynthesizer(tts.SynthesizerOptions{
		Registry: registry,
		Cache:    cache.New(cacheStore, log),
		Client:   tts.NewElevenLabsClient(cfg.TTS.BaseURL, apiKey, cfg.TTS.Timeout()),
		ModelID:  cfg.TTS.ModelID,
		Limiter:  limiter,
	}, log)

	codec, err := audio.NewCodec(audio.CodecOptions{
		Name:       cfg.Audio.Codec,
		Container:  cfg.Audio.Format,
		Format:     audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: cfg.Audio.Channels},
		Bitrate:    cfg.Audio.Bitrate,
		FFmpegPath: cfg.Audio.FFmpegPath,
	}, log)
	if err != nil {
		return nil, err
	}

	return pipeline.New(synth, codec, pipeline.Options{
		Workers:    cfg.TTS.Workers,
		MaxChunkMs: cfg.Audio.MaxChunkDurationMs(),
	}, log)
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
