package main

import (
	"fmt"
	"os"

	"github.com/book-expert/lesson-audio/internal/audio"
	"github.com/book-expert/lesson-audio/internal/cache"
	"github.com/book-expert/lesson-audio/internal/config"
	"github.com/book-expert/lesson-audio/internal/core"
	"github.com/book-expert/lesson-audio/internal/lessongen"
	"github.com/book-expert/lesson-audio/internal/objectstore"
	"github.com/book-expert/lesson-audio/internal/pipeline"
	"github.com/book-expert/lesson-audio/internal/tts"
	"github.com/book-expert/lesson-audio/internal/voices"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"
)

const logNoSpeechKey = "No speech API credential (%v); only cached audio can be used"

// app holds the configuration, the logger and any connection the commands open.
type app struct {
	cfg            *config.Config
	log            *logger.Logger
	natsConnection *nats.Conn
}

// Close releases the NATS connection and the logger.
func (a *app) Close() {
	if a.natsConnection != nil {
		a.natsConnection.Close()
	}

	closeErr := a.log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
	}
}

// newAssembler wires the voice registry, the cache, the speech client and
// the codec into an assembler.
func (a *app) newAssembler() (*pipeline.Assembler, error) {
	registry, err := voices.LoadOrInit(a.cfg.Voices.ConfigPath)
	if err != nil {
		return nil, err
	}

	store, err := a.cacheStore()
	if err != nil {
		return nil, err
	}

	var client tts.SpeechClient

	if !a.cfg.TTS.TestMode {
		apiKey, keyErr := a.cfg.TTS.APIKey()
		if keyErr != nil {
			a.log.Warn(logNoSpeechKey, keyErr)
		} else {
			client = tts.NewElevenLabsClient(a.cfg.TTS.BaseURL, apiKey, a.cfg.TTS.Timeout())
		}
	}

	var limiter *rate.Limiter
	if a.cfg.TTS.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(a.cfg.TTS.RequestsPerSecond), 1)
	}

	synth := tts.NewSynthesizer(tts.SynthesizerOptions{
		Registry: registry,
		Cache:    cache.New(store, a.log),
		Client:   client,
		ModelID:  a.cfg.TTS.ModelID,
		Limiter:  limiter,
		TestMode: a.cfg.TTS.TestMode,
	}, a.log)

	codec, err := audio.NewCodec(audio.CodecOptions{
		Name:       a.cfg.Audio.Codec,
		Container:  a.cfg.Audio.Format,
		Format:     audio.Format{SampleRate: a.cfg.Audio.SampleRate, Channels: a.cfg.Audio.Channels},
		Bitrate:    a.cfg.Audio.Bitrate,
		FFmpegPath: a.cfg.Audio.FFmpegPath,
	}, a.log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}

	return pipeline.New(synth, codec, pipeline.Options{
		Workers:    a.cfg.TTS.Workers,
		MaxChunkMs: a.cfg.Audio.MaxChunkDurationMs(),
	}, a.log)
}

// cacheStore opens the object store backing the audio cache.
func (a *app) cacheStore() (core.ObjectStore, error) {
	if a.cfg.Cache.Backend != config.CacheBackendNATS {
		return objectstore.NewFileStore(a.cfg.Cache.Dir)
	}

	natsConnection, err := nats.Connect(a.cfg.NATS.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to NATS at %s: %v", core.ErrConfiguration, a.cfg.NATS.URL, err)
	}

	a.natsConnection = natsConnection

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	return objectstore.New(jetstreamContext, a.cfg.Cache.Bucket)
}

// newSpeechClient returns a client for the provider listing endpoints.
func (a *app) newSpeechClient() (*tts.ElevenLabsClient, error) {
	apiKey, err := a.cfg.TTS.APIKey()
	if err != nil {
		return nil, err
	}

	return tts.NewElevenLabsClient(a.cfg.TTS.BaseURL, apiKey, a.cfg.TTS.Timeout()), nil
}

// newGenerator wires the prompt library and the Messages API client.
func (a *app) newGenerator() (*lessongen.Generator, error) {
	apiKey, err := a.cfg.LLM.APIKey()
	if err != nil {
		return nil, err
	}

	prompts, err := lessongen.LoadPrompts(a.cfg.LLM.PromptsDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}

	messages := lessongen.NewMessageClient(a.cfg.LLM.BaseURL, apiKey, nil)

	return lessongen.NewGenerator(prompts, messages, lessongen.GeneratorOptions{
		Model:       a.cfg.LLM.Model,
		MaxTokens:   int64(a.cfg.LLM.MaxTokens),
		Temperature: a.cfg.LLM.Temperature,
	}, a.log), nil
}
