package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/book-expert/lesson-audio/internal/cache"
	"github.com/book-expert/lesson-audio/internal/core"
	"github.com/book-expert/lesson-audio/internal/voices"
	"github.com/book-expert/logger"
	"golang.org/x/time/rate"
)

// Log formats.
const (
	logFmtCacheHit      = "Using cached audio for %q (%s)"
	logFmtGenerated     = "Generated %d bytes for %q with voice %s"
	logFmtRemoteFailure = "Speech synthesis failed for %q with voice %s: %v"
)

var _ core.SpeechSynthesizer = (*Synthesizer)(nil)

// SpeechClient is the remote call the Synthesizer delegates cache misses to.
type SpeechClient interface {
	GenerateSpeech(ctx context.Context, req SpeechRequest) ([]byte, error)
}

// SynthesizerOptions configures a Synthesizer. Client may be nil when no
// credential is available; cache misses then fail with a configuration error.
type SynthesizerOptions struct {
	Registry *voices.Registry
	Cache    *cache.Cache
	Client   SpeechClient
	ModelID  string
	Limiter  *rate.Limiter
	TestMode bool
}

// Synthesizer resolves logical voices, serves clips from the cache and calls
// the remote service on a miss.
type Synthesizer struct {
	registry    *voices.Registry
	cache       *cache.Cache
	client      SpeechClient
	modelID     string
	limiter     *rate.Limiter
	testMode    bool
	log         *logger.Logger
	remoteCalls atomic.Int64
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(opts SynthesizerOptions, log *logger.Logger) *Synthesizer {
	return &Synthesizer{
		registry: opts.Registry,
		cache:    opts.Cache,
		client:   opts.Client,
		modelID:  opts.ModelID,
		limiter:  opts.Limiter,
		testMode: opts.TestMode,
		log:      log,
	}
}

// TestMode reports whether placeholders are produced instead of audio.
func (s *Synthesizer) TestMode() bool {
	return s.testMode
}

// RemoteCalls returns how many requests reached the remote service.
func (s *Synthesizer) RemoteCalls() int64 {
	return s.remoteCalls.Load()
}

// Synthesize returns encoded audio for text spoken by the logical voice.
//
// Unknown voices fail with core.ErrConfiguration before anything else
// happens. In test mode a text placeholder is returned and neither the cache
// nor the remote service is touched. Remote failures are wrapped in
// core.ErrSynthesis and never retried.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	resolved, err := s.registry.Resolve(voice)
	if err != nil {
		return nil, err
	}

	if s.testMode {
		return Placeholder(text, voice, resolved.Settings), nil
	}

	key := cache.Fingerprint(text, resolved.ID)

	cached, hit, err := s.cache.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	if hit {
		s.log.Info(logFmtCacheHit, text, key)

		return cached, nil
	}

	if s.client == nil {
		return nil, fmt.Errorf("%w: no speech API credential configured for uncached text %q", core.ErrConfiguration, text)
	}

	if s.limiter != nil {
		err = s.limiter.Wait(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", core.ErrSynthesis, err)
		}
	}

	s.remoteCalls.Add(1)

	audioData, err := s.client.GenerateSpeech(ctx, SpeechRequest{
		VoiceID: resolved.ID,
		Text:    text,
		ModelID: s.modelID,
		VoiceSettings: VoiceSettings{
			Stability:       resolved.Settings.Stability,
			SimilarityBoost: resolved.Settings.SimilarityBoost,
		},
	})
	if err != nil {
		s.log.Error(logFmtRemoteFailure, text, voice, err)

		return nil, fmt.Errorf("%w: %w", core.ErrSynthesis, err)
	}

	err = s.cache.Store(ctx, key, audioData)
	if err != nil {
		return nil, err
	}

	s.log.Info(logFmtGenerated, len(audioData), text, voice)

	return audioData, nil
}

// Placeholder renders the deterministic test-mode stand-in for one clip.
func Placeholder(text, voice string, settings voices.Settings) []byte {
	settingsJSON, _ := json.MarshalIndent(settings, "", "  ")

	var builder strings.Builder

	fmt.Fprintf(&builder, "Voice ID: %s\n", voice)
	fmt.Fprintf(&builder, "Text: %s\n", text)
	fmt.Fprintf(&builder, "Voice Settings: %s\n", settingsJSON)

	return []byte(builder.String())
}
