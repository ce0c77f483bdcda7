package tts_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/book-expert/lesson-audio/internal/cache"
	"github.com/book-expert/lesson-audio/internal/core"
	"github.com/book-expert/lesson-audio/internal/objectstore"
	"github.com/book-expert/lesson-audio/internal/tts"
	"github.com/book-expert/lesson-audio/internal/voices"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var errRemoteDown = errors.New("remote down")

type fakeClient struct {
	calls    atomic.Int64
	lastReq  tts.SpeechRequest
	response []byte
	err      error
}

func (f *fakeClient) GenerateSpeech(_ context.Context, req tts.SpeechRequest) ([]byte, error) {
	f.calls.Add(1)
	f.lastReq = req

	if f.err != nil {
		return nil, f.err
	}

	return f.response, nil
}

type synthFixture struct {
	synth  *tts.Synthesizer
	client *fakeClient
	store  *objectstore.FileStore
}

func newSynthFixture(t *testing.T, client *fakeClient, testMode bool) synthFixture {
	t.Helper()

	log, err := logger.New(t.TempDir(), "synth-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	registry, err := voices.New(voices.Defaults())
	require.NoError(t, err)

	store, err := objectstore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	opts := tts.SynthesizerOptions{
		Registry: registry,
		Cache:    cache.New(store, log),
		ModelID:  "eleven_multilingual_v2",
		Limiter:  rate.NewLimiter(rate.Inf, 1),
		TestMode: testMode,
	}

	if client != nil {
		opts.Client = client
	}

	return synthFixture{synth: tts.NewSynthesizer(opts, log), client: client, store: store}
}

func TestSynthesize_MissThenHit(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: []byte("mp3-bytes")}
	fixture := newSynthFixture(t, client, false)
	ctx := context.Background()

	first, err := fixture.synth.Synthesize(ctx, "Hej", "da_f_voice")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), first)
	assert.Equal(t, "XB0fDUnXU5powFXDhCwa", client.lastReq.VoiceID)
	assert.Equal(t, "Hej", client.lastReq.Text)
	assert.InDelta(t, 0.7, client.lastReq.VoiceSettings.Stability, 1e-9)

	key := cache.Fingerprint("Hej", "XB0fDUnXU5powFXDhCwa")
	stored, err := fixture.store.Download(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, first, stored)

	second, err := fixture.synth.Synthesize(ctx, "Hej", "da_f_voice")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), client.calls.Load())
	assert.Equal(t, int64(1), fixture.synth.RemoteCalls())
}

func TestSynthesize_UnknownVoiceMakesNoCall(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: []byte("mp3")}
	fixture := newSynthFixture(t, client, false)

	_, err := fixture.synth.Synthesize(context.Background(), "Hej", "xx_voice")
	require.ErrorIs(t, err, core.ErrConfiguration)
	require.ErrorIs(t, err, voices.ErrUnknownVoice)
	assert.Equal(t, int64(0), client.calls.Load())
}

func TestSynthesize_RemoteFailureIsSynthesisError(t *testing.T) {
	t.Parallel()

	client := &fakeClient{err: errRemoteDown}
	fixture := newSynthFixture(t, client, false)
	ctx := context.Background()

	_, err := fixture.synth.Synthesize(ctx, "Farvel", "da_m_voice")
	require.ErrorIs(t, err, core.ErrSynthesis)
	require.ErrorIs(t, err, errRemoteDown)

	_, err = fixture.store.Download(ctx, cache.Fingerprint("Farvel", "IKne3meq5aSn9XLyUdCD"))
	require.ErrorIs(t, err, core.ErrObjectNotFound)
}

func TestSynthesize_NoClientIsConfigurationError(t *testing.T) {
	t.Parallel()

	fixture := newSynthFixture(t, nil, false)
	ctx := context.Background()

	_, err := fixture.synth.Synthesize(ctx, "Hej", "da_f_voice")
	require.ErrorIs(t, err, core.ErrConfiguration)

	key := cache.Fingerprint("Hej", "XB0fDUnXU5powFXDhCwa")
	require.NoError(t, fixture.store.Upload(ctx, key, []byte("cached")))

	cached, err := fixture.synth.Synthesize(ctx, "Hej", "da_f_voice")
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), cached)
}

func TestSynthesize_TestModePlaceholder(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: []byte("mp3")}
	fixture := newSynthFixture(t, client, true)

	assert.True(t, fixture.synth.TestMode())

	placeholder, err := fixture.synth.Synthesize(context.Background(), "Godmorgen", "da_f_voice")
	require.NoError(t, err)
	assert.Equal(t, "Voice ID: da_f_voice\nText: Godmorgen\nVoice Settings: {\n  \"stability\": 0.7,\n  \"similarity_boost\": 0.8\n}\n",
		string(placeholder))
	assert.Equal(t, int64(0), client.calls.Load())

	_, err = fixture.synth.Synthesize(context.Background(), "Godmorgen", "nope")
	require.ErrorIs(t, err, core.ErrConfiguration)
}
