package cache_test

import (
	"context"
	"errors"
	"testing"

	"github.com/book-expert/lesson-audio/internal/cache"
	"github.com/book-expert/lesson-audio/internal/objectstore"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBrokenStore = errors.New("disk on fire")

type brokenStore struct{}

func (brokenStore) Download(context.Context, string) ([]byte, error) { return nil, errBrokenStore }
func (brokenStore) Upload(context.Context, string, []byte) error     { return errBrokenStore }

func newLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "cache-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func TestFingerprint_IsStableAndDistinct(t *testing.T) {
	t.Parallel()

	first := cache.Fingerprint("Hej, hvordan går det?", "XB0fDUnXU5powFXDhCwa")
	second := cache.Fingerprint("Hej, hvordan går det?", "XB0fDUnXU5powFXDhCwa")
	other := cache.Fingerprint("Hej, hvordan går det?", "IKne3meq5aSn9XLyUdCD")

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
	assert.Regexp(t, `^cache_[0-9a-f]{32}\.mp3$`, first)
	assert.Equal(t, "cache_539feeaa08b2eb76371de067bdcedd95.mp3", cache.Fingerprint("hello", "voice"))
}

func TestCache_MissThenHitRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	audioCache := cache.New(store, newLogger(t))
	ctx := context.Background()
	key := cache.Fingerprint("tak", "voice-1")

	data, hit, err := audioCache.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, data)

	payload := []byte{0x49, 0x44, 0x33, 0x04, 0x00, 0xff}
	require.NoError(t, audioCache.Store(ctx, key, payload))

	data, hit, err = audioCache.Lookup(ctx, key)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, payload, data)
}

func TestCache_BackendErrorsPropagate(t *testing.T) {
	t.Parallel()

	audioCache := cache.New(brokenStore{}, newLogger(t))

	_, _, err := audioCache.Lookup(context.Background(), "cache_x.mp3")
	require.ErrorIs(t, err, errBrokenStore)

	err = audioCache.Store(context.Background(), "cache_x.mp3", []byte("x"))
	require.ErrorIs(t, err, errBrokenStore)
}
