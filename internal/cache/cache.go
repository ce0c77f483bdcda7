// Package cache provides the content-addressed store of synthesized audio.
//
// Keys are derived from the spoken text and the provider voice ID only, so a
// re-run of the same script reuses every clip produced before. Entries are
// never evicted.
package cache

import (
	"context"
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/book-expert/lesson-audio/internal/core"
	"github.com/book-expert/logger"
)

const (
	keyPrefix = "cache_"
	keySuffix = ".mp3"
)

// Cache maps fingerprints to audio bytes held in an ObjectStore.
type Cache struct {
	store core.ObjectStore
	log   *logger.Logger
}

// New wraps store as an audio cache.
func New(store core.ObjectStore, log *logger.Logger) *Cache {
	return &Cache{store: store, log: log}
}

// Fingerprint returns the cache key for text spoken by providerVoiceID. The
// result is stable across runs and processes.
func Fingerprint(text, providerVoiceID string) string {
	sum := md5.Sum([]byte(text + providerVoiceID)) //nolint:gosec

	return keyPrefix + hex.EncodeToString(sum[:]) + keySuffix
}

// Lookup returns the cached bytes for key. A miss is (nil, false, nil).
func (c *Cache) Lookup(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.store.Download(ctx, key)
	if err != nil {
		if errors.Is(err, core.ErrObjectNotFound) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("cache lookup for %s failed: %w", key, err)
	}

	return data, true, nil
}

// Store saves data under key, replacing any previous value.
func (c *Cache) Store(ctx context.Context, key string, data []byte) error {
	err := c.store.Upload(ctx, key, data)
	if err != nil {
		return fmt.Errorf("cache store for %s failed: %w", key, err)
	}

	c.log.Info("Cached %d bytes as %s", len(data), key)

	return nil
}
