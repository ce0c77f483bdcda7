// Package core defines the shared interfaces and error taxonomy for the lesson
// audio builder.
package core

import (
	"context"
	"errors"
)

// Error taxonomy. Every failure surfaced by the builder wraps one of these.
var (
	// ErrConfiguration covers missing credentials, unknown logical voices and
	// invalid configuration files. It is fatal for the run.
	ErrConfiguration = errors.New("configuration error")
	// ErrSynthesis indicates the remote TTS call failed. It is fatal for the
	// current script and never retried.
	ErrSynthesis = errors.New("synthesis error")
	// ErrMalformedInput indicates an unparsable script row or lesson file.
	ErrMalformedInput = errors.New("malformed input")
	// ErrObjectNotFound is returned by ObjectStore implementations for missing keys.
	ErrObjectNotFound = errors.New("object not found")
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// SpeechSynthesizer turns text spoken by a logical voice into encoded audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
	TestMode() bool
}
