// Package audio provides the PCM track used to assemble lesson audio, the
// codecs that move encoded clips in and out of it, and format validation.
package audio

import (
	"errors"
	"fmt"
	"strings"
)

// Constants for default audio settings.
const (
	DEFAULT_SAMPLE_RATE = 44100 // Standard CD quality sample rate.
	DEFAULT_CHANNELS    = 1     // Spoken lessons are mono.
	BYTES_PER_SAMPLE    = 2     // 16-bit signed little-endian PCM.
)

// Constants for validation limits.
const (
	MAX_SAMPLE_RATE = 192000
	MAX_CHANNELS    = 8
)

// Constants for error messages and formats.
const (
	ERR_FMT_SAMPLE_RATE_RANGE = "%w: sample rate must be between 1 and %d Hz, got %d"
	ERR_FMT_CHANNELS_RANGE    = "%w: channels must be between 1 and %d, got %d"
	ERR_FMT_FORMAT_MISMATCH   = "%w: expected %s, got %s"
	ERR_FMT_UNSUPPORTED_EXT   = "%w: %q"
)

// Common errors for the audio package.
var (
	ErrInvalidFormat     = errors.New("invalid audio format")
	ErrFormatMismatch    = errors.New("audio format mismatch")
	ErrUnsupportedFormat = errors.New("unsupported container format")
	ErrInvalidDuration   = errors.New("duration must be positive")
)

// Container represents supported encoded audio containers.
type Container string

const (
	CONTAINER_WAV Container = "wav"
	CONTAINER_MP3 Container = "mp3"
)

// ParseContainer maps a configured extension ("mp3", ".wav") to a Container.
func ParseContainer(name string) (Container, error) {
	switch Container(strings.TrimPrefix(strings.ToLower(name), ".")) {
	case CONTAINER_WAV:
		return CONTAINER_WAV, nil
	case CONTAINER_MP3:
		return CONTAINER_MP3, nil
	default:
		return "", fmt.Errorf(ERR_FMT_UNSUPPORTED_EXT, ErrUnsupportedFormat, name)
	}
}

// Extension returns the file extension including the leading dot.
func (c Container) Extension() string {
	return "." + string(c)
}

// Format describes interleaved 16-bit PCM.
type Format struct {
	SampleRate int `json:"sampleRate"`
	Channels   int `json:"channels"`
}

// NewDefaultFormat provides sensible defaults for speech.
func NewDefaultFormat() Format {
	return Format{
		SampleRate: DEFAULT_SAMPLE_RATE,
		Channels:   DEFAULT_CHANNELS,
	}
}

// Validate checks the format is within reasonable bounds.
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.SampleRate > MAX_SAMPLE_RATE {
		return fmt.Errorf(ERR_FMT_SAMPLE_RATE_RANGE, ErrInvalidFormat, MAX_SAMPLE_RATE, f.SampleRate)
	}

	if f.Channels <= 0 || f.Channels > MAX_CHANNELS {
		return fmt.Errorf(ERR_FMT_CHANNELS_RANGE, ErrInvalidFormat, MAX_CHANNELS, f.Channels)
	}

	return nil
}

// String renders the format for diagnostics.
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}

// framesFor converts a millisecond duration to a frame count, rounding down.
func (f Format) framesFor(durationMs int) int {
	return int(int64(durationMs) * int64(f.SampleRate) / 1000)
}
