package audio

import (
	"fmt"
)

// Track is an in-memory accumulator of interleaved PCM samples. It is not
// safe for concurrent use.
type Track struct {
	format  Format
	samples []int16
}

// NewTrack returns an empty track in the given format.
func NewTrack(format Format) (*Track, error) {
	err := format.Validate()
	if err != nil {
		return nil, err
	}

	return &Track{format: format}, nil
}

// NewTrackFromSamples wraps existing interleaved samples. The slice is
// owned by the track afterwards.
func NewTrackFromSamples(format Format, samples []int16) (*Track, error) {
	track, err := NewTrack(format)
	if err != nil {
		return nil, err
	}

	if len(samples)%format.Channels != 0 {
		return nil, fmt.Errorf("%w: %d samples is not a whole number of %d-channel frames",
			ErrInvalidFormat, len(samples), format.Channels)
	}

	track.samples = samples

	return track, nil
}

// Format returns the PCM format of the track.
func (t *Track) Format() Format {
	return t.format
}

// Samples returns the interleaved samples. Callers must not modify them.
func (t *Track) Samples() []int16 {
	return t.samples
}

// Frames returns the number of sample frames.
func (t *Track) Frames() int {
	return len(t.samples) / t.format.Channels
}

// DurationMs returns the track length in whole milliseconds.
func (t *Track) DurationMs() int {
	return int(int64(t.Frames()) * 1000 / int64(t.format.SampleRate))
}

// Append concatenates other onto the end of the track.
func (t *Track) Append(other *Track) error {
	if other.format != t.format {
		return fmt.Errorf(ERR_FMT_FORMAT_MISMATCH, ErrFormatMismatch, t.format, other.format)
	}

	t.samples = append(t.samples, other.samples...)

	return nil
}

// AppendSilence appends durationMs of digital silence. Non-positive
// durations are a no-op.
func (t *Track) AppendSilence(durationMs int) {
	if durationMs <= 0 {
		return
	}

	frames := t.format.framesFor(durationMs)
	t.samples = append(t.samples, make([]int16, frames*t.format.Channels)...)
}

// Split cuts the track into consecutive pieces of at most maxDurationMs. The
// last piece may be shorter. A track that fits is returned as a single piece.
func (t *Track) Split(maxDurationMs int) ([]*Track, error) {
	if maxDurationMs <= 0 {
		return nil, fmt.Errorf("%w: got %dms", ErrInvalidDuration, maxDurationMs)
	}

	chunkSamples := t.format.framesFor(maxDurationMs) * t.format.Channels
	if chunkSamples == 0 {
		return nil, fmt.Errorf("%w: %dms is shorter than one frame", ErrInvalidDuration, maxDurationMs)
	}

	if len(t.samples) <= chunkSamples {
		return []*Track{t}, nil
	}

	chunks := make([]*Track, 0, len(t.samples)/chunkSamples+1)

	for start := 0; start < len(t.samples); start += chunkSamples {
		end := min(start+chunkSamples, len(t.samples))

		chunks = append(chunks, &Track{
			format:  t.format,
			samples: t.samples[start:end:end],
		})
	}

	return chunks, nil
}
