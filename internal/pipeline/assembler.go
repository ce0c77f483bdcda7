// Package pipeline turns a lesson script into encoded audio artifacts.
//
// Entries are sorted by order id, synthesized (optionally in parallel),
// decoded into one PCM track with repeats and pauses, then split into
// duration-capped chunks and encoded. Nothing is written unless every entry
// succeeded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/book-expert/lesson-audio/internal/audio"
	"github.com/book-expert/lesson-audio/internal/core"
	"github.com/book-expert/lesson-audio/internal/fsutil"
	"github.com/book-expert/lesson-audio/internal/script"
	"github.com/book-expert/logger"
)

const (
	// DefaultMaxChunkMs is the chunk budget used when none is configured.
	DefaultMaxChunkMs = 600 * 1000

	chunkNameFormat   = "%s_chunk_%02d%s"
	summarySuffix     = "_summary.txt"
	summaryRule       = "=================================================="
	summaryEntryRule  = "------------------------------"
	firstChunkOrdinal = 1
)

// Log formats.
const (
	logFmtSkipExisting    = "Skipping %s - output already exists"
	logFmtEmptyScript     = "Script %s is empty, nothing to do"
	logFmtSynthesized     = "Synthesized entry %d (%d/%d)"
	logFmtEntryFailed     = "Failed to synthesize entry %d: %v"
	logFmtAssembled       = "Assembled %d entries into %s of audio"
	logFmtSplitting       = "Audio exceeds %s, splitting into %d chunks"
	logFmtArtifactWritten = "Wrote %s (%s)"
	logFmtSummaryWritten  = "Test mode: created summary file at %s"
	logFmtRemoveFailed    = "Failed to remove partial artifact '%s': %v"
)

// Static errors.
var (
	ErrNoSynthesizer = errors.New("assembler requires a synthesizer")
	ErrNoCodec       = errors.New("assembler requires a codec")
	ErrEntryFailed   = errors.New("entry failed")
)

// Options tunes an Assembler.
type Options struct {
	// Workers bounds concurrent synthesis calls. Values below 2 run sequentially.
	Workers int
	// MaxChunkMs is the longest artifact produced; longer audio is split.
	MaxChunkMs int
}

// Result describes what AssembleFile did.
type Result struct {
	Skipped    bool
	Empty      bool
	Artifacts  []string
	DurationMs int
}

// Assembler builds audio for scripts.
type Assembler struct {
	synth      core.SpeechSynthesizer
	codec      audio.Codec
	log        *logger.Logger
	workers    int
	maxChunkMs int
}

// New creates an Assembler.
func New(synth core.SpeechSynthesizer, codec audio.Codec, opts Options, log *logger.Logger) (*Assembler, error) {
	if synth == nil {
		return nil, ErrNoSynthesizer
	}

	if codec == nil {
		return nil, ErrNoCodec
	}

	maxChunkMs := opts.MaxChunkMs
	if maxChunkMs == 0 {
		maxChunkMs = DefaultMaxChunkMs
	}

	if maxChunkMs < 0 {
		return nil, fmt.Errorf("%w: max chunk duration %dms", audio.ErrInvalidDuration, maxChunkMs)
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	return &Assembler{
		synth:      synth,
		codec:      codec,
		log:        log,
		workers:    workers,
		maxChunkMs: maxChunkMs,
	}, nil
}

// Codec returns the codec used to decode clips and encode artifacts.
func (a *Assembler) Codec() audio.Codec {
	return a.codec
}

// Build synthesizes entries and concatenates them in order-id order. Each
// repetition of an entry is followed by its pause when the pause is positive.
// The first failure aborts the build.
func (a *Assembler) Build(ctx context.Context, entries []script.Entry) (*audio.Track, error) {
	sorted := make([]script.Entry, len(entries))
	copy(sorted, entries)
	script.SortEntries(sorted)

	clips, err := a.synthesizeAll(ctx, sorted)
	if err != nil {
		return nil, err
	}

	track, err := audio.NewTrack(a.codec.Format())
	if err != nil {
		return nil, err
	}

	for i, entry := range sorted {
		segment, decodeErr := a.codec.Decode(ctx, clips[i])
		if decodeErr != nil {
			return nil, fmt.Errorf("%w %d: decode: %w", ErrEntryFailed, entry.OrderID, decodeErr)
		}

		for range entry.Repeat {
			appendErr := track.Append(segment)
			if appendErr != nil {
				return nil, fmt.Errorf("%w %d: %w", ErrEntryFailed, entry.OrderID, appendErr)
			}

			track.AppendSilence(entry.DelayMs)
		}
	}

	a.log.Info(logFmtAssembled, len(sorted), fsutil.FormatDuration(track.DurationMs()))

	return track, nil
}

// Split cuts track into consecutive chunks of at most maxMs. A track that
// fits is returned as the only element.
func Split(track *audio.Track, maxMs int) ([]*audio.Track, error) {
	return track.Split(maxMs)
}

// Render builds entries and encodes the result, one payload per chunk.
func (a *Assembler) Render(ctx context.Context, entries []script.Entry) ([][]byte, int, error) {
	track, err := a.Build(ctx, entries)
	if err != nil {
		return nil, 0, err
	}

	chunks, err := Split(track, a.maxChunkMs)
	if err != nil {
		return nil, 0, err
	}

	if len(chunks) > 1 {
		a.log.Info(logFmtSplitting, fsutil.FormatDuration(a.maxChunkMs), len(chunks))
	}

	payloads := make([][]byte, 0, len(chunks))

	for i, chunk := range chunks {
		encoded, encodeErr := a.codec.Encode(ctx, chunk)
		if encodeErr != nil {
			return nil, 0, fmt.Errorf("failed to encode chunk %d: %w", i+1, encodeErr)
		}

		payloads = append(payloads, encoded)
	}

	return payloads, track.DurationMs(), nil
}

func (a *Assembler) synthesizeAll(ctx context.Context, entries []script.Entry) ([][]byte, error) {
	clips := make([][]byte, len(entries))

	if a.workers < 2 || len(entries) < 2 {
		for i, entry := range entries {
			clip, err := a.synth.Synthesize(ctx, entry.Text, entry.Voice)
			if err != nil {
				a.log.Error(logFmtEntryFailed, entry.OrderID, err)

				return nil, fmt.Errorf("%w %d: %w", ErrEntryFailed, entry.OrderID, err)
			}

			clips[i] = clip
			a.log.Info(logFmtSynthesized, entry.OrderID, i+1, len(entries))
		}

		return clips, nil
	}

	return a.synthesizeParallel(ctx, entries, clips)
}

// synthesizeParallel fans entries out to a bounded pool. Results land in
// their sorted slot; the first error cancels the remaining calls.
func (a *Assembler) synthesizeParallel(ctx context.Context, entries []script.Entry, clips [][]byte) ([][]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		waitGroup  sync.WaitGroup
		mutex      sync.Mutex
		firstError error
	)

	workerPool := make(chan struct{}, a.workers)

	for entryIndex, entry := range entries {
		waitGroup.Add(1)

		go func(index int, entry script.Entry) {
			defer waitGroup.Done()

			select {
			case workerPool <- struct{}{}:
			case <-ctx.Done():
				return
			}

			defer func() { <-workerPool }()

			if ctx.Err() != nil {
				return
			}

			clip, err := a.synth.Synthesize(ctx, entry.Text, entry.Voice)
			if err != nil {
				mutex.Lock()

				if firstError == nil {
					firstError = fmt.Errorf("%w %d: %w", ErrEntryFailed, entry.OrderID, err)
					cancel()
				}

				mutex.Unlock()
				a.log.Error(logFmtEntryFailed, entry.OrderID, err)

				return
			}

			clips[index] = clip
			a.log.Info(logFmtSynthesized, entry.OrderID, index+1, len(entries))
		}(entryIndex, entry)
	}

	waitGroup.Wait()

	if firstError != nil {
		return nil, firstError
	}

	// Cancellation from the caller leaves empty slots behind.
	err := ctx.Err()
	if err != nil {
		return nil, fmt.Errorf("synthesis interrupted: %w", err)
	}

	return clips, nil
}

// ChunkPath returns the file name of the ordinal-th chunk (1-based) of an
// artifact that would otherwise be written to outputPath.
func ChunkPath(outputPath string, ordinal int) string {
	ext := filepath.Ext(outputPath)

	return fmt.Sprintf(chunkNameFormat, strings.TrimSuffix(outputPath, ext), ordinal, ext)
}

// SummaryPath returns where test mode writes its stand-in for outputPath.
func SummaryPath(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + summarySuffix
}

// TestMode reports whether the assembler produces text summaries instead of
// audio.
func (a *Assembler) TestMode() bool {
	return a.synth.TestMode()
}
