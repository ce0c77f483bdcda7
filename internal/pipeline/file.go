package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/book-expert/lesson-audio/internal/fsutil"
	"github.com/book-expert/lesson-audio/internal/script"
)

// AssembleFile renders the script at scriptPath into outputPath.
//
// When outputPath or its first chunk already exists the call is a no-op,
// except in test mode. An empty script produces nothing. In test mode a text
// summary is written next to outputPath instead of audio. Audio longer than
// the chunk budget is written as numbered chunk files instead of outputPath.
func (a *Assembler) AssembleFile(ctx context.Context, scriptPath, outputPath string) (Result, error) {
	testMode := a.synth.TestMode()

	if !testMode {
		exists, err := a.outputExists(outputPath)
		if err != nil {
			return Result{}, err
		}

		if exists {
			a.log.Info(logFmtSkipExisting, outputPath)

			return Result{Skipped: true}, nil
		}
	}

	entries, err := script.ParseFile(scriptPath)
	if err != nil {
		return Result{}, err
	}

	if len(entries) == 0 {
		a.log.Warn(logFmtEmptyScript, scriptPath)

		return Result{Empty: true}, nil
	}

	if testMode {
		return a.writeSummary(ctx, scriptPath, outputPath, entries)
	}

	payloads, durationMs, err := a.Render(ctx, entries)
	if err != nil {
		return Result{}, fmt.Errorf("failed to assemble %s: %w", scriptPath, err)
	}

	targets := []string{outputPath}
	if len(payloads) > 1 {
		targets = make([]string, len(payloads))
		for i := range payloads {
			targets[i] = ChunkPath(outputPath, i+1)
		}
	}

	for i, target := range targets {
		err = fsutil.WriteFileAtomic(target, payloads[i])
		if err != nil {
			a.removeArtifacts(targets[:i])

			return Result{}, err
		}

		a.log.Info(logFmtArtifactWritten, target, fsutil.FormatFileSize(int64(len(payloads[i]))))
	}

	return Result{Artifacts: targets, DurationMs: durationMs}, nil
}

// removeArtifacts deletes chunks written before a later chunk failed, so a
// rerun does not mistake them for finished output.
func (a *Assembler) removeArtifacts(paths []string) {
	for _, path := range paths {
		removeErr := os.Remove(path)
		if removeErr != nil {
			a.log.Warn(logFmtRemoveFailed, path, removeErr)
		}
	}
}

func (a *Assembler) outputExists(outputPath string) (bool, error) {
	for _, candidate := range []string{outputPath, ChunkPath(outputPath, firstChunkOrdinal)} {
		exists, err := fsutil.FileExists(candidate)
		if err != nil || exists {
			return exists, err
		}
	}

	return false, nil
}

// writeSummary records what would have been synthesized. Every entry still
// goes through the synthesizer so unknown voices fail as they would for real.
func (a *Assembler) writeSummary(ctx context.Context, scriptPath, outputPath string, entries []script.Entry) (Result, error) {
	sorted := make([]script.Entry, len(entries))
	copy(sorted, entries)
	script.SortEntries(sorted)

	var builder strings.Builder

	fmt.Fprintf(&builder, "Test Mode Summary for %s\n", scriptPath)
	fmt.Fprintf(&builder, "%s\n\n", summaryRule)

	for _, entry := range sorted {
		placeholder, err := a.synth.Synthesize(ctx, entry.Text, entry.Voice)
		if err != nil {
			return Result{}, fmt.Errorf("%w %d: %w", ErrEntryFailed, entry.OrderID, err)
		}

		fmt.Fprintf(&builder, "Order ID: %d\n", entry.OrderID)
		fmt.Fprintf(&builder, "Repeat: %d\n", entry.Repeat)
		fmt.Fprintf(&builder, "Delay: %d\n", entry.DelayMs)
		builder.Write(placeholder)
		fmt.Fprintf(&builder, "%s\n", summaryEntryRule)
	}

	summaryPath := SummaryPath(outputPath)

	err := fsutil.WriteFileAtomic(summaryPath, []byte(builder.String()))
	if err != nil {
		return Result{}, err
	}

	a.log.Info(logFmtSummaryWritten, summaryPath)

	return Result{Artifacts: []string{summaryPath}}, nil
}
