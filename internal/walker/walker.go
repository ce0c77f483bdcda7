// Package walker drives the assembly pipeline over a lesson tree laid out as
// <root>/part_NN/lesson_NN/daily_transcripts/*.csv, writing per-section audio
// to audio/ and per-day concatenations to combined_audio/.
package walker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/book-expert/lesson-audio/internal/core"
	"github.com/book-expert/lesson-audio/internal/fsutil"
	"github.com/book-expert/lesson-audio/internal/pipeline"
	"github.com/book-expert/logger"
)

// Directory and file naming.
const (
	PartPrefix      = "part_"
	LessonPrefix    = "lesson_"
	TranscriptsDir  = "daily_transcripts"
	AudioDir        = "audio"
	CombinedDir     = "combined_audio"
	scriptExtension = ".csv"
	combinedNameFmt = "day_%02d_combined%s"
)

// Log formats.
const (
	logFmtProcessingPart   = "Processing %s..."
	logFmtProcessingLesson = "Processing %s/%s..."
	logFmtProcessingScript = "Processing %s..."
	logFmtMissingDir       = "Warning: no %s directory found in %s"
	logFmtNoScripts        = "Warning: no CSV files found in %s"
	logFmtScriptFailed     = "Error processing %s: %v"
	logFmtLessonFailed     = "Error processing lesson %s: %v"
	logFmtLessonSummary    = "Finished %s: %d processed, %d skipped, %d empty, %d failed"
)

// ErrRootNotFound is returned when the lesson root does not exist.
var ErrRootNotFound = errors.New("lesson root not found")

// Report counts what a walk did.
type Report struct {
	Processed int
	Skipped   int
	Empty     int
	Failed    int
	Combined  int
	// CombineFailed counts days whose combined file could not be written.
	CombineFailed int
}

// OK reports whether every script and every day combine succeeded.
func (r Report) OK() bool {
	return r.Failed == 0 && r.CombineFailed == 0
}

func (r *Report) add(other Report) {
	r.Processed += other.Processed
	r.Skipped += other.Skipped
	r.Empty += other.Empty
	r.Failed += other.Failed
	r.Combined += other.Combined
	r.CombineFailed += other.CombineFailed
}

// Walker assembles every script of a lesson tree.
type Walker struct {
	assembler *pipeline.Assembler
	log       *logger.Logger
}

// New creates a Walker.
func New(assembler *pipeline.Assembler, log *logger.Logger) *Walker {
	return &Walker{assembler: assembler, log: log}
}

// Walk processes the parts and lessons under root. Empty part or lesson
// filters select every part_* or lesson_* directory. Missing directories and
// empty script sets are logged and skipped. A failing script is logged and
// counted; the walk continues with the next one, and a lesson that fails as a
// whole is logged and counted the same way. Configuration errors and
// cancellation stop the walk and are returned with the partial report.
func (w *Walker) Walk(ctx context.Context, root, part, lesson string) (Report, error) {
	var report Report

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return report, fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}

	parts, err := w.selectDirs(root, part, PartPrefix)
	if err != nil {
		return report, err
	}

	for _, partDir := range parts {
		w.log.Info(logFmtProcessingPart, filepath.Base(partDir))

		lessons, selectErr := w.selectDirs(partDir, lesson, LessonPrefix)
		if selectErr != nil {
			return report, selectErr
		}

		for _, lessonDir := range lessons {
			lessonReport, lessonErr := w.WalkLesson(ctx, lessonDir)
			report.add(lessonReport)

			switch {
			case lessonErr == nil:
			case errors.Is(lessonErr, core.ErrConfiguration), ctx.Err() != nil:
				return report, lessonErr
			default:
				w.log.Error(logFmtLessonFailed, filepath.Base(lessonDir), lessonErr)
				report.Failed++
			}
		}
	}

	return report, nil
}

// WalkLesson processes one lesson directory and then combines its days. Days
// with a failed script are not combined, so no combined file misses a
// section.
func (w *Walker) WalkLesson(ctx context.Context, lessonDir string) (Report, error) {
	var report Report

	w.log.Info(logFmtProcessingLesson, filepath.Base(filepath.Dir(lessonDir)), filepath.Base(lessonDir))

	transcriptDir := filepath.Join(lessonDir, TranscriptsDir)

	exists, err := fsutil.FileExists(transcriptDir)
	if err != nil {
		return report, err
	}

	if !exists {
		w.log.Warn(logFmtMissingDir, TranscriptsDir, lessonDir)

		return report, nil
	}

	scripts, err := filepath.Glob(filepath.Join(transcriptDir, "*"+scriptExtension))
	if err != nil {
		return report, fmt.Errorf("failed to list scripts in %s: %w", transcriptDir, err)
	}

	if len(scripts) == 0 {
		w.log.Warn(logFmtNoScripts, transcriptDir)

		return report, nil
	}

	sort.Strings(scripts)

	extension := w.assembler.Codec().Container().Extension()
	outputDir := filepath.Join(lessonDir, AudioDir)
	failedDays := make(map[int]bool)

	for _, scriptPath := range scripts {
		err = ctx.Err()
		if err != nil {
			return report, fmt.Errorf("walk interrupted: %w", err)
		}

		w.log.Info(logFmtProcessingScript, filepath.Base(scriptPath))

		outputPath := filepath.Join(outputDir, fsutil.Stem(scriptPath)+extension)

		result, assembleErr := w.assembler.AssembleFile(ctx, scriptPath, outputPath)

		switch {
		case assembleErr == nil && result.Skipped:
			report.Skipped++
		case assembleErr == nil && result.Empty:
			report.Empty++
		case assembleErr == nil:
			report.Processed++
		case errors.Is(assembleErr, core.ErrConfiguration), ctx.Err() != nil:
			return report, assembleErr
		default:
			w.log.Error(logFmtScriptFailed, filepath.Base(scriptPath), assembleErr)
			report.Failed++

			if day, ok := dayOf(filepath.Base(outputPath)); ok {
				failedDays[day] = true
			}
		}
	}

	w.log.Info(logFmtLessonSummary, filepath.Base(lessonDir), report.Processed, report.Skipped, report.Empty, report.Failed)

	if w.assembler.TestMode() {
		return report, nil
	}

	combineReport, err := w.CombineDays(ctx, lessonDir, failedDays)
	report.add(combineReport)

	return report, err
}

// selectDirs returns the named child of parent, or every child directory
// with prefix when name is empty, sorted by name.
func (w *Walker) selectDirs(parent, name, prefix string) ([]string, error) {
	if name != "" {
		candidate := filepath.Join(parent, name)

		exists, err := fsutil.FileExists(candidate)
		if err != nil {
			return nil, err
		}

		if !exists {
			w.log.Warn(logFmtMissingDir, name, parent)

			return nil, nil
		}

		return []string{candidate}, nil
	}

	entries, err := os.ReadDir(parent)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", parent, err)
	}

	var dirs []string

	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			dirs = append(dirs, filepath.Join(parent, entry.Name()))
		}
	}

	return dirs, nil
}
