package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/book-expert/lesson-audio/internal/audio"
	"github.com/book-expert/lesson-audio/internal/fsutil"
)

const (
	logFmtCombineSkip     = "Skipping day %02d - %s is up to date"
	logFmtCombineExcluded = "Not combining day %02d: one of its sections failed"
	logFmtCombineFailed   = "Failed to combine day %02d: %v"
	logFmtCombineDay      = "Combining %d files for day %02d"
	logFmtCombineWritten  = "Created combined file %s (%s)"
)

// sectionPattern matches day_NN_section_MM.ext and day_NN_section_MM_chunk_KK.ext.
var sectionPattern = regexp.MustCompile(`^day_(\d+)_section_(\d+)(?:_chunk_(\d+))?(\.[A-Za-z0-9]+)$`)

type sectionFile struct {
	path    string
	day     int
	section int
	chunk   int
	modTime time.Time
}

// CombineDays concatenates the section artifacts in lessonDir/audio into one
// file per day under lessonDir/combined_audio, ordered by section then
// chunk. A combined file is rebuilt when any of its sections is newer than
// it. Days listed in exclude are left alone. A day that cannot be combined
// is logged and counted in CombineFailed; the remaining days still run.
func (w *Walker) CombineDays(ctx context.Context, lessonDir string, exclude map[int]bool) (Report, error) {
	var report Report

	codec := w.assembler.Codec()
	extension := codec.Container().Extension()
	audioDir := filepath.Join(lessonDir, AudioDir)

	exists, err := fsutil.FileExists(audioDir)
	if err != nil {
		return report, err
	}

	if !exists {
		w.log.Warn(logFmtMissingDir, AudioDir, lessonDir)

		return report, nil
	}

	days, err := groupSections(audioDir, extension)
	if err != nil {
		return report, err
	}

	dayNumbers := make([]int, 0, len(days))
	for day := range days {
		dayNumbers = append(dayNumbers, day)
	}

	sort.Ints(dayNumbers)

	for _, day := range dayNumbers {
		err = ctx.Err()
		if err != nil {
			return report, fmt.Errorf("combine interrupted: %w", err)
		}

		if exclude[day] {
			w.log.Warn(logFmtCombineExcluded, day)

			continue
		}

		target := filepath.Join(lessonDir, CombinedDir, fmt.Sprintf(combinedNameFmt, day, extension))

		written, combineErr := w.combineDay(ctx, codec, day, days[day], target)

		switch {
		case combineErr == nil && written:
			report.Combined++
		case combineErr == nil:
		case ctx.Err() != nil:
			return report, combineErr
		default:
			w.log.Error(logFmtCombineFailed, day, combineErr)
			report.CombineFailed++
		}
	}

	return report, nil
}

func (w *Walker) combineDay(ctx context.Context, codec audio.Codec, day int, files []sectionFile, target string) (bool, error) {
	upToDate, err := isUpToDate(target, files)
	if err != nil {
		return false, err
	}

	if upToDate {
		w.log.Info(logFmtCombineSkip, day, filepath.Base(target))

		return false, nil
	}

	w.log.Info(logFmtCombineDay, len(files), day)

	track, err := audio.NewTrack(codec.Format())
	if err != nil {
		return false, err
	}

	for _, file := range files {
		data, readErr := os.ReadFile(file.path)
		if readErr != nil {
			return false, fmt.Errorf("failed to read %s: %w", file.path, readErr)
		}

		segment, decodeErr := codec.Decode(ctx, data)
		if decodeErr != nil {
			return false, fmt.Errorf("failed to decode %s: %w", file.path, decodeErr)
		}

		appendErr := track.Append(segment)
		if appendErr != nil {
			return false, fmt.Errorf("failed to append %s: %w", file.path, appendErr)
		}
	}

	encoded, err := codec.Encode(ctx, track)
	if err != nil {
		return false, fmt.Errorf("failed to encode day %02d: %w", day, err)
	}

	err = fsutil.WriteFileAtomic(target, encoded)
	if err != nil {
		return false, err
	}

	w.log.Info(logFmtCombineWritten, target, fsutil.FormatDuration(track.DurationMs()))

	return true, nil
}

// isUpToDate reports whether target exists and no section is newer than it.
func isUpToDate(target string, files []sectionFile) (bool, error) {
	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", target, err)
	}

	for _, file := range files {
		if file.modTime.After(info.ModTime()) {
			return false, nil
		}
	}

	return true, nil
}

// dayOf returns the day number encoded in a section artifact name.
func dayOf(name string) (int, bool) {
	match := sectionPattern.FindStringSubmatch(name)
	if match == nil {
		return 0, false
	}

	day, err := strconv.Atoi(match[1])

	return day, err == nil
}

func groupSections(audioDir, extension string) (map[int][]sectionFile, error) {
	entries, err := os.ReadDir(audioDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", audioDir, err)
	}

	days := make(map[int][]sectionFile)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		match := sectionPattern.FindStringSubmatch(entry.Name())
		if match == nil || match[4] != extension {
			continue
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), infoErr)
		}

		file := sectionFile{path: filepath.Join(audioDir, entry.Name()), modTime: info.ModTime()}
		file.day, _ = strconv.Atoi(match[1])
		file.section, _ = strconv.Atoi(match[2])

		if match[3] != "" {
			file.chunk, _ = strconv.Atoi(match[3])
		}

		days[file.day] = append(days[file.day], file)
	}

	for _, files := range days {
		sort.SliceStable(files, func(i, j int) bool {
			if files[i].section != files[j].section {
				return files[i].section < files[j].section
			}

			return files[i].chunk < files[j].chunk
		})
	}

	return days, nil
}
