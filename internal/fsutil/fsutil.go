// Package fsutil provides the file and path helpers shared by the lesson audio
// builder: atomic writes, directory creation and human-readable formatting for
// log lines.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Common path constants.
const (
	defaultDirPermissions  = 0o750
	defaultFilePermissions = 0o644
	tempPattern            = ".partial-*"
	dot                    = "."
	invalidCharReplacement = "_"
)

// Data size constants.
const (
	byteUnit = 1
	kilobyte = byteUnit * 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

// Time and size formatting constants.
const (
	millisInSecond  = 1000
	secondsInMinute = 60
	secondsInHour   = 3600
	formatSeconds   = "%.1fs"
	formatMinutes   = "%dm %.1fs"
	formatHours     = "%dh %dm"
	formatGB        = "%.1f GB"
	formatMB        = "%.1f MB"
	formatKB        = "%.1f KB"
	formatBytes     = "%d B"
)

// File extension constants.
const (
	extAAC  = ".aac"
	extFLAC = ".flac"
	extM4A  = ".m4a"
	extMP3  = ".mp3"
	extOGG  = ".ogg"
	extWAV  = ".wav"
)

// Error format string constants.
const (
	errFmtFailedToCreateDir = "failed to create directory %s: %w"
	errFmtFailedToStat      = "failed to stat %s: %w"
	errFmtFailedToWrite     = "failed to write %s: %w"
)

// EnsureDir ensures a directory exists at the given path, creating it and its
// parents if it doesn't.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if errors.Is(statErr, fs.ErrNotExist) {
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
		}
	}

	return nil
}

// FileExists reports whether a regular file or directory exists at path.
// Errors other than "not found" are returned to the caller.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return false, fmt.Errorf(errFmtFailedToStat, path, err)
}

// WriteFileAtomic writes data to path through a sibling temp file and a
// rename, so path either holds the previous content or all of data.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	err := EnsureDir(dir)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf(errFmtFailedToWrite, path, err)
	}

	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()

	err = errors.Join(writeErr, closeErr)
	if err == nil {
		err = os.Chmod(tmpName, defaultFilePermissions)
	}

	if err == nil {
		err = os.Rename(tmpName, path)
	}

	if err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf(errFmtFailedToWrite, path, err)
	}

	return nil
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)

	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FormatDuration formats a duration given in milliseconds as a human-readable
// string (e.g., "1h 15m", "5m 30.5s", "45.2s").
func FormatDuration(millis int) string {
	seconds := float64(millis) / millisInSecond

	if seconds < secondsInMinute {
		return fmt.Sprintf(formatSeconds, seconds)
	}

	if seconds < secondsInHour {
		minutes := int(seconds / secondsInMinute)
		remainingSeconds := seconds - float64(minutes*secondsInMinute)

		return fmt.Sprintf(formatMinutes, minutes, remainingSeconds)
	}

	hours := int(seconds / secondsInHour)
	remainingSeconds := seconds - float64(hours*secondsInHour)
	remainingMinutes := int(remainingSeconds / secondsInMinute)

	return fmt.Sprintf(formatHours, hours, remainingMinutes)
}

// FormatFileSize formats a file size in a human-readable string (e.g., "1.2 GB", "500.5
// MB").
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf(formatGB, float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}

// IsAudioFile checks if a filename has a common audio file extension.
func IsAudioFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case extWAV, extMP3, extFLAC, extOGG, extM4A, extAAC:
		return true
	default:
		return false
	}
}

// Extension returns the file extension without the leading dot.
func Extension(filename string) string {
	return strings.TrimPrefix(filepath.Ext(filename), dot)
}

// SanitizeFilename replaces characters that are invalid in most filesystems.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
		" ", invalidCharReplacement,
	)

	return replacer.Replace(filename)
}
