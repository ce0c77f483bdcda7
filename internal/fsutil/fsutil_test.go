package fsutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/lesson-audio/internal/fsutil"
)

// TestEnsureDir verifies that a directory is created if it doesn't exist.
func TestEnsureDir(t *testing.T) {
	t.Parallel()

	testPath := filepath.Join(t.TempDir(), "new", "dir")

	err := fsutil.EnsureDir(testPath)
	if err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}

	_, err = os.Stat(testPath)
	if os.IsNotExist(err) {
		t.Errorf("Directory %q was not created", testPath)
	}

	err = fsutil.EnsureDir(testPath)
	if err != nil {
		t.Errorf("EnsureDir failed on existing directory: %v", err)
	}
}

func TestFileExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	present := filepath.Join(dir, "present.mp3")

	err := os.WriteFile(present, []byte("x"), 0o600)
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	exists, err := fsutil.FileExists(present)
	if err != nil || !exists {
		t.Errorf("FileExists(%q) = %v, %v; want true, nil", present, exists, err)
	}

	exists, err = fsutil.FileExists(filepath.Join(dir, "absent.mp3"))
	if err != nil || exists {
		t.Errorf("FileExists(absent) = %v, %v; want false, nil", exists, err)
	}
}

// TestWriteFileAtomic verifies content replacement and that no temp files
// are left next to the target.
func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "out.mp3")

	for _, content := range []string{"first", "second"} {
		err := fsutil.WriteFileAtomic(target, []byte(content))
		if err != nil {
			t.Fatalf("WriteFileAtomic failed: %v", err)
		}

		got, err := os.ReadFile(target)
		if err != nil {
			t.Fatalf("Failed to read back %q: %v", target, err)
		}

		if string(got) != content {
			t.Errorf("Expected %q, got %q", content, got)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(target))
	if err != nil {
		t.Fatalf("Failed to list directory: %v", err)
	}

	if len(entries) != 1 {
		t.Errorf("Expected only the target file, found %d entries", len(entries))
	}
}

func TestStem(t *testing.T) {
	t.Parallel()

	if got := fsutil.Stem("/a/b/day_01_section_02.csv"); got != "day_01_section_02" {
		t.Errorf("Expected 'day_01_section_02', got %q", got)
	}
}

// TestFormatDuration verifies duration formatting logic.
func TestFormatDuration(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		expected string
		millis   int
	}{
		{name: "less than a minute", millis: 30500, expected: "30.5s"},
		{name: "exactly a minute", millis: 60000, expected: "1m 0.0s"},
		{name: "less than an hour", millis: 90500, expected: "1m 30.5s"},
		{name: "exactly an hour", millis: 3600000, expected: "1h 0m"},
		{name: "more than an hour", millis: 3670000, expected: "1h 1m"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			result := fsutil.FormatDuration(testCase.millis)
			if result != testCase.expected {
				t.Errorf("Expected %q, got %q", testCase.expected, result)
			}
		})
	}
}

// TestFormatFileSize verifies file size formatting logic.
func TestFormatFileSize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		expected string
		bytes    int64
	}{
		{name: "bytes", bytes: 500, expected: "500 B"},
		{name: "kilobytes", bytes: 2048, expected: "2.0 KB"},
		{name: "megabytes", bytes: 1572864, expected: "1.5 MB"},
		{name: "gigabytes", bytes: 2147483648, expected: "2.0 GB"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			result := fsutil.FormatFileSize(testCase.bytes)
			if result != testCase.expected {
				t.Errorf("Expected %q, got %q", testCase.expected, result)
			}
		})
	}
}

// TestIsAudioFile verifies audio file extension checks.
func TestIsAudioFile(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		filename string
		isValid  bool
	}{
		{"test.wav", true},
		{"test.MP3", true},
		{"test.flac", true},
		{"test.ogg", true},
		{"test.m4a", true},
		{"test.aac", true},
		{"test.csv", false},
		{"image.jpg", false},
	}

	for _, testCase := range testCases {
		t.Run(testCase.filename, func(t *testing.T) {
			t.Parallel()

			if result := fsutil.IsAudioFile(testCase.filename); result != testCase.isValid {
				t.Errorf("IsAudioFile(%q) = %v; want %v", testCase.filename, result, testCase.isValid)
			}
		})
	}
}

// TestExtension verifies it returns the extension without the dot.
func TestExtension(t *testing.T) {
	t.Parallel()

	result := fsutil.Extension("archive.tar.gz")
	if result != "gz" {
		t.Errorf("Expected 'gz', got %q", result)
	}
}

// TestSanitizeFilename verifies that invalid characters are removed.
func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"no changes", "valid_filename.txt", "valid_filename.txt"},
		{"replaces invalid chars", "in<va>l:id\"/\\|?*name.txt", "in_va_l_id_______name.txt"},
		{"replaces spaces", "vocabulary drill.csv", "vocabulary_drill.csv"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			result := fsutil.SanitizeFilename(testCase.input)
			if result != testCase.expected {
				t.Errorf("Expected sanitized filename %q, got %q", testCase.expected, result)
			}
		})
	}
}
