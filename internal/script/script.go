// Package script reads and writes lesson scripts: the ordered, tabular list
// of spoken segments that the assembly pipeline turns into audio.
//
// The CSV layout is a header row followed by one row per segment with the
// columns order_id, voice_id, text, delay and an optional repeat. Extra
// columns are ignored.
package script

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/book-expert/lesson-audio/internal/core"
)

// Column names.
const (
	ColumnOrderID = "order_id"
	ColumnVoiceID = "voice_id"
	ColumnText    = "text"
	ColumnDelay   = "delay"
	ColumnRepeat  = "repeat"
)

const (
	defaultRepeat = 1
	utf8BOM       = "\uFEFF"
)

// Error format strings.
const (
	errFmtMissingColumn = "%w: missing required column %q"
	errFmtRow           = "%w: row %d: %s"
	errFmtRowValue      = "%w: row %d: invalid %s %q"
)

// ErrMalformedLesson is returned for lesson documents that cannot be
// converted. It wraps core.ErrMalformedInput.
var ErrMalformedLesson = fmt.Errorf("%w: lesson", core.ErrMalformedInput)

// Entry is one spoken segment of a script.
type Entry struct {
	OrderID int
	Voice   string
	Text    string
	DelayMs int
	Repeat  int
}

// ParseFile reads the script at path.
func ParseFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script '%s': %w", path, err)
	}
	defer file.Close()

	entries, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("script '%s': %w", path, err)
	}

	return entries, nil
}

// Parse reads a CSV script. An empty source yields no entries and no error.
// Every row-level problem is reported as core.ErrMalformedInput.
func Parse(reader io.Reader) ([]Entry, error) {
	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1

	header, err := csvReader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", core.ErrMalformedInput, err)
	}

	columns, err := indexColumns(header)
	if err != nil {
		return nil, err
	}

	var entries []Entry

	for rowNumber := 2; ; rowNumber++ {
		record, readErr := csvReader.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}

		if readErr != nil {
			return nil, fmt.Errorf(errFmtRow, core.ErrMalformedInput, rowNumber, readErr.Error())
		}

		if isBlank(record) {
			continue
		}

		entry, parseErr := parseRecord(record, columns, rowNumber)
		if parseErr != nil {
			return nil, parseErr
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// SortEntries orders entries by OrderID. Ties keep their input order.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].OrderID < entries[j].OrderID
	})
}

// Write emits entries as a CSV script with a header row.
func Write(writer io.Writer, entries []Entry) error {
	csvWriter := csv.NewWriter(writer)

	err := csvWriter.Write([]string{ColumnOrderID, ColumnVoiceID, ColumnText, ColumnDelay, ColumnRepeat})
	if err != nil {
		return fmt.Errorf("failed to write script header: %w", err)
	}

	for _, entry := range entries {
		err = csvWriter.Write([]string{
			strconv.Itoa(entry.OrderID),
			entry.Voice,
			entry.Text,
			strconv.Itoa(entry.DelayMs),
			strconv.Itoa(entry.Repeat),
		})
		if err != nil {
			return fmt.Errorf("failed to write script row %d: %w", entry.OrderID, err)
		}
	}

	csvWriter.Flush()

	err = csvWriter.Error()
	if err != nil {
		return fmt.Errorf("failed to flush script: %w", err)
	}

	return nil
}

type columnIndex struct {
	orderID int
	voiceID int
	text    int
	delay   int
	repeat  int
}

func indexColumns(header []string) (columnIndex, error) {
	positions := make(map[string]int, len(header))

	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, utf8BOM)))
		if _, seen := positions[name]; !seen {
			positions[name] = i
		}
	}

	columns := columnIndex{repeat: -1}

	required := []struct {
		name   string
		target *int
	}{
		{ColumnOrderID, &columns.orderID},
		{ColumnVoiceID, &columns.voiceID},
		{ColumnText, &columns.text},
		{ColumnDelay, &columns.delay},
	}

	for _, column := range required {
		position, ok := positions[column.name]
		if !ok {
			return columnIndex{}, fmt.Errorf(errFmtMissingColumn, core.ErrMalformedInput, column.name)
		}

		*column.target = position
	}

	if position, ok := positions[ColumnRepeat]; ok {
		columns.repeat = position
	}

	return columns, nil
}

func parseRecord(record []string, columns columnIndex, rowNumber int) (Entry, error) {
	field := func(position int) (string, bool) {
		if position < 0 || position >= len(record) {
			return "", false
		}

		return strings.TrimSpace(record[position]), true
	}

	rawOrder, ok := field(columns.orderID)
	if !ok {
		return Entry{}, fmt.Errorf(errFmtRow, core.ErrMalformedInput, rowNumber, "too few fields")
	}

	orderID, err := strconv.Atoi(rawOrder)
	if err != nil {
		return Entry{}, fmt.Errorf(errFmtRowValue, core.ErrMalformedInput, rowNumber, ColumnOrderID, rawOrder)
	}

	voice, _ := field(columns.voiceID)
	if voice == "" {
		return Entry{}, fmt.Errorf(errFmtRow, core.ErrMalformedInput, rowNumber, "empty voice_id")
	}

	// Text is kept verbatim; it is part of the cache fingerprint.
	if columns.text >= len(record) {
		return Entry{}, fmt.Errorf(errFmtRow, core.ErrMalformedInput, rowNumber, "too few fields")
	}

	text := record[columns.text]

	rawDelay, _ := field(columns.delay)

	delay, err := parseMillis(rawDelay)
	if err != nil {
		return Entry{}, fmt.Errorf(errFmtRowValue, core.ErrMalformedInput, rowNumber, ColumnDelay, rawDelay)
	}

	repeat := defaultRepeat

	if rawRepeat, present := field(columns.repeat); present && rawRepeat != "" {
		repeat, err = strconv.Atoi(rawRepeat)
		if err != nil || repeat < 1 {
			return Entry{}, fmt.Errorf(errFmtRowValue, core.ErrMalformedInput, rowNumber, ColumnRepeat, rawRepeat)
		}
	}

	return Entry{
		OrderID: orderID,
		Voice:   voice,
		Text:    text,
		DelayMs: delay,
		Repeat:  repeat,
	}, nil
}

// parseMillis accepts "500" as well as "500.0". Fractions are truncated and
// an empty value means no pause.
func parseMillis(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}

	if value, err := strconv.Atoi(raw); err == nil {
		if value < 0 {
			return 0, strconv.ErrRange
		}

		return value, nil
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}

	if value < 0 || math.IsNaN(value) || value > math.MaxInt32 {
		return 0, strconv.ErrRange
	}

	return int(value), nil
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}

	return true
}
