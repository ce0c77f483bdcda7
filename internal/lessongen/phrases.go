package lessongen

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/book-expert/lesson-audio/internal/core"
)

// Phrase list columns.
const (
	ColumnPhrase  = "danishPhrase"
	ColumnLevel   = "languageLevel"
	ColumnContext = "situationalContext"
	unknownLevel  = 999
)

// levelRank orders CEFR levels; unknown levels sort last.
var levelRank = map[string]int{"A1": 0, "A2": 1, "B1": 2, "B2": 3}

// PhraseStats counts what CleanPhrases removed.
type PhraseStats struct {
	Read            int
	ExactDuplicates int
	PhraseDupes     int
	Written         int
	UnknownLevels   []string
}

type phraseRow struct {
	fields []string
	rank   int
}

// CleanPhrases reads a phrase list CSV, drops exact duplicate rows, keeps
// only the lowest-level row of every phrase and writes the rest sorted by
// level, situational context and phrase. Every output field is quoted.
func CleanPhrases(reader io.Reader, writer io.Writer) (PhraseStats, error) {
	var stats PhraseStats

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1

	header, err := csvReader.Read()
	if errors.Is(err, io.EOF) {
		return stats, fmt.Errorf("%w: phrase list is empty", core.ErrMalformedInput)
	}

	if err != nil {
		return stats, fmt.Errorf("%w: phrase list header: %v", core.ErrMalformedInput, err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))] = i
	}

	for _, required := range []string{ColumnPhrase, ColumnLevel, ColumnContext} {
		if _, ok := columns[required]; !ok {
			return stats, fmt.Errorf("%w: phrase list has no %s column", core.ErrMalformedInput, required)
		}
	}

	seenRows := make(map[string]bool)
	best := make(map[string]phraseRow)
	unknown := make(map[string]bool)

	for {
		record, readErr := csvReader.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}

		if readErr != nil {
			return stats, fmt.Errorf("%w: phrase list row %d: %v", core.ErrMalformedInput, stats.Read+2, readErr)
		}

		stats.Read++

		if len(record) < len(header) {
			return stats, fmt.Errorf("%w: phrase list row %d has %d fields, want %d",
				core.ErrMalformedInput, stats.Read+1, len(record), len(header))
		}

		rowKey := strings.Join(record, "\x00")
		if seenRows[rowKey] {
			stats.ExactDuplicates++

			continue
		}

		seenRows[rowKey] = true

		level := record[columns[ColumnLevel]]

		rank, known := levelRank[level]
		if !known {
			rank = unknownLevel
			unknown[level] = true
		}

		row := phraseRow{fields: record, rank: rank}
		phrase := record[columns[ColumnPhrase]]

		current, exists := best[phrase]

		switch {
		case !exists:
			best[phrase] = row
		case row.rank < current.rank:
			best[phrase] = row
			stats.PhraseDupes++
		default:
			stats.PhraseDupes++
		}
	}

	rows := make([]phraseRow, 0, len(best))
	for _, row := range best {
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		left, right := rows[i], rows[j]

		if left.rank != right.rank {
			return left.rank < right.rank
		}

		leftContext, rightContext := left.fields[columns[ColumnContext]], right.fields[columns[ColumnContext]]
		if leftContext != rightContext {
			return leftContext < rightContext
		}

		return left.fields[columns[ColumnPhrase]] < right.fields[columns[ColumnPhrase]]
	})

	err = writeQuoted(writer, header)
	if err != nil {
		return stats, err
	}

	for _, row := range rows {
		err = writeQuoted(writer, row.fields[:len(header)])
		if err != nil {
			return stats, err
		}
	}

	stats.Written = len(rows)

	for level := range unknown {
		stats.UnknownLevels = append(stats.UnknownLevels, level)
	}

	sort.Strings(stats.UnknownLevels)

	return stats, nil
}

// writeQuoted writes one CSV record with every field quoted.
func writeQuoted(writer io.Writer, fields []string) error {
	quoted := make([]string, len(fields))
	for i, field := range fields {
		quoted[i] = `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
	}

	_, err := io.WriteString(writer, strings.Join(quoted, ",")+"\n")
	if err != nil {
		return fmt.Errorf("failed to write phrase list: %w", err)
	}

	return nil
}
