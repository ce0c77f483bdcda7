package script

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
)

// LessonItem is one spoken line of a generated lesson document.
type LessonItem struct {
	Content string   `json:"content"`
	VoiceID string   `json:"voice_id"`
	Delay   *float64 `json:"delay,omitempty"`
	Repeat  *int     `json:"repeat,omitempty"`
}

// Lesson is the JSON document produced for one lesson section.
type Lesson struct {
	LessonSection struct {
		Content []LessonItem `json:"content"`
	} `json:"lesson_section"`
}

// FromLesson converts a lesson JSON document into script entries numbered
// from 1 in document order. Missing delays mean no pause and missing repeat
// counts mean 1; the repeat count is carried on the entry, not expanded.
func FromLesson(reader io.Reader) ([]Entry, error) {
	var lesson Lesson

	err := json.NewDecoder(reader).Decode(&lesson)
	if err != nil {
		return nil, fmt.Errorf("%w: lesson document: %v", ErrMalformedLesson, err)
	}

	entries := make([]Entry, 0, len(lesson.LessonSection.Content))

	for i, item := range lesson.LessonSection.Content {
		if item.VoiceID == "" {
			return nil, fmt.Errorf("%w: item %d has no voice_id", ErrMalformedLesson, i+1)
		}

		entry := Entry{
			OrderID: i + 1,
			Voice:   item.VoiceID,
			Text:    item.Content,
			Repeat:  defaultRepeat,
		}

		if item.Delay != nil {
			if *item.Delay < 0 || math.IsNaN(*item.Delay) {
				return nil, fmt.Errorf("%w: item %d has negative delay", ErrMalformedLesson, i+1)
			}

			entry.DelayMs = int(*item.Delay)
		}

		if item.Repeat != nil {
			if *item.Repeat < 1 {
				return nil, fmt.Errorf("%w: item %d has repeat %d", ErrMalformedLesson, i+1, *item.Repeat)
			}

			entry.Repeat = *item.Repeat
		}

		entries = append(entries, entry)
	}

	return entries, nil
}
