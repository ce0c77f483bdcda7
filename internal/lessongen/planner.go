package lessongen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/book-expert/lesson-audio/internal/core"
	"github.com/book-expert/lesson-audio/internal/fsutil"
)

const (
	partDirFormat   = "part_%02d"
	lessonDirFmt    = "lesson_%02d"
	dailyPlansDir   = "daily_plans"
	planFileFormat  = "%02d_%s.json"
	lessonNumberSep = "."
)

// CourseContent is the lessons content config: every lesson with its full
// list of target phrases.
type CourseContent struct {
	Lessons []LessonContent `json:"lessons"`
}

// LessonContent is one lesson of the course.
type LessonContent struct {
	LessonNumber  json.Number       `json:"lesson_number"`
	Title         string            `json:"title"`
	TargetPhrases []json.RawMessage `json:"target_phrases"`
}

// WeeklyStructure is the weekly structure config: which phrases each day of
// the week drills and recaps.
type WeeklyStructure struct {
	Lessons []DayStructure `json:"lessons"`
}

// DayStructure describes one day. Phrase indices are 1-based.
type DayStructure struct {
	Day             string          `json:"day"`
	TargetPhrases   []int           `json:"target_phrases"`
	RecapPhrases    []int           `json:"recap_phrases"`
	LessonStructure json.RawMessage `json:"lesson_structure"`
}

// DailyPlan is the document written for one lesson day.
type DailyPlan struct {
	LessonNumber    json.Number       `json:"lesson_number"`
	Title           string            `json:"title"`
	Day             string            `json:"day"`
	RecapPhrases    []json.RawMessage `json:"recap_phrases"`
	TargetPhrases   []json.RawMessage `json:"target_phrases"`
	LessonStructure json.RawMessage   `json:"lesson_structure"`
}

// LoadCourseContent reads a lessons content config.
func LoadCourseContent(path string) (CourseContent, error) {
	var content CourseContent

	err := readJSON(path, &content)

	return content, err
}

// LoadWeeklyStructure reads a weekly structure config.
func LoadWeeklyStructure(path string) (WeeklyStructure, error) {
	var structure WeeklyStructure

	err := readJSON(path, &structure)

	return structure, err
}

// PlanWeek writes one daily plan per lesson and day to
// baseDir/part_PP/lesson_LL/daily_plans/<ii>_<day>.json, where lesson number
// P.L gives the part and lesson. It returns the written paths.
func PlanWeek(content CourseContent, structure WeeklyStructure, baseDir string) ([]string, error) {
	var written []string

	for _, lesson := range content.Lessons {
		part, number, err := ParseLessonNumber(lesson.LessonNumber.String())
		if err != nil {
			return written, err
		}

		planDir := filepath.Join(baseDir, fmt.Sprintf(partDirFormat, part), fmt.Sprintf(lessonDirFmt, number), dailyPlansDir)

		for dayIndex, day := range structure.Lessons {
			targets, pickErr := pickPhrases(lesson, day.TargetPhrases)
			if pickErr != nil {
				return written, pickErr
			}

			recaps, pickErr := pickPhrases(lesson, day.RecapPhrases)
			if pickErr != nil {
				return written, pickErr
			}

			plan := DailyPlan{
				LessonNumber:    lesson.LessonNumber,
				Title:           lesson.Title,
				Day:             day.Day,
				RecapPhrases:    recaps,
				TargetPhrases:   targets,
				LessonStructure: day.LessonStructure,
			}

			data, encodeErr := encodePlan(plan)
			if encodeErr != nil {
				return written, encodeErr
			}

			target := filepath.Join(planDir, fmt.Sprintf(planFileFormat, dayIndex+1, strings.ToLower(day.Day)))

			writeErr := fsutil.WriteFileAtomic(target, data)
			if writeErr != nil {
				return written, writeErr
			}

			written = append(written, target)
		}
	}

	return written, nil
}

// ParseLessonNumber splits "P.L" into its part and lesson numbers.
func ParseLessonNumber(lessonNumber string) (int, int, error) {
	partText, lessonText, found := strings.Cut(lessonNumber, lessonNumberSep)
	if !found {
		return 0, 0, fmt.Errorf("%w: lesson number %q is not <part>.<lesson>", core.ErrMalformedInput, lessonNumber)
	}

	part, partErr := strconv.Atoi(partText)
	lesson, lessonErr := strconv.Atoi(lessonText)

	if partErr != nil || lessonErr != nil {
		return 0, 0, fmt.Errorf("%w: lesson number %q is not <part>.<lesson>", core.ErrMalformedInput, lessonNumber)
	}

	return part, lesson, nil
}

func pickPhrases(lesson LessonContent, indices []int) ([]json.RawMessage, error) {
	phrases := make([]json.RawMessage, 0, len(indices))

	for _, index := range indices {
		if index < 1 || index > len(lesson.TargetPhrases) {
			return nil, fmt.Errorf("%w: lesson %s has no phrase %d", core.ErrMalformedInput, lesson.LessonNumber, index)
		}

		phrases = append(phrases, lesson.TargetPhrases[index-1])
	}

	return phrases, nil
}

func encodePlan(plan DailyPlan) ([]byte, error) {
	var buf bytes.Buffer

	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(plan)
	if err != nil {
		return nil, fmt.Errorf("failed to encode daily plan: %w", err)
	}

	return buf.Bytes(), nil
}

func readJSON(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read '%s': %w", path, err)
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	err = decoder.Decode(target)
	if err != nil {
		return fmt.Errorf("%w: '%s': %v", core.ErrMalformedInput, path, err)
	}

	return nil
}
