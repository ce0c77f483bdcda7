package lessongen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/book-expert/lesson-audio/internal/core"
	"github.com/book-expert/lesson-audio/internal/fsutil"
	"github.com/book-expert/logger"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/"
	defaultMaxTokens = 4000
	lessonDirFormat  = "lesson_%s"
	scriptFileFormat = "%02d_%s.csv"
	contentTypeText  = "text"
)

// Log formats.
const (
	logFmtFoundLessons   = "Found %d lessons in %s"
	logFmtLessonStart    = "Processing lesson %s (%d/%d)"
	logFmtPromptStart    = "Generating %s version (step %d): %s"
	logFmtPromptFailed   = "Error processing %s version of lesson %s: %v"
	logFmtPromptWritten  = "Generated %s"
	logFmtRequestSummary = "Requesting %s completion for lesson %s with %d examples"
)

// Static errors.
var (
	ErrNoTextContent = errors.New("model response has no text content")
	ErrNoLessons     = errors.New("lessons config has no lessons")
)

// MessageClient sends a single non-streaming request to the Messages API.
// *anthropic.MessageService satisfies it.
type MessageClient interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// NewMessageClient returns an Anthropic Messages API client. An empty
// baseURL means the public endpoint; a nil httpClient means the default.
func NewMessageClient(baseURL, apiKey string, httpClient *http.Client) MessageClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	options := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/"),
		option.WithMaxRetries(0),
	}

	if httpClient != nil {
		options = append(options, option.WithHTTPClient(httpClient))
	}

	if apiKey != "" {
		options = append(options, option.WithAPIKey(apiKey))
	}

	service := anthropic.NewMessageService(options...)

	return &service
}

// GeneratorOptions selects the model and sampling parameters.
type GeneratorOptions struct {
	Model       string
	MaxTokens   int64
	Temperature float64
}

// PromptStep is one entry of a lesson's prompt sequence.
type PromptStep struct {
	Type        string `json:"type"`
	Order       int    `json:"order"`
	Description string `json:"description"`
}

// LessonRequest is one lesson of a lessons config. Raw keeps the original
// document, which is what the model receives.
type LessonRequest struct {
	LessonNumber   json.Number     `json:"lesson_number"`
	Title          string          `json:"title"`
	PromptSequence []PromptStep    `json:"prompt_sequence"`
	Raw            json.RawMessage `json:"-"`
}

// GenerateReport counts generated and failed scripts.
type GenerateReport struct {
	Written []string
	Failed  int
}

// Generator writes lesson scripts with a language model.
type Generator struct {
	prompts  *PromptManager
	messages MessageClient
	opts     GeneratorOptions
	log      *logger.Logger
}

// NewGenerator creates a Generator. A zero MaxTokens uses 4000.
func NewGenerator(prompts *PromptManager, messages MessageClient, opts GeneratorOptions, log *logger.Logger) *Generator {
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}

	return &Generator{prompts: prompts, messages: messages, opts: opts, log: log}
}

// GenerateLesson asks the model for the promptType rendition of lesson and
// returns the text of the first text block of the reply.
func (g *Generator) GenerateLesson(ctx context.Context, lesson LessonRequest, promptType string) (string, error) {
	systemPrompt, examples, err := g.prompts.Format(promptType)
	if err != nil {
		return "", err
	}

	config, _ := g.prompts.Get(promptType)
	g.log.Info(logFmtRequestSummary, promptType, lesson.LessonNumber, len(config.Examples))

	message, err := g.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.opts.Model),
		MaxTokens:   g.opts.MaxTokens,
		Temperature: anthropic.Float(g.opts.Temperature),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(examples),
				anthropic.NewTextBlock(string(lesson.Raw)),
			),
		},
	})
	if err != nil {
		return "", fmt.Errorf("message request failed: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == contentTypeText {
			return block.Text, nil
		}
	}

	return "", ErrNoTextContent
}

// GenerateFromConfig reads a lessons config and, for every lesson, writes one
// script per prompt step under outputDir/lesson_<number>/ in step order.
// A failing step is logged and counted; the remaining steps still run.
func (g *Generator) GenerateFromConfig(ctx context.Context, configPath, outputDir string) (GenerateReport, error) {
	var report GenerateReport

	lessons, err := LoadLessonRequests(configPath)
	if err != nil {
		return report, err
	}

	g.log.Info(logFmtFoundLessons, len(lessons), configPath)

	for index, lesson := range lessons {
		number := lesson.LessonNumber.String()
		g.log.Info(logFmtLessonStart, number, index+1, len(lessons))

		lessonDir := filepath.Join(outputDir, fmt.Sprintf(lessonDirFormat, strings.ReplaceAll(number, ".", "_")))

		steps := make([]PromptStep, len(lesson.PromptSequence))
		copy(steps, lesson.PromptSequence)
		sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })

		for _, step := range steps {
			err = ctx.Err()
			if err != nil {
				return report, fmt.Errorf("generation interrupted: %w", err)
			}

			g.log.Info(logFmtPromptStart, step.Type, step.Order, step.Description)

			content, genErr := g.GenerateLesson(ctx, lesson, step.Type)
			if genErr == nil {
				target := filepath.Join(lessonDir, fmt.Sprintf(scriptFileFormat, step.Order, fsutil.SanitizeFilename(step.Type)))
				genErr = fsutil.WriteFileAtomic(target, []byte(content))

				if genErr == nil {
					g.log.Info(logFmtPromptWritten, target)
					report.Written = append(report.Written, target)

					continue
				}
			}

			g.log.Error(logFmtPromptFailed, step.Type, number, genErr)
			report.Failed++
		}
	}

	return report, nil
}

// LoadLessonRequests parses a lessons config: {"lessons": [ ... ]}.
func LoadLessonRequests(path string) ([]LessonRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lessons config '%s': %w", path, err)
	}

	var config struct {
		Lessons []json.RawMessage `json:"lessons"`
	}

	err = json.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("%w: lessons config '%s': %v", core.ErrMalformedInput, path, err)
	}

	if len(config.Lessons) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoLessons, path)
	}

	lessons := make([]LessonRequest, 0, len(config.Lessons))

	for i, raw := range config.Lessons {
		var lesson LessonRequest

		decoder := json.NewDecoder(bytes.NewReader(raw))
		decoder.UseNumber()

		err = decoder.Decode(&lesson)
		if err != nil || lesson.LessonNumber == "" {
			return nil, fmt.Errorf("%w: lesson %d in '%s' has no usable lesson_number", core.ErrMalformedInput, i+1, path)
		}

		lesson.Raw = raw
		lessons = append(lessons, lesson)
	}

	return lessons, nil
}
