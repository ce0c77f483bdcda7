package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/book-expert/lesson-audio/internal/fsutil"
	"github.com/book-expert/lesson-audio/internal/lessongen"
	"github.com/book-expert/lesson-audio/internal/script"
	"github.com/book-expert/lesson-audio/internal/walker"
)

// Command flag names and descriptions.
const (
	flagRoot          = "root"
	flagPart          = "part"
	flagLesson        = "lesson"
	flagScript        = "script"
	flagOutput        = "output"
	flagInput         = "input"
	flagContent       = "content"
	flagStructure     = "structure"
	flagLessons       = "lessons"
	flagLanguage      = "language"
	flagRootDesc      = "Lessons root directory (defaults to paths.lessons_root)"
	flagPartDesc      = "Only process this part (number or part_NN directory name)"
	flagLessonDesc    = "Only process this lesson (number or lesson_NN directory name)"
	flagScriptDesc    = "Script CSV to assemble"
	flagOutputDesc    = "Output path"
	flagInputDesc     = "Lesson JSON document to convert"
	flagPhrasesDesc   = "Phrase list CSV to clean"
	flagContentDesc   = "Lessons content JSON config"
	flagStructureDesc = "Weekly structure JSON config"
	flagLessonsDesc   = "Lessons JSON config with prompt sequences"
	flagLanguageDesc  = "Only list voices supporting this ISO language code"
	flagLessonDirDesc = "Lesson directory holding audio/"
	defaultRoot       = "lessons"
)

// Output messages.
const (
	msgBuildReport    = "Processed %d, skipped %d, empty %d, failed %d, combined %d, combine failed %d\n"
	msgSkipped        = "Skipped %s: output already exists\n"
	msgEmpty          = "Nothing to do: %s has no entries\n"
	msgWritten        = "Wrote %s\n"
	msgAssembled      = "Assembled %s (%s)\n"
	msgCombined       = "Combined %d day(s) in %s\n"
	msgConverted      = "Converted %d entries to %s\n"
	msgDeduped        = "Kept %d of %d phrases (%d exact duplicates, %d phrase duplicates) in %s\n"
	msgUnknownLevels  = "Warning: unknown language levels sorted last: %s\n"
	msgGenerated      = "Generated %d script(s), %d failed\n"
	msgVoiceLine      = "%-24s %-22s %s\n"
	msgModelLine      = "%-28s %-40s %d languages\n"
	errMissingFlag    = "missing required flag -%s"
	errFmtGenFailures = "%w: %d generation step(s) failed"
	errFmtCombineFail = "%w: %d day(s) could not be combined"
)

var errMissingArgument = errors.New("missing argument")

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

func requireFlag(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: "+errMissingFlag, errMissingArgument, name)
	}

	return nil
}

// dirName turns "3" into "part_03" and leaves directory names untouched.
func dirName(prefix, value string) string {
	number, err := strconv.Atoi(value)
	if err != nil {
		return value
	}

	return fmt.Sprintf("%s%02d", prefix, number)
}

func runBuild(ctx context.Context, a *app, args []string) error {
	flagSet := newFlagSet("build")
	root := flagSet.String(flagRoot, a.cfg.Paths.LessonsRoot, flagRootDesc)
	part := flagSet.String(flagPart, "", flagPartDesc)
	lesson := flagSet.String(flagLesson, "", flagLessonDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return err
	}

	if *root == "" {
		*root = defaultRoot
	}

	if *part != "" {
		*part = dirName(walker.PartPrefix, *part)
	}

	if *lesson != "" {
		*lesson = dirName(walker.LessonPrefix, *lesson)
	}

	assembler, err := a.newAssembler()
	if err != nil {
		return err
	}

	report, err := walker.New(assembler, a.log).Walk(ctx, *root, *part, *lesson)

	fmt.Printf(msgBuildReport, report.Processed, report.Skipped, report.Empty, report.Failed, report.Combined, report.CombineFailed)

	if err != nil {
		return err
	}

	if !report.OK() {
		return errScriptsFailed
	}

	return nil
}

func runAssemble(ctx context.Context, a *app, args []string) error {
	flagSet := newFlagSet("assemble")
	scriptPath := flagSet.String(flagScript, "", flagScriptDesc)
	outputPath := flagSet.String(flagOutput, "", flagOutputDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return err
	}

	err = errors.Join(requireFlag(flagScript, *scriptPath), requireFlag(flagOutput, *outputPath))
	if err != nil {
		return err
	}

	assembler, err := a.newAssembler()
	if err != nil {
		return err
	}

	result, err := assembler.AssembleFile(ctx, *scriptPath, *outputPath)
	if err != nil {
		a.log.Error("Failed to assemble %s: %v", *scriptPath, err)

		return err
	}

	switch {
	case result.Skipped:
		fmt.Printf(msgSkipped, *outputPath)
	case result.Empty:
		fmt.Printf(msgEmpty, *scriptPath)
	case assembler.TestMode():
		for _, artifact := range result.Artifacts {
			fmt.Printf(msgWritten, artifact)
		}
	default:
		for _, artifact := range result.Artifacts {
			fmt.Printf(msgAssembled, artifact, fsutil.FormatDuration(result.DurationMs))
		}
	}

	return nil
}

func runCombine(ctx context.Context, a *app, args []string) error {
	flagSet := newFlagSet("combine")
	lessonDir := flagSet.String(flagLesson, "", flagLessonDirDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return err
	}

	err = requireFlag(flagLesson, *lessonDir)
	if err != nil {
		return err
	}

	assembler, err := a.newAssembler()
	if err != nil {
		return err
	}

	report, err := walker.New(assembler, a.log).CombineDays(ctx, *lessonDir, nil)
	if err != nil {
		return err
	}

	fmt.Printf(msgCombined, report.Combined, filepath.Join(*lessonDir, walker.CombinedDir))

	if !report.OK() {
		return fmt.Errorf(errFmtCombineFail, errScriptsFailed, report.CombineFailed)
	}

	return nil
}

func runConvert(_ context.Context, a *app, args []string) error {
	flagSet := newFlagSet("convert")
	inputPath := flagSet.String(flagInput, "", flagInputDesc)
	outputPath := flagSet.String(flagOutput, "", flagOutputDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return err
	}

	err = errors.Join(requireFlag(flagInput, *inputPath), requireFlag(flagOutput, *outputPath))
	if err != nil {
		return err
	}

	file, err := os.Open(*inputPath)
	if err != nil {
		return fmt.Errorf("failed to open lesson '%s': %w", *inputPath, err)
	}
	defer file.Close()

	entries, err := script.FromLesson(file)
	if err != nil {
		return fmt.Errorf("lesson '%s': %w", *inputPath, err)
	}

	var buf bytes.Buffer

	err = script.Write(&buf, entries)
	if err != nil {
		return err
	}

	err = fsutil.WriteFileAtomic(*outputPath, buf.Bytes())
	if err != nil {
		return err
	}

	a.log.Info("Converted %s to %s", *inputPath, *outputPath)
	fmt.Printf(msgConverted, len(entries), *outputPath)

	return nil
}

func runDedupe(_ context.Context, a *app, args []string) error {
	flagSet := newFlagSet("dedupe")
	inputPath := flagSet.String(flagInput, "", flagPhrasesDesc)
	outputPath := flagSet.String(flagOutput, "", flagOutputDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return err
	}

	err = errors.Join(requireFlag(flagInput, *inputPath), requireFlag(flagOutput, *outputPath))
	if err != nil {
		return err
	}

	file, err := os.Open(*inputPath)
	if err != nil {
		return fmt.Errorf("failed to open phrase list '%s': %w", *inputPath, err)
	}
	defer file.Close()

	var buf bytes.Buffer

	stats, err := lessongen.CleanPhrases(file, &buf)
	if err != nil {
		return fmt.Errorf("phrase list '%s': %w", *inputPath, err)
	}

	err = fsutil.WriteFileAtomic(*outputPath, buf.Bytes())
	if err != nil {
		return err
	}

	if len(stats.UnknownLevels) > 0 {
		a.log.Warn("Unknown language levels in %s: %v", *inputPath, stats.UnknownLevels)
		fmt.Printf(msgUnknownLevels, strings.Join(stats.UnknownLevels, ", "))
	}

	a.log.Info("Cleaned %s into %s", *inputPath, *outputPath)
	fmt.Printf(msgDeduped, stats.Written, stats.Read, stats.ExactDuplicates, stats.PhraseDupes, *outputPath)

	return nil
}

func runPlan(_ context.Context, a *app, args []string) error {
	flagSet := newFlagSet("plan")
	contentPath := flagSet.String(flagContent, "", flagContentDesc)
	structurePath := flagSet.String(flagStructure, "", flagStructureDesc)
	outputDir := flagSet.String(flagOutput, a.cfg.Paths.LessonsRoot, flagOutputDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return err
	}

	if *outputDir == "" {
		*outputDir = defaultRoot
	}

	err = errors.Join(requireFlag(flagContent, *contentPath), requireFlag(flagStructure, *structurePath))
	if err != nil {
		return err
	}

	content, err := lessongen.LoadCourseContent(*contentPath)
	if err != nil {
		return err
	}

	structure, err := lessongen.LoadWeeklyStructure(*structurePath)
	if err != nil {
		return err
	}

	written, err := lessongen.PlanWeek(content, structure, *outputDir)
	if err != nil {
		return err
	}

	for _, path := range written {
		a.log.Info("Wrote daily plan %s", path)
		fmt.Printf(msgWritten, path)
	}

	return nil
}

func runGenerate(ctx context.Context, a *app, args []string) error {
	flagSet := newFlagSet("generate")
	lessonsPath := flagSet.String(flagLessons, "", flagLessonsDesc)
	outputDir := flagSet.String(flagOutput, "", flagOutputDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return err
	}

	err = errors.Join(requireFlag(flagLessons, *lessonsPath), requireFlag(flagOutput, *outputDir))
	if err != nil {
		return err
	}

	generator, err := a.newGenerator()
	if err != nil {
		return err
	}

	report, err := generator.GenerateFromConfig(ctx, *lessonsPath, *outputDir)

	fmt.Printf(msgGenerated, len(report.Written), report.Failed)

	if err != nil {
		return err
	}

	if report.Failed > 0 {
		return fmt.Errorf(errFmtGenFailures, errScriptsFailed, report.Failed)
	}

	return nil
}

func runVoices(ctx context.Context, a *app, args []string) error {
	flagSet := newFlagSet("voices")
	language := flagSet.String(flagLanguage, "", flagLanguageDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return err
	}

	client, err := a.newSpeechClient()
	if err != nil {
		return err
	}

	voiceList, err := client.ListVoices(ctx)
	if err != nil {
		return err
	}

	for _, voice := range voiceList {
		if *language != "" && !voice.SupportsLanguage(*language) {
			continue
		}

		fmt.Printf(msgVoiceLine, voice.VoiceID, voice.Name, strings.TrimSpace(voice.Labels["accent"]+" "+voice.Labels["gender"]))
	}

	return nil
}

func runModels(ctx context.Context, a *app, args []string) error {
	err := newFlagSet("models").Parse(args)
	if err != nil {
		return err
	}

	client, err := a.newSpeechClient()
	if err != nil {
		return err
	}

	models, err := client.ListModels(ctx)
	if err != nil {
		return err
	}

	for _, model := range models {
		fmt.Printf(msgModelLine, model.ModelID, model.Name, len(model.Languages))
	}

	return nil
}
