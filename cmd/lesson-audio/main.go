// Command lesson-audio builds language lesson audio from CSV scripts and
// generates the scripts themselves.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/lesson-audio/internal/config"
	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
)

// Global flag names and descriptions.
const (
	flagConfig       = "config"
	flagTestMode     = "test-mode"
	flagWorkers      = "workers"
	flagConfigDesc   = "Path to a TOML config file (defaults to the central configurator)"
	flagTestModeDesc = "Write text summaries instead of calling the speech API"
	flagWorkersDesc  = "Concurrent synthesis calls (overrides tts.workers)"
)

// Error and log messages.
const (
	errFailedToLoadConfig = "failed to load configuration: %w"
	errFailedToInitLogger = "failed to initialize logger: %w"
	errFailedToCreateDirs = "failed to create directories: %w"
	logFileNameBootstrap  = "lesson-audio-bootstrap.log"
	logFileName           = "lesson-audio.log"
	logConfigLoaded       = "Configuration loaded (codec %s, cache %s, test mode %t)"
	usageHeader           = "Usage: lesson-audio [global flags] <command> [command flags]\n\nCommands:\n"
)

var (
	// errUnknownCommand is returned for a missing or unrecognized subcommand.
	errUnknownCommand = errors.New("unknown command")
	// errScriptsFailed is returned when at least one script could not be processed.
	errScriptsFailed = errors.New("one or more scripts failed")
)

// globalFlags holds the flags that apply to every command.
type globalFlags struct {
	config   string
	testMode bool
	workers  int
}

// command is one subcommand of the CLI.
type command struct {
	name        string
	description string
	run         func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{name: "build", description: "Assemble every script under the lessons root and combine days", run: runBuild},
	{name: "assemble", description: "Assemble a single script CSV into audio", run: runAssemble},
	{name: "combine", description: "Combine section audio of one lesson into per-day files", run: runCombine},
	{name: "convert", description: "Convert a lesson JSON section into a script CSV", run: runConvert},
	{name: "dedupe", description: "Remove duplicate phrases from a phrase list CSV", run: runDedupe},
	{name: "plan", description: "Expand course content into daily plan files", run: runPlan},
	{name: "generate", description: "Generate lesson scripts with the language model", run: runGenerate},
	{name: "voices", description: "List the speech provider voices", run: runVoices},
	{name: "models", description: "List the speech provider models", run: runModels},
}

func main() {
	err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application entry point, returning an error on failure.
func run(args []string) error {
	flags, rest, err := parseGlobalFlags(args)
	if err != nil {
		return err
	}

	cmd, err := findCommand(rest)
	if err != nil {
		printUsage()

		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(flags)
	if err != nil {
		return err
	}
	defer a.Close()

	return cmd.run(ctx, a, rest[1:])
}

// parseGlobalFlags parses the flags in front of the command name.
func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var flags globalFlags

	flagSet := flag.NewFlagSet("lesson-audio", flag.ContinueOnError)
	flagSet.StringVar(&flags.config, flagConfig, "", flagConfigDesc)
	flagSet.BoolVar(&flags.testMode, flagTestMode, false, flagTestModeDesc)
	flagSet.IntVar(&flags.workers, flagWorkers, 0, flagWorkersDesc)
	flagSet.Usage = printUsage

	err := flagSet.Parse(args)
	if err != nil {
		return flags, nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	return flags, flagSet.Args(), nil
}

func findCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, fmt.Errorf("%w: none given", errUnknownCommand)
	}

	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd, nil
		}
	}

	return command{}, fmt.Errorf("%w: %s", errUnknownCommand, args[0])
}

func printUsage() {
	fmt.Fprint(os.Stderr, usageHeader)

	for _, cmd := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", cmd.name, cmd.description)
	}

	fmt.Fprintf(os.Stderr, "\nGlobal flags:\n  -%s\t%s\n  -%s\t%s\n  -%s\t%s\n",
		flagConfig, flagConfigDesc, flagTestMode, flagTestModeDesc, flagWorkers, flagWorkersDesc)
}

// setup loads .env and the configuration and opens the final logger.
func setup(flags globalFlags) (*app, error) {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	bootstrapLog, err := logger.New(os.TempDir(), logFileNameBootstrap)
	if err != nil {
		return nil, fmt.Errorf(errFailedToInitLogger, err)
	}

	defer func() {
		_ = bootstrapLog.Close()
	}()

	cfg, err := loadConfig(flags.config, bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, fmt.Errorf(errFailedToLoadConfig, err)
	}

	if flags.testMode {
		cfg.TTS.TestMode = true
	}

	if flags.workers > 0 {
		cfg.TTS.Workers = flags.workers

		err = cfg.Validate()
		if err != nil {
			return nil, err
		}
	}

	err = cfg.EnsureDirectories()
	if err != nil {
		return nil, fmt.Errorf(errFailedToCreateDirs, err)
	}

	log, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return nil, fmt.Errorf(errFailedToInitLogger, err)
	}

	log.Info(logConfigLoaded, cfg.Audio.Codec, cfg.Cache.Backend, cfg.TTS.TestMode)

	return &app{cfg: cfg, log: log}, nil
}

func loadConfig(path string, log *logger.Logger) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}

	return config.Load(log)
}
