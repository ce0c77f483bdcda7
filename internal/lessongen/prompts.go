// Package lessongen produces lesson material ahead of audio assembly: daily
// lesson plans expanded from course configuration, and lesson scripts
// written by a language model from prompt templates and worked examples.
package lessongen

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Prompt directory layout.
const (
	metadataFile     = "metadata.yaml"
	systemPromptFile = "system_prompt.md"
	examplesDir      = "examples"
	exampleGlob      = "*.json"
)

// ErrUnknownPromptType is returned for prompt types with no directory.
var ErrUnknownPromptType = errors.New("unknown prompt type")

// Example is one worked input/output pair shown to the model.
type Example struct {
	Input  json.RawMessage `json:"input"`
	Output string          `json:"output"`
}

// PromptConfig is everything loaded for one prompt type.
type PromptConfig struct {
	Name         string    `yaml:"name"`
	Description  string    `yaml:"description"`
	SystemPrompt string    `yaml:"-"`
	Examples     []Example `yaml:"-"`
}

// PromptManager holds every prompt type found under a prompts directory,
// one sub-directory per type.
type PromptManager struct {
	dir     string
	configs map[string]PromptConfig
}

// LoadPrompts reads every prompt type under dir.
func LoadPrompts(dir string) (*PromptManager, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts directory '%s': %w", dir, err)
	}

	manager := &PromptManager{dir: dir, configs: make(map[string]PromptConfig)}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		config, loadErr := loadPromptConfig(filepath.Join(dir, entry.Name()))
		if loadErr != nil {
			return nil, fmt.Errorf("prompt type '%s': %w", entry.Name(), loadErr)
		}

		manager.configs[entry.Name()] = config
	}

	return manager, nil
}

func loadPromptConfig(promptDir string) (PromptConfig, error) {
	var config PromptConfig

	metadata, err := os.ReadFile(filepath.Join(promptDir, metadataFile))
	if err != nil {
		return config, fmt.Errorf("failed to read metadata: %w", err)
	}

	err = yaml.Unmarshal(metadata, &config)
	if err != nil {
		return config, fmt.Errorf("failed to parse metadata: %w", err)
	}

	systemPrompt, err := os.ReadFile(filepath.Join(promptDir, systemPromptFile))
	if err != nil {
		return config, fmt.Errorf("failed to read system prompt: %w", err)
	}

	config.SystemPrompt = string(systemPrompt)

	exampleFiles, err := filepath.Glob(filepath.Join(promptDir, examplesDir, exampleGlob))
	if err != nil {
		return config, fmt.Errorf("failed to list examples: %w", err)
	}

	sort.Strings(exampleFiles)

	for _, exampleFile := range exampleFiles {
		data, readErr := os.ReadFile(exampleFile)
		if readErr != nil {
			return config, fmt.Errorf("failed to read example: %w", readErr)
		}

		var example Example

		readErr = json.Unmarshal(data, &example)
		if readErr != nil {
			return config, fmt.Errorf("failed to parse example '%s': %w", filepath.Base(exampleFile), readErr)
		}

		config.Examples = append(config.Examples, example)
	}

	return config, nil
}

// Get returns the configuration of promptType.
func (m *PromptManager) Get(promptType string) (PromptConfig, error) {
	config, ok := m.configs[promptType]
	if !ok {
		return PromptConfig{}, fmt.Errorf("%w: %s", ErrUnknownPromptType, promptType)
	}

	return config, nil
}

// Types lists the loaded prompt types in name order.
func (m *PromptManager) Types() []string {
	types := make([]string, 0, len(m.configs))
	for name := range m.configs {
		types = append(types, name)
	}

	sort.Strings(types)

	return types
}

// Format returns the system prompt of promptType and its examples rendered
// as <example> blocks.
func (m *PromptManager) Format(promptType string) (string, string, error) {
	config, err := m.Get(promptType)
	if err != nil {
		return "", "", err
	}

	var builder strings.Builder

	for _, example := range config.Examples {
		var input bytes.Buffer

		err = json.Indent(&input, example.Input, "", "  ")
		if err != nil {
			return "", "", fmt.Errorf("failed to format example input: %w", err)
		}

		builder.WriteString("<example>\n<INPUT_PROMPT>\n")
		builder.Write(input.Bytes())
		builder.WriteString("\n</INPUT_PROMPT>\n<IDEAL_OUTPUT>\n")
		builder.WriteString(example.Output)
		builder.WriteString("\n</IDEAL_OUTPUT>\n</example>\n\n")
	}

	return config.SystemPrompt, builder.String(), nil
}
