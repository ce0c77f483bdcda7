// Package voices maps the logical voice names used in lesson scripts to
// provider voice IDs and synthesis settings.
package voices

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/book-expert/lesson-audio/internal/core"
)

const (
	filePermissions = 0o600
	dirPermissions  = 0o750
)

// ErrUnknownVoice is returned by Resolve for names missing from the registry.
var ErrUnknownVoice = errors.New("no provider voice ID found for voice")

// Settings are the provider synthesis parameters for one voice.
type Settings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Voice is a registry entry.
type Voice struct {
	ID       string   `json:"id"`
	Settings Settings `json:"settings"`
}

// Registry is a read-only view of the voice configuration file.
type Registry struct {
	voices map[string]Voice
}

// Defaults returns the bootstrap voice set written when no file exists.
func Defaults() map[string]Voice {
	return map[string]Voice{
		"en_f_voice": {
			ID:       "pFZP5JQG7iQjIQuC4Bku",
			Settings: Settings{Stability: 0.5, SimilarityBoost: 0.75},
		},
		"da_f_voice": {
			ID:       "XB0fDUnXU5powFXDhCwa",
			Settings: Settings{Stability: 0.7, SimilarityBoost: 0.8},
		},
		"da_m_voice": {
			ID:       "IKne3meq5aSn9XLyUdCD",
			Settings: Settings{Stability: 0.7, SimilarityBoost: 0.8},
		},
	}
}

// New builds a registry from an in-memory mapping.
func New(voices map[string]Voice) (*Registry, error) {
	copied := make(map[string]Voice, len(voices))

	for name, voice := range voices {
		err := validate(name, voice)
		if err != nil {
			return nil, err
		}

		copied[name] = voice
	}

	return &Registry{voices: copied}, nil
}

// LoadOrInit reads the voice configuration at path. When the file does not
// exist it is created with Defaults and the defaults are returned.
func LoadOrInit(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		defaults := Defaults()

		saveErr := save(path, defaults)
		if saveErr != nil {
			return nil, saveErr
		}

		return New(defaults)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: failed to read voice config '%s': %v", core.ErrConfiguration, path, err)
	}

	var voices map[string]Voice

	err = json.Unmarshal(data, &voices)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse voice config '%s': %v", core.ErrConfiguration, path, err)
	}

	return New(voices)
}

// VoiceID returns the provider voice ID for a logical name.
func (r *Registry) VoiceID(name string) (string, bool) {
	voice, ok := r.voices[name]

	return voice.ID, ok
}

// Settings returns the synthesis settings for a logical name.
func (r *Registry) Settings(name string) (Settings, bool) {
	voice, ok := r.voices[name]

	return voice.Settings, ok
}

// Resolve returns the full entry or a configuration error for unknown names.
func (r *Registry) Resolve(name string) (Voice, error) {
	voice, ok := r.voices[name]
	if !ok {
		return Voice{}, fmt.Errorf("%w: %w: %q", core.ErrConfiguration, ErrUnknownVoice, name)
	}

	return voice, nil
}

// Names lists the logical names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.voices))
	for name := range r.voices {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func validate(name string, voice Voice) error {
	if voice.ID == "" {
		return fmt.Errorf("%w: voice %q has an empty id", core.ErrConfiguration, name)
	}

	for label, value := range map[string]float64{
		"stability":        voice.Settings.Stability,
		"similarity_boost": voice.Settings.SimilarityBoost,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%w: voice %q %s must be between 0 and 1, got %.2f",
				core.ErrConfiguration, name, label, value)
		}
	}

	return nil
}

func save(path string, voices map[string]Voice) error {
	err := os.MkdirAll(filepath.Dir(path), dirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create voice config directory: %w", err)
	}

	data, err := json.MarshalIndent(voices, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal voice config: %w", err)
	}

	err = os.WriteFile(path, data, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write voice config '%s': %w", path, err)
	}

	return nil
}
