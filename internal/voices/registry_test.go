package voices_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/lesson-audio/internal/core"
	"github.com/book-expert/lesson-audio/internal/voices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrInit_BootstrapsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "resources", "voice_config.json")

	registry, err := voices.LoadOrInit(path)
	require.NoError(t, err)
	require.FileExists(t, path)

	assert.Equal(t, []string{"da_f_voice", "da_m_voice", "en_f_voice"}, registry.Names())

	id, ok := registry.VoiceID("da_f_voice")
	require.True(t, ok)
	assert.Equal(t, "XB0fDUnXU5powFXDhCwa", id)

	settings, ok := registry.Settings("en_f_voice")
	require.True(t, ok)
	assert.InEpsilon(t, 0.5, settings.Stability, 0.0001)
	assert.InEpsilon(t, 0.75, settings.SimilarityBoost, 0.0001)

	reloaded, err := voices.LoadOrInit(path)
	require.NoError(t, err)
	assert.Equal(t, registry.Names(), reloaded.Names())
}

func TestLoadOrInit_DoesNotOverwriteExistingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voice_config.json")
	content := `{"narrator": {"id": "abc123", "settings": {"stability": 0.3, "similarity_boost": 0.9}}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	registry, err := voices.LoadOrInit(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"narrator"}, registry.Names())

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, content, string(onDisk))
}

func TestLoadOrInit_InvalidFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{not json"), 0o600))

	_, err := voices.LoadOrInit(broken)
	require.ErrorIs(t, err, core.ErrConfiguration)

	outOfRange := filepath.Join(dir, "range.json")
	require.NoError(t, os.WriteFile(outOfRange,
		[]byte(`{"v": {"id": "x", "settings": {"stability": 1.5, "similarity_boost": 0.5}}}`), 0o600))

	_, err = voices.LoadOrInit(outOfRange)
	require.ErrorIs(t, err, core.ErrConfiguration)
}

func TestResolve_UnknownVoice(t *testing.T) {
	t.Parallel()

	registry, err := voices.New(voices.Defaults())
	require.NoError(t, err)

	_, ok := registry.VoiceID("fr_m_voice")
	assert.False(t, ok)

	_, err = registry.Resolve("fr_m_voice")
	require.ErrorIs(t, err, core.ErrConfiguration)
	require.ErrorIs(t, err, voices.ErrUnknownVoice)
}
