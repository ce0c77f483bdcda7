package walker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/lesson-audio/internal/audio"
	"github.com/book-expert/lesson-audio/internal/cache"
	"github.com/book-expert/lesson-audio/internal/core"
	"github.com/book-expert/lesson-audio/internal/objectstore"
	"github.com/book-expert/lesson-audio/internal/pipeline"
	"github.com/book-expert/lesson-audio/internal/tts"
	"github.com/book-expert/lesson-audio/internal/voices"
	"github.com/book-expert/lesson-audio/internal/walker"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFormat = audio.Format{SampleRate: 100, Channels: 1}

// levelClient speaks every text as a 5-frame tone whose level is the
// length of the text.
type levelClient struct {
	mu    sync.Mutex
	calls int
}

func (c *levelClient) GenerateSpeech(ctx context.Context, req tts.SpeechRequest) ([]byte, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if req.Text == "fail" {
		return nil, errors.New("service unavailable")
	}

	return audio.NewWAVCodec(testFormat).Encode(ctx, toneTrack(5, int16(len(req.Text))))
}

func (c *levelClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls
}

func toneTrack(frames int, level int16) *audio.Track {
	samples := make([]int16, frames)
	for i := range samples {
		samples[i] = level
	}

	track, _ := audio.NewTrackFromSamples(testFormat, samples)

	return track
}

func newWalker(t *testing.T, client *levelClient, testMode bool) *walker.Walker {
	t.Helper()

	dir := t.TempDir()

	log, err := logger.New(dir, "walker-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	registry, err := voices.New(voices.Defaults())
	require.NoError(t, err)

	store, err := objectstore.NewFileStore(filepath.Join(dir, "audio_cache"))
	require.NoError(t, err)

	synth := tts.NewSynthesizer(tts.SynthesizerOptions{
		Registry: registry,
		Cache:    cache.New(store, log),
		Client:   client,
		TestMode: testMode,
	}, log)

	assembler, err := pipeline.New(synth, audio.NewWAVCodec(testFormat), pipeline.Options{}, log)
	require.NoError(t, err)

	return walker.New(assembler, log)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

const header = "order_id,voice_id,text,delay\n"

func buildTree(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	transcripts := filepath.Join(root, "part_01", "lesson_01", "daily_transcripts")

	writeFile(t, filepath.Join(transcripts, "day_01_section_01.csv"), header+"1,da_f_voice,a,0\n")
	writeFile(t, filepath.Join(transcripts, "day_01_section_02.csv"), header+"1,da_f_voice,bb,0\n")
	writeFile(t, filepath.Join(transcripts, "day_02_section_01.csv"), header+"1,da_m_voice,ccc,0\n")
	writeFile(t, filepath.Join(transcripts, "day_02_section_02.csv"), header+"1,da_m_voice,fail,0\n")
	writeFile(t, filepath.Join(transcripts, "day_03_section_01.csv"), header)
	writeFile(t, filepath.Join(transcripts, "notes.txt"), "not a script")

	require.NoError(t, os.MkdirAll(filepath.Join(root, "part_01", "lesson_02"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "part_02", "lesson_01", "daily_transcripts"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "resources"), 0o750))

	return root
}

func decodeFile(t *testing.T, path string) []int16 {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	track, err := audio.NewWAVCodec(testFormat).Decode(context.Background(), data)
	require.NoError(t, err)

	return track.Samples()
}

func TestWalk_ProcessesTreeAndCombinesDays(t *testing.T) {
	t.Parallel()

	client := &levelClient{}
	w := newWalker(t, client, false)
	root := buildTree(t)
	ctx := context.Background()

	report, err := w.Walk(ctx, root, "", "")
	require.NoError(t, err)
	assert.Equal(t, walker.Report{Processed: 3, Empty: 1, Failed: 1, Combined: 1}, report)
	assert.False(t, report.OK())

	lessonDir := filepath.Join(root, "part_01", "lesson_01")
	assert.FileExists(t, filepath.Join(lessonDir, "audio", "day_01_section_01.wav"))
	assert.NoFileExists(t, filepath.Join(lessonDir, "audio", "day_02_section_02.wav"))

	dayOne := decodeFile(t, filepath.Join(lessonDir, "combined_audio", "day_01_combined.wav"))
	assert.Equal(t, append(toneTrack(5, 1).Samples(), toneTrack(5, 2).Samples()...), dayOne)

	assert.NoFileExists(t, filepath.Join(lessonDir, "combined_audio", "day_02_combined.wav"),
		"a day with a failed section is not combined")

	callsAfterFirstRun := client.count()

	report, err = w.Walk(ctx, root, "", "")
	require.NoError(t, err)
	assert.Equal(t, walker.Report{Skipped: 3, Empty: 1, Failed: 1}, report)
	assert.Equal(t, callsAfterFirstRun+1, client.count(), "only the failing script calls out again")
}

func TestWalk_Filters(t *testing.T) {
	t.Parallel()

	client := &levelClient{}
	w := newWalker(t, client, false)
	root := buildTree(t)
	ctx := context.Background()

	report, err := w.Walk(ctx, root, "part_09", "")
	require.NoError(t, err)
	assert.Equal(t, walker.Report{}, report)

	report, err = w.Walk(ctx, root, "part_01", "lesson_02")
	require.NoError(t, err)
	assert.Equal(t, walker.Report{}, report)
	assert.Equal(t, 0, client.count())

	report, err = w.Walk(ctx, root, "part_01", "lesson_01")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
}

func TestWalk_ConfigurationErrorStopsWalk(t *testing.T) {
	t.Parallel()

	client := &levelClient{}
	w := newWalker(t, client, false)
	root := t.TempDir()
	transcripts := filepath.Join(root, "part_01", "lesson_01", "daily_transcripts")

	writeFile(t, filepath.Join(transcripts, "day_01_section_01.csv"), header+"1,xx_voice,a,0\n")
	writeFile(t, filepath.Join(transcripts, "day_01_section_02.csv"), header+"1,da_f_voice,b,0\n")

	_, err := w.Walk(context.Background(), root, "", "")
	require.ErrorIs(t, err, core.ErrConfiguration)
	assert.Equal(t, 0, client.count())
	assert.NoDirExists(t, filepath.Join(root, "part_01", "lesson_01", "audio"))
}

func TestWalk_MissingRoot(t *testing.T) {
	t.Parallel()

	w := newWalker(t, &levelClient{}, false)

	_, err := w.Walk(context.Background(), filepath.Join(t.TempDir(), "missing"), "", "")
	require.ErrorIs(t, err, walker.ErrRootNotFound)
}

func TestWalk_TestModeWritesSummariesOnly(t *testing.T) {
	t.Parallel()

	client := &levelClient{}
	w := newWalker(t, client, true)
	root := buildTree(t)

	report, err := w.Walk(context.Background(), root, "part_01", "lesson_01")
	require.NoError(t, err)
	assert.Equal(t, 4, report.Processed)
	assert.Equal(t, 0, report.Combined)
	assert.Equal(t, 0, client.count())

	lessonDir := filepath.Join(root, "part_01", "lesson_01")
	assert.FileExists(t, filepath.Join(lessonDir, "audio", "day_01_section_01_summary.txt"))
	assert.NoDirExists(t, filepath.Join(lessonDir, "combined_audio"))
}

func TestCombineDays_OrdersSectionsAndChunks(t *testing.T) {
	t.Parallel()

	w := newWalker(t, &levelClient{}, false)
	lessonDir := t.TempDir()
	audioDir := filepath.Join(lessonDir, "audio")
	codec := audio.NewWAVCodec(testFormat)
	ctx := context.Background()

	files := map[string]int16{
		"day_01_section_02.wav":          4,
		"day_01_section_01_chunk_02.wav": 2,
		"day_01_section_01_chunk_01.wav": 1,
		"day_01_section_10.wav":          9,
		"day_03_section_01.wav":          7,
	}

	for name, level := range files {
		encoded, err := codec.Encode(ctx, toneTrack(2, level))
		require.NoError(t, err)
		writeFile(t, filepath.Join(audioDir, name), string(encoded))
	}

	writeFile(t, filepath.Join(audioDir, "day_01_section_01_summary.txt"), "ignored")
	writeFile(t, filepath.Join(lessonDir, "combined_audio", "day_03_combined.wav"), "existing")

	existingPath := filepath.Join(lessonDir, "combined_audio", "day_03_combined.wav")
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(existingPath, future, future))

	report, err := w.CombineDays(ctx, lessonDir, nil)
	require.NoError(t, err)
	assert.Equal(t, walker.Report{Combined: 1}, report)

	dayOne := decodeFile(t, filepath.Join(lessonDir, "combined_audio", "day_01_combined.wav"))
	assert.Equal(t, []int16{1, 1, 2, 2, 4, 4, 9, 9}, dayOne)

	existing, err := os.ReadFile(filepath.Join(lessonDir, "combined_audio", "day_03_combined.wav"))
	require.NoError(t, err)
	assert.Equal(t, "existing", string(existing))
}

func TestCombineDays_NoAudioDirectory(t *testing.T) {
	t.Parallel()

	w := newWalker(t, &levelClient{}, false)

	report, err := w.CombineDays(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, walker.Report{}, report)
}

func TestWalk_FixedSectionCompletesItsDay(t *testing.T) {
	t.Parallel()

	client := &levelClient{}
	w := newWalker(t, client, false)
	root := buildTree(t)
	ctx := context.Background()
	lessonDir := filepath.Join(root, "part_01", "lesson_01")

	_, err := w.Walk(ctx, root, "part_01", "lesson_01")
	require.NoError(t, err)

	writeFile(t, filepath.Join(lessonDir, "daily_transcripts", "day_02_section_02.csv"), header+"1,da_m_voice,dddd,0\n")

	report, err := w.Walk(ctx, root, "part_01", "lesson_01")
	require.NoError(t, err)
	assert.Equal(t, walker.Report{Processed: 1, Skipped: 3, Empty: 1, Combined: 1}, report)
	assert.True(t, report.OK())

	dayTwo := decodeFile(t, filepath.Join(lessonDir, "combined_audio", "day_02_combined.wav"))
	assert.Equal(t, append(toneTrack(5, 3).Samples(), toneTrack(5, 4).Samples()...), dayTwo)
}

func TestWalk_CombineFailureDoesNotStopLaterLessons(t *testing.T) {
	t.Parallel()

	w := newWalker(t, &levelClient{}, false)
	root := t.TempDir()
	lessonOne := filepath.Join(root, "part_01", "lesson_01")
	lessonTwo := filepath.Join(root, "part_01", "lesson_02")

	writeFile(t, filepath.Join(lessonOne, "daily_transcripts", "day_01_section_01.csv"), header+"1,da_f_voice,a,0\n")
	writeFile(t, filepath.Join(lessonOne, "audio", "day_02_section_01.wav"), "not audio")
	writeFile(t, filepath.Join(lessonTwo, "daily_transcripts", "day_01_section_01.csv"), header+"1,da_f_voice,bb,0\n")

	report, err := w.Walk(context.Background(), root, "", "")
	require.NoError(t, err)
	assert.Equal(t, walker.Report{Processed: 2, Combined: 2, CombineFailed: 1}, report)
	assert.False(t, report.OK())

	assert.FileExists(t, filepath.Join(lessonOne, "combined_audio", "day_01_combined.wav"))
	assert.NoFileExists(t, filepath.Join(lessonOne, "combined_audio", "day_02_combined.wav"))
	assert.FileExists(t, filepath.Join(lessonTwo, "audio", "day_01_section_01.wav"))
	assert.FileExists(t, filepath.Join(lessonTwo, "combined_audio", "day_01_combined.wav"))
}

func TestCombineDays_RebuildsStaleAndSkipsExcludedDays(t *testing.T) {
	t.Parallel()

	w := newWalker(t, &levelClient{}, false)
	lessonDir := t.TempDir()
	audioDir := filepath.Join(lessonDir, "audio")
	codec := audio.NewWAVCodec(testFormat)
	ctx := context.Background()

	for name, level := range map[string]int16{"day_01_section_01.wav": 5, "day_02_section_01.wav": 6} {
		encoded, err := codec.Encode(ctx, toneTrack(2, level))
		require.NoError(t, err)
		writeFile(t, filepath.Join(audioDir, name), string(encoded))
	}

	stalePath := filepath.Join(lessonDir, "combined_audio", "day_01_combined.wav")
	writeFile(t, stalePath, "stale")

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stalePath, past, past))

	report, err := w.CombineDays(ctx, lessonDir, map[int]bool{2: true})
	require.NoError(t, err)
	assert.Equal(t, walker.Report{Combined: 1}, report)

	assert.Equal(t, []int16{5, 5}, decodeFile(t, stalePath))
	assert.NoFileExists(t, filepath.Join(lessonDir, "combined_audio", "day_02_combined.wav"))
}
