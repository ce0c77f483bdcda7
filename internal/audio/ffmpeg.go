package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/book-expert/logger"
)

const (
	pcmFormat       = "s16le"
	pcmCodec        = "pcm_s16le"
	mp3Encoder      = "libmp3lame"
	wavEncoder      = "pcm_s16le"
	logFmtTempClean = "Failed to remove temp file '%s': %v"
)

// FFmpegCodec decodes any clip ffmpeg understands (ElevenLabs returns MP3)
// into PCM resampled to a fixed format, and encodes tracks back into the
// configured container. Encoding is bit-exact so identical tracks produce
// identical files.
type FFmpegCodec struct {
	binary    string
	format    Format
	container Container
	bitrate   string
	log       *logger.Logger
}

// NewFFmpegCodec returns a codec that shells out to the ffmpeg binary.
func NewFFmpegCodec(binaryPath string, format Format, container Container, bitrate string, log *logger.Logger) *FFmpegCodec {
	return &FFmpegCodec{
		binary:    binaryPath,
		format:    format,
		container: container,
		bitrate:   bitrate,
		log:       log,
	}
}

// Format implements Codec.
func (c *FFmpegCodec) Format() Format {
	return c.format
}

// Container implements Codec.
func (c *FFmpegCodec) Container() Container {
	return c.container
}

// Decode converts an encoded clip into a track. The clip is staged in a temp
// file so ffmpeg can probe it; the file is removed on every path.
func (c *FFmpegCodec) Decode(ctx context.Context, data []byte) (*Track, error) {
	tempFile, err := os.CreateTemp("", "lesson-segment-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for segment: %w", err)
	}

	defer func() {
		removeErr := os.Remove(tempFile.Name())
		if removeErr != nil {
			c.log.Warn(logFmtTempClean, tempFile.Name(), removeErr)
		}
	}()

	_, writeErr := tempFile.Write(data)
	closeErr := tempFile.Close()

	if writeErr != nil {
		return nil, fmt.Errorf("failed to write segment temp file: %w", writeErr)
	}

	if closeErr != nil {
		return nil, fmt.Errorf("failed to close segment temp file: %w", closeErr)
	}

	args := []string{
		"-v", "error",
		"-i", tempFile.Name(),
		"-f", pcmFormat,
		"-acodec", pcmCodec,
		"-ac", strconv.Itoa(c.format.Channels),
		"-ar", strconv.Itoa(c.format.SampleRate),
		"pipe:1",
	}

	pcm, err := c.run(ctx, args, nil)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	samples := make([]int16, len(pcm)/BYTES_PER_SAMPLE)

	err = binary.Read(bytes.NewReader(pcm[:len(samples)*BYTES_PER_SAMPLE]), binary.LittleEndian, samples)
	if err != nil {
		return nil, fmt.Errorf("failed to read decoded pcm: %w", err)
	}

	// Drop a trailing partial frame, if any.
	samples = samples[:len(samples)-len(samples)%c.format.Channels]

	return NewTrackFromSamples(c.format, samples)
}

// Encode converts a track into the configured container.
func (c *FFmpegCodec) Encode(ctx context.Context, track *Track) ([]byte, error) {
	format := track.Format()

	pcm := new(bytes.Buffer)
	pcm.Grow(len(track.Samples()) * BYTES_PER_SAMPLE)

	err := binary.Write(pcm, binary.LittleEndian, track.Samples())
	if err != nil {
		return nil, fmt.Errorf("failed to serialize pcm: %w", err)
	}

	args := []string{
		"-v", "error",
		"-f", pcmFormat,
		"-ar", strconv.Itoa(format.SampleRate),
		"-ac", strconv.Itoa(format.Channels),
		"-i", "pipe:0",
		"-map_metadata", "-1",
		"-fflags", "+bitexact",
		"-flags:a", "+bitexact",
	}

	switch c.container {
	case CONTAINER_MP3:
		args = append(args, "-codec:a", mp3Encoder, "-b:a", c.bitrate, "-f", "mp3")
	case CONTAINER_WAV:
		args = append(args, "-codec:a", wavEncoder, "-f", "wav")
	default:
		return nil, fmt.Errorf(ERR_FMT_UNSUPPORTED_EXT, ErrUnsupportedFormat, c.container)
	}

	args = append(args, "pipe:1")

	encoded, err := c.run(ctx, args, pcm)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg encode failed: %w", err)
	}

	return encoded, nil
}

func (c *FFmpegCodec) run(ctx context.Context, args []string, stdin *bytes.Buffer) ([]byte, error) {
	// #nosec G204 -- binary path comes from configuration, arguments are built here
	cmd := exec.CommandContext(ctx, c.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if stdin != nil {
		cmd.Stdin = stdin
	}

	err := cmd.Run()
	if err != nil {
		return nil, fmt.Errorf("%w - stderr: %s", err, stderr.String())
	}

	return stdout.Bytes(), nil
}
