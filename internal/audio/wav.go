package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	wavHeaderSize   = 44
	wavFmtChunkSize = 16
	wavPCMFormat    = 1
	wavBitsPerSampl = 16
)

// ErrInvalidWAV is returned for data that is not 16-bit PCM RIFF/WAVE.
var ErrInvalidWAV = errors.New("invalid wav data")

// WAVCodec reads and writes canonical 16-bit PCM WAV files without any
// external tooling.
type WAVCodec struct {
	format Format
}

// NewWAVCodec returns a codec that only accepts clips already in format.
func NewWAVCodec(format Format) *WAVCodec {
	return &WAVCodec{format: format}
}

// Format implements Codec.
func (c *WAVCodec) Format() Format {
	return c.format
}

// Container implements Codec.
func (c *WAVCodec) Container() Container {
	return CONTAINER_WAV
}

// Encode writes track as a WAV file.
func (c *WAVCodec) Encode(_ context.Context, track *Track) ([]byte, error) {
	format := track.Format()
	dataSize := len(track.Samples()) * BYTES_PER_SAMPLE

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+dataSize))

	header := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(36 + dataSize),
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(wavFmtChunkSize),
		uint16(wavPCMFormat),
		uint16(format.Channels),
		uint32(format.SampleRate),
		uint32(format.SampleRate * format.Channels * BYTES_PER_SAMPLE),
		uint16(format.Channels * BYTES_PER_SAMPLE),
		uint16(wavBitsPerSampl),
		[4]byte{'d', 'a', 't', 'a'},
		uint32(dataSize),
		track.Samples(),
	}

	for _, field := range header {
		err := binary.Write(buf, binary.LittleEndian, field)
		if err != nil {
			return nil, fmt.Errorf("failed to encode wav: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a WAV file. The clip must match the codec format.
func (c *WAVCodec) Decode(_ context.Context, data []byte) (*Track, error) {
	reader := bytes.NewReader(data)

	var riff struct {
		ID     [4]byte
		Size   uint32
		Format [4]byte
	}

	err := binary.Read(reader, binary.LittleEndian, &riff)
	if err != nil || string(riff.ID[:]) != "RIFF" || string(riff.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		format    Format
		sawFormat bool
	)

	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}

		err = binary.Read(reader, binary.LittleEndian, &chunk)
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
		}

		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}

		switch string(chunk.ID[:]) {
		case "fmt ":
			format, err = readFmtChunk(reader, chunk.Size)
			if err != nil {
				return nil, err
			}

			sawFormat = true
		case "data":
			if !sawFormat {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}

			if format != c.format {
				return nil, fmt.Errorf(ERR_FMT_FORMAT_MISMATCH, ErrFormatMismatch, c.format, format)
			}

			return readDataChunk(reader, chunk.Size, format)
		default:
			_, err = reader.Seek(int64(chunk.Size+chunk.Size%2), io.SeekCurrent)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
			}
		}
	}
}

func readFmtChunk(reader *bytes.Reader, size uint32) (Format, error) {
	var fmtChunk struct {
		AudioFormat   uint16
		Channels      uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
	}

	if size < wavFmtChunkSize {
		return Format{}, fmt.Errorf("%w: fmt chunk too small", ErrInvalidWAV)
	}

	err := binary.Read(reader, binary.LittleEndian, &fmtChunk)
	if err != nil {
		return Format{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}

	if fmtChunk.AudioFormat != wavPCMFormat || fmtChunk.BitsPerSample != wavBitsPerSampl {
		return Format{}, fmt.Errorf("%w: only 16-bit PCM is supported", ErrInvalidWAV)
	}

	extra := int64(size - wavFmtChunkSize + size%2)
	if extra > 0 {
		_, err = reader.Seek(extra, io.SeekCurrent)
		if err != nil {
			return Format{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
	}

	return Format{SampleRate: int(fmtChunk.SampleRate), Channels: int(fmtChunk.Channels)}, nil
}

func readDataChunk(reader *bytes.Reader, size uint32, format Format) (*Track, error) {
	if int64(size) > int64(reader.Len()) {
		return nil, fmt.Errorf("%w: data chunk truncated", ErrInvalidWAV)
	}

	samples := make([]int16, size/BYTES_PER_SAMPLE)

	err := binary.Read(reader, binary.LittleEndian, samples)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}

	return NewTrackFromSamples(format, samples)
}
