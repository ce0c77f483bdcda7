package audio

import (
	"context"
	"fmt"

	"github.com/book-expert/logger"
)

// Codec moves encoded audio in and out of PCM tracks. Decode must return
// tracks in Format() so that decoded clips can be concatenated directly.
type Codec interface {
	Decode(ctx context.Context, data []byte) (*Track, error)
	Encode(ctx context.Context, track *Track) ([]byte, error)
	Format() Format
	Container() Container
}

// CodecOptions selects and configures a codec.
type CodecOptions struct {
	Name       string
	Container  string
	Format     Format
	Bitrate    string
	FFmpegPath string
}

// NewCodec builds the codec named in opts ("ffmpeg" or "wav").
func NewCodec(opts CodecOptions, log *logger.Logger) (Codec, error) {
	err := opts.Format.Validate()
	if err != nil {
		return nil, err
	}

	switch opts.Name {
	case "wav":
		return NewWAVCodec(opts.Format), nil
	case "ffmpeg":
		container, parseErr := ParseContainer(opts.Container)
		if parseErr != nil {
			return nil, parseErr
		}

		return NewFFmpegCodec(opts.FFmpegPath, opts.Format, container, opts.Bitrate, log), nil
	default:
		return nil, fmt.Errorf("%w: unknown codec %q", ErrUnsupportedFormat, opts.Name)
	}
}
