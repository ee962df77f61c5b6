package tts

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotConfigured is returned when a client has no credentials.
var ErrNotConfigured = errors.New("tts: not configured")

// DefaultMaxChars caps the text sent for synthesis.
const DefaultMaxChars = 5000

// Audio is one synthesized utterance.
type Audio struct {
	Data     []byte
	MimeType string
}

// Client defines the interface for text-to-speech providers.
type Client interface {
	// Synthesize converts text to speech in the provider's configured format.
	Synthesize(ctx context.Context, text string) (Audio, error)
}

// Chunk splits data into pieces of at most size bytes. The pieces share the
// backing array of data.
func Chunk(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	if size <= 0 || size >= len(data) {
		return [][]byte{data}
	}
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for len(data) > 0 {
		n := min(size, len(data))
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}
