package stt

import "context"

// TranscriptEvent is one recognition update for the current utterance.
// Text is the provider's best transcript so far, not a delta.
type TranscriptEvent struct {
	Text    string
	IsFinal bool // the provider judged the utterance complete
}

// Stream is an open recognition session for one audio source.
type Stream interface {
	// SendAudio forwards raw audio in the format negotiated at Start.
	SendAudio(ctx context.Context, audio []byte) error

	// Events delivers transcript events in provider order. It is closed when
	// the stream ends.
	Events() <-chan TranscriptEvent

	// Errors delivers terminal transport errors.
	Errors() <-chan error

	// Close terminates the provider session.
	Close() error
}

// Starter opens recognition streams.
type Starter interface {
	Start(ctx context.Context, sampleRate int) (Stream, error)
}
