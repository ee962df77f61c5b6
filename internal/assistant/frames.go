package assistant

import "encoding/json"

// FrameKind is the wire "type" of an outbound frame.
type FrameKind string

const (
	FramePartial         FrameKind = "partial"
	FrameEndOfTurn       FrameKind = "end_of_turn"
	FrameAssistantText   FrameKind = "assistant_chunk"
	FrameAudioChunk      FrameKind = "audio_chunk"
	FrameAudioDone       FrameKind = "audio_done"
	FrameWebSearchOpened FrameKind = "web_search_opened"
)

// Frame is one message to the client. Which fields are meaningful depends on
// Kind.
type Frame struct {
	Kind     FrameKind
	Text     string
	Audio    []byte
	MimeType string
	URL      string
}

func PartialFrame(text string) Frame       { return Frame{Kind: FramePartial, Text: text} }
func EndOfTurnFrame(text string) Frame     { return Frame{Kind: FrameEndOfTurn, Text: text} }
func AssistantTextFrame(text string) Frame { return Frame{Kind: FrameAssistantText, Text: text} }
func AudioDoneFrame() Frame                { return Frame{Kind: FrameAudioDone} }

func AudioChunkFrame(data []byte, mimeType string) Frame {
	return Frame{Kind: FrameAudioChunk, Audio: data, MimeType: mimeType}
}

func WebSearchOpenedFrame(url string) Frame {
	return Frame{Kind: FrameWebSearchOpened, URL: url}
}

type wireFrame struct {
	Type     FrameKind `json:"type"`
	Text     *string   `json:"text,omitempty"`
	Audio    []byte    `json:"audio,omitempty"` // base64 by encoding/json
	MimeType string    `json:"mime_type,omitempty"`
	URL      string    `json:"url,omitempty"`
}

// MarshalJSON encodes the frame as {"type": ..., ...}. Text frames always
// carry a text field, even when empty.
func (f Frame) MarshalJSON() ([]byte, error) {
	w := wireFrame{Type: f.Kind}
	switch f.Kind {
	case FramePartial, FrameEndOfTurn, FrameAssistantText:
		text := f.Text
		w.Text = &text
	case FrameAudioChunk:
		w.Audio = f.Audio
		w.MimeType = f.MimeType
	case FrameWebSearchOpened:
		w.URL = f.URL
	}
	return json.Marshal(w)
}
