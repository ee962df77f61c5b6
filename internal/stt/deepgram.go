package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const deepgramWSURL = "wss://api.deepgram.com/v1/listen"

// DeepgramConfig holds configuration for the Deepgram client.
type DeepgramConfig struct {
	APIKey         string
	BaseURL        string
	Language       string // e.g. "en-US"
	Model          string // e.g. "nova-3"
	Encoding       string // e.g. "linear16"
	Channels       int
	Punctuate      bool
	Endpointing    int // milliseconds of silence for endpointing, 0 for default
	UtteranceEndMs int // hard timeout after last speech (0 for default)
	Logger         zerolog.Logger
}

// Deepgram opens Deepgram live transcription sessions.
type Deepgram struct {
	cfg DeepgramConfig
}

// NewDeepgram returns a Starter backed by Deepgram's streaming API.
func NewDeepgram(cfg DeepgramConfig) *Deepgram {
	if cfg.BaseURL == "" {
		cfg.BaseURL = deepgramWSURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-3"
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "linear16"
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	return &Deepgram{cfg: cfg}
}

// Start connects a new live session at the given sample rate.
func (d *Deepgram) Start(ctx context.Context, sampleRate int) (Stream, error) {
	cfg := d.cfg
	u := fmt.Sprintf("%s?model=%s&encoding=%s&sample_rate=%d&channels=%d&punctuate=%t&interim_results=true",
		cfg.BaseURL,
		cfg.Model,
		cfg.Encoding,
		sampleRate,
		cfg.Channels,
		cfg.Punctuate,
	)
	if cfg.Language != "" {
		u += "&language=" + cfg.Language
	}
	if cfg.Endpointing > 0 {
		u += fmt.Sprintf("&endpointing=%d", cfg.Endpointing)
	}
	if cfg.UtteranceEndMs > 0 {
		u += fmt.Sprintf("&utterance_end_ms=%d", cfg.UtteranceEndMs)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+cfg.APIKey)

	log := cfg.Logger.With().Str("provider", "deepgram").Logger()
	s, err := dialStream(ctx, u, headers, &deepgramDecoder{}, []byte(`{"type": "CloseStream"}`), log)
	if err != nil {
		return nil, errors.Wrap(err, "connect to Deepgram")
	}
	return s, nil
}

type deepgramResponse struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal     bool `json:"is_final"`
	SpeechFinal bool `json:"speech_final"`
}

// deepgramDecoder stitches is_final segments into one utterance. Deepgram
// finalizes segments independently, so the utterance text is the committed
// segments plus the current interim.
type deepgramDecoder struct {
	committed []string
}

func (d *deepgramDecoder) decode(msg []byte) ([]TranscriptEvent, error) {
	var resp deepgramResponse
	if err := json.Unmarshal(msg, &resp); err != nil {
		return nil, err
	}

	switch resp.Type {
	case "Results":
	case "UtteranceEnd":
		// Speech ended without a speech_final result.
		if len(d.committed) == 0 {
			return nil, nil
		}
		return []TranscriptEvent{{Text: d.flush(""), IsFinal: true}}, nil
	default:
		return nil, nil
	}

	var transcript string
	if len(resp.Channel.Alternatives) > 0 {
		transcript = strings.TrimSpace(resp.Channel.Alternatives[0].Transcript)
	}

	if resp.SpeechFinal {
		text := d.flush(transcript)
		if text == "" {
			return nil, nil
		}
		return []TranscriptEvent{{Text: text, IsFinal: true}}, nil
	}

	text := d.join(transcript)
	if resp.IsFinal && transcript != "" {
		d.committed = append(d.committed, transcript)
	}
	if text == "" {
		return nil, nil
	}
	return []TranscriptEvent{{Text: text}}, nil
}

func (d *deepgramDecoder) join(tail string) string {
	parts := append(append([]string(nil), d.committed...), tail)
	return strings.TrimSpace(strings.Join(parts, " "))
}

func (d *deepgramDecoder) flush(tail string) string {
	text := d.join(tail)
	d.committed = nil
	return text
}
