package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const assemblyAIWSURL = "wss://streaming.assemblyai.com/v3/ws"

// AssemblyAIConfig holds configuration for the AssemblyAI streaming client.
type AssemblyAIConfig struct {
	APIKey      string
	BaseURL     string // defaults to the v3 streaming endpoint
	Encoding    string // e.g. "pcm_s16le"
	FormatTurns bool   // wait for the punctuated transcript before finalizing
	Logger      zerolog.Logger
}

// AssemblyAI opens v3 streaming sessions.
type AssemblyAI struct {
	cfg AssemblyAIConfig
}

// NewAssemblyAI returns a Starter backed by AssemblyAI universal streaming.
func NewAssemblyAI(cfg AssemblyAIConfig) *AssemblyAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = assemblyAIWSURL
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "pcm_s16le"
	}
	return &AssemblyAI{cfg: cfg}
}

// Start connects a new streaming session at the given sample rate.
func (a *AssemblyAI) Start(ctx context.Context, sampleRate int) (Stream, error) {
	q := url.Values{}
	q.Set("sample_rate", fmt.Sprint(sampleRate))
	q.Set("encoding", a.cfg.Encoding)
	q.Set("format_turns", fmt.Sprint(a.cfg.FormatTurns))

	headers := http.Header{}
	headers.Set("Authorization", a.cfg.APIKey)

	log := a.cfg.Logger.With().Str("provider", "assemblyai").Logger()
	s, err := dialStream(ctx, a.cfg.BaseURL+"?"+q.Encode(), headers,
		&assemblyAIDecoder{formatTurns: a.cfg.FormatTurns}, []byte(`{"type":"Terminate"}`), log)
	if err != nil {
		return nil, errors.Wrap(err, "connect to AssemblyAI")
	}
	return s, nil
}

type assemblyAIMessage struct {
	Type            string `json:"type"`
	Transcript      string `json:"transcript"`
	EndOfTurn       bool   `json:"end_of_turn"`
	TurnIsFormatted bool   `json:"turn_is_formatted"`
	Error           string `json:"error"`
}

// assemblyAIDecoder maps Turn messages to events. With formatting on, the
// service sends end_of_turn twice (raw, then formatted); only the formatted
// one is final.
type assemblyAIDecoder struct {
	formatTurns bool
}

func (d *assemblyAIDecoder) decode(msg []byte) ([]TranscriptEvent, error) {
	var m assemblyAIMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, err
	}

	switch m.Type {
	case "Turn":
	case "Error":
		return nil, errors.Errorf("provider error: %s", m.Error)
	default:
		return nil, nil
	}

	final := m.EndOfTurn && (m.TurnIsFormatted || !d.formatTurns)
	if m.Transcript == "" {
		return nil, nil
	}
	return []TranscriptEvent{{Text: m.Transcript, IsFinal: final}}, nil
}
