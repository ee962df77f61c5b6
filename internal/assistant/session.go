package assistant

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/lukasbauer/aria/internal/costs"
	"github.com/lukasbauer/aria/internal/eventlog"
	"github.com/lukasbauer/aria/internal/intent"
	"github.com/lukasbauer/aria/internal/llm"
	"github.com/lukasbauer/aria/internal/stt"
	"github.com/lukasbauer/aria/internal/tts"
)

// DefaultSampleRate is the PCM sample rate assumed when the client sends none.
const DefaultSampleRate = 16000

// Deps are the shared, read-only pieces every session is built from.
type Deps struct {
	Classifier      *intent.Classifier
	Router          *Router
	TTS             tts.Client
	Metrics         *Metrics
	Events          *eventlog.Logger
	Logger          zerolog.Logger
	SystemPrompt    string
	HistoryMax      int
	AudioChunkBytes int
}

// Session is one client connection: its chat history, its turn machine and
// the sequencer in front of its transport.
type Session struct {
	ID        string
	CreatedAt time.Time

	history *History
	seq     *Sequencer
	machine *Machine
	meter   *costs.Meter
	metrics *Metrics
	events  *eventlog.Logger
	texts   Texts
	log     zerolog.Logger

	mu         sync.Mutex
	sampleRate int
}

// NewSession creates a session writing frames to w.
func NewSession(deps Deps, w FrameWriter) *Session {
	id := uuid.NewString()
	log := deps.Logger.With().Str("session_id", id).Logger()
	history := NewHistory(deps.SystemPrompt, deps.HistoryMax)
	seq := NewSequencer(w, deps.Metrics)
	meter := &costs.Meter{}
	var texts Texts
	if deps.Router != nil {
		texts = deps.Router.Texts()
	}

	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		history:   history,
		seq:       seq,
		meter:     meter,
		metrics:   deps.Metrics,
		events:    deps.Events,
		texts:     texts,
		log:       log,
		machine: NewMachine(MachineConfig{
			SessionID:       id,
			Classifier:      deps.Classifier,
			Router:          deps.Router,
			TTS:             deps.TTS,
			Sequencer:       seq,
			History:         history,
			AudioChunkBytes: deps.AudioChunkBytes,
			Meter:           meter,
			Events:          deps.Events,
			Metrics:         deps.Metrics,
			Logger:          log,
		}),
		sampleRate: DefaultSampleRate,
	}
}

// History returns a snapshot of the chat history.
func (s *Session) History() []llm.Message { return s.history.Snapshot() }

// TurnCount returns the number of completed turns.
func (s *Session) TurnCount() int { return s.machine.Completed() }

// RecordAudio counts inbound audio bytes. Safe to call from the transport
// reader while Run is active.
func (s *Session) RecordAudio(n int) {
	s.meter.AddAudio(n)
	s.metrics.RecordAudio("in", n)
}

// SetSampleRate records the inbound audio rate used for cost estimates.
func (s *Session) SetSampleRate(rate int) {
	if rate <= 0 {
		return
	}
	s.mu.Lock()
	s.sampleRate = rate
	s.mu.Unlock()
}

// ResetHistory drops every message except the persona system message.
func (s *Session) ResetHistory() { s.history.Reset() }

// Close stops all further frames.
func (s *Session) Close() { s.seq.Close() }

// Run consumes transcript events from stream until the context is cancelled,
// the stream ends or the client connection fails. Cancellation and a normal
// end of stream return nil. When the stream fails, the client is told with
// the STTError text before Run returns the error.
func (s *Session) Run(ctx context.Context, stream stt.Stream) error {
	s.metrics.sessionStarted()
	s.events.Log(s.ID, eventlog.EventSessionStarted, nil)
	defer s.finish()

	events, errs := stream.Events(), stream.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return s.streamFailed(ctx, err)
		case ev, ok := <-events:
			if !ok {
				// A transport reports its failure before closing events.
				select {
				case err, ok := <-errs:
					if ok {
						return s.streamFailed(ctx, err)
					}
				default:
				}
				return nil
			}
			if err := s.machine.Handle(ctx, ev); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func (s *Session) streamFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	if s.texts.STTError != "" {
		if emitErr := s.seq.Emit(AssistantTextFrame(s.texts.STTError)); emitErr != nil {
			s.log.Debug().Err(emitErr).Msg("stt error notice not delivered")
		}
	}
	return errors.Wrap(err, "transcription stream")
}

func (s *Session) finish() {
	s.seq.Close()
	s.metrics.sessionEnded()

	s.mu.Lock()
	rate := s.sampleRate
	s.mu.Unlock()

	usage := s.meter.Usage(rate)
	c := costs.CalculateSessionCosts(usage)
	s.events.Log(s.ID, eventlog.EventSessionEnded, map[string]any{
		"turns":      s.TurnCount(),
		"duration":   time.Since(s.CreatedAt),
		"cost_cents": c.TotalCents,
	})
	s.log.Info().
		Float64("stt_seconds", usage.STTSeconds).
		Int("llm_input_chars", usage.LLMInputChars).
		Int("tts_chars", usage.TTSCharacters).
		Float64("total_cents", c.TotalCents).
		Msg("session usage")
}

// TextReply is the outcome of a single text turn.
type TextReply struct {
	Intent          string `json:"intent"`
	Response        string `json:"response"`
	Audio           []byte `json:"audio,omitempty"`
	MimeType        string `json:"mime_type,omitempty"`
	URL             string `json:"url,omitempty"`
	FallbackMessage string `json:"fallback_message,omitempty"`
}

// TextSession runs typed turns through one session so that they share a
// chat history. Say may be called from several goroutines; turns run one at
// a time.
type TextSession struct {
	*Session

	mu  sync.Mutex
	col *collector
}

// NewTextSession creates a text session with an empty history.
func NewTextSession(deps Deps) *TextSession {
	col := &collector{}
	return &TextSession{Session: NewSession(deps, col), col: col}
}

// Say handles text as one finalized utterance and collects the reply.
func (t *TextSession) Say(ctx context.Context, text string) (TextReply, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.col.frames = t.col.frames[:0]
	before := t.machine.Completed()
	t.machine.forgetLastFinal()
	if err := t.machine.Handle(ctx, stt.TranscriptEvent{Text: text, IsFinal: true}); err != nil {
		return TextReply{}, err
	}

	var reply TextReply
	if t.machine.Completed() > before {
		if turn, ok := t.machine.LastTurn(); ok && turn.Intent != nil {
			reply.Intent = string(*turn.Intent)
		}
	}
	for _, f := range t.col.frames {
		switch f.Type {
		case FrameAssistantText:
			if f.Text != nil {
				reply.Response = *f.Text
			}
		case FrameWebSearchOpened:
			reply.URL = f.URL
		case FrameAudioChunk:
			reply.Audio = append(reply.Audio, f.Audio...)
			reply.MimeType = f.MimeType
		}
	}
	if reply.Response == "" && reply.URL != "" {
		reply.Response = t.texts.BrowserOpened
	}
	if reply.Response != "" && len(reply.Audio) == 0 {
		reply.FallbackMessage = t.texts.TTSError
	}
	return reply, nil
}

// MessageCount returns the number of history messages, system included.
func (t *TextSession) MessageCount() int { return t.history.Len() }

// RunText pushes text through a fresh session as one finalized utterance and
// collects the frames it produces.
func RunText(ctx context.Context, deps Deps, text string) (TextReply, error) {
	t := NewTextSession(deps)
	defer t.Close()
	return t.Say(ctx, text)
}

// collector is a FrameWriter that keeps every frame in memory.
type collector struct {
	frames []wireFrame
}

func (c *collector) WriteFrame(data []byte) error {
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	c.frames = append(c.frames, f)
	return nil
}
