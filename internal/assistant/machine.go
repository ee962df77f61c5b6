package assistant

import (
	"context"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lukasbauer/aria/internal/costs"
	"github.com/lukasbauer/aria/internal/eventlog"
	"github.com/lukasbauer/aria/internal/intent"
	"github.com/lukasbauer/aria/internal/llm"
	"github.com/lukasbauer/aria/internal/stt"
	"github.com/lukasbauer/aria/internal/tts"
)

// State is the phase of the current turn.
type State int

const (
	StateIdle State = iota
	StateAccumulating
	StateFinalizing
	StateDispatching
	StateResponding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateFinalizing:
		return "finalizing"
	case StateDispatching:
		return "dispatching"
	case StateResponding:
		return "responding"
	}
	return "unknown"
}

// Turn is one user utterance and its handling.
type Turn struct {
	AccumulatedText string
	Finalized       bool
	Intent          *intent.Intent
	CreatedAt       time.Time
}

// DefaultAudioChunkBytes is the largest audio payload per frame.
const DefaultAudioChunkBytes = 64 * 1024

// duplicateFinalWindow bounds how long after a turn ends a repeated final
// with the same words counts as a second delivery of that turn. Later
// repeats are new utterances.
const duplicateFinalWindow = time.Second

// Machine drives turns from transcript events to response frames. Handle must
// not be called concurrently.
type Machine struct {
	sessionID  string
	classifier *intent.Classifier
	router     *Router
	tts        tts.Client
	seq        *Sequencer
	history    *History
	chunkSize  int
	meter      *costs.Meter
	events     *eventlog.Logger
	metrics    *Metrics
	log        zerolog.Logger
	now        func() time.Time

	state    State
	turn     *Turn
	partials int

	// key of the last dispatched utterance and when its turn ended
	lastFinal   string
	lastEndedAt time.Time
	lastTurn    *Turn
	completed   atomic.Int64
}

// MachineConfig wires a Machine.
type MachineConfig struct {
	SessionID       string
	Classifier      *intent.Classifier
	Router          *Router
	TTS             tts.Client
	Sequencer       *Sequencer
	History         *History
	AudioChunkBytes int
	Meter           *costs.Meter
	Events          *eventlog.Logger
	Metrics         *Metrics
	Logger          zerolog.Logger
}

// NewMachine creates a machine in the Idle state.
func NewMachine(cfg MachineConfig) *Machine {
	chunk := cfg.AudioChunkBytes
	if chunk <= 0 {
		chunk = DefaultAudioChunkBytes
	}
	meter := cfg.Meter
	if meter == nil {
		meter = &costs.Meter{}
	}
	return &Machine{
		sessionID:  cfg.SessionID,
		classifier: cfg.Classifier,
		router:     cfg.Router,
		tts:        cfg.TTS,
		seq:        cfg.Sequencer,
		history:    cfg.History,
		chunkSize:  chunk,
		meter:      meter,
		events:     cfg.Events,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
		now:        time.Now,
		state:      StateIdle,
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// LastTurn returns a copy of the most recently completed turn.
func (m *Machine) LastTurn() (Turn, bool) {
	if m.lastTurn == nil {
		return Turn{}, false
	}
	return *m.lastTurn, true
}

// Completed returns the number of turns that reached Idle after being
// finalized. Safe for concurrent use.
func (m *Machine) Completed() int { return int(m.completed.Load()) }

// Handle feeds one transcript event through the machine. It returns an error
// only when the session must stop: the context is done or a frame could not
// be written.
func (m *Machine) Handle(ctx context.Context, ev stt.TranscriptEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(ev.Text) == "" {
		return nil
	}

	switch m.state {
	case StateIdle:
		if ev.IsFinal && m.isDuplicateFinal(ev.Text) {
			m.events.Log(m.sessionID, eventlog.EventDuplicateFinal, map[string]any{"text": ev.Text})
			return nil
		}
		m.turn = &Turn{CreatedAt: m.now()}
		m.partials = 0
		m.lastFinal = ""
		m.state = StateAccumulating
	case StateAccumulating, StateFinalizing:
	default:
		// Dispatching and Responding happen inside a single Handle call.
		return nil
	}

	m.turn.AccumulatedText = ev.Text
	if !ev.IsFinal {
		m.partials++
		m.events.Log(m.sessionID, eventlog.EventPartial, map[string]any{"text": ev.Text})
		if err := m.emit(ctx, PartialFrame(ev.Text)); err != nil {
			return m.abort(err)
		}
		return nil
	}
	return m.finalize(ctx, ev.Text)
}

func (m *Machine) finalize(ctx context.Context, text string) error {
	m.turn.Finalized = true
	m.state = StateFinalizing
	m.events.Log(m.sessionID, eventlog.EventTurnFinalized, map[string]any{
		"text":     text,
		"partials": m.partials,
	})

	if err := m.emit(ctx, EndOfTurnFrame(text)); err != nil {
		return m.abort(err)
	}
	m.history.Append(llm.RoleUser, text)
	m.lastFinal = utteranceKey(text)
	m.state = StateDispatching
	return m.dispatch(ctx, text)
}

func (m *Machine) dispatch(ctx context.Context, text string) error {
	started := m.now()
	ctx, span := tracer.Start(ctx, "turn", trace.WithAttributes(attribute.String("session_id", m.sessionID)))
	defer span.End()

	in := m.classifier.Classify(text)
	m.turn.Intent = &in
	span.SetAttributes(attribute.String("intent", string(in)))
	m.events.Log(m.sessionID, eventlog.EventIntent, map[string]any{"intent": string(in)})

	res := m.router.Route(ctx, in, text, m.history.Snapshot())
	if err := ctx.Err(); err != nil {
		return m.abort(err)
	}
	m.meter.AddLLM(res.LLMInputChars, res.LLMOutputChars)
	if res.Searched {
		m.meter.AddSearch()
	}
	fields := map[string]any{"kind": string(res.Kind), "has_text": res.HasText}
	if res.Err != nil {
		fields["error"] = res.Err
		span.RecordError(res.Err)
	}
	m.events.Log(m.sessionID, eventlog.EventRouted, fields)

	m.state = StateResponding
	if res.HasText {
		primary := AssistantTextFrame(res.Text)
		if res.Kind == FrameWebSearchOpened {
			primary = WebSearchOpenedFrame(res.OpenedURL)
		}
		if err := m.emit(ctx, primary); err != nil {
			return m.abort(err)
		}
		m.history.Append(llm.RoleAssistant, res.Text)

		if err := m.speak(ctx, res.Text); err != nil {
			return m.abort(err)
		}
	}

	took := m.now().Sub(started)
	m.metrics.turnCompleted(in, took)
	m.completed.Add(1)
	m.events.Log(m.sessionID, eventlog.EventTurnCompleted, map[string]any{"intent": string(in), "took": took})
	m.reset()
	return nil
}

// speak synthesizes text and emits the audio frames. A synthesis failure
// only skips the audio.
func (m *Machine) speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.tts == nil {
		return nil
	}

	m.events.Log(m.sessionID, eventlog.EventTTSStarted, map[string]any{"chars": len(text)})
	audio, err := m.synthesize(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.events.Log(m.sessionID, eventlog.EventTTSError, map[string]any{"error": err})
		return nil
	}
	m.meter.AddTTS(len(text))

	for _, chunk := range tts.Chunk(audio.Data, m.chunkSize) {
		if err := m.emit(ctx, AudioChunkFrame(chunk, audio.MimeType)); err != nil {
			return err
		}
		m.metrics.RecordAudio("out", len(chunk))
	}
	if err := m.emit(ctx, AudioDoneFrame()); err != nil {
		return err
	}
	m.events.Log(m.sessionID, eventlog.EventTTSCompleted, map[string]any{"bytes": len(audio.Data)})
	return nil
}

func (m *Machine) synthesize(ctx context.Context, text string) (tts.Audio, error) {
	ctx, span := tracer.Start(ctx, "call "+CollaboratorTTS)
	defer span.End()

	audio, err := m.tts.Synthesize(ctx, text)
	if err == nil && len(audio.Data) == 0 {
		err = errEmptyAudio
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !NotAttempted(err) && ctx.Err() == nil {
			m.metrics.collaboratorFailed(CollaboratorTTS)
		}
		return tts.Audio{}, &CollaboratorError{Collaborator: CollaboratorTTS, Err: err}
	}
	return audio, nil
}

func (m *Machine) emit(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.seq.Emit(f)
}

func (m *Machine) abort(err error) error {
	m.log.Debug().Err(err).Str("state", m.state.String()).Msg("turn aborted")
	m.events.Log(m.sessionID, eventlog.EventTurnAborted, map[string]any{"state": m.state.String(), "error": err})
	m.reset()
	return err
}

func (m *Machine) reset() {
	if m.turn != nil && m.turn.Finalized {
		m.lastTurn = m.turn
		m.lastEndedAt = m.now()
	}
	m.turn = nil
	m.partials = 0
	m.state = StateIdle
}

// isDuplicateFinal reports whether a final arriving in Idle repeats the
// previous turn's utterance closely enough to be the same delivery.
func (m *Machine) isDuplicateFinal(text string) bool {
	if m.lastFinal == "" || utteranceKey(text) != m.lastFinal {
		return false
	}
	return m.now().Sub(m.lastEndedAt) < duplicateFinalWindow
}

// forgetLastFinal makes the next final a new turn regardless of its words.
// Typed turns use it: each request is its own delivery.
func (m *Machine) forgetLastFinal() { m.lastFinal = "" }

// utteranceKey reduces text to lowercase letters and digits so that the same
// utterance with different punctuation or casing compares equal.
func utteranceKey(text string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
