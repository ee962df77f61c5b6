package assistant

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lukasbauer/aria/internal/eventlog"
	"github.com/lukasbauer/aria/internal/intent"
	"github.com/lukasbauer/aria/internal/llm"
	"github.com/lukasbauer/aria/internal/stt"
	"github.com/lukasbauer/aria/internal/tts"
)

type fakeLLM struct {
	mu     sync.Mutex
	calls  [][]llm.Message
	reply  string
	err    error
	onCall func()
}

func (f *fakeLLM) Generate(_ context.Context, msgs []llm.Message) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]llm.Message(nil), msgs...))
	onCall := f.onCall
	f.mu.Unlock()
	if onCall != nil {
		onCall()
	}
	return f.reply, f.err
}

func (f *fakeLLM) Calls() [][]llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTTS struct {
	mu    sync.Mutex
	calls []string
	audio tts.Audio
	err   error
}

func (f *fakeTTS) Synthesize(_ context.Context, text string) (tts.Audio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	return f.audio, f.err
}

func (f *fakeTTS) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeText struct {
	mu    sync.Mutex
	calls []string
	reply string
	err   error
}

func (f *fakeText) call(text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	return f.reply, f.err
}

func (f *fakeText) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDevice struct{ fakeText }

func (f *fakeDevice) Send(_ context.Context, command string) (string, error) {
	return f.call(command)
}

type fakeSearch struct{ fakeText }

func (f *fakeSearch) Enhance(_ context.Context, question string) (string, error) {
	return f.call(question)
}

type fakeBrowser struct {
	fakeText
	ok bool
}

func (f *fakeBrowser) TryOpen(_ context.Context, utterance string) (string, bool) {
	url, _ := f.call(utterance)
	return url, f.ok
}

// recorder is a FrameWriter that decodes and keeps every frame.
type recorder struct {
	mu     sync.Mutex
	frames []wireFrame
	err    error
}

func (r *recorder) WriteFrame(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *recorder) Kinds() []FrameKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]FrameKind, len(r.frames))
	for i, f := range r.frames {
		kinds[i] = f.Type
	}
	return kinds
}

func (r *recorder) Frames() []wireFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wireFrame(nil), r.frames...)
}

func (r *recorder) first(t *testing.T, kind FrameKind) wireFrame {
	t.Helper()
	for _, f := range r.Frames() {
		if f.Type == kind {
			return f
		}
	}
	require.Failf(t, "frame not found", "no %s frame in %v", kind, r.Kinds())
	return wireFrame{}
}

type fakeStream struct {
	events chan stt.TranscriptEvent
	errs   chan error
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		events: make(chan stt.TranscriptEvent, 16),
		errs:   make(chan error, 1),
	}
}

func (s *fakeStream) SendAudio(context.Context, []byte) error { return nil }
func (s *fakeStream) Events() <-chan stt.TranscriptEvent      { return s.events }
func (s *fakeStream) Errors() <-chan error                    { return s.errs }
func (s *fakeStream) Close() error                            { return nil }

// harness wires a Machine to fakes. Collaborators left nil stay unconfigured.
type harness struct {
	llm     *fakeLLM
	tts     *fakeTTS
	device  *fakeDevice
	search  *fakeSearch
	browser *fakeBrowser
	rec     *recorder
	history *History
	machine *Machine
}

const testPersona = "You are Aria."

func newHarness() *harness {
	return &harness{
		llm:     &fakeLLM{reply: "Here is an answer."},
		tts:     &fakeTTS{audio: tts.Audio{Data: []byte("0123456789"), MimeType: "audio/mpeg"}},
		device:  &fakeDevice{fakeText{reply: "LED turned on!"}},
		search:  &fakeSearch{fakeText{reply: "It is sunny."}},
		browser: &fakeBrowser{fakeText: fakeText{reply: "https://www.youtube.com"}, ok: true},
		rec:     &recorder{},
	}
}

func (h *harness) collaborators() Collaborators {
	var c Collaborators
	if h.llm != nil {
		c.LLM = h.llm
	}
	if h.tts != nil {
		c.TTS = h.tts
	}
	if h.device != nil {
		c.Device = h.device
	}
	if h.search != nil {
		c.Search = h.search
	}
	if h.browser != nil {
		c.Browser = h.browser
	}
	return c
}

func (h *harness) deps() Deps {
	c := h.collaborators()
	return Deps{
		Classifier:      intent.NewClassifier("aria", nil),
		Router:          NewRouter(c, testPersona, DefaultTexts(), nil, zerolog.Nop()),
		TTS:             c.TTS,
		Events:          eventlog.Nop(),
		Logger:          zerolog.Nop(),
		SystemPrompt:    testPersona,
		HistoryMax:      DefaultHistoryMax,
		AudioChunkBytes: 4,
	}
}

func (h *harness) build() *harness {
	d := h.deps()
	h.history = NewHistory(d.SystemPrompt, d.HistoryMax)
	h.machine = NewMachine(MachineConfig{
		SessionID:       "test",
		Classifier:      d.Classifier,
		Router:          d.Router,
		TTS:             d.TTS,
		Sequencer:       NewSequencer(h.rec, nil),
		History:         h.history,
		AudioChunkBytes: d.AudioChunkBytes,
		Events:          d.Events,
		Logger:          d.Logger,
	})
	return h
}

func (h *harness) feed(t *testing.T, ctx context.Context, events ...stt.TranscriptEvent) {
	t.Helper()
	for _, ev := range events {
		require.NoError(t, h.machine.Handle(ctx, ev))
	}
}

func partial(text string) stt.TranscriptEvent { return stt.TranscriptEvent{Text: text} }
func final(text string) stt.TranscriptEvent   { return stt.TranscriptEvent{Text: text, IsFinal: true} }

type starterFunc func() error

func (f starterFunc) Start(context.Context, int) (stt.Stream, error) {
	if err := f(); err != nil {
		return nil, err
	}
	return newFakeStream(), nil
}
