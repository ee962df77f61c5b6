package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukasbauer/aria/internal/assistant"
	"github.com/lukasbauer/aria/internal/eventlog"
	"github.com/lukasbauer/aria/internal/intent"
	"github.com/lukasbauer/aria/internal/llm"
	"github.com/lukasbauer/aria/internal/stt"
	"github.com/lukasbauer/aria/internal/tts"
)

const (
	testSecret   = "test-secret"
	testAdminKey = "admin-key"
)

type stubLLM struct{ reply string }

func (s stubLLM) Generate(context.Context, []llm.Message) (string, error) { return s.reply, nil }

type stubTTS struct{}

func (stubTTS) Synthesize(context.Context, string) (tts.Audio, error) {
	return tts.Audio{Data: []byte("mp3"), MimeType: "audio/mpeg"}, nil
}

type stubDevice struct{}

func (stubDevice) Send(context.Context, string) (string, error) { return "LED turned on!", nil }

// scriptedStream replays its script as soon as the first audio arrives.
type scriptedStream struct {
	script []stt.TranscriptEvent
	events chan stt.TranscriptEvent
	errs   chan error
	once   sync.Once

	mu    sync.Mutex
	audio int
}

func (s *scriptedStream) SendAudio(_ context.Context, audio []byte) error {
	s.mu.Lock()
	s.audio += len(audio)
	s.mu.Unlock()
	s.once.Do(func() {
		for _, ev := range s.script {
			s.events <- ev
		}
	})
	return nil
}

func (s *scriptedStream) Events() <-chan stt.TranscriptEvent { return s.events }
func (s *scriptedStream) Errors() <-chan error               { return s.errs }
func (s *scriptedStream) Close() error                       { return nil }

type scriptedStarter struct {
	mu      sync.Mutex
	script  []stt.TranscriptEvent
	streams []*scriptedStream
	rates   []int
}

func (s *scriptedStarter) Start(_ context.Context, sampleRate int) (stt.Stream, error) {
	st := &scriptedStream{
		script: s.script,
		events: make(chan stt.TranscriptEvent, len(s.script)+1),
		errs:   make(chan error, 1),
	}
	s.mu.Lock()
	s.streams = append(s.streams, st)
	s.rates = append(s.rates, sampleRate)
	s.mu.Unlock()
	return st, nil
}

type testServer struct {
	handler  http.Handler
	faults   *assistant.Faults
	sessions *SessionRegistry
	starter  *scriptedStarter
}

func newTestServer(t *testing.T, cfg RouterConfig) *testServer {
	t.Helper()
	faults := assistant.NewFaults()
	c := assistant.Collaborators{
		LLM:    faults.LLM(stubLLM{reply: "Hello there."}),
		TTS:    faults.TTS(stubTTS{}),
		Device: faults.Device(stubDevice{}),
	}
	deps := assistant.Deps{
		Classifier:   intent.NewClassifier("aria", nil),
		Router:       assistant.NewRouter(c, "persona", assistant.DefaultTexts(), nil, zerolog.Nop()),
		TTS:          c.TTS,
		Metrics:      assistant.NewMetrics("test"),
		Events:       eventlog.Nop(),
		Logger:       zerolog.Nop(),
		SystemPrompt: "persona",
		HistoryMax:   assistant.DefaultHistoryMax,
	}
	starter := &scriptedStarter{script: []stt.TranscriptEvent{
		{Text: "turn on"},
		{Text: "turn on the led", IsFinal: true},
	}}
	sessions := NewSessionRegistry()
	if cfg.Configured == nil {
		cfg.Configured = map[string]bool{"stt": true, "llm": true, "tts": true, "search": false, "device": true}
	}

	return &testServer{
		handler: NewRouter(cfg, Services{
			Deps:     deps,
			STT:      faults.STT(starter),
			Faults:   faults,
			Sessions: sessions,
		}, zerolog.Nop()),
		faults:   faults,
		sessions: sessions,
		starter:  starter,
	}
}

func (ts *testServer) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, RouterConfig{AdminAPIKey: testAdminKey})

	rec := ts.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = ts.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]any{"stt": true, "llm": true, "tts": true, "search": false, "device": true}, body["services"])

	require.NoError(t, ts.faults.Set(assistant.CollaboratorTTS, true))
	body = decode(t, ts.do(http.MethodGet, "/health", "", nil))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, []any{"tts"}, body["simulated_errors"])

	rec = ts.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzEndpoint(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})

	rec := ts.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	ts.sessions.StartDraining()
	rec = ts.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "draining", rec.Body.String())
}

func TestQueryAuth(t *testing.T) {
	ts := newTestServer(t, RouterConfig{JWTSecret: testSecret})
	token, err := IssueToken(testSecret, "client-1", "Kitchen", time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken(testSecret, "client-1", "", -time.Hour)
	require.NoError(t, err)
	forged, err := IssueToken("other-secret", "client-1", "", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"missing token", "/api/query", nil, http.StatusUnauthorized},
		{"bearer token", "/api/query", map[string]string{"Authorization": "Bearer " + token}, http.StatusOK},
		{"query token", "/api/query?token=" + token, nil, http.StatusOK},
		{"expired token", "/api/query", map[string]string{"Authorization": "Bearer " + expired}, http.StatusUnauthorized},
		{"wrong secret", "/api/query", map[string]string{"Authorization": "Bearer " + forged}, http.StatusUnauthorized},
		{"malformed header", "/api/query", map[string]string{"Authorization": token}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, tt.path, `{"text":"tell me a joke"}`, tt.header)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestQuery(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})

	rec := ts.do(http.MethodPost, "/api/query", `{"text":"turn on the led"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var reply assistant.TextReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, "device_command", reply.Intent)
	assert.Equal(t, "LED turned on!", reply.Response)
	assert.Equal(t, []byte("mp3"), reply.Audio)
	assert.Equal(t, "audio/mpeg", reply.MimeType)

	rec = ts.do(http.MethodPost, "/api/query", `{"text":"   "}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/query", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminAuth(t *testing.T) {
	t.Run("disabled without key", func(t *testing.T) {
		ts := newTestServer(t, RouterConfig{})
		rec := ts.do(http.MethodGet, "/api/sessions", "", map[string]string{"X-Admin-Key": "anything"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	ts := newTestServer(t, RouterConfig{AdminAPIKey: testAdminKey})
	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"no key", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"X-Admin-Key": "nope"}, http.StatusUnauthorized},
		{"header key", map[string]string{"X-Admin-Key": testAdminKey}, http.StatusOK},
		{"bearer key", map[string]string{"Authorization": "Bearer " + testAdminKey}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodGet, "/api/sessions", "", tt.header)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSimulateError(t *testing.T) {
	ts := newTestServer(t, RouterConfig{AdminAPIKey: testAdminKey})
	admin := map[string]string{"X-Admin-Key": testAdminKey}

	rec := ts.do(http.MethodPost, "/admin/simulate-error", `{"service":"llm","enabled":true}`, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, ts.faults.Enabled(assistant.CollaboratorLLM))

	rec = ts.do(http.MethodPost, "/api/query", `{"text":"tell me a joke"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, assistant.DefaultTexts().LLMError, decode(t, rec)["response"])

	rec = ts.do(http.MethodGet, "/admin/simulate-error", "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"llm"}, decode(t, rec)["enabled"])

	rec = ts.do(http.MethodPost, "/admin/simulate-error", `{"service":"LLM","enabled":false}`, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, ts.faults.Enabled(assistant.CollaboratorLLM))

	rec = ts.do(http.MethodPost, "/admin/simulate-error", `{"service":"database"}`, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHistoryNotFound(t *testing.T) {
	ts := newTestServer(t, RouterConfig{AdminAPIKey: testAdminKey})
	rec := ts.do(http.MethodGet, "/api/sessions/missing/history", "", map[string]string{"X-Admin-Key": testAdminKey})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})
	rec := ts.do(http.MethodOptions, "/api/query", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestChat(t *testing.T) {
	ts := newTestServer(t, RouterConfig{AdminAPIKey: testAdminKey})

	rec := ts.do(http.MethodPost, "/api/chat/kitchen", `{"text":"tell me a joke"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "kitchen", body["session_id"])
	assert.Equal(t, "Hello there.", body["response"])
	assert.Equal(t, "general_query", body["intent"])
	assert.EqualValues(t, 3, body["message_count"])

	rec = ts.do(http.MethodPost, "/api/chat/kitchen", `{"text":"tell me a joke"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 5, decode(t, rec)["message_count"])

	rec = ts.do(http.MethodPost, "/api/chat/office", `{"text":"turn on the led"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decode(t, rec)["message_count"])

	rec = ts.do(http.MethodGet, "/api/sessions/kitchen/history", "", map[string]string{"X-Admin-Key": testAdminKey})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["messages"], 5)

	rec = ts.do(http.MethodPost, "/api/chat/bad%20id", `{"text":"hi"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/chat/kitchen", `{"text":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearHistory(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})

	rec := ts.do(http.MethodPost, "/api/chat/kitchen", `{"text":"tell me a joke"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/sessions/kitchen/history", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Session kitchen cleared", decode(t, rec)["message"])

	rec = ts.do(http.MethodPost, "/api/chat/kitchen", `{"text":"tell me a joke"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decode(t, rec)["message_count"])

	rec = ts.do(http.MethodDelete, "/api/sessions/missing/history", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTTS(t *testing.T) {
	ts := newTestServer(t, RouterConfig{})

	rec := ts.do(http.MethodPost, "/api/tts", `{"text":"Hello there."}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ok struct {
		Text     string `json:"text"`
		Audio    []byte `json:"audio"`
		MimeType string `json:"mime_type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	assert.Equal(t, "Hello there.", ok.Text)
	assert.Equal(t, []byte("mp3"), ok.Audio)
	assert.Equal(t, "audio/mpeg", ok.MimeType)

	require.NoError(t, ts.faults.Set(assistant.CollaboratorTTS, true))
	rec = ts.do(http.MethodPost, "/api/tts", `{"text":"Hello there."}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["fallback"])
	assert.Equal(t, assistant.DefaultTexts().TTSError, body["fallback_message"])
	assert.NotContains(t, body, "audio")

	rec = ts.do(http.MethodPost, "/api/tts", `{"text":" "}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTTSNotConfigured(t *testing.T) {
	h := NewRouter(RouterConfig{}, Services{Deps: assistant.Deps{Logger: zerolog.Nop()}}, zerolog.Nop())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tts", strings.NewReader(`{"text":"hi"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
