package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"github.com/lukasbauer/aria/internal/assistant"
	"github.com/lukasbauer/aria/internal/stt"
)

type RouterConfig struct {
	// JWT authentication for /ws and /api/query. Empty disables auth.
	JWTSecret string

	// Shared key for the session and fault-injection endpoints. Empty
	// disables those endpoints.
	AdminAPIKey string

	// Sample rate assumed when a client does not send one.
	DefaultSampleRate int

	// Collaborators that have credentials, reported by /health.
	Configured map[string]bool
}

// Services are the shared objects the handlers drive.
type Services struct {
	Deps     assistant.Deps
	STT      stt.Starter
	Faults   *assistant.Faults
	Sessions *SessionRegistry
	Chats    *ChatStore
}

type Router struct {
	cfg      RouterConfig
	logger   zerolog.Logger
	deps     assistant.Deps
	stt      stt.Starter
	faults   *assistant.Faults
	sessions *SessionRegistry
	chats    *ChatStore
	mux      *http.ServeMux
}

func NewRouter(cfg RouterConfig, svc Services, logger zerolog.Logger) http.Handler {
	if cfg.DefaultSampleRate <= 0 {
		cfg.DefaultSampleRate = assistant.DefaultSampleRate
	}
	if svc.Sessions == nil {
		svc.Sessions = NewSessionRegistry()
	}
	if svc.Faults == nil {
		svc.Faults = assistant.NewFaults()
	}
	if svc.Chats == nil {
		svc.Chats = NewChatStore(DefaultMaxChats)
	}

	r := &Router{
		cfg:      cfg,
		logger:   logger.With().Str("component", "httpapi").Logger(),
		deps:     svc.Deps,
		stt:      svc.STT,
		faults:   svc.Faults,
		sessions: svc.Sessions,
		chats:    svc.Chats,
		mux:      http.NewServeMux(),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health checks
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /readyz", r.handleReadyz)
	r.mux.HandleFunc("GET /health", r.handleHealth)
	if r.deps.Metrics != nil {
		r.mux.Handle("GET /metrics", r.deps.Metrics.Handler())
	}

	// Voice sessions
	r.mux.HandleFunc("GET /ws", r.withAuth(r.handleVoiceWS))
	r.mux.HandleFunc("POST /api/query", r.withAuth(r.handleQuery))
	r.mux.HandleFunc("POST /api/chat/{id}", r.withAuth(r.handleChat))
	r.mux.HandleFunc("DELETE /api/sessions/{id}/history", r.withAuth(r.handleClearHistory))
	r.mux.HandleFunc("POST /api/tts", r.withAuth(r.handleTTS))

	// Admin
	r.mux.HandleFunc("GET /api/sessions", r.withAdmin(r.handleListSessions))
	r.mux.HandleFunc("GET /api/sessions/{id}/history", r.withAdmin(r.handleSessionHistory))
	r.mux.HandleFunc("GET /admin/simulate-error", r.withAdmin(r.handleGetSimulatedErrors))
	r.mux.HandleFunc("POST /admin/simulate-error", r.withAdmin(r.handleSimulateError))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Router) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if r.sessions.IsDraining() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Admin-Key")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
