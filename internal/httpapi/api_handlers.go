package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/lukasbauer/aria/internal/assistant"
)

const maxQueryChars = 2000

// readText decodes a {"text": ...} body. It writes the error response and
// returns false when the text is missing or too long.
func readText(w http.ResponseWriter, req *http.Request) (string, bool) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return "", false
	}
	text := strings.TrimSpace(body.Text)
	if text == "" {
		http.Error(w, `{"error": "text is required"}`, http.StatusBadRequest)
		return "", false
	}
	if len([]rune(text)) > maxQueryChars {
		http.Error(w, `{"error": "text is too long"}`, http.StatusRequestEntityTooLarge)
		return "", false
	}
	return text, true
}

// handleQuery runs one typed utterance through the assistant and returns the
// reply with its audio.
func (r *Router) handleQuery(w http.ResponseWriter, req *http.Request) {
	text, ok := readText(w, req)
	if !ok {
		return
	}

	reply, err := assistant.RunText(req.Context(), r.deps, text)
	if err != nil {
		r.logger.Warn().Err(err).Msg("query: turn failed")
		http.Error(w, `{"error": "query failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

type chatReply struct {
	assistant.TextReply
	SessionID    string `json:"session_id"`
	MessageCount int    `json:"message_count"`
}

// handleChat runs a typed turn in the chat named by the path. Turns in the
// same chat share their history.
func (r *Router) handleChat(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if !chatIDPattern.MatchString(id) {
		http.Error(w, `{"error": "invalid session id"}`, http.StatusBadRequest)
		return
	}
	text, ok := readText(w, req)
	if !ok {
		return
	}

	chat := r.chats.GetOrCreate(id, r.deps)
	reply, err := chat.Say(req.Context(), text)
	if err != nil {
		r.logger.Warn().Err(err).Str("chat_id", id).Msg("chat: turn failed")
		http.Error(w, `{"error": "chat failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, chatReply{
		TextReply:    reply,
		SessionID:    id,
		MessageCount: chat.MessageCount(),
	})
}

// handleClearHistory empties the history of a text chat or a live voice
// session, keeping the persona prompt.
func (r *Router) handleClearHistory(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if chat, ok := r.chats.Get(id); ok {
		chat.ResetHistory()
	} else if s, ok := r.sessions.Get(id); ok {
		s.ResetHistory()
	} else {
		http.Error(w, `{"error": "session not found"}`, http.StatusNotFound)
		return
	}
	r.logger.Info().Str("session_id", id).Msg("history cleared")
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": id,
		"message":    "Session " + id + " cleared",
	})
}

// handleTTS synthesizes text without running a turn. A synthesis failure
// still answers 200 with the fallback text so the client can show it.
func (r *Router) handleTTS(w http.ResponseWriter, req *http.Request) {
	if r.deps.TTS == nil {
		http.Error(w, `{"error": "speech synthesis is not configured"}`, http.StatusServiceUnavailable)
		return
	}
	text, ok := readText(w, req)
	if !ok {
		return
	}

	audio, err := r.deps.TTS.Synthesize(req.Context(), text)
	if err == nil && len(audio.Data) == 0 {
		err = errors.New("empty audio")
	}
	if err != nil {
		r.logger.Warn().Err(err).Msg("tts: synthesis failed")
		writeJSON(w, http.StatusOK, map[string]any{
			"text":             text,
			"fallback":         true,
			"fallback_message": r.texts().TTSError,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"text":      text,
		"audio":     audio.Data,
		"mime_type": audio.MimeType,
	})
}

func (r *Router) texts() assistant.Texts {
	if r.deps.Router == nil {
		return assistant.DefaultTexts()
	}
	return r.deps.Router.Texts()
}

func (r *Router) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": r.sessions.List()})
}

func (r *Router) handleSessionHistory(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if chat, ok := r.chats.Get(id); ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": id,
			"messages":   chat.History(),
		})
		return
	}
	s, ok := r.sessions.Get(id)
	if !ok {
		http.Error(w, `{"error": "session not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": s.ID,
		"messages":   s.History(),
	})
}

// handleHealth reports which collaborators are configured and which are
// failing on purpose.
func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	services := make(map[string]bool, len(r.cfg.Configured))
	for name, ok := range r.cfg.Configured {
		services[name] = ok
	}

	status := "ok"
	simulated := r.faults.Snapshot()
	if len(simulated) > 0 {
		status = "degraded"
	}
	if r.sessions.IsDraining() {
		status = "draining"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           status,
		"services":         services,
		"simulated_errors": simulated,
		"active_sessions":  r.sessions.ActiveCount(),
	})
}

func (r *Router) handleGetSimulatedErrors(w http.ResponseWriter, _ *http.Request) {
	services := append([]string(nil), assistant.FaultServices...)
	sort.Strings(services)
	writeJSON(w, http.StatusOK, map[string]any{
		"services": services,
		"enabled":  r.faults.Snapshot(),
	})
}

func (r *Router) handleSimulateError(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Service string `json:"service"`
		Enabled *bool  `json:"enabled"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	enabled := true
	if body.Enabled != nil {
		enabled = *body.Enabled
	}

	if err := r.faults.Set(strings.ToLower(body.Service), enabled); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	r.logger.Info().Str("service", body.Service).Bool("enabled", enabled).Msg("admin: simulated error toggled")
	writeJSON(w, http.StatusOK, map[string]any{
		"service": strings.ToLower(body.Service),
		"enabled": enabled,
	})
}
