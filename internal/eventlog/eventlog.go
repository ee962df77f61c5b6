// Package eventlog records the lifecycle of conversation turns as structured
// log entries. Entries are not persisted.
package eventlog

import (
	"time"

	"github.com/rs/zerolog"
)

// EventType represents the type of session event
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventPartial        EventType = "stt_partial"
	EventTurnFinalized  EventType = "turn_finalized"
	EventDuplicateFinal EventType = "duplicate_final"
	EventIntent         EventType = "intent_classified"
	EventRouted         EventType = "turn_routed"
	EventLLMError       EventType = "llm_error"
	EventTTSStarted     EventType = "tts_started"
	EventTTSCompleted   EventType = "tts_completed"
	EventTTSError       EventType = "tts_error"
	EventTurnCompleted  EventType = "turn_completed"
	EventTurnAborted    EventType = "turn_aborted"
	EventSessionEnded   EventType = "session_ended"
)

// Logger writes session events to a zerolog logger.
type Logger struct {
	log zerolog.Logger
}

// New creates a new event logger
func New(log zerolog.Logger) *Logger {
	return &Logger{log: log.With().Str("component", "eventlog").Logger()}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{log: zerolog.Nop()}
}

// Log writes one event. Unknown data values are rendered with zerolog's
// Interface encoder.
func (l *Logger) Log(sessionID string, eventType EventType, data map[string]any) {
	if l == nil {
		return
	}
	ev := l.log.Info()
	switch eventType {
	case EventLLMError, EventTTSError, EventTurnAborted:
		ev = l.log.Warn()
	case EventPartial:
		ev = l.log.Debug()
	}
	if !ev.Enabled() {
		return
	}

	ev = ev.Str("session_id", sessionID).Str("event", string(eventType))
	for k, v := range data {
		switch val := v.(type) {
		case string:
			ev = ev.Str(k, val)
		case int:
			ev = ev.Int(k, val)
		case bool:
			ev = ev.Bool(k, val)
		case time.Duration:
			ev = ev.Dur(k, val)
		case error:
			ev = ev.AnErr(k, val)
		default:
			ev = ev.Interface(k, val)
		}
	}
	ev.Send()
}
