package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lukasbauer/aria/internal/assistant"
	"github.com/lukasbauer/aria/internal/stt"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeTimeout = 10 * time.Second
	maxAudioMsg  = 1 << 20
)

var errClientClosed = errors.New("client closed connection")

// wsWriter sends frames as text messages.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) WriteFrame(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsWriter) close(code int, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// handleVoiceWS runs one voice session. The client streams binary PCM audio
// frames and receives JSON frames back.
func (r *Router) handleVoiceWS(w http.ResponseWriter, req *http.Request) {
	if r.sessions.IsDraining() {
		http.Error(w, `{"error": "server is shutting down"}`, http.StatusServiceUnavailable)
		return
	}
	if r.stt == nil {
		r.logger.Error().Msg("voice_ws: transcription not configured")
		captureError(req, errors.New("transcription not configured"), "voice_ws: configuration error")
		http.Error(w, `{"error": "transcription not configured"}`, http.StatusServiceUnavailable)
		return
	}

	sampleRate := r.cfg.DefaultSampleRate
	if v := req.URL.Query().Get("sample_rate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 8000 || n > 48000 {
			http.Error(w, `{"error": "invalid sample_rate"}`, http.StatusBadRequest)
			return
		}
		sampleRate = n
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn().Err(err).Msg("voice_ws: upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxAudioMsg)

	out := &wsWriter{conn: conn}
	session := assistant.NewSession(r.deps, out)
	session.SetSampleRate(sampleRate)
	log := r.logger.With().Str("session_id", session.ID).Logger()
	if c := getClaims(req.Context()); c != nil {
		log = log.With().Str("client", c.Subject).Logger()
	}

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	if !r.sessions.Add(session, cancel) {
		out.close(websocket.CloseTryAgainLater, "server is shutting down")
		return
	}
	defer r.sessions.Done(session.ID)

	stream, err := r.stt.Start(ctx, sampleRate)
	if err != nil {
		log.Error().Err(err).Msg("voice_ws: failed to start transcription")
		captureError(req, err, "voice_ws: transcription start failed")
		out.close(websocket.CloseInternalServerErr, "transcription unavailable")
		return
	}
	defer stream.Close()

	log.Info().Int("sample_rate", sampleRate).Msg("voice_ws: session started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := session.Run(gctx, stream)
		// Unblock the reader.
		cancel()
		session.Close()
		_ = conn.Close()
		return err
	})
	g.Go(func() error {
		return r.readAudio(gctx, conn, stream, session)
	})

	err = g.Wait()
	switch {
	case err == nil, errors.Is(err, errClientClosed):
		log.Info().Int("turns", session.TurnCount()).Msg("voice_ws: session ended")
	case errors.Is(err, assistant.ErrConnectionClosed):
		log.Info().Err(err).Msg("voice_ws: client went away")
	default:
		log.Warn().Err(err).Msg("voice_ws: session failed")
		captureError(req, err, "voice_ws: session failed")
	}
}

// readAudio forwards binary messages to the transcription stream until the
// client disconnects or the session ends.
func (r *Router) readAudio(ctx context.Context, conn *websocket.Conn, stream stt.Stream, session *assistant.Session) error {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				return errClientClosed
			}
			return errors.Wrap(err, "read audio")
		}
		if msgType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}

		session.RecordAudio(len(data))
		if err := stream.SendAudio(ctx, data); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "forward audio")
		}
	}
}
