package stt

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrStreamClosed is returned by SendAudio after Close.
var ErrStreamClosed = errors.New("stt: stream is closed")

// decoder turns one provider message into zero or more transcript events.
type decoder interface {
	decode(msg []byte) ([]TranscriptEvent, error)
}

// wsStream is the websocket plumbing shared by the provider clients: one
// reader goroutine, a write mutex and a close handshake.
type wsStream struct {
	conn      *websocket.Conn
	dec       decoder
	closeMsg  []byte
	log       zerolog.Logger
	events    chan TranscriptEvent
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	wg        sync.WaitGroup
}

func dialStream(ctx context.Context, url string, headers http.Header, dec decoder, closeMsg []byte, log zerolog.Logger) (*wsStream, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial %s", resp.Status)
		}
		return nil, errors.Wrap(err, "dial")
	}

	s := &wsStream{
		conn:     conn,
		dec:      dec,
		closeMsg: closeMsg,
		log:      log,
		events:   make(chan TranscriptEvent, 100),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop()
	return s, nil
}

func (s *wsStream) SendAudio(ctx context.Context, audio []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, audio)
}

func (s *wsStream) Events() <-chan TranscriptEvent { return s.events }

func (s *wsStream) Errors() <-chan error { return s.errors }

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		if s.closeMsg != nil {
			_ = s.conn.WriteMessage(websocket.TextMessage, s.closeMsg)
		}
		s.mu.Unlock()

		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}

func (s *wsStream) readLoop() {
	defer s.wg.Done()
	defer close(s.events)

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					s.errors <- errors.Wrap(err, "read")
				}
			}
			return
		}

		evs, err := s.dec.decode(msg)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to parse provider message")
			continue
		}
		for _, ev := range evs {
			select {
			case <-s.done:
				return
			case s.events <- ev:
			}
		}
	}
}
