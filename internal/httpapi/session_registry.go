package httpapi

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lukasbauer/aria/internal/assistant"
)

// SessionRegistry tracks live voice sessions and supports graceful draining.
// When draining is enabled, new sessions are rejected while open ones finish
// naturally, until CancelAll ends the stragglers. It only indexes sessions;
// each connection owns its own state.
//
// The mu mutex makes the draining check and wg.Add atomic in Add, so no
// session can slip in between StartDraining and Wait.
type SessionRegistry struct {
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
	sessions map[string]*assistant.Session
	cancels  map[string]context.CancelFunc
}

// SessionInfo is the public summary of a live session.
type SessionInfo struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Turns     int       `json:"turns"`
	Messages  int       `json:"messages"`
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*assistant.Session),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Add registers s with the function that stops it. It returns false if the
// registry is draining, meaning the connection should be refused.
func (sr *SessionRegistry) Add(s *assistant.Session, cancel context.CancelFunc) bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.draining {
		return false
	}
	sr.wg.Add(1)
	sr.sessions[s.ID] = s
	if cancel != nil {
		sr.cancels[s.ID] = cancel
	}
	return true
}

// Done removes the session. Must be called exactly once per successful Add.
func (sr *SessionRegistry) Done(id string) {
	sr.mu.Lock()
	delete(sr.sessions, id)
	delete(sr.cancels, id)
	sr.mu.Unlock()
	sr.wg.Done()
}

// StartDraining makes future Add calls fail.
func (sr *SessionRegistry) StartDraining() {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.draining = true
}

// IsDraining reports whether the registry is in draining mode.
func (sr *SessionRegistry) IsDraining() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.draining
}

// ActiveCount returns the number of live sessions.
func (sr *SessionRegistry) ActiveCount() int {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return len(sr.sessions)
}

// CancelAll stops every live session. Each still calls Done as it unwinds.
func (sr *SessionRegistry) CancelAll() {
	sr.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(sr.cancels))
	for _, c := range sr.cancels {
		cancels = append(cancels, c)
	}
	sr.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}

// Wait blocks until every registered session is Done.
func (sr *SessionRegistry) Wait() {
	sr.wg.Wait()
}

// Get returns the live session with the given id.
func (sr *SessionRegistry) Get(id string) (*assistant.Session, bool) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	s, ok := sr.sessions[id]
	return s, ok
}

// List returns a summary of every live session, oldest first.
func (sr *SessionRegistry) List() []SessionInfo {
	sr.mu.Lock()
	sessions := make([]*assistant.Session, 0, len(sr.sessions))
	for _, s := range sr.sessions {
		sessions = append(sessions, s)
	}
	sr.mu.Unlock()

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionInfo{
			ID:        s.ID,
			CreatedAt: s.CreatedAt,
			Turns:     s.TurnCount(),
			Messages:  len(s.History()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
