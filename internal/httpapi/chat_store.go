package httpapi

import (
	"regexp"
	"sync"
	"time"

	"github.com/lukasbauer/aria/internal/assistant"
)

// DefaultMaxChats caps the number of text chats kept in memory.
const DefaultMaxChats = 256

var chatIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type chatEntry struct {
	session *assistant.TextSession
	used    time.Time
}

// ChatStore keeps text chats keyed by a client-chosen id. Past max chats the
// least recently used one is closed and dropped.
type ChatStore struct {
	mu    sync.Mutex
	max   int
	chats map[string]*chatEntry
	now   func() time.Time
}

// NewChatStore creates an empty store. max <= 0 uses DefaultMaxChats.
func NewChatStore(max int) *ChatStore {
	if max <= 0 {
		max = DefaultMaxChats
	}
	return &ChatStore{max: max, chats: make(map[string]*chatEntry), now: time.Now}
}

// GetOrCreate returns the chat for id, creating it from deps when missing.
func (c *ChatStore) GetOrCreate(id string, deps assistant.Deps) *assistant.TextSession {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.chats[id]; ok {
		e.used = c.now()
		return e.session
	}
	if len(c.chats) >= c.max {
		c.evictOldestLocked()
	}
	s := assistant.NewTextSession(deps)
	c.chats[id] = &chatEntry{session: s, used: c.now()}
	return s
}

// Get returns the chat for id.
func (c *ChatStore) Get(id string) (*assistant.TextSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.chats[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Len returns the number of chats held.
func (c *ChatStore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chats)
}

func (c *ChatStore) evictOldestLocked() {
	var oldest string
	var at time.Time
	for id, e := range c.chats {
		if oldest == "" || e.used.Before(at) {
			oldest, at = id, e.used
		}
	}
	if e, ok := c.chats[oldest]; ok {
		e.session.Close()
		delete(c.chats, oldest)
	}
}
