// Package session keeps a bounded per-session conversation history used to
// fold recent context into retrieval queries.
package session

import (
	"log/slog"
	"sync"
	"time"
)

const (
	defaultCap           = 20
	defaultIdleTTL       = 30 * time.Minute
	cleanupCheckInterval = time.Minute
)

// session is one conversation's bounded history. Each session carries its
// own lock so independent sessions never contend on appends.
type session struct {
	mu         sync.Mutex
	entries    []string
	lastActive time.Time
}

// History tracks per-session conversation entries (alternating query/answer)
// with FIFO eviction beyond a fixed cap. Sessions are created lazily on
// first use and swept after an idle TTL.
type History struct {
	mu       sync.RWMutex
	sessions map[string]*session

	cap     int
	idleTTL time.Duration
	logger  *slog.Logger
	done    chan struct{}
	once    sync.Once
}

// New creates a history store. capacity bounds entries per session; idleTTL
// is how long an untouched session survives before the sweeper drops it.
func New(capacity int, idleTTL time.Duration, logger *slog.Logger) *History {
	if capacity <= 0 {
		capacity = defaultCap
	}
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &History{
		sessions: make(map[string]*session),
		cap:      capacity,
		idleTTL:  idleTTL,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go h.cleanupLoop()
	return h
}

// Append pushes a query/answer exchange onto the session's history,
// evicting oldest entries beyond the cap. The session is created if absent.
func (h *History) Append(sessionID, query, answer string) {
	if sessionID == "" {
		return
	}
	s := h.getOrCreate(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, query, answer)
	if over := len(s.entries) - h.cap; over > 0 {
		s.entries = append(s.entries[:0:0], s.entries[over:]...)
	}
	s.lastActive = time.Now()
}

// Window returns up to n most recent entries for the session, oldest first.
// A missing session yields nil.
func (h *History) Window(sessionID string, n int) []string {
	if sessionID == "" || n <= 0 {
		return nil
	}
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	start := len(s.entries) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, len(s.entries)-start)
	copy(out, s.entries[start:])
	return out
}

// Len reports the number of live sessions.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close stops the idle sweeper.
func (h *History) Close() {
	h.once.Do(func() { close(h.done) })
}

func (h *History) getOrCreate(sessionID string) *session {
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if ok {
		return s
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok = h.sessions[sessionID]; ok {
		return s
	}
	s = &session{lastActive: time.Now()}
	h.sessions[sessionID] = s
	return s
}

func (h *History) cleanupLoop() {
	ticker := time.NewTicker(cleanupCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.sweep(time.Now())
		}
	}
}

// sweep drops sessions idle longer than the TTL.
func (h *History) sweep(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.sessions {
		s.mu.Lock()
		idle := now.Sub(s.lastActive)
		s.mu.Unlock()
		if idle > h.idleTTL {
			delete(h.sessions, id)
			h.logger.Debug("dropped idle session", "session", id, "idle", idle)
		}
	}
}
