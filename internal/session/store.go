package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chatwire/chatwire/internal/logging"
	"github.com/chatwire/chatwire/internal/shared/id"
)

// CloseNormal is the websocket normal-closure code. Closing with it signals
// an intentional disconnect that must not trigger client auto-reconnect.
const CloseNormal = 1000

// CreateOptions configures a new session.
type CreateOptions struct {
	// ClientID, when set, becomes the session id so reconnecting clients
	// land on the same session. Otherwise a fresh id is generated.
	ClientID string
	Socket   Socket
	Metadata map[string]any
}

// Stats summarizes the store for health reporting.
type Stats struct {
	TotalSessions  int `json:"totalSessions"`
	ActiveSessions int `json:"activeSessions"`
}

// Store is the keyed registry of session records. It owns the lifecycle:
// create, attach, reset, destroy, and the idle expiry sweep.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *logging.Logger
}

// NewStore creates an empty session store.
func NewStore(logger *logging.Logger) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		logger:   logger.Named("session"),
	}
}

// Create builds and registers a new session. An existing session under the
// same id is fully destroyed first, so no orphaned socket or generation
// survives the replacement.
func (st *Store) Create(opts CreateOptions) *Session {
	sessionID := opts.ClientID
	if sessionID == "" {
		sessionID = id.NewSessionID().String()
	}

	st.Destroy(sessionID)

	now := time.Now()
	metadata := make(map[string]any, len(opts.Metadata))
	for k, v := range opts.Metadata {
		metadata[k] = v
	}
	s := &Session{
		id:           sessionID,
		socket:       opts.Socket,
		metadata:     metadata,
		createdAt:    now,
		lastActivity: now,
	}

	st.mu.Lock()
	st.sessions[sessionID] = s
	st.mu.Unlock()

	st.logger.Info("Session created", zap.String("session_id", sessionID))
	return s
}

// Get returns the session for id, if it exists.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Exists reports whether a session with this id is registered.
func (st *Store) Exists(id string) bool {
	_, ok := st.Get(id)
	return ok
}

// GetBySocket finds the session currently owning sock.
func (st *Store) GetBySocket(sock Socket) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	for _, s := range st.sessions {
		if s.Socket() == sock {
			return s, true
		}
	}
	return nil, false
}

// AttachSocket installs sock on the session, closing any prior socket first.
// Returns false if the session does not exist.
func (st *Store) AttachSocket(id string, sock Socket) bool {
	s, ok := st.Get(id)
	if !ok {
		return false
	}
	s.AttachSocket(sock)
	st.logger.Info("Socket attached to session", zap.String("session_id", id))
	return true
}

// Destroy aborts any active generation, closes the socket, and removes the
// session. Returns false for an unknown id.
func (st *Store) Destroy(id string) bool {
	st.mu.Lock()
	s, ok := st.sessions[id]
	if ok {
		delete(st.sessions, id)
	}
	st.mu.Unlock()

	if !ok {
		return false
	}

	s.AbortGeneration()
	if sock := s.Socket(); sock != nil {
		_ = sock.Close(CloseNormal, "Session destroyed")
	}
	st.logger.Info("Session destroyed", zap.String("session_id", id))
	return true
}

// DestroyBySocket destroys whichever session owns sock, if any.
func (st *Store) DestroyBySocket(sock Socket) {
	if s, ok := st.GetBySocket(sock); ok {
		st.Destroy(s.ID())
	}
}

// SweepExpired destroys every session idle for longer than maxAge and
// returns the count destroyed.
func (st *Store) SweepExpired(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	st.mu.RLock()
	var expired []string
	for sid, s := range st.sessions {
		if s.LastActivity().Before(cutoff) {
			expired = append(expired, sid)
		}
	}
	st.mu.RUnlock()

	for _, sid := range expired {
		st.Destroy(sid)
	}

	if len(expired) > 0 {
		st.logger.Info("Swept stale sessions", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Stats returns session counts; a session is active if it saw activity in
// the last five minutes.
func (st *Store) Stats() Stats {
	st.mu.RLock()
	defer st.mu.RUnlock()

	cutoff := time.Now().Add(-5 * time.Minute)
	active := 0
	for _, s := range st.sessions {
		if s.LastActivity().After(cutoff) {
			active++
		}
	}
	return Stats{TotalSessions: len(st.sessions), ActiveSessions: active}
}

// Shutdown destroys all sessions.
func (st *Store) Shutdown() {
	st.mu.RLock()
	ids := make([]string, 0, len(st.sessions))
	for sid := range st.sessions {
		ids = append(ids, sid)
	}
	st.mu.RUnlock()

	for _, sid := range ids {
		st.Destroy(sid)
	}
	st.logger.Info("Session store shutdown complete")
}
