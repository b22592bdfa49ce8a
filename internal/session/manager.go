package session

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/a783925458/phantom-acceptor/internal/metrics"
)

// Manager is the in-process session directory. Reads take a shared lock;
// each lookup is a single read.
type Manager struct {
	logger *zap.Logger

	mu     sync.RWMutex
	byUID  map[string]*Session
	byConn map[string]*Session
}

// NewManager creates an empty directory.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger: logger,
		byUID:  make(map[string]*Session),
		byConn: make(map[string]*Session),
	}
}

// IdentityOf returns the uid bound to conn.
func (m *Manager) IdentityOf(conn Conn) (string, bool) {
	if conn == nil {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byConn[conn.ID()]
	if !ok {
		return "", false
	}
	return s.UID, true
}

// ConnectionOf returns the live connection of uid.
func (m *Manager) ConnectionOf(uid string) (Conn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byUID[uid]
	if !ok {
		return nil, false
	}
	return s.Conn, true
}

// Bind associates uid with conn. If uid was bound to a different
// connection, that connection is returned so the caller can kick it.
func (m *Manager) Bind(uid string, conn Conn, transport string) (previous Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// a connection carries at most one identity
	if old, ok := m.byConn[conn.ID()]; ok && old.UID != uid {
		delete(m.byUID, old.UID)
	}

	if old, ok := m.byUID[uid]; ok && old.Conn.ID() != conn.ID() {
		delete(m.byConn, old.Conn.ID())
		previous = old.Conn
	}

	s := &Session{UID: uid, Conn: conn, Transport: transport, CreatedAt: time.Now()}
	m.byUID[uid] = s
	m.byConn[conn.ID()] = s
	metrics.ActiveSessions.Set(float64(len(m.byUID)))

	m.logger.Info("session bound",
		zap.String("uid", uid),
		zap.String("conn", conn.ID()),
		zap.Bool("replaced", previous != nil),
	)
	return previous
}

// Unbind removes the session held by conn, if any.
func (m *Manager) Unbind(conn Conn) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byConn[conn.ID()]
	if !ok {
		return "", false
	}
	delete(m.byConn, conn.ID())
	if cur, ok := m.byUID[s.UID]; ok && cur == s {
		delete(m.byUID, s.UID)
	}
	metrics.ActiveSessions.Set(float64(len(m.byUID)))

	m.logger.Info("session unbound", zap.String("uid", s.UID), zap.String("conn", conn.ID()))
	return s.UID, true
}

// Kick closes the connection of uid and removes its session.
func (m *Manager) Kick(uid string) bool {
	m.mu.Lock()
	s, ok := m.byUID[uid]
	if ok {
		delete(m.byUID, uid)
		delete(m.byConn, s.Conn.ID())
		metrics.ActiveSessions.Set(float64(len(m.byUID)))
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	if err := s.Conn.Close(); err != nil {
		m.logger.Debug("close kicked connection", zap.String("uid", uid), zap.Error(err))
	}
	m.logger.Info("session kicked", zap.String("uid", uid), zap.String("conn", s.Conn.ID()))
	return true
}

// Get returns the session of uid.
func (m *Manager) Get(uid string) (Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byUID[uid]
	if !ok {
		return Info{}, false
	}
	return s.info(), true
}

// List returns every session sorted by uid.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.byUID))
	for _, s := range m.byUID {
		out = append(out, s.info())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// Count returns the number of bound sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUID)
}

// CloseAll closes every bound connection and clears the directory.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.byUID))
	for _, s := range m.byUID {
		sessions = append(sessions, s)
	}
	m.byUID = make(map[string]*Session)
	m.byConn = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Conn.Close()
	}
	metrics.ActiveSessions.Set(0)
}
