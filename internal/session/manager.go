package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var ErrNotFound = errors.New("session not found")

// Entry is the registry's view of a session.
type Entry struct {
	Session
	Status         Status    `json:"status"`
	Stages         int       `json:"stages"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Manager keeps sessions seen by the transport layer and ends them after inactivity.
// The pipeline itself never depends on it.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Entry
	inactivityTimeout time.Duration
	onExpire          func(Entry)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Entry),
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(Entry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Register records s as active. Registering an existing id refreshes it.
func (m *Manager) Register(s Session) Entry {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[s.ID]
	if !ok {
		e = &Entry{Session: s}
		m.sessions[s.ID] = e
	}
	e.Status = StatusActive
	e.LastActivityAt = now
	return *e
}

func (m *Manager) Get(sessionID string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

// Touch marks activity on a known session and counts one stage call.
func (m *Manager) Touch(sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok || e.Status != StatusActive {
		return ErrNotFound
	}
	e.Stages++
	e.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) End(sessionID string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	e.Status = StatusEnded
	e.LastActivityAt = time.Now().UTC()
	return *e, nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, e := range m.sessions {
		if e.Status == StatusActive {
			count++
		}
	}
	return count
}

// expireInactive ends idle sessions and forgets ones that ended a full timeout ago.
func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []Entry

	m.mu.Lock()
	for id, e := range m.sessions {
		idle := now.Sub(e.LastActivityAt)
		if e.Status != StatusActive {
			if idle >= m.inactivityTimeout {
				delete(m.sessions, id)
			}
			continue
		}
		if idle < m.inactivityTimeout {
			continue
		}
		e.Status = StatusEnded
		e.LastActivityAt = now
		expired = append(expired, *e)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, e := range expired {
			hook(e)
		}
	}
}
