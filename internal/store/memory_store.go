package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopclerk/shopclerk/internal/domain"
)

// MemoryAudit is an in-memory AuditStore for tests and ephemeral deployments.
type MemoryAudit struct {
	mu       sync.RWMutex
	sessions map[string]*domain.SessionState
	turns    map[string][]TurnRecord
	nextID   int64
}

// NewMemoryAudit creates an empty in-memory audit store.
func NewMemoryAudit() *MemoryAudit {
	return &MemoryAudit{
		sessions: make(map[string]*domain.SessionState),
		turns:    make(map[string][]TurnRecord),
	}
}

func (m *MemoryAudit) CreateSession(ctx context.Context, state *domain.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[state.ID]; exists {
		return fmt.Errorf("session %s already exists", state.ID)
	}
	m.sessions[state.ID] = state.Clone()
	return nil
}

func (m *MemoryAudit) RecordTurn(ctx context.Context, rec *TurnRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.turns[rec.SessionID] = append(m.turns[rec.SessionID], *rec)
	return nil
}

func (m *MemoryAudit) ListTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	turns := m.turns[sessionID]
	if limit > 0 && len(turns) > limit {
		turns = turns[:limit]
	}
	return append([]TurnRecord(nil), turns...), nil
}

// GetSession returns a clone of the stored base session.
func (m *MemoryAudit) GetSession(ctx context.Context, id string) (*domain.SessionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.sessions[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "session", ID: id}
	}
	return state.Clone(), nil
}

func (m *MemoryAudit) Close() error { return nil }
