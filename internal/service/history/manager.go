// Package history keeps undo/redo snapshots of an open presentation and
// computes line diffs between text versions.
package history

import (
	"sync"

	"github.com/ChaseRain/deckstream/internal/domain"
)

const DefaultMaxEntries = 50

// Manager is a bounded undo stack with a cursor. Committing after an undo
// discards the entries beyond the cursor. One Manager serves one document.
type Manager struct {
	mu      sync.Mutex
	max     int
	entries []*domain.Presentation
	cursor  int
}

func NewManager(maxEntries int) *Manager {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Manager{max: maxEntries, cursor: -1}
}

// Start resets history to the single entry doc.
func (m *Manager) Start(doc *domain.Presentation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = []*domain.Presentation{doc.Snapshot()}
	m.cursor = 0
}

// RecordChange appends doc after the cursor, evicting the oldest entry once
// the cap is exceeded.
func (m *Manager) RecordChange(doc *domain.Presentation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries[:m.cursor+1], doc.Snapshot())
	if over := len(m.entries) - m.max; over > 0 {
		for i := 0; i < over; i++ {
			m.entries[i] = nil
		}
		m.entries = m.entries[over:]
	}
	m.cursor = len(m.entries) - 1
}

// Undo steps back and returns a copy of that entry. ok is false at the
// oldest entry, and the cursor does not move.
func (m *Manager) Undo() (doc *domain.Presentation, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursor <= 0 {
		return nil, false
	}
	m.cursor--
	return m.entries[m.cursor].Clone(), true
}

// Redo steps forward and returns a copy of that entry. ok is false at the
// newest entry.
func (m *Manager) Redo() (doc *domain.Presentation, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursor >= len(m.entries)-1 {
		return nil, false
	}
	m.cursor++
	return m.entries[m.cursor].Clone(), true
}

func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor > 0
}

func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor < len(m.entries)-1
}

// Current returns a copy of the entry at the cursor, or nil before Start.
func (m *Manager) Current() *domain.Presentation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursor < 0 {
		return nil
	}
	return m.entries[m.cursor].Clone()
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.cursor = -1
}
