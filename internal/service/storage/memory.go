package storage

import (
	"context"
	"sync"
	"time"

	"github.com/ChaseRain/deckstream/internal/domain"
)

// Memory is a process-local Store for tests and ephemeral servers.
type Memory struct {
	mu       sync.Mutex
	limit    int
	docs     map[string]*domain.Presentation
	images   map[string][]blob
	history  []domain.HistoryItem
	prompts  []domain.PromptVersion
	activeID string
	now      func() time.Time
}

func NewMemory(historyLimit int) *Memory {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Memory{
		limit:  historyLimit,
		docs:   make(map[string]*domain.Presentation),
		images: make(map[string][]blob),
		now:    time.Now,
	}
}

func (m *Memory) Save(_ context.Context, p *domain.Presentation) error {
	body, blobs := splitImages(p)
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs[p.ID] = body
	m.images[p.ID] = blobs

	for i := range m.history {
		if m.history[i].ID == p.ID {
			m.history[i].Title = p.Title
			m.history[i].SlideCount = len(p.Slides)
			m.history[i].UpdatedAt = now
			return nil
		}
	}
	item := historyItem(p)
	item.CreatedAt, item.UpdatedAt = now, now
	m.history = append([]domain.HistoryItem{item}, m.history...)
	if len(m.history) > m.limit {
		m.history = m.history[:m.limit]
	}
	return nil
}

func (m *Memory) LoadHistoryList(context.Context) ([]domain.HistoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.HistoryItem{}, m.history...), nil
}

func (m *Memory) Load(_ context.Context, id string) (*domain.Presentation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	p := body.Clone()
	joinImages(p, m.images[id])
	return p, nil
}

func (m *Memory) ListPrompts(context.Context) ([]domain.PromptVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PromptVersion{}, m.prompts...), nil
}

func (m *Memory) AddPrompt(_ context.Context, v domain.PromptVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, v)
	return nil
}

func (m *Memory) ReplacePrompts(_ context.Context, versions []domain.PromptVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append([]domain.PromptVersion{}, versions...)
	return nil
}

func (m *Memory) ActivePromptID(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID, nil
}

func (m *Memory) SetActivePromptID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeID = id
	return nil
}

func (m *Memory) Close() error {
	return nil
}
