// Package storage persists presentations, the history list and prompt
// versions. Slide images are kept apart from the document body and joined
// back on load.
package storage

import (
	"context"
	"strings"

	"github.com/ChaseRain/deckstream/internal/domain"
	"github.com/ChaseRain/deckstream/internal/infra/logger"
	"github.com/ChaseRain/deckstream/pkg/errors"
)

const DefaultHistoryLimit = 50

type Store interface {
	// Save upserts the document and its history list entry.
	Save(ctx context.Context, p *domain.Presentation) error
	// LoadHistoryList returns list entries newest first.
	LoadHistoryList(ctx context.Context) ([]domain.HistoryItem, error)
	// Load returns nil, nil when id is unknown.
	Load(ctx context.Context, id string) (*domain.Presentation, error)

	// ListPrompts returns prompt versions oldest first.
	ListPrompts(ctx context.Context) ([]domain.PromptVersion, error)
	AddPrompt(ctx context.Context, v domain.PromptVersion) error
	// ReplacePrompts swaps the whole version list.
	ReplacePrompts(ctx context.Context, versions []domain.PromptVersion) error
	ActivePromptID(ctx context.Context) (string, error)
	SetActivePromptID(ctx context.Context, id string) error

	Close() error
}

// New picks the backend by type: "sqlite" or "memory".
func New(storageType, path string, historyLimit int, log *logger.Logger) (Store, error) {
	switch storageType {
	case "memory":
		return NewMemory(historyLimit), nil
	case "sqlite", "":
		return OpenSQLite(path, historyLimit, log)
	default:
		return nil, errors.New(errors.ErrCodeStorage, "unknown storage type: "+storageType)
	}
}

// blob is one image split out of a document body.
type blob struct {
	index int
	data  string
}

func isInlineImage(url string) bool {
	return strings.HasPrefix(url, "data:image")
}

// splitImages returns a copy of p with inline images removed, transient
// flags cleared, and the images that were removed.
func splitImages(p *domain.Presentation) (*domain.Presentation, []blob) {
	body := p.Snapshot()
	var blobs []blob
	for i := range body.Slides {
		if isInlineImage(body.Slides[i].ImageURL) {
			blobs = append(blobs, blob{index: i, data: body.Slides[i].ImageURL})
			body.Slides[i].ImageURL = ""
		}
	}
	return body, blobs
}

func joinImages(p *domain.Presentation, blobs []blob) {
	for _, b := range blobs {
		if b.index < len(p.Slides) && p.Slides[b.index].ImageURL == "" {
			p.Slides[b.index].ImageURL = b.data
		}
	}
}

func historyItem(p *domain.Presentation) domain.HistoryItem {
	return domain.HistoryItem{
		ID:            p.ID,
		Title:         p.Title,
		OriginalTopic: p.OriginalTopic,
		Theme:         p.Theme,
		Language:      p.Language,
		SlideCount:    len(p.Slides),
		Sources:       p.Sources,
	}
}
