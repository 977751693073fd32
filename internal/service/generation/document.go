// Package generation folds decoded protocol events and image results into a
// single owned presentation document.
package generation

import (
	"sync"

	"github.com/ChaseRain/deckstream/internal/domain"
)

type UpdateKind string

const (
	UpdateTitle    UpdateKind = "title"
	UpdateSlide    UpdateKind = "slide"
	UpdateImage    UpdateKind = "image"
	UpdateComplete UpdateKind = "complete"
	UpdateHistory  UpdateKind = "history"
	UpdateReplace  UpdateKind = "replace"
)

// Update describes one change to a Document. Slide and Presentation are
// private copies; subscribers may keep them.
type Update struct {
	Kind         UpdateKind
	ID           string
	Index        int
	Title        string
	Slide        *domain.Slide
	Presentation *domain.Presentation
	History      []domain.HistoryItem
}

// Document owns one presentation. All reads and writes go through it and
// every published change is delivered to subscribers in commit order.
type Document struct {
	mu sync.Mutex
	p  *domain.Presentation

	subMu   sync.Mutex
	subs    map[int]func(Update)
	nextSub int
}

func NewDocument(p *domain.Presentation) *Document {
	return &Document{p: p, subs: make(map[int]func(Update))}
}

func (d *Document) ID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.p.ID
}

// Snapshot returns a deep copy of the current state.
func (d *Document) Snapshot() *domain.Presentation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.p.Clone()
}

// Slide returns a copy of the slide at index.
func (d *Document) Slide(index int) (domain.Slide, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.p.Slides) {
		return domain.Slide{}, false
	}
	return d.p.Slides[index].Clone(), true
}

// Mutate runs fn with exclusive access. If fn reports an update, it is
// published to subscribers after the lock is released.
func (d *Document) Mutate(fn func(p *domain.Presentation) (Update, bool)) {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	d.mu.Lock()
	u, publish := fn(d.p)
	id := d.p.ID
	d.mu.Unlock()

	if !publish {
		return
	}
	u.ID = id
	for _, fn := range d.subs {
		fn(u)
	}
}

// Replace swaps the whole document, as an undo or an editor commit does.
func (d *Document) Replace(p *domain.Presentation) {
	d.Mutate(func(cur *domain.Presentation) (Update, bool) {
		*cur = *p.Clone()
		return Update{Kind: UpdateReplace, Presentation: cur.Clone()}, true
	})
}

// Publish delivers u without changing the document.
func (d *Document) Publish(u Update) {
	d.Mutate(func(*domain.Presentation) (Update, bool) { return u, true })
}

// Subscribe registers fn for every later update. Callbacks run on the
// mutating goroutine and must not call back into the Document.
func (d *Document) Subscribe(fn func(Update)) (unsubscribe func()) {
	d.subMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn
	d.subMu.Unlock()

	return func() {
		d.subMu.Lock()
		delete(d.subs, id)
		d.subMu.Unlock()
	}
}
