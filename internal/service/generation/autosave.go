package generation

import (
	"context"
	"sync"
	"time"

	"github.com/ChaseRain/deckstream/internal/infra/logger"
)

const DefaultAutosaveDelay = time.Second

// Autosave persists a document shortly after an image lands on it,
// coalescing several images landing together into one save. Edits are
// saved by whoever commits them.
type Autosave struct {
	doc    *Document
	store  Store
	delay  time.Duration
	logger *logger.Logger

	mu          sync.Mutex
	timer       *time.Timer
	stopped     bool
	unsubscribe func()
	saved       chan struct{}
}

func NewAutosave(doc *Document, store Store, delay time.Duration, log *logger.Logger) *Autosave {
	if delay <= 0 {
		delay = DefaultAutosaveDelay
	}
	a := &Autosave{
		doc:    doc,
		store:  store,
		delay:  delay,
		logger: logger.OrNop(log).With("presentation_id", doc.ID()),
		saved:  make(chan struct{}, 1),
	}
	a.unsubscribe = doc.Subscribe(a.onUpdate)
	return a
}

func (a *Autosave) onUpdate(u Update) {
	if u.Kind != UpdateImage {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, a.save)
}

func (a *Autosave) save() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.store.Save(ctx, a.doc.Snapshot()); err != nil {
		a.logger.Error("autosave failed", "error", err)
		return
	}
	a.logger.Debug("autosaved")

	select {
	case a.saved <- struct{}{}:
	default:
	}
}

// Saved signals after each successful save.
func (a *Autosave) Saved() <-chan struct{} {
	return a.saved
}

// Stop cancels a pending save and detaches from the document.
func (a *Autosave) Stop() {
	a.mu.Lock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
	}
	a.mu.Unlock()
	a.unsubscribe()
}
