package orchestrator

import (
	"context"
	"sync"

	"github.com/ChaseRain/deckstream/internal/domain"
	"github.com/ChaseRain/deckstream/internal/service/generation"
	"github.com/ChaseRain/deckstream/internal/service/history"
	"github.com/ChaseRain/deckstream/pkg/errors"
)

// session is an open editor for one presentation. Edits hold mu, so a
// run claiming the id waits for an in-flight edit before it starts.
type session struct {
	doc      *generation.Document
	feed     *generation.ImageFeed
	history  *history.Manager
	autosave *generation.Autosave

	mu     sync.Mutex
	closed bool
}

func (s *session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.autosave.Stop()
	s.feed.Clear()
}

func errGenerating() error {
	return errors.New(errors.ErrCodeGenerationActive, "presentation is being generated")
}

func (o *Orchestrator) newSession(doc *generation.Document, feed *generation.ImageFeed, start *domain.Presentation) *session {
	hist := history.NewManager(o.opts.HistoryEntries)
	hist.Start(start)
	return &session{
		doc:      doc,
		feed:     feed,
		history:  hist,
		autosave: generation.NewAutosave(doc, o.store, o.opts.AutosaveDelay, o.logger),
	}
}

// handOff installs the editor for a finished run and releases the run's
// claim in one step.
func (o *Orchestrator) handOff(id string, s *session) {
	o.mu.Lock()
	old := o.sessions[id]
	o.sessions[id] = s
	delete(o.active, id)
	o.mu.Unlock()

	if old != nil {
		old.close()
	}
}

// closeSession stops the editor for id and drops its unstarted image work.
func (o *Orchestrator) closeSession(id string) {
	o.mu.Lock()
	s := o.sessions[id]
	delete(o.sessions, id)
	o.mu.Unlock()

	if s != nil {
		dropped := s.feed.Pending()
		s.close()
		o.logger.Info("closed editor session", "presentation_id", id, "pending_images", dropped)
	}
}

// session returns the open editor for id, loading it from storage when
// needed. No session is opened while a run owns id.
func (o *Orchestrator) session(ctx context.Context, id string) (*session, error) {
	o.mu.Lock()
	if _, ok := o.active[id]; ok {
		o.mu.Unlock()
		return nil, errGenerating()
	}
	if s, ok := o.sessions[id]; ok {
		o.mu.Unlock()
		return s, nil
	}
	o.mu.Unlock()

	p, err := o.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "presentation not found: "+id)
	}

	doc := generation.NewDocument(p)
	feed := generation.NewImageFeed(doc, o.images, generation.ImageFeedOptions{
		Style:       o.opts.ImageStyle,
		AspectRatio: o.opts.AspectRatio,
		Catalog:     o.opts.Catalog,
		Logger:      o.logger,
	})
	s := o.newSession(doc, feed, p)

	o.mu.Lock()
	if _, ok := o.active[id]; ok {
		o.mu.Unlock()
		s.close()
		return nil, errGenerating()
	}
	if existing, ok := o.sessions[id]; ok {
		o.mu.Unlock()
		s.close()
		return existing, nil
	}
	o.sessions[id] = s
	o.mu.Unlock()
	return s, nil
}

// Load returns the current state of a presentation. During a run it is the
// run's document as generated so far.
func (o *Orchestrator) Load(ctx context.Context, id string) (*domain.Presentation, error) {
	s, err := o.session(ctx, id)
	if err == nil {
		return s.doc.Snapshot(), nil
	}
	if !errors.Is(err, errors.ErrCodeGenerationActive) {
		return nil, o.fail(err)
	}

	if doc, ok := o.running(id); ok && doc != nil {
		return doc.Snapshot(), nil
	}
	// claimed but not started yet: the stored version is still current
	p, err := o.store.Load(ctx, id)
	if err != nil {
		return nil, o.fail(err)
	}
	if p == nil {
		return nil, o.fail(errors.New(errors.ErrCodeNotFound, "presentation not found: "+id))
	}
	return p, nil
}

// edit runs fn with exclusive use of the editor for id. It is refused
// while a run owns id.
func (o *Orchestrator) edit(ctx context.Context, id string, fn func(s *session) error) error {
	o.setLastError(nil)
	s, err := o.session(ctx, id)
	if err != nil {
		return o.fail(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return o.fail(errGenerating())
	}
	return fn(s)
}

func (o *Orchestrator) persist(ctx context.Context, p *domain.Presentation) error {
	if err := o.store.Save(ctx, p); err != nil {
		o.logger.Error("failed to save presentation", "presentation_id", p.ID, "error", err)
		return o.fail(err)
	}
	return nil
}

// Commit replaces the document with an edited version and records it as
// an undo step.
func (o *Orchestrator) Commit(ctx context.Context, p *domain.Presentation) (*domain.Presentation, error) {
	if p == nil || p.ID == "" {
		return nil, o.fail(errors.New(errors.ErrCodeInvalidReq, "presentation id is required"))
	}
	var committed *domain.Presentation
	err := o.edit(ctx, p.ID, func(s *session) error {
		s.doc.Replace(p.Clone())
		s.history.RecordChange(p)
		committed = s.doc.Snapshot()
		return o.persist(ctx, committed)
	})
	return committed, err
}

// Undo steps one edit back.
func (o *Orchestrator) Undo(ctx context.Context, id string) (*domain.Presentation, error) {
	var restored *domain.Presentation
	err := o.edit(ctx, id, func(s *session) error {
		p, ok := s.history.Undo()
		if !ok {
			return o.fail(errors.New(errors.ErrCodeNothingToUndo, "nothing to undo"))
		}
		restored = o.restore(s, p)
		return o.persist(ctx, restored)
	})
	return restored, err
}

// Redo steps one edit forward.
func (o *Orchestrator) Redo(ctx context.Context, id string) (*domain.Presentation, error) {
	var restored *domain.Presentation
	err := o.edit(ctx, id, func(s *session) error {
		p, ok := s.history.Redo()
		if !ok {
			return o.fail(errors.New(errors.ErrCodeNothingToRedo, "nothing to redo"))
		}
		restored = o.restore(s, p)
		return o.persist(ctx, restored)
	})
	return restored, err
}

func (o *Orchestrator) restore(s *session, p *domain.Presentation) *domain.Presentation {
	s.doc.Replace(p)
	return s.doc.Snapshot()
}

// UndoState reports whether undo and redo are available for id.
func (o *Orchestrator) UndoState(ctx context.Context, id string) (canUndo, canRedo bool, err error) {
	s, err := o.session(ctx, id)
	if err != nil {
		return false, false, err
	}
	return s.history.CanUndo(), s.history.CanRedo(), nil
}

// GenerateImage queues an image for one slide regardless of its layout.
func (o *Orchestrator) GenerateImage(ctx context.Context, id string, index int) error {
	return o.edit(ctx, id, func(s *session) error {
		slide, ok := s.doc.Slide(index)
		if !ok {
			return o.fail(errors.New(errors.ErrCodeInvalidReq, "slide index out of range"))
		}
		if slide.ImagePrompt == "" {
			return o.fail(errors.New(errors.ErrCodeInvalidReq, "slide has no image prompt"))
		}
		if !s.feed.ScheduleForced(index) {
			return o.fail(errors.New(errors.ErrCodeInvalidReq, "slide cannot be queued for an image"))
		}
		return nil
	})
}

// Subscribe follows changes to a presentation, including one that is
// still being generated.
func (o *Orchestrator) Subscribe(ctx context.Context, id string, fn func(generation.Update)) (func(), error) {
	if doc, ok := o.running(id); ok && doc != nil {
		return doc.Subscribe(fn), nil
	}
	s, err := o.session(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.doc.Subscribe(fn), nil
}

// History lists saved presentations, newest first.
func (o *Orchestrator) History(ctx context.Context) ([]domain.HistoryItem, error) {
	items, err := o.store.LoadHistoryList(ctx)
	if err != nil {
		return nil, o.fail(err)
	}
	return items, nil
}

// Close stops every editor session.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	ids := make([]string, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		o.closeSession(id)
	}
}
