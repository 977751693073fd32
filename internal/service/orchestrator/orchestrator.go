package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ChaseRain/deckstream/internal/domain"
	"github.com/ChaseRain/deckstream/internal/infra/limiter"
	"github.com/ChaseRain/deckstream/internal/infra/logger"
	"github.com/ChaseRain/deckstream/internal/service/gemini"
	"github.com/ChaseRain/deckstream/internal/service/generation"
	"github.com/ChaseRain/deckstream/internal/service/protocol"
	"github.com/ChaseRain/deckstream/internal/service/repair"
	"github.com/ChaseRain/deckstream/internal/service/storage"
	"github.com/ChaseRain/deckstream/pkg/errors"
)

// ModelSource streams the line protocol for one presentation.
type ModelSource interface {
	Ready() error
	StreamPresentation(ctx context.Context, req gemini.Request) (<-chan protocol.Chunk, error)
}

type GenerateRequest struct {
	// ID regenerates an existing presentation in place. Empty starts a new one.
	ID          string
	Topic       string
	SlideCount  int
	Audience    string
	Language    domain.Language
	UseSearch   bool
	HighQuality bool
	Theme       string
	// WaitImages keeps the call open until every scheduled image resolved.
	WaitImages bool
	// NoWait fails with RATE_LIMITED instead of queueing for a slot.
	NoWait bool
}

// ProgressEvent is one step of a run as seen by a caller.
type ProgressEvent struct {
	Stage    string
	Message  string
	Progress int
	Data     interface{}
}

const (
	StageStart    = "start"
	StageTitle    = "title"
	StageSlide    = "slide"
	StageImage    = "image"
	StageComplete = "complete"
	StageHistory  = "history"
)

// SlideData is the payload of slide and image stages.
type SlideData struct {
	Index int          `json:"index"`
	Slide domain.Slide `json:"slide"`
}

// ProgressCallback receives events in order on a single goroutine.
type ProgressCallback func(event ProgressEvent)

type Options struct {
	SlideCount      int
	MaxSlideCount   int
	SourcesPerSlide int
	HistoryEntries  int
	ImageStyle      string
	AspectRatio     string
	AutosaveDelay   time.Duration
	Catalog         domain.LayoutCatalog
}

type Orchestrator struct {
	model   ModelSource
	images  generation.ImageSubmitter
	store   storage.Store
	limiter *limiter.Limiter
	logger  *logger.Logger
	opts    Options

	mu       sync.Mutex
	active   map[string]*generation.Document
	sessions map[string]*session
	lastErr  error
}

func New(
	model ModelSource,
	images generation.ImageSubmitter,
	store storage.Store,
	lim *limiter.Limiter,
	log *logger.Logger,
	opts Options,
) *Orchestrator {
	if opts.SlideCount <= 0 {
		opts.SlideCount = 8
	}
	if opts.MaxSlideCount <= 0 {
		opts.MaxSlideCount = 30
	}
	if opts.Catalog.Fallback() == "" {
		opts.Catalog = domain.DefaultLayoutCatalog()
	}
	return &Orchestrator{
		model:    model,
		images:   images,
		store:    store,
		limiter:  lim,
		logger:   logger.OrNop(log),
		opts:     opts,
		active:   make(map[string]*generation.Document),
		sessions: make(map[string]*session),
	}
}

// LastError is the most recent operation failure, cleared when the next
// operation starts.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

func (o *Orchestrator) setLastError(err error) {
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()
}

// fail records err as the shared error signal and returns it.
func (o *Orchestrator) fail(err error) error {
	o.setLastError(err)
	return err
}

// IsGenerating reports whether a run currently owns id.
func (o *Orchestrator) IsGenerating(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[id]
	return ok
}

// InFlight is the number of generation runs holding a limiter slot.
func (o *Orchestrator) InFlight() int {
	return o.limiter.InUse()
}

func (o *Orchestrator) admit(ctx context.Context, noWait bool) (func(), error) {
	if noWait {
		release, ok := o.limiter.TryAcquire()
		if !ok {
			return nil, errors.New(errors.ErrCodeRateLimited, "no generation slot free")
		}
		return release, nil
	}
	release, err := o.limiter.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRateLimited, "rate limit exceeded")
	}
	return release, nil
}

func (o *Orchestrator) claim(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.active[id]; ok {
		return errors.New(errors.ErrCodeGenerationActive, "a generation run is active for this presentation")
	}
	o.active[id] = nil
	return nil
}

// track records the document a claimed run is building.
func (o *Orchestrator) track(id string, doc *generation.Document) {
	o.mu.Lock()
	if _, ok := o.active[id]; ok {
		o.active[id] = doc
	}
	o.mu.Unlock()
}

// running returns the document of an active run for id, if any.
func (o *Orchestrator) running(id string) (*generation.Document, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	doc, ok := o.active[id]
	return doc, ok
}

func (o *Orchestrator) unclaim(id string) {
	o.mu.Lock()
	delete(o.active, id)
	o.mu.Unlock()
}

// Generate runs one streaming generation and returns the finished
// presentation. Events reach onProgress in order; all of them have been
// delivered when Generate returns.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest, onProgress ProgressCallback) (*domain.Presentation, error) {
	o.setLastError(nil)

	if err := o.model.Ready(); err != nil {
		o.logger.Error("generation refused", "error", err)
		return nil, o.fail(err)
	}
	if req.Topic == "" {
		return nil, o.fail(errors.New(errors.ErrCodeInvalidReq, "topic is required"))
	}
	slideCount := req.SlideCount
	if slideCount <= 0 {
		slideCount = o.opts.SlideCount
	}
	if slideCount > o.opts.MaxSlideCount {
		return nil, o.fail(errors.New(errors.ErrCodeInvalidReq, "slide count exceeds the maximum"))
	}
	if req.Language == "" {
		req.Language = domain.LanguageEnglish
	}

	release, err := o.admit(ctx, req.NoWait)
	if err != nil {
		return nil, o.fail(err)
	}
	defer release()

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	if err := o.claim(id); err != nil {
		return nil, o.fail(err)
	}
	claimed := true
	defer func() {
		if claimed {
			o.unclaim(id)
		}
	}()
	o.closeSession(id)

	log := o.logger.With("presentation_id", id)
	log.Info("starting generation",
		"topic", req.Topic,
		"slide_count", slideCount,
		"language", req.Language,
		"use_search", req.UseSearch,
	)

	placeholder := generation.NewPlaceholder(id, req.Topic, slideCount, domain.ThemeByName(req.Theme), req.Language, o.opts.Catalog.Fallback())
	doc := generation.NewDocument(placeholder)
	o.track(id, doc)
	feed := generation.NewImageFeed(doc, o.images, generation.ImageFeedOptions{
		Style:       o.opts.ImageStyle,
		AspectRatio: o.opts.AspectRatio,
		Catalog:     o.opts.Catalog,
		Logger:      o.logger,
	})
	agg := generation.NewAggregator(doc, feed, o.store, generation.Options{
		Catalog:         o.opts.Catalog,
		SourcesPerSlide: o.opts.SourcesPerSlide,
		Logger:          o.logger,
	})

	rel := newRelay(onProgress)
	defer rel.close()
	var completed, lateImages atomic.Bool
	unsubscribe := doc.Subscribe(func(u generation.Update) {
		switch {
		case u.Kind == generation.UpdateComplete:
			completed.Store(true)
		case u.Kind == generation.UpdateImage && completed.Load():
			lateImages.Store(true)
		}
		rel.push(progressFor(u, slideCount))
	})
	defer unsubscribe()

	rel.push(ProgressEvent{
		Stage:    StageStart,
		Message:  "generation started",
		Progress: 0,
		Data:     placeholder.Clone(),
	})

	chunks, err := o.model.StreamPresentation(ctx, gemini.Request{
		Topic:       req.Topic,
		SlideCount:  slideCount,
		Audience:    req.Audience,
		Language:    req.Language,
		UseSearch:   req.UseSearch,
		HighQuality: req.HighQuality,
		Prompt:      o.activePromptText(ctx),
	})
	if err != nil {
		log.Error("failed to start model stream", "error", err)
		return nil, o.fail(err)
	}

	parser := protocol.NewParser(
		protocol.WithCatalog(o.opts.Catalog),
		protocol.WithRepairer(repair.New()),
		protocol.WithLogger(o.logger),
	)
	final, runErr := agg.Run(ctx, parser, chunks)

	// editing is allowed from here on
	o.handOff(id, o.newSession(doc, feed, final))
	claimed = false

	// images that landed before autosave was watching
	if lateImages.Load() {
		if err := o.store.Save(context.WithoutCancel(ctx), doc.Snapshot()); err != nil {
			o.setLastError(err)
			log.Error("failed to save images", "error", err)
		}
	}

	if runErr != nil {
		o.setLastError(runErr)
		log.Warn("generation finished with error", "error", runErr)
	}
	log.Info("generation completed", "slides", len(final.Slides), "images_scheduled", agg.Scheduled())

	if req.WaitImages {
		if err := feed.Wait(ctx); err != nil {
			log.Warn("stopped waiting for images", "error", err)
		}
		final = doc.Snapshot()
	}
	return final, runErr
}

func progressFor(u generation.Update, total int) ProgressEvent {
	switch u.Kind {
	case generation.UpdateTitle:
		return ProgressEvent{Stage: StageTitle, Message: "title decided", Data: u.Title}
	case generation.UpdateSlide:
		progress := 0
		if total > 0 {
			progress = min(100, (u.Index+1)*100/total)
		}
		return ProgressEvent{Stage: StageSlide, Message: "slide ready", Progress: progress, Data: SlideData{Index: u.Index, Slide: *u.Slide}}
	case generation.UpdateImage:
		return ProgressEvent{Stage: StageImage, Message: "image ready", Data: SlideData{Index: u.Index, Slide: *u.Slide}}
	case generation.UpdateComplete:
		return ProgressEvent{Stage: StageComplete, Message: "generation complete", Progress: 100, Data: u.Presentation}
	case generation.UpdateHistory:
		return ProgressEvent{Stage: StageHistory, Message: "history updated", Data: u.History}
	default:
		return ProgressEvent{Stage: string(u.Kind), Data: u.Presentation}
	}
}

// relay hands events to a callback on its own goroutine so a slow consumer
// never holds up the document.
type relay struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []ProgressEvent
	closed bool
	done   chan struct{}
	fn     ProgressCallback
}

func newRelay(fn ProgressCallback) *relay {
	r := &relay{fn: fn, done: make(chan struct{})}
	r.cond = sync.NewCond(&r.mu)
	go r.run()
	return r
}

func (r *relay) push(ev ProgressEvent) {
	if r.fn == nil {
		return
	}
	r.mu.Lock()
	if !r.closed {
		r.queue = append(r.queue, ev)
		r.cond.Signal()
	}
	r.mu.Unlock()
}

func (r *relay) run() {
	defer close(r.done)
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.closed {
			r.cond.Wait()
		}
		if len(r.queue) == 0 {
			r.mu.Unlock()
			return
		}
		batch := r.queue
		r.queue = nil
		r.mu.Unlock()

		for _, ev := range batch {
			r.fn(ev)
		}
	}
}

// close stops accepting events and waits until queued ones are delivered.
func (r *relay) close() {
	r.mu.Lock()
	r.closed = true
	r.cond.Signal()
	r.mu.Unlock()
	<-r.done
}
