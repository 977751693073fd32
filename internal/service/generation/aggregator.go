package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/ChaseRain/deckstream/internal/domain"
	"github.com/ChaseRain/deckstream/internal/infra/logger"
	"github.com/ChaseRain/deckstream/internal/service/protocol"
	"github.com/ChaseRain/deckstream/pkg/util"
)

const (
	DefaultSourcesPerSlide = 12
	PendingTitle           = "Generating..."

	sourcesTitle          = "Sources"
	sourcesContinuedTitle = "Sources (continued)"
	sourcesImagePrompt    = "A subtle, professional, abstract background with clean lines and a soft, neutral color palette. Minimalist and elegant. No text, no words, no letters."
)

// Store is the persistence the aggregator commits to when a run ends.
type Store interface {
	Save(ctx context.Context, p *domain.Presentation) error
	LoadHistoryList(ctx context.Context) ([]domain.HistoryItem, error)
}

// Scheduler queues slide images. *ImageFeed implements it.
type Scheduler interface {
	Schedule(index int) bool
}

type Options struct {
	Catalog         domain.LayoutCatalog
	SourcesPerSlide int
	Logger          *logger.Logger
}

// NewPlaceholder builds the document a run starts from: slideCount
// title-less slides that real slides overwrite as they arrive.
func NewPlaceholder(id, topic string, slideCount int, theme domain.Theme, lang domain.Language, fallback domain.Layout) *domain.Presentation {
	slides := make([]domain.Slide, slideCount)
	for i := range slides {
		slides[i] = domain.Slide{Content: domain.Text{}, Layout: fallback}
	}
	return &domain.Presentation{
		ID:                 id,
		Title:              PendingTitle,
		Slides:             slides,
		Theme:              theme,
		OriginalTopic:      topic,
		Language:           lang,
		GenerationProgress: &domain.GenerationProgress{TotalSlides: slideCount},
	}
}

// Aggregator applies one run's events to its Document. It is the only
// writer of slide content until Finish returns.
type Aggregator struct {
	doc       *Document
	images    Scheduler
	store     Store
	opts      Options
	logger    *logger.Logger
	sources   []domain.Source
	scheduled int
	finished  bool
}

func NewAggregator(doc *Document, images Scheduler, store Store, opts Options) *Aggregator {
	if opts.SourcesPerSlide <= 0 {
		opts.SourcesPerSlide = DefaultSourcesPerSlide
	}
	return &Aggregator{
		doc:    doc,
		images: images,
		store:  store,
		opts:   opts,
		logger: logger.OrNop(opts.Logger).With("presentation_id", doc.ID()),
	}
}

// Apply folds one event into the document.
func (a *Aggregator) Apply(ev protocol.Event) {
	switch ev.Kind {
	case protocol.EventTitle:
		a.doc.Mutate(func(p *domain.Presentation) (Update, bool) {
			p.Title = ev.Title
			return Update{Kind: UpdateTitle, Title: ev.Title}, true
		})
	case protocol.EventSlide:
		a.applySlide(ev.Index, ev.Slide)
	case protocol.EventSources:
		a.sources = append(a.sources, ev.Sources...)
	}
}

func (a *Aggregator) applySlide(index int, slide domain.Slide) {
	if index < 0 {
		a.logger.Warn("ignoring slide with negative index", "index", index)
		return
	}
	var at int
	a.doc.Mutate(func(p *domain.Presentation) (Update, bool) {
		at = index
		if index < len(p.Slides) {
			p.Slides[index] = slide
		} else {
			at = len(p.Slides)
			p.Slides = append(p.Slides, slide)
		}
		total := 0
		if p.GenerationProgress != nil {
			total = p.GenerationProgress.TotalSlides
		}
		p.GenerationProgress = &domain.GenerationProgress{LastCompletedSlide: index + 1, TotalSlides: total}
		out := p.Slides[at].Clone()
		return Update{Kind: UpdateSlide, Index: at, Slide: &out}, true
	})

	if a.images == nil {
		return
	}
	if a.images.Schedule(at) {
		a.scheduled++
	}
}

// Scheduled reports how many image tasks this run queued.
func (a *Aggregator) Scheduled() int {
	return a.scheduled
}

// Finish ends the run: placeholders are dropped, source slides appended,
// the document committed to the store and the history list refreshed.
// The finished document is returned even when persisting fails.
func (a *Aggregator) Finish(ctx context.Context) (*domain.Presentation, error) {
	if a.finished {
		return a.doc.Snapshot(), nil
	}
	a.finished = true

	var final *domain.Presentation
	a.doc.Mutate(func(p *domain.Presentation) (Update, bool) {
		slides := p.Slides[:0]
		for _, s := range p.Slides {
			if !s.IsPlaceholder() {
				slides = append(slides, s)
			}
		}
		p.Slides = append(slides, a.sourceSlides()...)
		if len(a.sources) > 0 {
			p.Sources = append([]domain.Source(nil), a.sources...)
		}
		p.GenerationProgress = nil
		final = p.Clone()
		return Update{Kind: UpdateComplete, Presentation: final.Clone()}, true
	})

	a.logger.Info("generation finished", "slides", len(final.Slides), "sources", len(a.sources), "images", a.scheduled)

	if a.store == nil {
		return final, nil
	}
	if err := a.store.Save(ctx, final.Snapshot()); err != nil {
		a.logger.Error("failed to save presentation", "error", err)
		return final, err
	}
	items, err := a.store.LoadHistoryList(ctx)
	if err != nil {
		a.logger.Error("failed to refresh history list", "error", err)
		return final, err
	}
	a.doc.Publish(Update{Kind: UpdateHistory, History: items})
	return final, nil
}

func (a *Aggregator) sourceSlides() []domain.Slide {
	chunks := util.Chunk(a.sources, a.opts.SourcesPerSlide)
	slides := make([]domain.Slide, 0, len(chunks))
	for i, chunk := range chunks {
		title := sourcesTitle
		if i > 0 {
			title = sourcesContinuedTitle
		}
		content := make(domain.Text, len(chunk))
		for j, src := range chunk {
			content[j] = fmt.Sprintf("%s - %s", src.Title, src.URI)
		}
		slides = append(slides, domain.Slide{
			Title:         title,
			Content:       content,
			ImagePrompt:   sourcesImagePrompt,
			Layout:        domain.LayoutTwoColumn,
			IsSourceSlide: true,
		})
	}
	return slides
}

// Run decodes chunks into the document and finishes the run. A stream
// error still finishes the run with whatever arrived; the error is
// returned alongside the document.
func (a *Aggregator) Run(ctx context.Context, p *protocol.Parser, chunks <-chan protocol.Chunk) (*domain.Presentation, error) {
	started := time.Now()
	streamErr := protocol.Decode(ctx, p, chunks, a.Apply)
	if streamErr != nil {
		a.logger.Error("model stream ended early", "error", streamErr, "slides", p.Emitted())
	}

	// persist even when the stream was abandoned
	finishCtx := context.WithoutCancel(ctx)
	final, err := a.Finish(finishCtx)
	a.logger.Debug("run complete", "duration_ms", time.Since(started).Milliseconds())
	if streamErr != nil {
		return final, streamErr
	}
	return final, err
}
