package generation

import (
	"context"
	"sync"

	"github.com/ChaseRain/deckstream/internal/domain"
	"github.com/ChaseRain/deckstream/internal/infra/logger"
	"github.com/ChaseRain/deckstream/internal/service/imagegen"
	"github.com/ChaseRain/deckstream/internal/service/taskqueue"
)

// ImageSubmitter is the rate-limited provider queue shared by every feed.
type ImageSubmitter interface {
	Submit(ctx context.Context, req imagegen.Request) <-chan taskqueue.Result[string]
}

type ImageFeedOptions struct {
	Style       string
	AspectRatio string
	Catalog     domain.LayoutCatalog
	Logger      *logger.Logger
}

// ImageFeed is the per-presentation, index-ordered image queue. It hands
// one slide at a time to the shared provider queue, so Clear drops every
// index that has not been submitted yet. A request already submitted runs
// to completion.
type ImageFeed struct {
	doc      *Document
	provider ImageSubmitter
	opts     ImageFeedOptions
	logger   *logger.Logger

	mu      sync.Mutex
	pending []int
	running bool
	idle    chan struct{}
}

func NewImageFeed(doc *Document, provider ImageSubmitter, opts ImageFeedOptions) *ImageFeed {
	if opts.Style == "" {
		opts.Style = "Cinematic Photo"
	}
	if opts.AspectRatio == "" {
		opts.AspectRatio = "16:9"
	}
	if opts.Catalog.Fallback() == "" {
		opts.Catalog = domain.DefaultLayoutCatalog()
	}
	idle := make(chan struct{})
	close(idle)
	return &ImageFeed{
		doc:      doc,
		provider: provider,
		opts:     opts,
		logger:   logger.OrNop(opts.Logger).Named("feed").With("presentation_id", doc.ID()),
		idle:     idle,
	}
}

// Wants reports whether the slide should get a generated image.
func (f *ImageFeed) Wants(s domain.Slide) bool {
	return s.ImagePrompt != "" && !f.opts.Catalog.IsImageless(s.Layout)
}

// Schedule queues the slide at index for an image unless its layout is
// image-less or it has no prompt. It reports whether the slide was queued.
func (f *ImageFeed) Schedule(index int) bool {
	slide, ok := f.doc.Slide(index)
	if !ok || !f.Wants(slide) {
		return false
	}
	return f.enqueue(index)
}

// ScheduleForced queues the slide regardless of its layout, as a manual
// request from the editor does. The slide still needs a prompt.
func (f *ImageFeed) ScheduleForced(index int) bool {
	slide, ok := f.doc.Slide(index)
	if !ok || slide.ImagePrompt == "" {
		return false
	}
	return f.enqueue(index)
}

func (f *ImageFeed) enqueue(index int) bool {
	f.setGenerating(index, true)

	f.mu.Lock()
	f.pending = append(f.pending, index)
	start := !f.running
	if start {
		f.running = true
		f.idle = make(chan struct{})
	}
	f.mu.Unlock()

	if start {
		go f.drain()
	}
	return true
}

// Clear drops every index not yet handed to the provider and resets their
// in-progress flags.
func (f *ImageFeed) Clear() int {
	f.mu.Lock()
	dropped := f.pending
	f.pending = nil
	f.mu.Unlock()

	for _, index := range dropped {
		f.setGenerating(index, false)
	}
	if len(dropped) > 0 {
		f.logger.Info("image feed cleared", "dropped", len(dropped))
	}
	return len(dropped)
}

// Pending reports indexes waiting to be submitted.
func (f *ImageFeed) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Wait blocks until the feed is drained or ctx ends.
func (f *ImageFeed) Wait(ctx context.Context) error {
	f.mu.Lock()
	idle := f.idle
	f.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *ImageFeed) drain() {
	for {
		f.mu.Lock()
		if len(f.pending) == 0 {
			f.running = false
			close(f.idle)
			f.mu.Unlock()
			return
		}
		index := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()

		f.generate(index)
	}
}

func (f *ImageFeed) generate(index int) {
	slide, ok := f.doc.Slide(index)
	if !ok || slide.ImagePrompt == "" {
		f.setGenerating(index, false)
		return
	}

	res := <-f.provider.Submit(context.Background(), imagegen.Request{
		Prompt:      slide.ImagePrompt,
		Style:       f.opts.Style,
		AspectRatio: f.opts.AspectRatio,
	})
	if res.Err != nil {
		f.logger.Warn("slide left without image", "index", index, "attempts", res.Attempts, "error", res.Err)
	}

	f.doc.Mutate(func(p *domain.Presentation) (Update, bool) {
		if index >= len(p.Slides) {
			return Update{}, false
		}
		s := &p.Slides[index]
		if res.Value != "" {
			s.ImageURL = res.Value
		}
		s.IsGeneratingImage = false
		out := s.Clone()
		return Update{Kind: UpdateImage, Index: index, Slide: &out}, true
	})
}

func (f *ImageFeed) setGenerating(index int, on bool) {
	f.doc.Mutate(func(p *domain.Presentation) (Update, bool) {
		if index < len(p.Slides) {
			p.Slides[index].IsGeneratingImage = on
		}
		return Update{}, false
	})
}
