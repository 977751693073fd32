package imagegen

import (
	"context"

	"github.com/ChaseRain/deckstream/internal/infra/logger"
	"github.com/ChaseRain/deckstream/internal/service/taskqueue"
	"github.com/ChaseRain/deckstream/pkg/errors"
)

// Generator is the image provider contract.
type Generator interface {
	Generate(ctx context.Context, prompt, style, aspectRatio string) (string, error)
}

// Request is one image task.
type Request struct {
	Prompt      string
	Style       string
	AspectRatio string
}

// Provider serializes every call to a Generator through a rate-limited queue.
// One Provider exists per provider credential.
type Provider struct {
	gen    Generator
	queue  *taskqueue.Queue[string]
	logger *logger.Logger
}

func NewProvider(gen Generator, opts taskqueue.Options) *Provider {
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = errors.IsRateLimited
	}
	if opts.Name == "" {
		opts.Name = "imagegen"
	}
	return &Provider{
		gen:    gen,
		queue:  taskqueue.New[string](opts),
		logger: logger.OrNop(opts.Logger),
	}
}

// Submit queues req. The result's Value is a data URI, or "" when no image
// could be produced; Err is informational only.
func (p *Provider) Submit(ctx context.Context, req Request) <-chan taskqueue.Result[string] {
	return p.queue.Enqueue(ctx, func(ctx context.Context) (string, error) {
		return p.gen.Generate(ctx, req.Prompt, req.Style, req.AspectRatio)
	})
}

// Generate submits req and waits. Failures degrade to "".
func (p *Provider) Generate(ctx context.Context, req Request) string {
	res := <-p.Submit(ctx, req)
	if res.Err != nil {
		p.logger.Warn("image generation degraded to no image", "attempts", res.Attempts, "error", res.Err)
		return ""
	}
	return res.Value
}

// Pending reports image tasks waiting for their turn.
func (p *Provider) Pending() int {
	return p.queue.Len()
}
