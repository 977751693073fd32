package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChaseRain/deckstream/internal/domain"
	"github.com/ChaseRain/deckstream/internal/infra/limiter"
	"github.com/ChaseRain/deckstream/internal/service/gemini"
	"github.com/ChaseRain/deckstream/internal/service/generation"
	"github.com/ChaseRain/deckstream/internal/service/imagegen"
	"github.com/ChaseRain/deckstream/internal/service/protocol"
	"github.com/ChaseRain/deckstream/internal/service/storage"
	"github.com/ChaseRain/deckstream/internal/service/taskqueue"
	"github.com/ChaseRain/deckstream/pkg/errors"
)

const demoStream = `PRES_TITLE: Tide Pools
SLIDE_START
TITLE: Welcome
LAYOUT: title
CONTENT: A short tour
IMAGE_PROMPT: rocky shore at dawn
SLIDE_END
SLIDE_START
TITLE: Who lives there
LAYOUT: content_left
CONTENT: Anemones
CONTENT: Hermit crabs
IMAGE_PROMPT: anemone close-up
SLIDE_END
`

const testImage = "data:image/png;base64,AAAA"

type fakeModel struct {
	notReady error
	text     string
	gate     chan struct{}

	mu       sync.Mutex
	requests []gemini.Request
}

func (m *fakeModel) Ready() error { return m.notReady }

func (m *fakeModel) StreamPresentation(ctx context.Context, req gemini.Request) (<-chan protocol.Chunk, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	ch := make(chan protocol.Chunk)
	go func() {
		defer close(ch)
		if m.gate != nil {
			select {
			case <-m.gate:
			case <-ctx.Done():
				return
			}
		}
		select {
		case ch <- protocol.Chunk{Text: m.text}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

func (m *fakeModel) lastRequest() gemini.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

type instantImages struct {
	mu      sync.Mutex
	prompts []string
}

func (i *instantImages) Submit(_ context.Context, req imagegen.Request) <-chan taskqueue.Result[string] {
	i.mu.Lock()
	i.prompts = append(i.prompts, req.Prompt)
	i.mu.Unlock()

	ch := make(chan taskqueue.Result[string], 1)
	ch <- taskqueue.Result[string]{Value: testImage, Attempts: 1}
	close(ch)
	return ch
}

func (i *instantImages) submitted() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.prompts...)
}

func newTestOrchestrator(t *testing.T, model *fakeModel) (*Orchestrator, *instantImages, storage.Store) {
	t.Helper()
	images := &instantImages{}
	store := storage.NewMemory(10)
	o := New(model, images, store, limiter.New(4, 0), nil, Options{
		SlideCount:    2,
		AutosaveDelay: 10 * time.Millisecond,
	})
	t.Cleanup(o.Close)
	return o, images, store
}

func generate(t *testing.T, o *Orchestrator, req GenerateRequest) *domain.Presentation {
	t.Helper()
	if req.Topic == "" {
		req.Topic = "tide pools"
	}
	p, err := o.Generate(context.Background(), req, nil)
	require.NoError(t, err)
	return p
}

func TestGenerate_StreamsAndPersists(t *testing.T) {
	o, images, store := newTestOrchestrator(t, &fakeModel{text: demoStream})

	var stages []string
	final, err := o.Generate(context.Background(), GenerateRequest{Topic: "tide pools", WaitImages: true}, func(ev ProgressEvent) {
		stages = append(stages, ev.Stage)
	})
	require.NoError(t, err)

	assert.Equal(t, "Tide Pools", final.Title)
	require.Len(t, final.Slides, 2)
	assert.Empty(t, final.Slides[0].ImageURL, "title layout gets no image")
	assert.Equal(t, testImage, final.Slides[1].ImageURL)
	assert.Equal(t, []string{"anemone close-up"}, images.submitted())

	require.NotEmpty(t, stages)
	assert.Equal(t, StageStart, stages[0])
	assert.Contains(t, stages, StageTitle)
	assert.Contains(t, stages, StageImage)
	assert.Less(t, indexOf(stages, StageComplete), indexOf(stages, StageHistory))

	saved, err := store.Load(context.Background(), final.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "Tide Pools", saved.Title)
	assert.False(t, o.IsGenerating(final.ID))
	assert.NoError(t, o.LastError())
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

func TestGenerate_UsesActivePrompt(t *testing.T) {
	model := &fakeModel{text: demoStream}
	o, _, _ := newTestOrchestrator(t, model)

	_, err := o.SavePrompt(context.Background(), "custom {topic}", "shorter")
	require.NoError(t, err)
	generate(t, o, GenerateRequest{SlideCount: 2})

	req := model.lastRequest()
	assert.Equal(t, "custom {topic}", req.Prompt)
	assert.Equal(t, 2, req.SlideCount)
	assert.Equal(t, domain.LanguageEnglish, req.Language)
}

func TestGenerate_Refusals(t *testing.T) {
	t.Run("not initialized", func(t *testing.T) {
		o, _, _ := newTestOrchestrator(t, &fakeModel{notReady: errors.New(errors.ErrCodeNotInitialized, "no key")})
		_, err := o.Generate(context.Background(), GenerateRequest{Topic: "x"}, nil)
		assert.True(t, errors.Is(err, errors.ErrCodeNotInitialized))
		assert.Equal(t, err, o.LastError())
	})

	t.Run("missing topic", func(t *testing.T) {
		o, _, _ := newTestOrchestrator(t, &fakeModel{})
		_, err := o.Generate(context.Background(), GenerateRequest{}, nil)
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidReq))
	})

	t.Run("too many slides", func(t *testing.T) {
		o, _, _ := newTestOrchestrator(t, &fakeModel{})
		_, err := o.Generate(context.Background(), GenerateRequest{Topic: "x", SlideCount: 31}, nil)
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidReq))
	})

	t.Run("limiter full", func(t *testing.T) {
		o := New(&fakeModel{text: demoStream}, &instantImages{}, storage.NewMemory(10), limiter.New(1, 0), nil, Options{})
		t.Cleanup(o.Close)
		release, err := o.limiter.Acquire(context.Background())
		require.NoError(t, err)
		defer release()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = o.Generate(ctx, GenerateRequest{Topic: "x"}, nil)
		assert.True(t, errors.IsRateLimited(err))
	})
}

func TestGenerate_NoWait(t *testing.T) {
	model := &fakeModel{text: demoStream, gate: make(chan struct{})}
	o := New(model, &instantImages{}, storage.NewMemory(10), limiter.New(1, 0), nil, Options{SlideCount: 2})
	t.Cleanup(o.Close)
	assert.Equal(t, 0, o.InFlight())

	done := make(chan error, 1)
	go func() {
		_, err := o.Generate(context.Background(), GenerateRequest{Topic: "first"}, nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return o.InFlight() == 1 }, time.Second, time.Millisecond)

	start := time.Now()
	_, err := o.Generate(context.Background(), GenerateRequest{Topic: "second", NoWait: true}, nil)
	assert.True(t, errors.IsRateLimited(err))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(model.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 0, o.InFlight())

	_, err = o.Generate(context.Background(), GenerateRequest{Topic: "third", NoWait: true}, nil)
	assert.NoError(t, err)
}

func TestGenerate_SingleWriterPerPresentation(t *testing.T) {
	model := &fakeModel{text: demoStream}
	o, _, _ := newTestOrchestrator(t, model)
	first := generate(t, o, GenerateRequest{})

	model.gate = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := o.Generate(context.Background(), GenerateRequest{ID: first.ID, Topic: "again"}, nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return o.IsGenerating(first.ID) }, time.Second, time.Millisecond)

	_, err := o.Generate(context.Background(), GenerateRequest{ID: first.ID, Topic: "again"}, nil)
	assert.True(t, errors.Is(err, errors.ErrCodeGenerationActive))

	edited := first.Clone()
	edited.Title = "Edited"
	_, err = o.Commit(context.Background(), edited)
	assert.True(t, errors.Is(err, errors.ErrCodeGenerationActive))
	assert.True(t, errors.Is(o.GenerateImage(context.Background(), first.ID, 1), errors.ErrCodeGenerationActive))

	close(model.gate)
	require.NoError(t, <-done)
	assert.False(t, o.IsGenerating(first.ID))

	_, err = o.Commit(context.Background(), edited)
	assert.NoError(t, err)
}

func TestSession_NotOpenedDuringRun(t *testing.T) {
	model := &fakeModel{text: demoStream}
	o, _, store := newTestOrchestrator(t, model)
	ctx := context.Background()
	first := generate(t, o, GenerateRequest{})

	edited := first.Clone()
	edited.Title = "Edited"
	_, err := o.Commit(ctx, edited)
	require.NoError(t, err)

	model.gate = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := o.Generate(ctx, GenerateRequest{ID: first.ID, Topic: "again"}, nil)
		done <- err
	}()
	require.Eventually(t, func() bool {
		doc, ok := o.running(first.ID)
		return ok && doc != nil
	}, time.Second, time.Millisecond)

	current, err := o.Load(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, generation.PendingTitle, current.Title)

	_, _, err = o.UndoState(ctx, first.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeGenerationActive))

	o.mu.Lock()
	_, open := o.sessions[first.ID]
	o.mu.Unlock()
	assert.False(t, open)

	saved, err := store.Load(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Edited", saved.Title)

	close(model.gate)
	require.NoError(t, <-done)

	// nothing stale is left to autosave over the new run
	time.Sleep(50 * time.Millisecond)
	saved, err = store.Load(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tide Pools", saved.Title)

	current, err = o.Load(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tide Pools", current.Title)
}

func TestSession_ClaimedBeforeStart(t *testing.T) {
	o, _, store := newTestOrchestrator(t, &fakeModel{})
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &domain.Presentation{ID: "saved", Title: "From disk"}))

	require.NoError(t, o.claim("saved"))
	loaded, err := o.Load(ctx, "saved")
	require.NoError(t, err)
	assert.Equal(t, "From disk", loaded.Title)

	_, err = o.Commit(ctx, &domain.Presentation{ID: "saved", Title: "Edited"})
	assert.True(t, errors.Is(err, errors.ErrCodeGenerationActive))

	o.mu.Lock()
	assert.Empty(t, o.sessions)
	o.mu.Unlock()

	o.unclaim("saved")
	_, err = o.Commit(ctx, &domain.Presentation{ID: "saved", Title: "Edited"})
	assert.NoError(t, err)
}

func TestSession_CommitUndoRedo(t *testing.T) {
	o, _, store := newTestOrchestrator(t, &fakeModel{text: demoStream})
	ctx := context.Background()
	p := generate(t, o, GenerateRequest{})

	canUndo, canRedo, err := o.UndoState(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, canUndo)
	assert.False(t, canRedo)

	_, err = o.Undo(ctx, p.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeNothingToUndo))
	assert.True(t, errors.Is(o.LastError(), errors.ErrCodeNothingToUndo))

	edited := p.Clone()
	edited.Title = "Rock Pools"
	committed, err := o.Commit(ctx, edited)
	require.NoError(t, err)
	assert.Equal(t, "Rock Pools", committed.Title)
	assert.NoError(t, o.LastError())

	undone, err := o.Undo(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tide Pools", undone.Title)

	saved, err := store.Load(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tide Pools", saved.Title)

	redone, err := o.Redo(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rock Pools", redone.Title)

	_, err = o.Redo(ctx, p.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeNothingToRedo))

	current, err := o.Load(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rock Pools", current.Title)
}

func TestSession_LoadsFromStorage(t *testing.T) {
	o, _, store := newTestOrchestrator(t, &fakeModel{})
	ctx := context.Background()

	p := &domain.Presentation{
		ID:     "saved",
		Title:  "From disk",
		Slides: []domain.Slide{{Title: "One", Layout: domain.LayoutContentLeft, ImagePrompt: "sea"}},
	}
	require.NoError(t, store.Save(ctx, p))

	loaded, err := o.Load(ctx, "saved")
	require.NoError(t, err)
	assert.Equal(t, "From disk", loaded.Title)

	_, err = o.Load(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	items, err := o.History(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "saved", items[0].ID)
}

func TestSession_GenerateImage(t *testing.T) {
	o, images, store := newTestOrchestrator(t, &fakeModel{})
	ctx := context.Background()

	p := &domain.Presentation{
		ID:    "deck",
		Title: "Deck",
		Slides: []domain.Slide{
			{Title: "Cover", Layout: domain.LayoutTitle, ImagePrompt: "harbor"},
			{Title: "Plain", Layout: domain.LayoutContentLeft},
		},
	}
	require.NoError(t, store.Save(ctx, p))

	assert.True(t, errors.Is(o.GenerateImage(ctx, "deck", 5), errors.ErrCodeInvalidReq))
	assert.True(t, errors.Is(o.GenerateImage(ctx, "deck", 1), errors.ErrCodeInvalidReq))

	// manual requests ignore the image-less layout rule
	require.NoError(t, o.GenerateImage(ctx, "deck", 0))
	require.Eventually(t, func() bool {
		cur, err := o.Load(ctx, "deck")
		return err == nil && cur.Slides[0].ImageURL == testImage
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"harbor"}, images.submitted())

	// autosave picks up the image
	require.Eventually(t, func() bool {
		saved, err := store.Load(ctx, "deck")
		return err == nil && saved.Slides[0].ImageURL == testImage
	}, time.Second, 5*time.Millisecond)
}

func TestPrompts_Versions(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &fakeModel{})
	ctx := context.Background()

	state, err := o.Prompts(ctx)
	require.NoError(t, err)
	require.Len(t, state.Versions, 1)
	seed := state.Versions[0]
	assert.Equal(t, gemini.DefaultPrompt, seed.Prompt)
	assert.Equal(t, defaultPromptSummary, seed.FeedbackSummary)
	assert.Equal(t, seed.ID, state.ActiveID)

	_, err = o.SavePrompt(ctx, "", "empty")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidReq))

	v2, err := o.SavePrompt(ctx, "line one\nline two\n", "tweak")
	require.NoError(t, err)
	active, err := o.ActivePrompt(ctx)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, active.ID)

	v3, err := o.SavePrompt(ctx, "line one\nline 2\n", "tweak again")
	require.NoError(t, err)

	state, err = o.Prompts(ctx)
	require.NoError(t, err)
	require.Len(t, state.Versions, 3)
	assert.Equal(t, []string{seed.ID, v2.ID, v3.ID}, []string{state.Versions[0].ID, state.Versions[1].ID, state.Versions[2].ID})

	require.NoError(t, o.ActivatePrompt(ctx, v2.ID))
	active, err = o.ActivePrompt(ctx)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, active.ID)
	assert.True(t, errors.Is(o.ActivatePrompt(ctx, "nope"), errors.ErrCodeNotFound))

	diff, err := o.DiffPrompts(ctx, v2.ID, v3.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, diff.Added)
	assert.Equal(t, 1, diff.Removed)
	assert.Contains(t, diff.Patch, "+line 2")

	_, err = o.DiffPrompts(ctx, v2.ID, "nope")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	reset, err := o.ResetPrompt(ctx)
	require.NoError(t, err)
	require.Len(t, reset.Versions, 1)
	assert.Equal(t, gemini.DefaultPrompt, reset.Versions[0].Prompt)
	assert.Equal(t, reset.Versions[0].ID, reset.ActiveID)
}
