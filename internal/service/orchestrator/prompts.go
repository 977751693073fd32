package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ChaseRain/deckstream/internal/domain"
	"github.com/ChaseRain/deckstream/internal/service/gemini"
	"github.com/ChaseRain/deckstream/internal/service/history"
	"github.com/ChaseRain/deckstream/pkg/errors"
)

const defaultPromptSummary = "Initial default prompt."

// PromptState is the version list together with the active version.
type PromptState struct {
	Versions []domain.PromptVersion `json:"versions"`
	ActiveID string                 `json:"activeId"`
}

// PromptDiff compares two prompt versions line by line.
type PromptDiff struct {
	From    string         `json:"from"`
	To      string         `json:"to"`
	Lines   []history.Line `json:"lines"`
	Added   int            `json:"added"`
	Removed int            `json:"removed"`
	Patch   string         `json:"patch"`
}

func newPromptVersion(prompt, summary string) domain.PromptVersion {
	return domain.PromptVersion{
		ID:              uuid.New().String(),
		Prompt:          prompt,
		CreatedAt:       time.Now().UTC(),
		FeedbackSummary: summary,
	}
}

// Prompts returns every saved version, seeding the built-in prompt the
// first time.
func (o *Orchestrator) Prompts(ctx context.Context) (*PromptState, error) {
	versions, err := o.store.ListPrompts(ctx)
	if err != nil {
		return nil, o.fail(err)
	}
	if len(versions) == 0 {
		seed := newPromptVersion(gemini.DefaultPrompt, defaultPromptSummary)
		if err := o.store.ReplacePrompts(ctx, []domain.PromptVersion{seed}); err != nil {
			return nil, o.fail(err)
		}
		if err := o.store.SetActivePromptID(ctx, seed.ID); err != nil {
			return nil, o.fail(err)
		}
		return &PromptState{Versions: []domain.PromptVersion{seed}, ActiveID: seed.ID}, nil
	}

	active, err := o.store.ActivePromptID(ctx)
	if err != nil {
		return nil, o.fail(err)
	}
	if findPrompt(versions, active) == nil {
		active = versions[len(versions)-1].ID
	}
	return &PromptState{Versions: versions, ActiveID: active}, nil
}

// ActivePrompt returns the version generation runs use.
func (o *Orchestrator) ActivePrompt(ctx context.Context) (domain.PromptVersion, error) {
	state, err := o.Prompts(ctx)
	if err != nil {
		return domain.PromptVersion{}, err
	}
	return *findPrompt(state.Versions, state.ActiveID), nil
}

// activePromptText falls back to the built-in prompt when storage fails.
func (o *Orchestrator) activePromptText(ctx context.Context) string {
	v, err := o.ActivePrompt(ctx)
	if err != nil {
		o.logger.Warn("using built-in prompt", "error", err)
		return gemini.DefaultPrompt
	}
	return v.Prompt
}

// SavePrompt appends a new version and makes it active.
func (o *Orchestrator) SavePrompt(ctx context.Context, prompt, summary string) (domain.PromptVersion, error) {
	o.setLastError(nil)
	if prompt == "" {
		return domain.PromptVersion{}, o.fail(errors.New(errors.ErrCodeInvalidReq, "prompt is required"))
	}
	// seed first so the built-in version stays the oldest entry
	if _, err := o.Prompts(ctx); err != nil {
		return domain.PromptVersion{}, err
	}

	v := newPromptVersion(prompt, summary)
	if err := o.store.AddPrompt(ctx, v); err != nil {
		return domain.PromptVersion{}, o.fail(err)
	}
	if err := o.store.SetActivePromptID(ctx, v.ID); err != nil {
		return domain.PromptVersion{}, o.fail(err)
	}
	o.logger.Info("saved prompt version", "prompt_id", v.ID)
	return v, nil
}

// ActivatePrompt switches generation to an existing version.
func (o *Orchestrator) ActivatePrompt(ctx context.Context, id string) error {
	o.setLastError(nil)
	state, err := o.Prompts(ctx)
	if err != nil {
		return err
	}
	if findPrompt(state.Versions, id) == nil {
		return o.fail(errors.New(errors.ErrCodeNotFound, "prompt version not found: "+id))
	}
	if err := o.store.SetActivePromptID(ctx, id); err != nil {
		return o.fail(err)
	}
	return nil
}

// ResetPrompt discards every version and starts over from the built-in
// prompt.
func (o *Orchestrator) ResetPrompt(ctx context.Context) (*PromptState, error) {
	o.setLastError(nil)
	seed := newPromptVersion(gemini.DefaultPrompt, defaultPromptSummary)
	if err := o.store.ReplacePrompts(ctx, []domain.PromptVersion{seed}); err != nil {
		return nil, o.fail(err)
	}
	if err := o.store.SetActivePromptID(ctx, seed.ID); err != nil {
		return nil, o.fail(err)
	}
	return &PromptState{Versions: []domain.PromptVersion{seed}, ActiveID: seed.ID}, nil
}

// DiffPrompts compares two saved versions.
func (o *Orchestrator) DiffPrompts(ctx context.Context, fromID, toID string) (*PromptDiff, error) {
	state, err := o.Prompts(ctx)
	if err != nil {
		return nil, err
	}
	from := findPrompt(state.Versions, fromID)
	to := findPrompt(state.Versions, toID)
	if from == nil || to == nil {
		return nil, o.fail(errors.New(errors.ErrCodeNotFound, "prompt version not found"))
	}

	lines := history.Diff(from.Prompt, to.Prompt)
	added, removed := history.Stats(lines)
	return &PromptDiff{
		From:    from.ID,
		To:      to.ID,
		Lines:   lines,
		Added:   added,
		Removed: removed,
		Patch:   history.UnifiedPatch(from.Prompt, to.Prompt),
	}, nil
}

func findPrompt(versions []domain.PromptVersion, id string) *domain.PromptVersion {
	for i := range versions {
		if versions[i].ID == id {
			return &versions[i]
		}
	}
	return nil
}
