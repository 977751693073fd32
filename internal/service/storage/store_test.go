package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChaseRain/deckstream/internal/domain"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), 3, nil)
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemory(3),
		"sqlite": sqlite,
	}
}

func presentation(id, title string) *domain.Presentation {
	return &domain.Presentation{
		ID:            id,
		Title:         title,
		OriginalTopic: "topic " + id,
		Language:      domain.LanguageEnglish,
		Theme:         domain.ThemePresets[0],
		Slides: []domain.Slide{
			{Title: "One", Content: domain.Text{"a"}, Layout: domain.LayoutContentLeft, ImageURL: "data:image/png;base64,AAA", IsGeneratingImage: true},
			{Title: "Two", Content: domain.Text{"b"}, Layout: domain.LayoutTitle, ImageURL: "https://cdn.example.com/x.png"},
			{Title: "Three", Content: domain.Text{}, Layout: domain.LayoutChartBar, ChartData: &domain.ChartData{
				Labels:   []string{"x", "y"},
				Datasets: []domain.Dataset{{Label: "d", Data: []float64{1, 2}}},
			}, Rating: &domain.Rating{Type: domain.RatingBad, Reasons: []string{"dull"}}},
		},
	}
}

func TestStore_SaveAndLoadRoundTrip(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Save(ctx, presentation("p1", "Deck")))

			got, err := store.Load(ctx, "p1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "Deck", got.Title)
			require.Len(t, got.Slides, 3)
			assert.Equal(t, "data:image/png;base64,AAA", got.Slides[0].ImageURL)
			assert.False(t, got.Slides[0].IsGeneratingImage)
			assert.Equal(t, "https://cdn.example.com/x.png", got.Slides[1].ImageURL)
			assert.Equal(t, []float64{1, 2}, got.Slides[2].ChartData.Datasets[0].Data)
			assert.Equal(t, []string{"dull"}, got.Slides[2].Rating.Reasons)

			missing, err := store.Load(ctx, "nope")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestStore_ImagesFollowSlidesOnResave(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := presentation("p1", "Deck")
			require.NoError(t, store.Save(ctx, p))

			p.Slides = p.Slides[1:]
			require.NoError(t, store.Save(ctx, p))

			got, err := store.Load(ctx, "p1")
			require.NoError(t, err)
			require.Len(t, got.Slides, 2)
			assert.Equal(t, "https://cdn.example.com/x.png", got.Slides[0].ImageURL)
			assert.Empty(t, got.Slides[1].ImageURL)
		})
	}
}

func TestStore_HistoryListNewestFirstAndCapped(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 1; i <= 4; i++ {
				require.NoError(t, store.Save(ctx, presentation(fmt.Sprintf("p%d", i), fmt.Sprintf("Deck %d", i))))
				time.Sleep(2 * time.Millisecond)
			}

			// an update keeps the entry in place
			updated := presentation("p3", "Renamed")
			updated.Slides = updated.Slides[:1]
			require.NoError(t, store.Save(ctx, updated))

			items, err := store.LoadHistoryList(ctx)
			require.NoError(t, err)
			require.Len(t, items, 3)
			assert.Equal(t, "p4", items[0].ID)
			assert.Equal(t, "p3", items[1].ID)
			assert.Equal(t, "Renamed", items[1].Title)
			assert.Equal(t, 1, items[1].SlideCount)
			assert.Equal(t, "p2", items[2].ID)
			assert.Equal(t, "topic p4", items[0].OriginalTopic)
			assert.Equal(t, domain.ThemePresets[0].Name, items[0].Theme.Name)

			// evicted from the list, but still loadable
			p1, err := store.Load(ctx, "p1")
			require.NoError(t, err)
			assert.NotNil(t, p1)
		})
	}
}

func TestStore_PromptVersions(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Second)
			require.NoError(t, store.AddPrompt(ctx, domain.PromptVersion{ID: "v1", Prompt: "first", CreatedAt: now}))
			require.NoError(t, store.AddPrompt(ctx, domain.PromptVersion{ID: "v2", Prompt: "second", FeedbackSummary: "tweak", CreatedAt: now}))

			versions, err := store.ListPrompts(ctx)
			require.NoError(t, err)
			require.Len(t, versions, 2)
			assert.Equal(t, "v1", versions[0].ID)
			assert.Equal(t, "tweak", versions[1].FeedbackSummary)

			active, err := store.ActivePromptID(ctx)
			require.NoError(t, err)
			assert.Empty(t, active)
			require.NoError(t, store.SetActivePromptID(ctx, "v1"))
			require.NoError(t, store.SetActivePromptID(ctx, "v2"))
			active, err = store.ActivePromptID(ctx)
			require.NoError(t, err)
			assert.Equal(t, "v2", active)

			require.NoError(t, store.ReplacePrompts(ctx, []domain.PromptVersion{{ID: "v3", Prompt: "reset", CreatedAt: now}}))
			versions, err = store.ListPrompts(ctx)
			require.NoError(t, err)
			require.Len(t, versions, 1)
			assert.Equal(t, "v3", versions[0].ID)
		})
	}
}

func TestOpenSQLite_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	first, err := OpenSQLite(path, 0, nil)
	require.NoError(t, err)
	require.NoError(t, first.Save(context.Background(), presentation("p1", "Deck")))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(path, 0, nil)
	require.NoError(t, err)
	defer second.Close()
	got, err := second.Load(context.Background(), "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Deck", got.Title)
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New("s3", "", 0, nil)
	assert.Error(t, err)
}
