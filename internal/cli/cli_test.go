package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChaseRain/deckstream/internal/domain"
	"github.com/ChaseRain/deckstream/internal/service/storage"
)

const recorded = `Sure, here is your deck.
PRES_TITLE: **Coral Reefs**
SLIDE_START
TITLE: Why reefs matter
LAYOUT: content_left
CONTENT: Nurseries for *fish*
CONTENT: Coastal protection
NOTES: Open with a question.
IMAGE_PROMPT: a colorful reef
SLIDE_END
SLIDE_START
TITLE: Bleaching
LAYOUT: chart_bar
CHART_DATA: {"labels":["2016","2020"],"datasets":[{"label":"Events","data":[3,5]}]}
SLIDE_END
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	resetFlags(t)

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// resetFlags puts every subcommand flag back to its default so one
// execution does not leak into the next.
func resetFlags(t *testing.T) {
	t.Helper()
	flags := map[*cobra.Command][]string{
		replayCmd: {"topic", "slides", "chunk-size", "sources-per-slide", "db"},
		diffCmd:   {"patch"},
	}
	for cmd, names := range flags {
		for _, name := range names {
			f := cmd.Flags().Lookup(name)
			require.NotNil(t, f, name)
			require.NoError(t, f.Value.Set(f.DefValue))
			f.Changed = false
		}
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func decodePresentation(t *testing.T, out string) domain.Presentation {
	t.Helper()
	var p domain.Presentation
	require.NoError(t, json.Unmarshal([]byte(out), &p), out)
	return p
}

func TestVersionCmd_Executes(t *testing.T) {
	originalVersion := version
	version = "test-version-1.0.0"
	defer func() { version = originalVersion }()

	out, err := execute(t, "version")
	assert.NoError(t, err)
	assert.Contains(t, out, "deckgen version test-version-1.0.0")
}

func TestReplayCmd(t *testing.T) {
	path := writeFile(t, "stream.txt", recorded)

	out, err := execute(t, "replay", path)
	require.NoError(t, err)

	p := decodePresentation(t, out)
	assert.Equal(t, "Coral Reefs", p.Title)
	require.Len(t, p.Slides, 2)
	assert.Equal(t, domain.Text{"Nurseries for fish", "Coastal protection"}, p.Slides[0].Content)
	assert.Equal(t, domain.LayoutChartBar, p.Slides[1].Layout)
	require.NotNil(t, p.Slides[1].ChartData)
	assert.Equal(t, []string{"2016", "2020"}, p.Slides[1].ChartData.Labels)
	assert.Empty(t, p.Slides[0].ImageURL)
	assert.Nil(t, p.GenerationProgress)
}

func TestReplayCmd_ChunkingDoesNotChangeResult(t *testing.T) {
	path := writeFile(t, "stream.txt", recorded)

	whole, err := execute(t, "replay", path)
	require.NoError(t, err)
	tiny, err := execute(t, "replay", path, "--chunk-size", "3")
	require.NoError(t, err)

	a, b := decodePresentation(t, whole), decodePresentation(t, tiny)
	assert.Equal(t, a.Title, b.Title)
	assert.Equal(t, a.Slides, b.Slides)
}

func TestReplayCmd_SavesToDatabase(t *testing.T) {
	path := writeFile(t, "stream.txt", recorded)
	db := filepath.Join(t.TempDir(), "replay.db")

	out, err := execute(t, "replay", path, "--db", db)
	require.NoError(t, err)
	p := decodePresentation(t, out)

	store, err := storage.New("sqlite", db, 10, nil)
	require.NoError(t, err)
	defer store.Close()
	saved, err := store.Load(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "Coral Reefs", saved.Title)
}

func TestReplayCmd_MissingFile(t *testing.T) {
	_, err := execute(t, "replay", filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestDiffCmd(t *testing.T) {
	oldPath := writeFile(t, "old.txt", "alpha\nbeta\ngamma")
	newPath := writeFile(t, "new.txt", "alpha\nBETA\ngamma")

	out, err := execute(t, "diff", oldPath, newPath)
	require.NoError(t, err)
	want := []string{"  alpha", "- beta", "+ BETA", "  gamma", "1 added, 1 removed"}
	assert.Equal(t, want, strings.Split(strings.TrimRight(out, "\n"), "\n"))

	out, err = execute(t, "diff", oldPath, newPath, "--patch")
	require.NoError(t, err)
	assert.Contains(t, out, "@@")
	assert.Contains(t, out, "+BETA")

	// a --patch run must not carry over into the next plain run
	out, err = execute(t, "diff", oldPath, newPath)
	require.NoError(t, err)
	assert.Equal(t, want, strings.Split(strings.TrimRight(out, "\n"), "\n"))
}

func TestChunked(t *testing.T) {
	var got []string
	for c := range chunked("abcdefg", 3) {
		got = append(got, c.Text)
	}
	assert.Equal(t, []string{"abc", "def", "g"}, got)

	var whole []string
	for c := range chunked("abc", 0) {
		whole = append(whole, c.Text)
	}
	assert.Equal(t, []string{"abc"}, whole)

	assert.Empty(t, chunked("", 0))
}
