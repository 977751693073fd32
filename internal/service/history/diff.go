package history

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type LineKind string

const (
	LineSame    LineKind = "same"
	LineAdded   LineKind = "added"
	LineRemoved LineKind = "removed"
)

type Line struct {
	Text string   `json:"text"`
	Kind LineKind `json:"kind"`
}

// Diff returns a minimal line edit script turning oldText into newText,
// from a longest-common-subsequence table over the newline-split lines.
func Diff(oldText, newText string) []Line {
	a := strings.Split(oldText, "\n")
	b := strings.Split(newText, "\n")
	n, m := len(a), len(b)

	// lcs[i][j] is the LCS length of a[i:] and b[j:].
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	out := make([]Line, 0, n+m-lcs[0][0])
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			out = append(out, Line{Text: a[i], Kind: LineSame})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			out = append(out, Line{Text: a[i], Kind: LineRemoved})
			i++
		default:
			out = append(out, Line{Text: b[j], Kind: LineAdded})
			j++
		}
	}
	for ; i < n; i++ {
		out = append(out, Line{Text: a[i], Kind: LineRemoved})
	}
	for ; j < m; j++ {
		out = append(out, Line{Text: b[j], Kind: LineAdded})
	}
	return out
}

// Apply replays script against oldText and returns the new text. It fails
// if the script's same/removed lines do not match oldText.
func Apply(oldText string, script []Line) (string, error) {
	a := strings.Split(oldText, "\n")
	var out []string
	i := 0
	for _, l := range script {
		switch l.Kind {
		case LineSame, LineRemoved:
			if i >= len(a) || a[i] != l.Text {
				return "", fmt.Errorf("script does not match line %d", i+1)
			}
			if l.Kind == LineSame {
				out = append(out, l.Text)
			}
			i++
		case LineAdded:
			out = append(out, l.Text)
		default:
			return "", fmt.Errorf("unknown line kind %q", l.Kind)
		}
	}
	if i != len(a) {
		return "", fmt.Errorf("script stops at line %d of %d", i, len(a))
	}
	return strings.Join(out, "\n"), nil
}

// Stats counts changed lines in a script.
func Stats(script []Line) (added, removed int) {
	for _, l := range script {
		switch l.Kind {
		case LineAdded:
			added++
		case LineRemoved:
			removed++
		}
	}
	return added, removed
}

// UnifiedPatch renders a compact textual patch between two versions, as
// shown next to a prompt version in the history list.
func UnifiedPatch(oldText, newText string) string {
	dmp := diffmatchpatch.New()
	oldChars, newChars, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(oldChars, newChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)
	patches := dmp.PatchMake(oldText, diffs)
	return dmp.PatchToText(patches)
}
