package cli

import (
	"github.com/spf13/cobra"

	"github.com/ChaseRain/deckstream/internal/service/history"
)

var diffCmd = &cobra.Command{
	Use:   "diff [old-file] [new-file]",
	Short: "Show a line diff between two text files",
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

var diffPatch bool

func init() {
	diffCmd.Flags().BoolVarP(&diffPatch, "patch", "p", false, "Print a compact patch instead of the full listing")
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	oldText, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	newText, err := readInput(cmd, args[1])
	if err != nil {
		return err
	}

	if diffPatch {
		cmd.Print(history.UnifiedPatch(oldText, newText))
		return nil
	}

	lines := history.Diff(oldText, newText)
	for _, l := range lines {
		cmd.Println(marker(l.Kind) + l.Text)
	}
	added, removed := history.Stats(lines)
	cmd.Printf("%d added, %d removed\n", added, removed)
	return nil
}

func marker(kind history.LineKind) string {
	switch kind {
	case history.LineAdded:
		return "+ "
	case history.LineRemoved:
		return "- "
	default:
		return "  "
	}
}
