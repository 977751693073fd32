// Package cli implements the deckgen command line tool for working with
// recorded model streams offline.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/ChaseRain/deckstream/internal/infra/logger"
)

// version is set at build time with -ldflags "-X".
var version = "dev"

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "deckgen",
	Short:         "Offline tools for slide deck generation",
	Long:          `Replay recorded model streams into presentations and compare prompt or deck text files.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log decoding details to stderr")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger() *logger.Logger {
	if !verbose {
		return logger.NewNop()
	}
	log, err := logger.New("debug", "console")
	if err != nil {
		return logger.NewNop()
	}
	return log
}
