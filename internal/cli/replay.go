package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ChaseRain/deckstream/internal/domain"
	"github.com/ChaseRain/deckstream/internal/service/generation"
	"github.com/ChaseRain/deckstream/internal/service/protocol"
	"github.com/ChaseRain/deckstream/internal/service/repair"
	"github.com/ChaseRain/deckstream/internal/service/storage"
)

var replayCmd = &cobra.Command{
	Use:   "replay [stream-file]",
	Short: "Decode a recorded model stream into a presentation",
	Long: `Reads the line protocol from a file (or - for stdin), runs it through the
same parser and aggregator the server uses, and prints the resulting
presentation as JSON. No images are generated.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var (
	replayTopic      string
	replaySlides     int
	replayChunkSize  int
	replaySourcesPer int
	replayDB         string
)

func init() {
	replayCmd.Flags().StringVar(&replayTopic, "topic", "replay", "Topic recorded on the presentation")
	replayCmd.Flags().IntVar(&replaySlides, "slides", 0, "Placeholder slide count (0 uses none)")
	replayCmd.Flags().IntVar(&replayChunkSize, "chunk-size", 0, "Feed the stream in chunks of this many bytes")
	replayCmd.Flags().IntVar(&replaySourcesPer, "sources-per-slide", generation.DefaultSourcesPerSlide, "Sources listed per source slide")
	replayCmd.Flags().StringVar(&replayDB, "db", "", "Save the result into this sqlite database")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	text, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	log := newLogger()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var store generation.Store
	if replayDB != "" {
		s, err := storage.New("sqlite", replayDB, storage.DefaultHistoryLimit, log)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()
		store = s
	}

	catalog := domain.DefaultLayoutCatalog()
	placeholder := generation.NewPlaceholder(uuid.New().String(), replayTopic, replaySlides, domain.ThemeByName(""), domain.LanguageEnglish, catalog.Fallback())
	agg := generation.NewAggregator(generation.NewDocument(placeholder), nil, store, generation.Options{
		Catalog:         catalog,
		SourcesPerSlide: replaySourcesPer,
		Logger:          log,
	})
	parser := protocol.NewParser(
		protocol.WithCatalog(catalog),
		protocol.WithRepairer(repair.New()),
		protocol.WithLogger(log),
	)

	final, err := agg.Run(ctx, parser, chunked(text, replayChunkSize))
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(final)
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// chunked splits text into fixed-size chunks on a closed channel.
func chunked(text string, size int) <-chan protocol.Chunk {
	if size <= 0 {
		size = len(text)
	}
	n := 0
	if size > 0 {
		n = (len(text) + size - 1) / size
	}
	ch := make(chan protocol.Chunk, n)
	for start := 0; start < len(text); start += size {
		end := min(start+size, len(text))
		ch <- protocol.Chunk{Text: text[start:end]}
	}
	close(ch)
	return ch
}
