package protocol

import (
	"context"

	"github.com/ChaseRain/deckstream/internal/domain"
)

// SourceSet collects grounding sources, keeping the first entry per URI and
// ignoring entries without both a URI and a title.
type SourceSet struct {
	seen    map[string]struct{}
	sources []domain.Source
}

func (s *SourceSet) Add(sources ...domain.Source) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	for _, src := range sources {
		if src.URI == "" || src.Title == "" {
			continue
		}
		if _, ok := s.seen[src.URI]; ok {
			continue
		}
		s.seen[src.URI] = struct{}{}
		s.sources = append(s.sources, src)
	}
}

func (s *SourceSet) Len() int {
	return len(s.sources)
}

func (s *SourceSet) List() []domain.Source {
	return append([]domain.Source(nil), s.sources...)
}

// Decode drains chunks through p and hands every event to emit in order.
// At the end of the stream the buffered tail is flushed and, if any
// grounding sources were seen, a single sources event is emitted.
//
// A chunk error or ctx cancellation stops reading. Events already decoded,
// including the flushed tail and sources, are still emitted before the
// error is returned.
func Decode(ctx context.Context, p *Parser, chunks <-chan Chunk, emit func(Event)) error {
	var (
		sources SourceSet
		err     error
	)

loop:
	for {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		case chunk, ok := <-chunks:
			if !ok {
				break loop
			}
			if chunk.Err != nil {
				err = chunk.Err
				break loop
			}
			sources.Add(chunk.Sources...)
			for _, ev := range p.Feed(chunk.Text) {
				emit(ev)
			}
		}
	}

	for _, ev := range p.Flush() {
		emit(ev)
	}
	if sources.Len() > 0 {
		emit(SourcesEvent(sources.List()))
	}
	return err
}

// ParseAll decodes a complete recorded stream held in memory.
func ParseAll(p *Parser, text string) []Event {
	return append(p.Feed(text), p.Flush()...)
}
