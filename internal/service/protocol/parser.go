package protocol

import (
	"strings"

	"github.com/ChaseRain/deckstream/internal/domain"
	"github.com/ChaseRain/deckstream/internal/infra/logger"
	"github.com/ChaseRain/deckstream/internal/service/repair"
)

const untitled = "Untitled"

// slideBuilder accumulates the fields of one SLIDE_START..SLIDE_END block.
type slideBuilder struct {
	fields      int
	title       string
	layout      string
	content     []string
	notes       []string
	imagePrompt string
	table       [][]string
	chart       *domain.ChartData
}

func (b *slideBuilder) build(catalog domain.LayoutCatalog) domain.Slide {
	title := b.title
	if title == "" {
		title = untitled
	}
	content := b.content
	if content == nil {
		content = []string{}
	}
	notes := b.notes
	if notes == nil {
		notes = []string{}
	}
	return domain.Slide{
		Title:        title,
		Content:      domain.Text(content),
		ImagePrompt:  b.imagePrompt,
		Layout:       catalog.Resolve(b.layout),
		SpeakerNotes: domain.Text(notes),
		TableData:    b.table,
		ChartData:    b.chart,
	}
}

// Parser is a line-oriented decoder for one model stream. It is not safe
// for concurrent use and is not reusable: build a new Parser per run.
type Parser struct {
	catalog  domain.LayoutCatalog
	repairer *repair.Repairer
	logger   *logger.Logger

	buf     strings.Builder
	current *slideBuilder
	index   int
}

type Option func(*Parser)

func WithCatalog(c domain.LayoutCatalog) Option {
	return func(p *Parser) { p.catalog = c }
}

func WithRepairer(r *repair.Repairer) Option {
	return func(p *Parser) { p.repairer = r }
}

func WithLogger(l *logger.Logger) Option {
	return func(p *Parser) { p.logger = l }
}

func NewParser(opts ...Option) *Parser {
	p := &Parser{catalog: domain.DefaultLayoutCatalog()}
	for _, opt := range opts {
		opt(p)
	}
	if p.repairer == nil {
		p.repairer = repair.New()
	}
	p.logger = logger.OrNop(p.logger)
	return p
}

// Feed appends chunk to the buffer and returns the events produced by every
// line it completed. A trailing partial line stays buffered.
func (p *Parser) Feed(chunk string) []Event {
	p.buf.WriteString(chunk)
	data := p.buf.String()
	last := strings.LastIndexByte(data, '\n')
	if last < 0 {
		return nil
	}
	p.buf.Reset()
	p.buf.WriteString(data[last+1:])

	var events []Event
	for _, line := range strings.Split(data[:last], "\n") {
		if ev, ok := p.handleLine(line); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Flush runs whatever is left in the buffer through the line handler once.
// Call it when the stream ends.
func (p *Parser) Flush() []Event {
	rest := p.buf.String()
	p.buf.Reset()
	if strings.TrimSpace(rest) == "" {
		return nil
	}
	if ev, ok := p.handleLine(rest); ok {
		return []Event{ev}
	}
	return nil
}

// Emitted reports how many slide events this parser has produced.
func (p *Parser) Emitted() int {
	return p.index
}

func (p *Parser) handleLine(raw string) (Event, bool) {
	line := strings.TrimSpace(raw)

	switch {
	case strings.HasPrefix(line, TokenPresTitle):
		return TitleEvent(StripMarkdown(value(line, TokenPresTitle))), true
	case line == TokenSlideStart:
		p.current = &slideBuilder{}
		return Event{}, false
	case line == TokenSlideEnd:
		return p.endSlide()
	}

	if p.current == nil {
		return Event{}, false
	}
	b := p.current

	switch {
	case strings.HasPrefix(line, TokenTitle):
		b.title = StripMarkdown(value(line, TokenTitle))
	case strings.HasPrefix(line, TokenLayout):
		b.layout = value(line, TokenLayout)
	case strings.HasPrefix(line, TokenContent):
		b.content = append(b.content, StripMarkdown(value(line, TokenContent)))
	case strings.HasPrefix(line, TokenNotes):
		b.notes = append(b.notes, StripMarkdown(value(line, TokenNotes)))
	case strings.HasPrefix(line, TokenImagePrompt):
		b.imagePrompt = StripMarkdown(value(line, TokenImagePrompt))
	case strings.HasPrefix(line, TokenTableData):
		table, err := repair.ParseTable(value(line, TokenTableData))
		if err != nil {
			p.logger.Warn("dropping table data", "line", line, "error", err)
			b.fields++
			return Event{}, false
		}
		b.table = table
	case strings.HasPrefix(line, TokenChartData):
		chart, err := p.repairer.RepairChart(value(line, TokenChartData))
		if err != nil {
			p.logger.Warn("dropping chart data", "line", line, "error", err)
			b.fields++
			return Event{}, false
		}
		b.chart = chart
	default:
		return Event{}, false
	}
	b.fields++
	return Event{}, false
}

func (p *Parser) endSlide() (Event, bool) {
	b := p.current
	p.current = nil
	if b == nil || b.fields == 0 {
		return Event{}, false
	}
	ev := SlideEvent(p.index, b.build(p.catalog))
	p.index++
	return ev, true
}

func value(line, token string) string {
	return strings.TrimSpace(line[len(token):])
}
