// Package protocol decodes the line protocol the model streams into typed
// presentation events.
//
// A stream looks like:
//
//	PRES_TITLE: The Deep Sea
//	SLIDE_START
//	TITLE: Into the Abyss
//	LAYOUT: content_left
//	CONTENT: first point
//	CONTENT: second point
//	NOTES: say hello
//	IMAGE_PROMPT: bioluminescent jellyfish
//	SLIDE_END
//
// TABLE_DATA and CHART_DATA carry single-line JSON payloads.
package protocol

import "github.com/ChaseRain/deckstream/internal/domain"

// Literal protocol tokens.
const (
	TokenPresTitle   = "PRES_TITLE:"
	TokenSlideStart  = "SLIDE_START"
	TokenSlideEnd    = "SLIDE_END"
	TokenTitle       = "TITLE:"
	TokenLayout      = "LAYOUT:"
	TokenContent     = "CONTENT:"
	TokenNotes       = "NOTES:"
	TokenImagePrompt = "IMAGE_PROMPT:"
	TokenTableData   = "TABLE_DATA:"
	TokenChartData   = "CHART_DATA:"
)

type EventKind string

const (
	EventTitle   EventKind = "title"
	EventSlide   EventKind = "slide"
	EventSources EventKind = "sources"
)

// Event is one decoded unit. Only the fields for its Kind are set.
type Event struct {
	Kind    EventKind
	Title   string
	Index   int
	Slide   domain.Slide
	Sources []domain.Source
}

func TitleEvent(title string) Event {
	return Event{Kind: EventTitle, Title: title}
}

func SlideEvent(index int, slide domain.Slide) Event {
	return Event{Kind: EventSlide, Index: index, Slide: slide}
}

func SourcesEvent(sources []domain.Source) Event {
	return Event{Kind: EventSources, Sources: sources}
}

// Chunk is one fragment from the model stream. Sources carries grounding
// references attached to the fragment, if any. A chunk with Err set ends
// the stream.
type Chunk struct {
	Text    string
	Sources []domain.Source
	Err     error
}
