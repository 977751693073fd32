package domain

import (
	"encoding/json"
	"time"
)

type Language string

const (
	LanguageEnglish Language = "English"
	LanguageTagalog Language = "Tagalog"
)

// Text is slide content or speaker notes. The model and older saved
// documents send either a single string or a list; both decode to a list.
type Text []string

func (t *Text) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*t = Text{}
		} else {
			*t = Text{single}
		}
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return err
	}
	*t = Text(lines)
	return nil
}

type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

type ChartData struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

const (
	RatingGood = "good"
	RatingBad  = "bad"
)

type Rating struct {
	Type    string   `json:"type"`
	Reasons []string `json:"reasons,omitempty"`
}

type Slide struct {
	Title             string     `json:"title"`
	Content           Text       `json:"content"`
	ImagePrompt       string     `json:"imagePrompt"`
	ImageURL          string     `json:"imageUrl,omitempty"`
	Layout            Layout     `json:"layout"`
	SpeakerNotes      Text       `json:"speakerNotes,omitempty"`
	IsGeneratingImage bool       `json:"isGeneratingImage,omitempty"`
	IsSourceSlide     bool       `json:"isSourceSlide,omitempty"`
	TableData         [][]string `json:"tableData,omitempty"`
	ChartData         *ChartData `json:"chartData,omitempty"`
	Rating            *Rating    `json:"rating"`
}

// IsPlaceholder reports whether the slide was pre-allocated and never filled.
// Placeholders are built without a title, so an empty title is the sentinel.
func (s Slide) IsPlaceholder() bool {
	return s.Title == ""
}

func (s Slide) Clone() Slide {
	out := s
	out.Content = cloneStrings(s.Content)
	out.SpeakerNotes = cloneStrings(s.SpeakerNotes)
	if s.TableData != nil {
		out.TableData = make([][]string, len(s.TableData))
		for i, row := range s.TableData {
			out.TableData[i] = cloneStrings(row)
		}
	}
	if s.ChartData != nil {
		chart := ChartData{Labels: cloneStrings(s.ChartData.Labels)}
		if s.ChartData.Datasets != nil {
			chart.Datasets = make([]Dataset, len(s.ChartData.Datasets))
			for i, ds := range s.ChartData.Datasets {
				chart.Datasets[i] = Dataset{Label: ds.Label, Data: append([]float64(nil), ds.Data...)}
			}
		}
		out.ChartData = &chart
	}
	if s.Rating != nil {
		rating := Rating{Type: s.Rating.Type, Reasons: cloneStrings(s.Rating.Reasons)}
		out.Rating = &rating
	}
	return out
}

type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type GenerationProgress struct {
	LastCompletedSlide int `json:"lastCompletedSlide"`
	TotalSlides        int `json:"totalSlides"`
}

type Presentation struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	Slides             []Slide             `json:"slides"`
	Theme              Theme               `json:"theme"`
	OriginalTopic      string              `json:"originalTopic"`
	Language           Language            `json:"language"`
	GenerationProgress *GenerationProgress `json:"generationProgress,omitempty"`
	Sources            []Source            `json:"sources,omitempty"`
}

func (p *Presentation) Clone() *Presentation {
	if p == nil {
		return nil
	}
	out := *p
	if p.Slides != nil {
		out.Slides = make([]Slide, len(p.Slides))
		for i, s := range p.Slides {
			out.Slides[i] = s.Clone()
		}
	}
	if p.GenerationProgress != nil {
		progress := *p.GenerationProgress
		out.GenerationProgress = &progress
	}
	if p.Sources != nil {
		out.Sources = append([]Source(nil), p.Sources...)
	}
	return &out
}

// Snapshot is a deep copy with transient UI state removed, suitable for history.
func (p *Presentation) Snapshot() *Presentation {
	out := p.Clone()
	if out == nil {
		return nil
	}
	for i := range out.Slides {
		out.Slides[i].IsGeneratingImage = false
	}
	return out
}

// HistoryItem is the listing entry kept for each saved presentation.
type HistoryItem struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	OriginalTopic string    `json:"originalTopic"`
	Theme         Theme     `json:"theme"`
	Language      Language  `json:"language"`
	SlideCount    int       `json:"slideCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Sources       []Source  `json:"sources,omitempty"`
}

// PromptVersion is one saved revision of the generation instructions.
type PromptVersion struct {
	ID              string    `json:"id"`
	Prompt          string    `json:"prompt"`
	CreatedAt       time.Time `json:"createdAt"`
	FeedbackSummary string    `json:"feedbackSummary"`
}

func cloneStrings[S ~[]string](in S) S {
	if in == nil {
		return nil
	}
	return append(S(nil), in...)
}
