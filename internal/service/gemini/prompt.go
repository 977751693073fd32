package gemini

import (
	"strconv"
	"strings"
)

// DefaultPrompt is the built-in generation instruction. Saved prompt
// versions replace it and may use the same placeholders.
const DefaultPrompt = `Generate the content for a presentation, slide by slide, in plain text. Do not use JSON or Markdown except for the single-line JSON values of TABLE_DATA and CHART_DATA.

Write everything in {language}.
{useGoogleSearch}
{highQuality}

Topic: "{topic}"
Audience: "{audience}"
Number of slides: exactly {slideCount}.

Start with:
PRES_TITLE: <presentation title>

Then for each slide output a block that starts with SLIDE_START and ends with SLIDE_END. Inside a block put each field on its own line starting with one of LAYOUT, TITLE, CONTENT, IMAGE_PROMPT, NOTES, TABLE_DATA, CHART_DATA. CONTENT and NOTES may repeat.

Use the 'title' layout for the first slide and 'conclusion' or 'quote' for the last. Valid layouts: title, content_left, content_right, section_header, conclusion, two_column, three_column, quote, image_full_bleed, table, chart_bar, chart_line, chart_pie, chart_doughnut, timeline, process, stats_highlight, pyramid, funnel, swot.

TABLE_DATA is a JSON array of string arrays with the header first. CHART_DATA is a JSON object with "labels" and "datasets" ([{"label": ..., "data": [...]}]); every data array must be non-empty and as long as labels.

Every IMAGE_PROMPT must end with: No text, no words, no letters.`

const (
	searchDirective  = "Use Google Search to find factual, up-to-date information for your content."
	qualityDirective = "Produce your best work: insightful content, art-director quality image prompts and a flawless narrative."
)

// BuildPrompt fills the placeholders of req.Prompt, or DefaultPrompt.
func BuildPrompt(req Request) string {
	prompt := req.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}

	audience := req.Audience
	if audience == "" {
		audience = "a general audience"
	}
	search, quality := "", ""
	if req.UseSearch {
		search = searchDirective
	}
	if req.HighQuality {
		quality = qualityDirective
	}

	r := strings.NewReplacer(
		"{language}", string(req.Language),
		"{useGoogleSearch}", search,
		"{highQuality}", quality,
		"{topic}", req.Topic,
		"{audience}", audience,
		"{slideCount}", strconv.Itoa(req.SlideCount),
	)
	return r.Replace(prompt)
}
