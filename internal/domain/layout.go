package domain

type Layout string

const (
	LayoutTitle                  Layout = "title"
	LayoutContentLeft            Layout = "content_left"
	LayoutContentRight           Layout = "content_right"
	LayoutSectionHeader          Layout = "section_header"
	LayoutConclusion             Layout = "conclusion"
	LayoutTwoColumn              Layout = "two_column"
	LayoutThreeColumn            Layout = "three_column"
	LayoutQuote                  Layout = "quote"
	LayoutImageFullBleed         Layout = "image_full_bleed"
	LayoutTable                  Layout = "table"
	LayoutChartBar               Layout = "chart_bar"
	LayoutChartLine              Layout = "chart_line"
	LayoutChartPie               Layout = "chart_pie"
	LayoutChartDoughnut          Layout = "chart_doughnut"
	LayoutTimeline               Layout = "timeline"
	LayoutProcess                Layout = "process"
	LayoutStatsHighlight         Layout = "stats_highlight"
	LayoutPyramid                Layout = "pyramid"
	LayoutFunnel                 Layout = "funnel"
	LayoutSWOT                   Layout = "swot"
	LayoutComparison             Layout = "comparison"
	LayoutTeamMembersFour        Layout = "team_members_four"
	LayoutRadialDiagram          Layout = "radial_diagram"
	LayoutStepFlow               Layout = "step_flow"
	LayoutImageOverlapLeft       Layout = "image_overlap_left"
	LayoutHubAndSpoke            Layout = "hub_and_spoke"
	LayoutCycleDiagram           Layout = "cycle_diagram"
	LayoutVennDiagram            Layout = "venn_diagram"
	LayoutAlternatingFeatureList Layout = "alternating_feature_list"
	LayoutQuadrantChart          Layout = "quadrant_chart"
	LayoutBridgeChart            Layout = "bridge_chart"
	LayoutGanttChartSimple       Layout = "gantt_chart_simple"
	LayoutOrgChart               Layout = "org_chart"
	LayoutMindMap                Layout = "mind_map"
	LayoutFishboneDiagram        Layout = "fishbone_diagram"
	LayoutAreaChart              Layout = "area_chart"
	LayoutScatterPlot            Layout = "scatter_plot"
	LayoutBubbleChart            Layout = "bubble_chart"
	LayoutImageGridFour          Layout = "image_grid_four"
	LayoutImageWithCaptionBelow  Layout = "image_with_caption_below"
	LayoutTextOverImage          Layout = "text_over_image"
	LayoutQuoteWithImage         Layout = "quote_with_image"
	LayoutFeatureHighlightImage  Layout = "feature_highlight_image"
	LayoutImageCollage           Layout = "image_collage"
	LayoutImageFocusLeft         Layout = "image_focus_left"
	LayoutImageFocusRight        Layout = "image_focus_right"
	LayoutChecklist              Layout = "checklist"
	LayoutNumberedListLarge      Layout = "numbered_list_large"
	LayoutStepFlowVertical       Layout = "step_flow_vertical"
	LayoutCircularFlow           Layout = "circular_flow"
	LayoutStaggeredList          Layout = "staggered_list"
	LayoutFeatureListIcons       Layout = "feature_list_icons"
	LayoutProsAndCons            Layout = "pros_and_cons"
	LayoutKPIDashboardThree      Layout = "kpi_dashboard_three"
	LayoutKPIDashboardFour       Layout = "kpi_dashboard_four"
	LayoutTargetVsActual         Layout = "target_vs_actual"
	LayoutFAQ                    Layout = "faq"
	LayoutCallToAction           Layout = "call_to_action"
	LayoutWorldMapPins           Layout = "world_map_pins"
)

var allLayouts = []Layout{
	LayoutTitle, LayoutContentLeft, LayoutContentRight, LayoutSectionHeader, LayoutConclusion,
	LayoutTwoColumn, LayoutThreeColumn, LayoutQuote, LayoutImageFullBleed, LayoutTable,
	LayoutChartBar, LayoutChartLine, LayoutChartPie, LayoutChartDoughnut, LayoutTimeline,
	LayoutProcess, LayoutStatsHighlight, LayoutPyramid, LayoutFunnel, LayoutSWOT,
	LayoutComparison, LayoutTeamMembersFour, LayoutRadialDiagram, LayoutStepFlow,
	LayoutImageOverlapLeft, LayoutHubAndSpoke, LayoutCycleDiagram, LayoutVennDiagram,
	LayoutAlternatingFeatureList, LayoutQuadrantChart, LayoutBridgeChart, LayoutGanttChartSimple,
	LayoutOrgChart, LayoutMindMap, LayoutFishboneDiagram, LayoutAreaChart, LayoutScatterPlot,
	LayoutBubbleChart, LayoutImageGridFour, LayoutImageWithCaptionBelow, LayoutTextOverImage,
	LayoutQuoteWithImage, LayoutFeatureHighlightImage, LayoutImageCollage, LayoutImageFocusLeft,
	LayoutImageFocusRight, LayoutChecklist, LayoutNumberedListLarge, LayoutStepFlowVertical,
	LayoutCircularFlow, LayoutStaggeredList, LayoutFeatureListIcons, LayoutProsAndCons,
	LayoutKPIDashboardThree, LayoutKPIDashboardFour, LayoutTargetVsActual, LayoutFAQ,
	LayoutCallToAction, LayoutWorldMapPins,
}

// LayoutCatalog is the set of layouts a renderer understands, the subset that
// never carries a generated image, and the fallback for missing or unknown values.
type LayoutCatalog struct {
	valid     map[Layout]struct{}
	imageless map[Layout]struct{}
	fallback  Layout
}

func NewLayoutCatalog(valid, imageless []Layout, fallback Layout) LayoutCatalog {
	c := LayoutCatalog{
		valid:     make(map[Layout]struct{}, len(valid)),
		imageless: make(map[Layout]struct{}, len(imageless)),
		fallback:  fallback,
	}
	for _, l := range valid {
		c.valid[l] = struct{}{}
	}
	for _, l := range imageless {
		c.imageless[l] = struct{}{}
	}
	c.valid[fallback] = struct{}{}
	return c
}

// DefaultLayoutCatalog returns every known layout; title, section header,
// conclusion and quote slides get no image.
func DefaultLayoutCatalog() LayoutCatalog {
	return NewLayoutCatalog(
		allLayouts,
		[]Layout{LayoutTitle, LayoutSectionHeader, LayoutConclusion, LayoutQuote},
		LayoutContentLeft,
	)
}

func (c LayoutCatalog) IsValid(l Layout) bool {
	_, ok := c.valid[l]
	return ok
}

func (c LayoutCatalog) IsImageless(l Layout) bool {
	_, ok := c.imageless[l]
	return ok
}

func (c LayoutCatalog) Fallback() Layout {
	return c.fallback
}

// Resolve maps an empty or unknown layout name onto the fallback.
func (c LayoutCatalog) Resolve(name string) Layout {
	l := Layout(name)
	if c.IsValid(l) {
		return l
	}
	return c.fallback
}
