// Package repair recovers the single-line JSON payloads embedded in the slide
// protocol. Model output is frequently truncated or structurally off, so chart
// data goes through a fixed set of textual fixes before it is parsed and
// validated. Table data is parsed as-is.
package repair

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"

	"github.com/ChaseRain/deckstream/internal/domain"
)

const (
	fillMin   = 100
	fillRange = 900
)

var (
	emptyDataValue = regexp.MustCompile(`("data"\s*:\s*)}`)
	leadingComma   = regexp.MustCompile(`\[\s*,`)
	trailingComma  = regexp.MustCompile(`,\s*\]`)
	doubledComma   = regexp.MustCompile(`,\s*,`)
)

// FillFunc produces one fabricated data point.
type FillFunc func() float64

// Repairer holds the source used for fabricated chart values.
type Repairer struct {
	fill FillFunc
}

// New returns a Repairer that fabricates integers in [100, 999].
func New() *Repairer {
	return &Repairer{fill: func() float64 { return float64(fillMin + rand.IntN(fillRange)) }}
}

// NewWithFill is for callers that need deterministic fabricated values.
func NewWithFill(fill FillFunc) *Repairer {
	return &Repairer{fill: fill}
}

// Sanitize applies the textual fixes for common truncation damage. It is
// idempotent and leaves valid JSON unchanged.
func Sanitize(raw string) string {
	s := strings.TrimSpace(raw)
	s = emptyDataValue.ReplaceAllString(s, "${1}[]}")
	s = leadingComma.ReplaceAllString(s, "[")
	s = trailingComma.ReplaceAllString(s, "]")
	for doubledComma.MatchString(s) {
		s = doubledComma.ReplaceAllString(s, ",")
	}
	return s
}

type rawDataset struct {
	Label string `json:"label"`
	Data  []any  `json:"data"`
}

type rawChart struct {
	Labels   []any        `json:"labels"`
	Datasets []rawDataset `json:"datasets"`
}

// RepairChart parses CHART_DATA. Any dataset whose data is missing, empty,
// non-numeric or of a different length than labels is replaced with
// fabricated values, one per label, so a chart never renders broken.
func (r *Repairer) RepairChart(raw string) (*domain.ChartData, error) {
	var parsed rawChart
	if err := json.Unmarshal([]byte(Sanitize(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("parse chart data: %w", err)
	}
	if len(parsed.Labels) == 0 {
		return nil, fmt.Errorf("chart data has no labels")
	}
	labels, err := texts(parsed.Labels)
	if err != nil {
		return nil, fmt.Errorf("chart labels: %w", err)
	}

	chart := &domain.ChartData{
		Labels:   labels,
		Datasets: make([]domain.Dataset, 0, len(parsed.Datasets)),
	}
	for _, ds := range parsed.Datasets {
		values, ok := numbers(ds.Data)
		if !ok || len(values) == 0 || len(values) != len(parsed.Labels) {
			values = r.fabricate(len(parsed.Labels))
		}
		chart.Datasets = append(chart.Datasets, domain.Dataset{Label: ds.Label, Data: values})
	}
	return chart, nil
}

func (r *Repairer) fabricate(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = r.fill()
	}
	return out
}

func numbers(in []any) ([]float64, bool) {
	out := make([]float64, 0, len(in))
	for _, v := range in {
		switch n := v.(type) {
		case float64:
			out = append(out, n)
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return nil, false
			}
			out = append(out, f)
		default:
			return nil, false
		}
	}
	return out, true
}

// text renders a JSON scalar as a cell or label. Objects and arrays are
// rejected.
func text(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("unexpected %T value", v)
	}
}

func texts(in []any) ([]string, error) {
	out := make([]string, len(in))
	for i, v := range in {
		s, err := text(v)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// ParseTable parses TABLE_DATA as a JSON array of rows. Numbers and
// booleans become their text form; no other repair is attempted. The first
// row is the header.
func ParseTable(raw string) ([][]string, error) {
	var parsed [][]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("parse table data: %w", err)
	}
	rows := make([][]string, len(parsed))
	for i, row := range parsed {
		cells, err := texts(row)
		if err != nil {
			return nil, fmt.Errorf("table row %d: %w", i, err)
		}
		rows[i] = cells
	}
	return rows, nil
}
