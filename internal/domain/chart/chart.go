// Package chart builds the Plotly line charts rendered on plan dashboards.
//
// Figures are plain structs that marshal to the JSON Plotly.js expects, so
// the server renders no graphics itself.
package chart

import (
	"fmt"
	"html/template"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/variantgroup/dashboard/internal/domain/metric"
	"github.com/variantgroup/dashboard/internal/domain/theme"
)

const (
	lineOpacity = 0.7
	lineWidth   = 1
	height      = 350

	// NoDataText is shown on charts without points.
	NoDataText = "No data available for selected filters"

	xLayout = "2006-01-02"
)

// Point is one plan value on one reporting date.
type Point struct {
	Plan  string    `json:"plan"`
	Date  time.Time `json:"date"`
	Value *float64  `json:"value"`
}

// Line describes a trace line.
type Line struct {
	Color string  `json:"color"`
	Width float64 `json:"width"`
	Shape string  `json:"shape"`
}

// Trace is a Plotly scatter trace.
type Trace struct {
	Type          string    `json:"type"`
	Mode          string    `json:"mode"`
	Name          string    `json:"name"`
	X             []string  `json:"x"`
	Y             []float64 `json:"y"`
	Line          Line      `json:"line"`
	HoverTemplate string    `json:"hovertemplate"`
	ShowLegend    bool      `json:"showlegend"`
	ConnectGaps   bool      `json:"connectgaps"`
}

// Margin is a layout margin in pixels.
type Margin struct {
	L int `json:"l"`
	R int `json:"r"`
	T int `json:"t"`
	B int `json:"b"`
}

// Axis is a Plotly axis.
type Axis struct {
	GridColor  string     `json:"gridcolor,omitempty"`
	LineColor  string     `json:"linecolor,omitempty"`
	TickFont   theme.Font `json:"tickfont"`
	TickPrefix string     `json:"tickprefix,omitempty"`
	TickFormat string     `json:"tickformat,omitempty"`
	Range      []string   `json:"range,omitempty"`
	FixedRange bool       `json:"fixedrange"`
}

// Annotation is a text label placed on the plot.
type Annotation struct {
	Text      string     `json:"text"`
	XRef      string     `json:"xref"`
	YRef      string     `json:"yref"`
	X         float64    `json:"x"`
	Y         float64    `json:"y"`
	ShowArrow bool       `json:"showarrow"`
	Font      theme.Font `json:"font"`
}

// Layout is a Plotly figure layout.
type Layout struct {
	Title        string       `json:"title,omitempty"`
	Template     string       `json:"template,omitempty"`
	Height       int          `json:"height"`
	Margin       *Margin      `json:"margin,omitempty"`
	HoverMode    string       `json:"hovermode,omitempty"`
	DragMode     string       `json:"dragmode,omitempty"`
	PaperBGColor string       `json:"paper_bgcolor"`
	PlotBGColor  string       `json:"plot_bgcolor"`
	Font         theme.Font   `json:"font"`
	XAxis        *Axis        `json:"xaxis,omitempty"`
	YAxis        *Axis        `json:"yaxis,omitempty"`
	Annotations  []Annotation `json:"annotations,omitempty"`
}

// Figure is a complete Plotly figure.
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// DateRange bounds the x axis. A zero range lets Plotly autoscale.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) isZero() bool { return r.From.IsZero() && r.To.IsZero() }

// BuildLineChart plots one line per plan. It returns the figure and the
// sorted plans it contains.
func BuildLineChart(points []Point, title string, format metric.Format, dr DateRange, th theme.Name) (Figure, []string) {
	base := theme.PlotlyLayout(th)
	c := theme.Palette(th)

	fig := Figure{
		Data: []Trace{},
		Layout: Layout{
			Title:        title,
			Template:     theme.PlotlyTemplate(th),
			Height:       height,
			PaperBGColor: base.PaperBGColor,
			PlotBGColor:  base.PlotBGColor,
			Font:         base.Font,
		},
	}

	if len(points) == 0 {
		fig.Layout.Annotations = []Annotation{{
			Text:      NoDataText,
			XRef:      "paper",
			YRef:      "paper",
			X:         0.5,
			Y:         0.5,
			ShowArrow: false,
			Font:      theme.Font{Size: 14, Color: c.TextSecondary},
		}}
		return fig, []string{}
	}

	byPlan := make(map[string][]Point)
	for _, p := range points {
		byPlan[p.Plan] = append(byPlan[p.Plan], p)
	}
	plans := make([]string, 0, len(byPlan))
	for plan := range byPlan {
		plans = append(plans, plan)
	}
	sort.Strings(plans)
	colors := PlanColorMap(plans)

	for _, plan := range plans {
		pts := byPlan[plan]
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].Date.Before(pts[j].Date) })

		tr := Trace{
			Type:          "scatter",
			Mode:          "lines",
			Name:          plan,
			X:             make([]string, len(pts)),
			Y:             make([]float64, len(pts)),
			Line:          Line{Color: lineColor(colors[plan]), Width: lineWidth, Shape: "linear"},
			HoverTemplate: hoverTemplate(plan, format),
			ShowLegend:    false,
			ConnectGaps:   false,
		}
		for i, p := range pts {
			tr.X[i] = p.Date.Format(xLayout)
			if v := p.Value; v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0) {
				tr.Y[i] = *v
			}
		}
		fig.Data = append(fig.Data, tr)
	}

	prefix, tickFormat := yTicks(format)
	x := &Axis{
		GridColor:  base.XAxis.GridColor,
		LineColor:  base.XAxis.LineColor,
		TickFont:   base.XAxis.TickFont,
		TickFormat: "%b %Y",
	}
	if !dr.isZero() {
		x.Range = []string{dr.From.Format(xLayout), dr.To.Format(xLayout)}
	}
	fig.Layout.Margin = &Margin{L: 60, R: 20, T: 20, B: 50}
	fig.Layout.HoverMode = "x unified"
	fig.Layout.DragMode = "zoom"
	fig.Layout.XAxis = x
	fig.Layout.YAxis = &Axis{
		GridColor:  base.YAxis.GridColor,
		LineColor:  base.YAxis.LineColor,
		TickFont:   base.YAxis.TickFont,
		TickPrefix: prefix,
		TickFormat: tickFormat,
	}
	return fig, plans
}

func lineColor(hex string) string {
	if hex == "" {
		hex = FallbackColor
	}
	rgba, err := HexToRGBA(hex, lineOpacity)
	if err != nil {
		rgba, _ = HexToRGBA(FallbackColor, lineOpacity)
	}
	return rgba
}

func hoverTemplate(plan string, format metric.Format) string {
	value := "%{y:,.0f}"
	switch format {
	case metric.FormatDollar:
		value = "$%{y:,.2f}"
	case metric.FormatPercent:
		value = "%{y:.2%}"
	}
	return fmt.Sprintf("<b>%s</b><br>Date: %%{x|%%B %%d, %%Y}<br>Value: %s<extra></extra>",
		template.HTMLEscapeString(plan), value)
}

func yTicks(format metric.Format) (prefix, tickFormat string) {
	switch format {
	case metric.FormatDollar:
		return "$", ",.2f"
	case metric.FormatPercent:
		return "", ".1%"
	default:
		return "", ",d"
	}
}

// LegendHTML renders a color key for plans.
func LegendHTML(plans []string, colors map[string]string) template.HTML {
	var b strings.Builder
	b.WriteString(`<div class="legend">`)
	for _, plan := range plans {
		color, ok := colors[plan]
		if !ok {
			color = FallbackColor
		}
		fmt.Fprintf(&b, `<span class="legend-item"><span class="legend-dot" style="background-color: %s;"></span>%s</span>`,
			template.HTMLEscapeString(color), template.HTMLEscapeString(plan))
	}
	b.WriteString(`</div>`)
	return template.HTML(b.String()) //nolint:gosec // every interpolated value is escaped above
}
