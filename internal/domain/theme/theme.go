// Package theme holds the dashboard color palettes and the stylesheet and
// chart layout derived from them.
package theme

import (
	"bytes"
	"strings"
	"text/template"
)

// Name identifies a palette.
type Name string

const (
	Dark  Name = "dark"
	Light Name = "light"
)

// Default is used for empty or unknown theme names.
const Default = Dark

// Colors is a palette keyed by role.
type Colors struct {
	Background    string `json:"background"`
	Surface       string `json:"surface"`
	Border        string `json:"border"`
	TextPrimary   string `json:"text_primary"`
	TextSecondary string `json:"text_secondary"`
	Accent        string `json:"accent"`
	AccentHover   string `json:"accent_hover"`
	CardBG        string `json:"card_bg"`
	InputBG       string `json:"input_bg"`
	Danger        string `json:"danger"`
	Warning       string `json:"warning"`
	Success       string `json:"success"`
	TableHeaderBG string `json:"table_header_bg"`
	TableRowOdd   string `json:"table_row_odd"`
	TableRowEven  string `json:"table_row_even"`
	Hover         string `json:"hover"`
}

var palettes = map[Name]Colors{
	Dark: {
		Background:    "#0F172A",
		Surface:       "#1E293B",
		Border:        "#334155",
		TextPrimary:   "#F1F5F9",
		TextSecondary: "#94A3B8",
		Accent:        "#14B8A6",
		AccentHover:   "#0D9488",
		CardBG:        "#1E293B",
		InputBG:       "#0F172A",
		Danger:        "#F87171",
		Warning:       "#FBBF24",
		Success:       "#34D399",
		TableHeaderBG: "#334155",
		TableRowOdd:   "#1E293B",
		TableRowEven:  "#172033",
		Hover:         "#2D3B52",
	},
	Light: {
		Background:    "#F8FAFC",
		Surface:       "#FFFFFF",
		Border:        "#E2E8F0",
		TextPrimary:   "#0F172A",
		TextSecondary: "#64748B",
		Accent:        "#0D9488",
		AccentHover:   "#0F766E",
		CardBG:        "#FFFFFF",
		InputBG:       "#F1F5F9",
		Danger:        "#DC2626",
		Warning:       "#D97706",
		Success:       "#059669",
		TableHeaderBG: "#F1F5F9",
		TableRowOdd:   "#FFFFFF",
		TableRowEven:  "#F8FAFC",
		Hover:         "#E2E8F0",
	},
}

// Parse maps a user supplied name onto a known theme.
func Parse(s string) Name {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := palettes[n]; ok {
		return n
	}
	return Default
}

// Palette returns the colors for n, falling back to the default theme.
func Palette(n Name) Colors {
	if c, ok := palettes[n]; ok {
		return c
	}
	return palettes[Default]
}

// TabulatorTheme returns the table widget theme matching n.
func TabulatorTheme(n Name) string {
	if Parse(string(n)) == Dark {
		return "midnight"
	}
	return "simple"
}

// PlotlyTemplate returns the chart template matching n.
func PlotlyTemplate(n Name) string {
	if Parse(string(n)) == Dark {
		return "plotly_dark"
	}
	return "plotly_white"
}

// Font is a chart font.
type Font struct {
	Family string `json:"family,omitempty"`
	Size   int    `json:"size,omitempty"`
	Color  string `json:"color,omitempty"`
}

// Axis is the themed part of a chart axis.
type Axis struct {
	GridColor string `json:"gridcolor"`
	LineColor string `json:"linecolor"`
	TickFont  Font   `json:"tickfont"`
}

// Legend is the themed chart legend.
type Legend struct {
	Font    Font   `json:"font"`
	BGColor string `json:"bgcolor"`
}

// Layout is the themed base of every chart layout.
type Layout struct {
	PaperBGColor string `json:"paper_bgcolor"`
	PlotBGColor  string `json:"plot_bgcolor"`
	Font         Font   `json:"font"`
	XAxis        Axis   `json:"xaxis"`
	YAxis        Axis   `json:"yaxis"`
	Legend       Legend `json:"legend"`
}

// FontFamily is used by every chart.
const FontFamily = "Inter, sans-serif"

// PlotlyLayout returns chart layout defaults for n.
func PlotlyLayout(n Name) Layout {
	c := Palette(n)
	axis := Axis{GridColor: c.Border, LineColor: c.Border, TickFont: Font{Color: c.TextSecondary}}
	return Layout{
		PaperBGColor: c.CardBG,
		PlotBGColor:  c.CardBG,
		Font:         Font{Family: FontFamily, Size: 12, Color: c.TextPrimary},
		XAxis:        axis,
		YAxis:        axis,
		Legend:       Legend{Font: Font{Color: c.TextPrimary}, BGColor: "rgba(0,0,0,0)"},
	}
}

var cssTemplate = template.Must(template.New("theme.css").Parse(stylesheet))

// CSS renders the stylesheet for n.
func CSS(n Name) string {
	var buf bytes.Buffer
	// The template only reads string fields of a fixed struct.
	if err := cssTemplate.Execute(&buf, Palette(n)); err != nil {
		panic(err)
	}
	return buf.String()
}

const stylesheet = `:root {
  --primary-color: {{.Accent}};
  --background-color: {{.Background}};
  --surface-color: {{.Surface}};
  --text-color: {{.TextPrimary}};
  --text-secondary: {{.TextSecondary}};
  --border-color: {{.Border}};
  --danger-color: {{.Danger}};
  --warning-color: {{.Warning}};
  --success-color: {{.Success}};
}

body {
  margin: 0;
  padding: 20px;
  min-height: 100vh;
  background-color: {{.Background}};
  color: {{.TextPrimary}};
  font-family: 'Inter', -apple-system, BlinkMacSystemFont, sans-serif;
}

a { color: {{.Accent}}; }

.card {
  background: {{.CardBG}};
  border: 1px solid {{.Border}};
  border-radius: 12px;
  padding: 24px;
}

input, select {
  background-color: {{.InputBG}};
  color: {{.TextPrimary}};
  border: 1px solid {{.Border}};
  border-radius: 8px;
  padding: 8px 12px;
}

input[type="checkbox"] { accent-color: {{.Accent}}; }

.btn {
  background-color: {{.Accent}};
  color: white;
  border: none;
  border-radius: 8px;
  padding: 8px 16px;
  cursor: pointer;
  text-decoration: none;
  display: inline-block;
}

.btn:hover { background-color: {{.AccentHover}}; }

.btn-default {
  background-color: {{.Surface}};
  color: {{.TextPrimary}};
  border: 1px solid {{.Border}};
}

.alert {
  background-color: {{.CardBG}};
  border: 1px solid {{.Border}};
  border-radius: 8px;
  padding: 20px;
  margin: 20px 0;
  color: {{.TextPrimary}};
}

.alert h3 { margin: 0 0 10px 0; }
.alert pre { color: {{.TextSecondary}}; white-space: pre-wrap; word-wrap: break-word; margin: 0; }
.alert-success { border-left: 4px solid {{.Success}}; }
.alert-success h3 { color: {{.Success}}; }
.alert-warning { border-left: 4px solid {{.Warning}}; }
.alert-warning h3 { color: {{.Warning}}; }
.alert-danger { border-left: 4px solid {{.Danger}}; }
.alert-danger h3 { color: {{.Danger}}; }

::-webkit-scrollbar { width: 8px; height: 8px; }
::-webkit-scrollbar-track { background: {{.Background}}; }
::-webkit-scrollbar-thumb { background: {{.Border}}; border-radius: 4px; }

table.data {
  border-collapse: collapse;
  width: 100%;
  background-color: {{.CardBG}};
  border: 1px solid {{.Border}};
}

table.data th {
  background-color: {{.TableHeaderBG}};
  color: {{.TextPrimary}};
  position: sticky;
  top: 0;
}

table.data th, table.data td {
  border: 1px solid {{.Border}};
  padding: 6px 10px;
  white-space: nowrap;
}

table.data tr:nth-child(odd) td { background-color: {{.TableRowOdd}}; }
table.data tr:nth-child(even) td { background-color: {{.TableRowEven}}; }
table.data tr:hover td { background-color: {{.Hover}}; }
table.data td.num { text-align: right; }

.table-scroll { max-height: 350px; overflow: auto; margin-bottom: 20px; }

details.filters {
  background-color: {{.CardBG}};
  border: 1px solid {{.Border}};
  border-radius: 8px;
  padding: 12px 16px;
}

details.filters summary { color: {{.TextPrimary}}; cursor: pointer; }

.filter-title {
  font-size: 13px;
  font-weight: 600;
  color: {{.TextSecondary}};
  text-transform: uppercase;
  letter-spacing: 0.5px;
  margin-bottom: 8px;
  padding-bottom: 6px;
  border-bottom: 1px solid {{.Border}};
}

.muted { color: {{.TextSecondary}}; }

.logo-container {
  display: flex;
  flex-direction: column;
  align-items: center;
  padding: 20px;
}

.logo-fallback {
  width: 80px;
  height: 80px;
  background: {{.Accent}};
  border-radius: 12px;
  display: flex;
  align-items: center;
  justify-content: center;
  font-size: 36px;
  font-weight: bold;
  color: white;
}

.legend {
  background: {{.Surface}};
  border: 1px solid {{.Border}};
  border-radius: 8px;
  padding: 10px 16px;
  margin-bottom: 16px;
  max-height: 60px;
  overflow-y: auto;
  display: flex;
  flex-wrap: wrap;
  gap: 8px;
}

.legend-item { display: inline-flex; align-items: center; margin-right: 12px; margin-bottom: 4px; font-size: 12px; color: {{.TextPrimary}}; }
.legend-dot { width: 10px; height: 10px; border-radius: 50%; margin-right: 6px; }
`
