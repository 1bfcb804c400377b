// Package pivot reshapes warehouse rows into the date-column tables shown
// on the plan dashboards.
package pivot

import (
	"sort"
	"time"

	"github.com/variantgroup/dashboard/internal/domain/metric"
)

// DateLayout is the column header format for reporting dates.
const DateLayout = "01/02/2006"

// Fixed leading columns of every table.
const (
	ColumnApp    = "App"
	ColumnPlan   = "Plan"
	ColumnMetric = "Metric"
)

// PlanGroup pairs an app with one of its plans.
type PlanGroup struct {
	App  string `json:"app"`
	Plan string `json:"plan"`
}

// Record is one warehouse row: an (app, plan, date) cell with its metric values.
type Record struct {
	App    string              `json:"app"`
	Plan   string              `json:"plan"`
	Date   time.Time           `json:"date"`
	Values map[string]*float64 `json:"values"`
}

// Row is one (app, plan, metric) line of a table. Values align with Table.Dates.
type Row struct {
	App    string     `json:"app"`
	Plan   string     `json:"plan"`
	Metric string     `json:"metric"`
	Values []*float64 `json:"values"`
}

// Table is a pivoted result.
type Table struct {
	Columns []string `json:"columns"`
	Dates   []string `json:"dates"`
	Rows    []Row    `json:"rows"`
}

// PlansByApp groups plans under their app, keeping first-seen order and
// dropping duplicates.
func PlansByApp(groups []PlanGroup) map[string][]string {
	out := make(map[string][]string)
	seen := make(map[PlanGroup]struct{}, len(groups))
	for _, g := range groups {
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out[g.App] = append(out[g.App], g.Plan)
	}
	return out
}

// Apps returns the keys of a PlansByApp result sorted.
func Apps(byApp map[string][]string) []string {
	apps := make([]string, 0, len(byApp))
	for app := range byApp {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return apps
}

type cellKey struct {
	app, plan string
	day       int64
}

// Process pivots records into a table with one row per (app, plan, metric)
// and one column per reporting date, newest first. It returns nil when
// records is empty.
func Process(records []Record, metrics []string, catalog *metric.Catalog, crystalBall bool) *Table {
	if len(records) == 0 {
		return nil
	}

	dateSet := make(map[int64]time.Time)
	pairSet := make(map[PlanGroup]struct{})
	cells := make(map[cellKey]map[string]*float64, len(records))
	for _, r := range records {
		d := day(r.Date)
		dateSet[d.Unix()] = d
		pairSet[PlanGroup{App: r.App, Plan: r.Plan}] = struct{}{}

		// A repeated (app, plan, date) replaces the earlier record.
		cells[cellKey{app: r.App, plan: r.Plan, day: d.Unix()}] = r.Values
	}

	dates := make([]time.Time, 0, len(dateSet))
	for _, d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })

	pairs := make([]PlanGroup, 0, len(pairSet))
	for p := range pairSet {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].App != pairs[j].App {
			return pairs[i].App < pairs[j].App
		}
		return pairs[i].Plan < pairs[j].Plan
	})

	t := &Table{
		Columns: make([]string, 0, 3+len(dates)),
		Dates:   make([]string, len(dates)),
		Rows:    make([]Row, 0, len(pairs)*len(metrics)),
	}
	t.Columns = append(t.Columns, ColumnApp, ColumnPlan, ColumnMetric)
	for i, d := range dates {
		t.Dates[i] = d.Format(DateLayout)
	}
	t.Columns = append(t.Columns, t.Dates...)

	for _, p := range pairs {
		for _, m := range metrics {
			row := Row{
				App:    p.App,
				Plan:   p.Plan,
				Metric: catalog.DisplayName(m),
				Values: make([]*float64, len(dates)),
			}
			for i, d := range dates {
				values := cells[cellKey{app: p.App, plan: p.Plan, day: d.Unix()}]
				row.Values[i] = catalog.FormatValue(m, values[m], crystalBall)
			}
			t.Rows = append(t.Rows, row)
		}
	}
	return t
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
