package warehouse

import (
	"context"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/variantgroup/dashboard/internal/domain/chart"
	"github.com/variantgroup/dashboard/internal/domain/metric"
	"github.com/variantgroup/dashboard/internal/domain/pivot"
)

// Row is one staging table row.
type Row struct {
	App       string
	Plan      string
	Date      time.Time
	BC        string
	Cohort    string
	TableType TableType
	Status    string
	Values    map[string]*float64
}

// Memory implements Warehouse over rows held in memory. Source rows become
// visible to queries after RefreshStaging.
type Memory struct {
	catalog *metric.Catalog

	mu        sync.RWMutex
	source    []Row
	staging   []Row
	refreshes int
}

// NewMemory returns a warehouse whose staging and source tables both hold rows.
func NewMemory(catalog *metric.Catalog, rows []Row) *Memory {
	return &Memory{
		catalog: catalog,
		source:  slices.Clone(rows),
		staging: slices.Clone(rows),
	}
}

// SetSource replaces the source table.
func (m *Memory) SetSource(rows []Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = slices.Clone(rows)
}

// Refreshes returns how many times RefreshStaging ran.
func (m *Memory) Refreshes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refreshes
}

func (m *Memory) DateBounds(_ context.Context) (DateBounds, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.staging) == 0 {
		return DateBounds{}, ErrNoData
	}
	b := DateBounds{Min: m.staging[0].Date, Max: m.staging[0].Date}
	for _, r := range m.staging[1:] {
		if r.Date.Before(b.Min) {
			b.Min = r.Date
		}
		if r.Date.After(b.Max) {
			b.Max = r.Date
		}
	}
	return b, nil
}

func (m *Memory) PlanGroups(_ context.Context, status string) ([]pivot.PlanGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[pivot.PlanGroup]struct{})
	var out []pivot.PlanGroup
	for _, r := range m.staging {
		if r.Status != status {
			continue
		}
		g := pivot.PlanGroup{App: r.App, Plan: r.Plan}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].App != out[j].App {
			return out[i].App < out[j].App
		}
		return out[i].Plan < out[j].Plan
	})
	return out, nil
}

func (m *Memory) match(f Filter) []Row {
	status := f.Status
	if status == "" {
		status = StatusActive
	}
	from, to := day(f.From), day(f.To)
	var out []Row
	for _, r := range m.staging {
		d := day(r.Date)
		if d.Before(from) || d.After(to) {
			continue
		}
		if r.BC != f.BC || r.Cohort != f.Cohort || r.TableType != f.TableType || r.Status != status {
			continue
		}
		if !slices.Contains(f.Plans, r.Plan) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (m *Memory) PivotRows(_ context.Context, f Filter) ([]pivot.Record, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	if _, err := metricColumns(m.catalog, f.Metrics); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.match(f)
	out := make([]pivot.Record, 0, len(rows))
	for _, r := range rows {
		rec := pivot.Record{App: r.App, Plan: r.Plan, Date: r.Date, Values: make(map[string]*float64, len(f.Metrics))}
		for _, k := range f.Metrics {
			rec.Values[k] = r.Values[k]
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *Memory) ChartRows(_ context.Context, f Filter, keys []string) (map[string][]chart.Point, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	if _, err := metricColumns(m.catalog, keys); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]chart.Point, len(keys))
	for _, r := range m.match(f) {
		for _, k := range keys {
			out[k] = append(out[k], chart.Point{Plan: r.Plan, Date: r.Date, Value: r.Values[k]})
		}
	}
	return out, nil
}

func (m *Memory) RefreshStaging(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staging = slices.Clone(m.source)
	m.refreshes++
	return nil
}

func (m *Memory) Close() error { return nil }

func day(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// DemoRows generates weekly sample data for local runs: two apps with three
// active plans each, every BC and cohort, both table types.
func DemoRows(catalog *metric.Catalog, bcs, cohorts []string, end time.Time, weeks int) []Row {
	apps := map[string][]string{
		"Aurora": {"AUR-Monthly", "AUR-Annual", "AUR-Trial"},
		"Nimbus": {"NIM-Basic", "NIM-Plus", "NIM-Pro"},
	}
	appNames := []string{"Aurora", "Nimbus"}
	end = day(end)

	var rows []Row
	seed := 0
	for _, app := range appNames {
		for pi, plan := range apps[app] {
			for _, bc := range bcs {
				for _, cohort := range cohorts {
					for _, tt := range []TableType{TableRegular, TableCrystalBall} {
						seed++
						for w := 0; w < weeks; w++ {
							d := end.AddDate(0, 0, -7*(weeks-1-w))
							rows = append(rows, Row{
								App: app, Plan: plan, Date: d,
								BC: bc, Cohort: cohort, TableType: tt, Status: StatusActive,
								Values: demoValues(catalog, seed, pi, w),
							})
						}
					}
				}
			}
		}
	}
	return rows
}

func demoValues(catalog *metric.Catalog, seed, plan, week int) map[string]*float64 {
	out := make(map[string]*float64)
	for i, def := range catalog.Definitions() {
		wave := math.Sin(float64(week+seed+i) / 3)
		var v float64
		switch def.Format {
		case metric.FormatPercent:
			v = 0.35 + 0.1*float64(plan)/3 + 0.05*wave
		case metric.FormatDollar:
			v = 1000*float64(plan+1) + 150*wave + 10*float64(week)
		default:
			v = math.Round(100*float64(plan+1) + 20*wave + float64(week))
		}
		out[def.Key] = &v
	}
	return out
}
