package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/variantgroup/dashboard/internal/adapters/cache"
	"github.com/variantgroup/dashboard/internal/adapters/warehouse"
	"github.com/variantgroup/dashboard/internal/domain/chart"
	"github.com/variantgroup/dashboard/internal/domain/pivot"
	"github.com/variantgroup/dashboard/internal/domain/theme"
)

// Cache kinds.
const (
	kindDateBounds = "date_bounds"
	kindPlanGroups = "plan_groups"
	kindPivot      = "pivot"
	kindChart      = "chart"
)

// Query is a dashboard filter selection.
type Query struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	BC      string    `json:"bc"`
	Cohort  string    `json:"cohort"`
	Plans   []string  `json:"plans"`
	Metrics []string  `json:"metrics"`
}

// Validate checks q against the catalog and filter options.
func (s *Service) Validate(q Query) error {
	if len(q.Plans) == 0 {
		return ErrNoPlans
	}
	if len(q.Metrics) == 0 {
		return ErrNoMetrics
	}
	if q.From.IsZero() || q.To.IsZero() {
		return fmt.Errorf("%w: date range is required", ErrInvalidFilter)
	}
	if q.From.After(q.To) {
		return ErrInvalidRange
	}
	if err := s.catalog.Validate(q.Metrics); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	if len(s.filters.BCOptions) > 0 && !slices.Contains(s.filters.BCOptions, q.BC) {
		return fmt.Errorf("%w: bc %q", ErrInvalidFilter, q.BC)
	}
	if len(s.filters.CohortOptions) > 0 && !slices.Contains(s.filters.CohortOptions, q.Cohort) {
		return fmt.Errorf("%w: cohort %q", ErrInvalidFilter, q.Cohort)
	}
	return nil
}

func (q Query) filter(tt warehouse.TableType) warehouse.Filter {
	plans := slices.Clone(q.Plans)
	slices.Sort(plans)
	return warehouse.Filter{
		From:      q.From,
		To:        q.To,
		BC:        q.BC,
		Cohort:    q.Cohort,
		Plans:     plans,
		Metrics:   q.Metrics,
		TableType: tt,
		Status:    warehouse.StatusActive,
	}
}

// DateBounds returns the available reporting date range.
func (s *Service) DateBounds(ctx context.Context) (warehouse.DateBounds, error) {
	return cache.GetOrLoad(ctx, s.cache, kindDateBounds, struct{}{}, s.warehouse.DateBounds)
}

// PlanGroups lists (app, plan) pairs with the given status.
func (s *Service) PlanGroups(ctx context.Context, status string) ([]pivot.PlanGroup, error) {
	return cache.GetOrLoad(ctx, s.cache, kindPlanGroups, status, func(ctx context.Context) ([]pivot.PlanGroup, error) {
		return s.warehouse.PlanGroups(ctx, status)
	})
}

// PivotTable loads and pivots one table type. It returns nil when no rows match.
func (s *Service) PivotTable(ctx context.Context, q Query, tt warehouse.TableType) (*pivot.Table, error) {
	if err := s.Validate(q); err != nil {
		return nil, err
	}
	f := q.filter(tt)
	return cache.GetOrLoad(ctx, s.cache, kindPivot, f, func(ctx context.Context) (*pivot.Table, error) {
		recs, err := s.warehouse.PivotRows(ctx, f)
		if err != nil {
			return nil, err
		}
		return pivot.Process(recs, q.Metrics, s.catalog, tt == warehouse.TableCrystalBall), nil
	})
}

// ChartPanel is one rendered chart.
type ChartPanel struct {
	Metric  string            `json:"metric"`
	Display string            `json:"display"`
	Figure  chart.Figure      `json:"figure"`
	Plans   []string          `json:"plans"`
	Colors  map[string]string `json:"colors"`
}

// ChartData builds one chart per configured chart metric for a table type.
func (s *Service) ChartData(ctx context.Context, q Query, tt warehouse.TableType, th theme.Name) ([]ChartPanel, error) {
	chartQuery := q
	chartQuery.Metrics = s.chartMetricKeys()
	if len(chartQuery.Metrics) == 0 {
		return []ChartPanel{}, nil
	}
	if err := s.Validate(chartQuery); err != nil {
		return nil, err
	}

	f := chartQuery.filter(tt)
	points, err := cache.GetOrLoad(ctx, s.cache, kindChart, f, func(ctx context.Context) (map[string][]chart.Point, error) {
		return s.warehouse.ChartRows(ctx, f, f.Metrics)
	})
	if err != nil {
		return nil, err
	}

	suffix := ""
	if tt == warehouse.TableCrystalBall {
		suffix = " (CB)"
	}
	dr := chart.DateRange{From: q.From, To: q.To}
	panels := make([]ChartPanel, 0, len(s.chartMetrics))
	for _, cm := range s.chartMetrics {
		fig, plans := chart.BuildLineChart(points[cm.Metric], cm.Display+suffix, cm.Format, dr, th)
		panels = append(panels, ChartPanel{
			Metric:  cm.Metric,
			Display: cm.Display,
			Figure:  fig,
			Plans:   plans,
			Colors:  chart.PlanColorMap(plans),
		})
	}
	return panels, nil
}

func (s *Service) chartMetricKeys() []string {
	keys := make([]string, len(s.chartMetrics))
	for i, cm := range s.chartMetrics {
		keys[i] = cm.Metric
	}
	return keys
}

// ChartPair shows a metric for both table types side by side.
type ChartPair struct {
	Display     string     `json:"display"`
	Regular     ChartPanel `json:"regular"`
	CrystalBall ChartPanel `json:"crystal_ball"`
}

// Icarus is the loaded ICARUS historical dashboard.
type Icarus struct {
	Regular     *pivot.Table `json:"regular"`
	CrystalBall *pivot.Table `json:"crystal_ball"`
	Charts      []ChartPair  `json:"charts"`
	NoData      bool         `json:"no_data"`
}

// LoadIcarus loads both pivot tables and every chart concurrently.
func (s *Service) LoadIcarus(ctx context.Context, q Query, th theme.Name) (*Icarus, error) {
	if err := s.Validate(q); err != nil {
		return nil, err
	}

	var (
		out               Icarus
		chartsR, chartsCB []ChartPanel
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Regular, err = s.PivotTable(gctx, q, warehouse.TableRegular)
		return err
	})
	g.Go(func() (err error) {
		out.CrystalBall, err = s.PivotTable(gctx, q, warehouse.TableCrystalBall)
		return err
	})
	g.Go(func() (err error) {
		chartsR, err = s.ChartData(gctx, q, warehouse.TableRegular, th)
		return err
	})
	g.Go(func() (err error) {
		chartsCB, err = s.ChartData(gctx, q, warehouse.TableCrystalBall, th)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out.Charts = make([]ChartPair, 0, len(chartsR))
	for i := range chartsR {
		out.Charts = append(out.Charts, ChartPair{
			Display:     chartsR[i].Display,
			Regular:     chartsR[i],
			CrystalBall: chartsCB[i],
		})
	}
	out.NoData = isEmpty(out.Regular) && isEmpty(out.CrystalBall)
	return &out, nil
}

func isEmpty(t *pivot.Table) bool {
	return t == nil || len(t.Rows) == 0
}

// FilterPanel is what the ICARUS filter form needs.
type FilterPanel struct {
	Bounds     warehouse.DateBounds `json:"bounds"`
	PlansByApp map[string][]string  `json:"plans_by_app"`
	Apps       []string             `json:"apps"`
	Options    FilterOptions        `json:"options"`
	Metrics    []string             `json:"metrics"`
}

// LoadFilters loads the date bounds and active plans for the filter form.
// Plans within an app are sorted.
func (s *Service) LoadFilters(ctx context.Context) (*FilterPanel, error) {
	bounds, err := s.DateBounds(ctx)
	if err != nil {
		return nil, fmt.Errorf("load date bounds: %w", err)
	}
	groups, err := s.PlanGroups(ctx, warehouse.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("load plans: %w", err)
	}
	if len(groups) == 0 {
		return nil, ErrNoActivePlans
	}
	byApp := pivot.PlansByApp(groups)
	for app := range byApp {
		slices.Sort(byApp[app])
	}
	return &FilterPanel{
		Bounds:     bounds,
		PlansByApp: byApp,
		Apps:       pivot.Apps(byApp),
		Options:    s.filters,
		Metrics:    s.catalog.Keys(),
	}, nil
}
