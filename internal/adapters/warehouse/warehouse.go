// Package warehouse reads plan metrics from the analytics warehouse.
package warehouse

import (
	"context"
	"errors"
	"time"

	"github.com/variantgroup/dashboard/internal/domain/chart"
	"github.com/variantgroup/dashboard/internal/domain/pivot"
)

// TableType selects the Regular or Crystal Ball projection of a plan.
type TableType string

const (
	TableRegular     TableType = "Regular"
	TableCrystalBall TableType = "Crystal Ball"
)

// StatusActive is the plan status shown on dashboards.
const StatusActive = "Active"

// Column names in the staging table.
const (
	ColApp       = "App_Name"
	ColPlan      = "Plan_Name"
	ColDate      = "Reporting_Date"
	ColBC        = "BC"
	ColCohort    = "Cohort"
	ColTableType = "Table_Type"
	ColStatus    = "Plan_Status"
)

var (
	ErrNoData       = errors.New("warehouse: no data")
	ErrInvalidQuery = errors.New("warehouse: invalid query")
)

// Filter narrows a pivot or chart query.
type Filter struct {
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	BC        string    `json:"bc"`
	Cohort    string    `json:"cohort"`
	Plans     []string  `json:"plans"`
	Metrics   []string  `json:"metrics"`
	TableType TableType `json:"table_type"`
	Status    string    `json:"status"`
}

// DateBounds is the reporting date range available in the staging table.
type DateBounds struct {
	Min time.Time `json:"min_date"`
	Max time.Time `json:"max_date"`
}

// Warehouse is the query surface the dashboards need.
type Warehouse interface {
	// DateBounds returns the earliest and latest reporting dates.
	DateBounds(ctx context.Context) (DateBounds, error)
	// PlanGroups lists distinct (app, plan) pairs with the given status.
	PlanGroups(ctx context.Context, status string) ([]pivot.PlanGroup, error)
	// PivotRows returns f.Metrics for every matching (app, plan, date).
	PivotRows(ctx context.Context, f Filter) ([]pivot.Record, error)
	// ChartRows returns per-plan points for each of metrics.
	ChartRows(ctx context.Context, f Filter, metrics []string) (map[string][]chart.Point, error)
	// RefreshStaging rebuilds the staging table from the source table.
	RefreshStaging(ctx context.Context) error
	Close() error
}
