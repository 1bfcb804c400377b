package warehouse

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/variantgroup/dashboard/internal/domain/chart"
	"github.com/variantgroup/dashboard/internal/domain/metric"
	"github.com/variantgroup/dashboard/internal/domain/pivot"
	"github.com/variantgroup/dashboard/pkg/logger"
	"github.com/variantgroup/dashboard/pkg/metrics"
	"github.com/variantgroup/dashboard/pkg/retry"
)

// BigQueryConfig locates the staging and source tables.
type BigQueryConfig struct {
	ProjectID    string
	Location     string
	Dataset      string
	StagingTable string
	SourceTable  string
	QueryTimeout time.Duration
}

// BigQuery implements Warehouse on BigQuery.
type BigQuery struct {
	client  *bigquery.Client
	catalog *metric.Catalog
	staging string
	source  string
	timeout time.Duration
	retry   *retry.Config
	logger  logger.Logger
}

// NewBigQuery opens a client using application default credentials.
func NewBigQuery(ctx context.Context, cfg BigQueryConfig, catalog *metric.Catalog) (*BigQuery, error) {
	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("warehouse: new client: %w", err)
	}
	if cfg.Location != "" {
		client.Location = cfg.Location
	}

	rc := retry.DefaultConfig()
	rc.OnRetry = func(int, error) { metrics.RecordQueryRetry() }

	return &BigQuery{
		client:  client,
		catalog: catalog,
		staging: tableRef(cfg.ProjectID, cfg.Dataset, cfg.StagingTable),
		source:  tableRef(cfg.ProjectID, cfg.Dataset, cfg.SourceTable),
		timeout: cfg.QueryTimeout,
		retry:   rc,
		logger:  logger.Get().Named("warehouse"),
	}, nil
}

// Close releases the client.
func (b *BigQuery) Close() error {
	return b.client.Close()
}

// read runs sql with params and hands every row to fn. Failed attempts are
// retried from scratch, so fn must reset any state it accumulates via reset.
func (b *BigQuery) read(ctx context.Context, kind, sql string, params []bigquery.QueryParameter,
	reset func(), fn func(map[string]bigquery.Value) error,
) error {
	start := time.Now()
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	err := retry.Do(ctx, b.retry, func(ctx context.Context) error {
		reset()
		q := b.client.Query(sql)
		q.Parameters = params
		it, err := q.Read(ctx)
		if err != nil {
			return err
		}
		for {
			var row map[string]bigquery.Value
			err := it.Next(&row)
			if errors.Is(err, iterator.Done) {
				return nil
			}
			if err != nil {
				return err
			}
			if err := fn(row); err != nil {
				return err
			}
		}
	})
	metrics.RecordQuery(kind, float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordQueryError(kind)
		b.logger.Error(ctx, "query failed", logger.String("kind", kind), logger.Error(err))
		return fmt.Errorf("warehouse: %s: %w", kind, err)
	}
	return nil
}

func (b *BigQuery) DateBounds(ctx context.Context) (DateBounds, error) {
	var out DateBounds
	found := false
	err := b.read(ctx, "date_bounds", dateBoundsSQL(b.staging), nil,
		func() { out, found = DateBounds{}, false },
		func(row map[string]bigquery.Value) error {
			minDate, okMin := row["min_date"].(string)
			maxDate, okMax := row["max_date"].(string)
			if !okMin || !okMax {
				return nil
			}
			var err error
			if out.Min, err = time.Parse(paramDateLayout, minDate); err != nil {
				return err
			}
			if out.Max, err = time.Parse(paramDateLayout, maxDate); err != nil {
				return err
			}
			found = true
			return nil
		})
	if err != nil {
		return DateBounds{}, err
	}
	if !found {
		return DateBounds{}, ErrNoData
	}
	return out, nil
}

func (b *BigQuery) PlanGroups(ctx context.Context, status string) ([]pivot.PlanGroup, error) {
	var out []pivot.PlanGroup
	params := []bigquery.QueryParameter{{Name: "status", Value: status}}
	err := b.read(ctx, "plan_groups", planGroupsSQL(b.staging), params,
		func() { out = out[:0] },
		func(row map[string]bigquery.Value) error {
			out = append(out, pivot.PlanGroup{
				App:  stringValue(row[ColApp]),
				Plan: stringValue(row[ColPlan]),
			})
			return nil
		})
	return out, err
}

func filterParams(f Filter) []bigquery.QueryParameter {
	status := f.Status
	if status == "" {
		status = StatusActive
	}
	return []bigquery.QueryParameter{
		{Name: "from_date", Value: f.From.Format(paramDateLayout)},
		{Name: "to_date", Value: f.To.Format(paramDateLayout)},
		{Name: "bc", Value: f.BC},
		{Name: "cohort", Value: f.Cohort},
		{Name: "plans", Value: f.Plans},
		{Name: "table_type", Value: string(f.TableType)},
		{Name: "status", Value: status},
	}
}

func (b *BigQuery) PivotRows(ctx context.Context, f Filter) ([]pivot.Record, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	cols, err := metricColumns(b.catalog, f.Metrics)
	if err != nil {
		return nil, err
	}

	var out []pivot.Record
	err = b.read(ctx, "pivot", pivotSQL(b.staging, cols), filterParams(f),
		func() { out = out[:0] },
		func(row map[string]bigquery.Value) error {
			d, err := time.Parse(paramDateLayout, stringValue(row[ColDate]))
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidQuery, ColDate, err)
			}
			rec := pivot.Record{
				App:    stringValue(row[ColApp]),
				Plan:   stringValue(row[ColPlan]),
				Date:   d,
				Values: make(map[string]*float64, len(f.Metrics)),
			}
			for _, m := range f.Metrics {
				rec.Values[m] = floatValue(row[m])
			}
			out = append(out, rec)
			return nil
		})
	return out, err
}

func (b *BigQuery) ChartRows(ctx context.Context, f Filter, keys []string) (map[string][]chart.Point, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	cols, err := metricColumns(b.catalog, keys)
	if err != nil {
		return nil, err
	}

	var out map[string][]chart.Point
	err = b.read(ctx, "chart", chartSQL(b.staging, cols), filterParams(f),
		func() { out = make(map[string][]chart.Point, len(keys)) },
		func(row map[string]bigquery.Value) error {
			d, err := time.Parse(paramDateLayout, stringValue(row[ColDate]))
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidQuery, ColDate, err)
			}
			plan := stringValue(row[ColPlan])
			for _, m := range keys {
				out[m] = append(out[m], chart.Point{Plan: plan, Date: d, Value: floatValue(row[m])})
			}
			return nil
		})
	return out, err
}

// RefreshStaging replaces the staging table with the current source table.
func (b *BigQuery) RefreshStaging(ctx context.Context) error {
	start := time.Now()
	err := retry.Do(ctx, b.retry, func(ctx context.Context) error {
		job, err := b.client.Query(refreshSQL(b.staging, b.source)).Run(ctx)
		if err != nil {
			return err
		}
		status, err := job.Wait(ctx)
		if err != nil {
			return err
		}
		return status.Err()
	})
	metrics.RecordQuery("refresh_staging", float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordQueryError("refresh_staging")
		return fmt.Errorf("warehouse: refresh staging: %w", err)
	}
	b.logger.Info(ctx, "staging table rebuilt",
		logger.String("table", b.staging),
		logger.Duration("took", time.Since(start)),
	)
	return nil
}

func stringValue(v bigquery.Value) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// floatValue converts FLOAT64, INT64 and NUMERIC cells. NULL, NaN and
// infinities become nil.
func floatValue(v bigquery.Value) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int64:
		f = float64(t)
	case *big.Rat:
		if t == nil {
			return nil
		}
		f, _ = t.Float64()
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
