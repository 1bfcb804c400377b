package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/variantgroup/dashboard/internal/adapters/cache"
	"github.com/variantgroup/dashboard/internal/adapters/objectstore"
	"github.com/variantgroup/dashboard/internal/adapters/warehouse"
	service "github.com/variantgroup/dashboard/internal/app"
	"github.com/variantgroup/dashboard/internal/domain/jobs"
	"github.com/variantgroup/dashboard/internal/domain/metric"
	"github.com/variantgroup/dashboard/internal/domain/theme"
	"github.com/variantgroup/dashboard/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var end = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

func catalog() *metric.Catalog {
	c, err := metric.NewCatalog([]metric.Definition{
		{Key: "Rebills", Display: "Rebills", Format: metric.FormatNumber},
		{Key: "Rebill_Rate", Display: "Rebill Rate", Format: metric.FormatPercent, Suffix: " (%)"},
		{Key: "Gross_Revenue", Display: "Gross Revenue", Format: metric.FormatDollar, Suffix: " ($)"},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// blockingWarehouse holds RefreshStaging until release is closed.
type blockingWarehouse struct {
	*warehouse.Memory
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingWarehouse) RefreshStaging(ctx context.Context) error {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.Memory.RefreshStaging(ctx)
}

type events struct {
	mu   sync.Mutex
	list []jobs.Event
	done chan jobs.Job
}

func (e *events) Publish(_ context.Context, ev jobs.Event) {
	e.mu.Lock()
	e.list = append(e.list, ev)
	e.mu.Unlock()
	if ev.Job.State == jobs.StateSucceeded || ev.Job.State == jobs.StateFailed {
		e.done <- ev.Job
	}
}

func newFixture(wh warehouse.Warehouse, pub service.Publisher) (*service.Service, *cache.Cache, *objectstore.Memory) {
	store := objectstore.NewMemory()
	c := cache.New(store, cache.WithPrefix("test"))
	svc := service.New(
		service.WithWarehouse(wh),
		service.WithCache(c),
		service.WithCatalog(catalog()),
		service.WithChartMetrics([]service.ChartMetric{
			{Metric: "Gross_Revenue", Display: "Gross Revenue", Format: metric.FormatDollar},
			{Metric: "Rebill_Rate", Display: "Rebill Rate", Format: metric.FormatPercent},
		}),
		service.WithDashboards([]service.Dashboard{
			{Name: "ICARUS - Plan (Historical)", Path: "icarus", Enabled: true},
			{Name: "HERMES - App Overview"},
		}),
		service.WithFilterOptions(service.FilterOptions{
			BCOptions: []string{"4"}, CohortOptions: []string{"Weekly"}, DefaultBC: "4", DefaultCohort: "Weekly",
		}),
		service.WithPublisher(pub),
	)
	return svc, c, store
}

func demo() *warehouse.Memory {
	return warehouse.NewMemory(catalog(), warehouse.DemoRows(catalog(), []string{"4"}, []string{"Weekly"}, end, 4))
}

func query() service.Query {
	return service.Query{
		From:    end.AddDate(0, 0, -30),
		To:      end,
		BC:      "4",
		Cohort:  "Weekly",
		Plans:   []string{"AUR-Monthly", "NIM-Pro"},
		Metrics: []string{"Rebills", "Rebill_Rate"},
	}
}

func TestService_Validate(t *testing.T) {
	Convey("Given a service", t, func() {
		svc, _, _ := newFixture(demo(), nil)

		So(svc.Validate(query()), ShouldBeNil)

		q := query()
		q.Plans = nil
		So(errors.Is(svc.Validate(q), service.ErrNoPlans), ShouldBeTrue)

		q = query()
		q.Metrics = nil
		So(errors.Is(svc.Validate(q), service.ErrNoMetrics), ShouldBeTrue)

		q = query()
		q.From, q.To = q.To, q.From
		So(errors.Is(svc.Validate(q), service.ErrInvalidRange), ShouldBeTrue)

		q = query()
		q.Metrics = []string{"Churn"}
		So(errors.Is(svc.Validate(q), service.ErrInvalidFilter), ShouldBeTrue)
		So(errors.Is(svc.Validate(q), metric.ErrUnknownMetric), ShouldBeTrue)

		q = query()
		q.BC = "99"
		So(errors.Is(svc.Validate(q), service.ErrInvalidFilter), ShouldBeTrue)
	})
}

func TestService_Loads(t *testing.T) {
	Convey("Given a service over demo data", t, func() {
		ctx := context.Background()
		svc, _, store := newFixture(demo(), nil)

		Convey("Filters list active plans per app, sorted", func() {
			fp, err := svc.LoadFilters(ctx)
			So(err, ShouldBeNil)
			So(fp.Apps, ShouldResemble, []string{"Aurora", "Nimbus"})
			So(fp.PlansByApp["Aurora"], ShouldResemble, []string{"AUR-Annual", "AUR-Monthly", "AUR-Trial"})
			So(fp.Bounds.Max.Equal(end), ShouldBeTrue)
			So(fp.Metrics, ShouldResemble, []string{"Rebills", "Rebill_Rate", "Gross_Revenue"})
		})

		Convey("ICARUS loads both tables and chart pairs", func() {
			res, err := svc.LoadIcarus(ctx, query(), theme.Dark)
			So(err, ShouldBeNil)
			So(res.NoData, ShouldBeFalse)
			So(len(res.Regular.Rows), ShouldEqual, 4)
			So(len(res.CrystalBall.Rows), ShouldEqual, 4)
			So(res.Regular.Rows[0].Plan, ShouldEqual, "AUR-Monthly")
			So(res.Regular.Rows[1].Metric, ShouldEqual, "Rebill Rate (%)")

			So(len(res.Charts), ShouldEqual, 2)
			So(res.Charts[0].Display, ShouldEqual, "Gross Revenue")
			So(res.Charts[0].Regular.Plans, ShouldResemble, []string{"AUR-Monthly", "NIM-Pro"})
			So(res.Charts[0].CrystalBall.Figure.Layout.Title, ShouldEqual, "Gross Revenue (CB)")

			Convey("And results are cached in the object store", func() {
				names, _ := store.List(ctx, "test/results/pivot/")
				So(len(names), ShouldEqual, 2)
				names, _ = store.List(ctx, "test/results/chart/")
				So(len(names), ShouldEqual, 2)
			})
		})

		Convey("Filters with no matching rows report no data", func() {
			q := query()
			q.Plans = []string{"does-not-exist"}
			res, err := svc.LoadIcarus(ctx, q, theme.Light)
			So(err, ShouldBeNil)
			So(res.NoData, ShouldBeTrue)
			So(res.Regular, ShouldBeNil)
			So(res.Charts[0].Regular.Figure.Layout.Annotations, ShouldNotBeEmpty)
		})

		Convey("Invalid queries fail before touching the warehouse", func() {
			q := query()
			q.Plans = nil
			_, err := svc.LoadIcarus(ctx, q, theme.Dark)
			So(errors.Is(err, service.ErrNoPlans), ShouldBeTrue)
		})
	})

	Convey("Given a warehouse without active plans", t, func() {
		svc, _, _ := newFixture(warehouse.NewMemory(catalog(), []warehouse.Row{
			{App: "A", Plan: "p", Date: end, Status: "Paused"},
		}), nil)
		_, err := svc.LoadFilters(context.Background())
		So(errors.Is(err, service.ErrNoActivePlans), ShouldBeTrue)
	})
}

func TestService_Refresh(t *testing.T) {
	Convey("Given a started service with a slow warehouse", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		wh := &blockingWarehouse{Memory: demo(), started: make(chan struct{}), release: make(chan struct{})}
		ev := &events{done: make(chan jobs.Job, 4)}
		svc, c, store := newFixture(wh, ev)

		_, err := svc.RequestRefresh(ctx, jobs.KindAll, "admin")
		So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)

		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(context.Background())

		// Seed a cached result so the gcs step has something to drop.
		So(c.Put(ctx, "pivot", "stale", 1), ShouldBeNil)

		Convey("When a full refresh is requested", func() {
			j, err := svc.RequestRefresh(ctx, jobs.KindAll, "admin")
			So(err, ShouldBeNil)
			So(j.State, ShouldEqual, jobs.StateQueued)
			<-wh.started

			Convey("Then overlapping requests are busy until it finishes", func() {
				_, err := svc.RequestRefresh(ctx, jobs.KindGCS, "viewer")
				So(errors.Is(err, jobs.ErrBusy), ShouldBeTrue)
				_, err = svc.RequestRefresh(ctx, jobs.KindAll, "cron")
				So(errors.Is(err, jobs.ErrBusy), ShouldBeTrue)

				close(wh.release)
				var done jobs.Job
				select {
				case done = <-ev.done:
				case <-time.After(2 * time.Second):
				}
				So(done.State, ShouldEqual, jobs.StateSucceeded)
				So(wh.Refreshes(), ShouldEqual, 1)

				info, err := svc.CacheInfo(ctx)
				So(err, ShouldBeNil)
				So(info.LastBQRefresh, ShouldNotBeNil)
				So(info.LastGCSRefresh, ShouldNotBeNil)

				names, _ := store.List(ctx, "test/results/pivot/")
				So(names, ShouldBeEmpty)
				names, _ = store.List(ctx, "test/results/plan_groups/")
				So(len(names), ShouldEqual, 1)

				ev.mu.Lock()
				states := make([]jobs.State, len(ev.list))
				for i, e := range ev.list {
					states[i] = e.Job.State
				}
				ev.mu.Unlock()
				So(states, ShouldResemble, []jobs.State{jobs.StateQueued, jobs.StateRunning, jobs.StateSucceeded})

				jl := svc.Jobs()
				So(len(jl), ShouldEqual, 1)
				So(jl[0].State, ShouldEqual, jobs.StateSucceeded)

				_, err = svc.RequestRefresh(ctx, jobs.KindGCS, "admin")
				So(err, ShouldBeNil)
			})
		})
	})
}

func TestService_StartContext(t *testing.T) {
	Convey("Given a service started with a context that is then cancelled", t, func() {
		startCtx, cancelStart := context.WithCancel(context.Background())
		wh := &blockingWarehouse{Memory: demo(), started: make(chan struct{}), release: make(chan struct{})}
		ev := &events{done: make(chan jobs.Job, 4)}
		svc, _, _ := newFixture(wh, ev)

		So(svc.Start(startCtx), ShouldBeNil)
		defer svc.Stop(context.Background())
		cancelStart()

		Convey("Then a refresh still runs to completion", func() {
			ctx := context.Background()
			_, err := svc.RequestRefresh(ctx, jobs.KindBigQuery, "admin")
			So(err, ShouldBeNil)

			select {
			case <-wh.started:
			case <-time.After(2 * time.Second):
			}
			close(wh.release)

			var done jobs.Job
			select {
			case done = <-ev.done:
			case <-time.After(2 * time.Second):
			}
			So(done.State, ShouldEqual, jobs.StateSucceeded)
			So(wh.Refreshes(), ShouldEqual, 1)
		})
	})
}

func TestService_StopDropsQueuedJobs(t *testing.T) {
	Convey("Given a busy worker and a queued job", t, func() {
		ctx := context.Background()
		wh := &blockingWarehouse{Memory: demo(), started: make(chan struct{}), release: make(chan struct{})}
		ev := &events{done: make(chan jobs.Job, 4)}
		svc, _, _ := newFixture(wh, ev)
		So(svc.Start(ctx), ShouldBeNil)

		_, err := svc.RequestRefresh(ctx, jobs.KindBigQuery, "admin")
		So(err, ShouldBeNil)
		<-wh.started
		queued, err := svc.RequestRefresh(ctx, jobs.KindGCS, "admin")
		So(err, ShouldBeNil)

		Convey("When the service stops before the worker is free", func() {
			stopCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()
			svc.Stop(stopCtx)

			Convey("Then the queued job is failed instead of left queued", func() {
				var gcs jobs.Job
				for _, j := range svc.Jobs() {
					if j.Kind == jobs.KindGCS {
						gcs = j
					}
				}
				So(gcs.ID, ShouldEqual, queued.ID)
				So(gcs.State, ShouldEqual, jobs.StateFailed)
				So(gcs.Error, ShouldEqual, service.ErrStopped.Error())
				So(gcs.FinishedAt, ShouldNotBeNil)
			})
		})
	})
}

func TestService_Dashboards(t *testing.T) {
	Convey("Given dashboards and a stamped cache", t, func() {
		ctx := context.Background()
		svc, c, _ := newFixture(demo(), nil)
		So(c.StampBigQuery(ctx, end), ShouldBeNil)

		h := svc.Dashboards(ctx)
		So(len(h.Rows), ShouldEqual, 2)
		So(h.Rows[0].LastBQRefresh.Equal(end), ShouldBeTrue)
		So(h.Rows[0].LastGCSRefresh, ShouldBeNil)
		So(h.Rows[1].LastBQRefresh, ShouldBeNil)
		So(h.Disabled, ShouldResemble, []string{"HERMES - App Overview"})
		So(h.CacheError, ShouldBeEmpty)
	})
}
