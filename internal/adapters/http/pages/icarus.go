package pages

import (
	"errors"
	"net/http"
	"net/url"
	"slices"

	"github.com/variantgroup/dashboard/internal/adapters/http/api"
	service "github.com/variantgroup/dashboard/internal/app"
	"github.com/variantgroup/dashboard/pkg/logger"
)

type appPlans struct {
	App   string
	Plans []string
}

type metricOption struct {
	Key     string
	Display string
}

// icarusForm is the filter form state.
type icarusForm struct {
	From, To   string
	Min, Max   string
	BC, Cohort string
	Plans      map[string]bool
	Metrics    map[string]bool
}

type icarusView struct {
	Page
	Form          icarusForm
	Apps          []appPlans
	BCOptions     []string
	CohortOptions []string
	MetricOptions []metricOption
	Loaded        bool
	Result        *service.Icarus
	Alert         *Alert
}

func (h *Handler) handleIcarus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := h.page(w, r, "ICARUS - Plan (Historical)")
	sess, _ := api.SessionFrom(ctx)
	p.Session = &sess

	fp, err := h.deps.LoadFilters(ctx)
	if err != nil {
		if errors.Is(err, service.ErrNoActivePlans) {
			h.renderError(w, r, http.StatusOK, Alert{Level: levelWarning, Title: "No Active Plans",
				Message: "No active plans found in the database."})
			return
		}
		status, _ := api.StatusFor(err)
		h.renderError(w, r, status, errorAlert("Error Loading Dashboard", err))
		return
	}

	view := icarusView{
		Page:          p,
		Form:          h.defaultForm(fp),
		BCOptions:     fp.Options.BCOptions,
		CohortOptions: fp.Options.CohortOptions,
	}
	for _, app := range fp.Apps {
		view.Apps = append(view.Apps, appPlans{App: app, Plans: fp.PlansByApp[app]})
	}
	catalog := h.deps.Catalog()
	for _, key := range catalog.Keys() {
		view.MetricOptions = append(view.MetricOptions, metricOption{Key: key, Display: catalog.DisplayName(key)})
	}

	v := r.URL.Query()
	if v.Get("load") != "1" {
		h.render(w, r, http.StatusOK, "icarus", view)
		return
	}

	q, err := h.parseLoad(v, fp, &view.Form)
	if err != nil {
		view.Alert = &Alert{Level: levelWarning, Title: "Invalid Filters", Message: err.Error()}
		h.render(w, r, http.StatusBadRequest, "icarus", view)
		return
	}

	view.Loaded = true
	res, err := h.deps.LoadIcarus(ctx, q, p.Theme)
	switch {
	case errors.Is(err, service.ErrNoPlans):
		view.Alert = &Alert{Level: levelWarning, Title: "No Plans Selected", Message: "Please select at least one Plan."}
	case errors.Is(err, service.ErrNoMetrics):
		view.Alert = &Alert{Level: levelWarning, Title: "No Metrics Selected", Message: "Please select at least one Metric."}
	case err != nil:
		status, _ := api.StatusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error(ctx, "load icarus", logger.Error(err))
		}
		a := errorAlert("Error Loading Data", err)
		view.Alert = &a
		h.render(w, r, status, "icarus", view)
		return
	case res.NoData:
		view.Result = res
		view.Alert = &Alert{Level: levelWarning, Title: "No Data", Message: "No data found for selected filters."}
	default:
		view.Result = res
	}
	h.render(w, r, http.StatusOK, "icarus", view)
}

func (h *Handler) defaultForm(fp *service.FilterPanel) icarusForm {
	f := icarusForm{
		From:    fp.Bounds.Min.Format(api.DateParam),
		To:      fp.Bounds.Max.Format(api.DateParam),
		Min:     fp.Bounds.Min.Format(api.DateParam),
		Max:     fp.Bounds.Max.Format(api.DateParam),
		BC:      fp.Options.DefaultBC,
		Cohort:  fp.Options.DefaultCohort,
		Plans:   make(map[string]bool),
		Metrics: make(map[string]bool),
	}
	if d := fp.Options.DefaultPlan; d != "" {
		for _, plans := range fp.PlansByApp {
			if slices.Contains(plans, d) {
				f.Plans[d] = true
			}
		}
	}
	for _, key := range fp.Metrics {
		f.Metrics[key] = true
	}
	return f
}

// parseLoad reads the submitted filters into form and returns the query.
// Missing dates default to the warehouse bounds. Unlike the JSON API an
// empty metric selection stays empty.
func (h *Handler) parseLoad(v url.Values, fp *service.FilterPanel, form *icarusForm) (service.Query, error) {
	q, err := api.ParseQuery(v, h.deps.Filters(), h.deps.Catalog())
	if err != nil {
		return service.Query{}, err
	}
	q.Metrics = api.ListParam(v, "metrics")
	if q.From.IsZero() {
		q.From = fp.Bounds.Min
	}
	if q.To.IsZero() {
		q.To = fp.Bounds.Max
	}

	form.From = q.From.Format(api.DateParam)
	form.To = q.To.Format(api.DateParam)
	form.BC, form.Cohort = q.BC, q.Cohort
	form.Plans = make(map[string]bool, len(q.Plans))
	for _, p := range q.Plans {
		form.Plans[p] = true
	}
	form.Metrics = make(map[string]bool, len(q.Metrics))
	for _, m := range q.Metrics {
		form.Metrics[m] = true
	}
	return q, nil
}
