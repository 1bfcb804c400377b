package api

import (
	"net/http"

	"github.com/variantgroup/dashboard/internal/adapters/cache"
	"github.com/variantgroup/dashboard/internal/domain/jobs"
	"github.com/variantgroup/dashboard/internal/domain/pivot"
	"github.com/variantgroup/dashboard/internal/domain/theme"
)

type cacheInfoResponse struct {
	cache.Info
	Jobs []jobs.Job `json:"jobs"`
}

func (s *Server) handleCacheInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.CacheInfo(r.Context())
	if err != nil {
		s.fail(w, r, "api.cache_info", err)
		return
	}
	writeJSON(w, http.StatusOK, cacheInfoResponse{Info: info, Jobs: s.deps.Jobs()})
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Jobs())
}

type plansResponse struct {
	Apps       []string            `json:"apps"`
	PlansByApp map[string][]string `json:"plans_by_app"`
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	fp, err := s.deps.LoadFilters(r.Context())
	if err != nil {
		s.fail(w, r, "api.plans", err)
		return
	}
	writeJSON(w, http.StatusOK, plansResponse{Apps: fp.Apps, PlansByApp: fp.PlansByApp})
}

type dateBoundsResponse struct {
	Min string `json:"min_date"`
	Max string `json:"max_date"`
}

func (s *Server) handleDateBounds(w http.ResponseWriter, r *http.Request) {
	b, err := s.deps.DateBounds(r.Context())
	if err != nil {
		s.fail(w, r, "api.date_bounds", err)
		return
	}
	writeJSON(w, http.StatusOK, dateBoundsResponse{Min: b.Min.Format(DateParam), Max: b.Max.Format(DateParam)})
}

type pivotResponse struct {
	Table  *pivot.Table `json:"table"`
	NoData bool         `json:"no_data"`
}

func (s *Server) handlePivot(w http.ResponseWriter, r *http.Request) {
	const op = "api.pivot"
	v := r.URL.Query()
	tt, err := ParseTable(v.Get("table"))
	if err != nil {
		writeError(w, err)
		return
	}
	q, err := ParseQuery(v, s.deps.Filters(), s.deps.Catalog())
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := s.deps.PivotTable(r.Context(), q, tt)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, pivotResponse{Table: t, NoData: t == nil || len(t.Rows) == 0})
}

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	const op = "api.charts"
	v := r.URL.Query()
	tt, err := ParseTable(v.Get("table"))
	if err != nil {
		writeError(w, err)
		return
	}
	q, err := ParseQuery(v, s.deps.Filters(), s.deps.Catalog())
	if err != nil {
		writeError(w, err)
		return
	}
	panels, err := s.deps.ChartData(r.Context(), q, tt, theme.Parse(v.Get("theme")))
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, panels)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	const op = "api.refresh"
	kind, err := jobs.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	sess, _ := SessionFrom(r.Context())
	j, err := s.deps.RequestRefresh(r.Context(), kind, sess.UserID)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, j)
}
