package pages_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/crypto/bcrypt"

	"github.com/variantgroup/dashboard/internal/adapters/cache"
	"github.com/variantgroup/dashboard/internal/adapters/http/api"
	"github.com/variantgroup/dashboard/internal/adapters/http/pages"
	"github.com/variantgroup/dashboard/internal/adapters/objectstore"
	"github.com/variantgroup/dashboard/internal/adapters/warehouse"
	service "github.com/variantgroup/dashboard/internal/app"
	"github.com/variantgroup/dashboard/internal/domain/auth"
	"github.com/variantgroup/dashboard/internal/domain/metric"
	"github.com/variantgroup/dashboard/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type fixture struct {
	mux *http.ServeMux
}

func newFixture(limiter *api.Limiter) *fixture {
	catalog, err := metric.NewCatalog([]metric.Definition{
		{Key: "Rebills", Display: "Rebills"},
		{Key: "Rebill_Rate", Display: "Rebill Rate", Format: metric.FormatPercent, Suffix: " (%)"},
	})
	if err != nil {
		panic(err)
	}
	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	wh := warehouse.NewMemory(catalog, warehouse.DemoRows(catalog, []string{"4"}, []string{"Weekly"}, end, 3))
	svc := service.New(
		service.WithWarehouse(wh),
		service.WithCache(cache.New(objectstore.NewMemory())),
		service.WithCatalog(catalog),
		service.WithChartMetrics([]service.ChartMetric{{Metric: "Rebills", Display: "Rebills", Format: metric.FormatNumber}}),
		service.WithDashboards([]service.Dashboard{
			{Name: "ICARUS - Plan (Historical)", Path: "icarus", Enabled: true},
			{Name: "HERMES - App Overview"},
		}),
		service.WithFilterOptions(service.FilterOptions{
			BCOptions: []string{"4"}, CohortOptions: []string{"Weekly"},
			DefaultBC: "4", DefaultCohort: "Weekly", DefaultPlan: "NIM-Pro",
		}),
	)

	store, err := auth.NewStore([]auth.User{
		{ID: "admin", Name: "Administrator", Role: auth.RoleAdmin, Password: "admin123"},
		{ID: "viewer", Name: "Viewer", Role: auth.RoleViewer, Password: "viewer123"},
	}, auth.WithBcryptCost(bcrypt.MinCost))
	if err != nil {
		panic(err)
	}
	sessions, err := api.NewSessions(store, api.SessionConfig{Secret: "test", Path: "/app"})
	if err != nil {
		panic(err)
	}

	mux := http.NewServeMux()
	pages.New(svc, sessions, limiter, pages.WithDemoLogins(true)).Register(context.Background(), mux)
	return &fixture{mux: mux}
}

func (f *fixture) get(target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

func (f *fixture) post(target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

func (f *fixture) login(user, password string) *http.Cookie {
	w := f.post("/app/login", url.Values{"username": {user}, "password": {password}})
	for _, c := range w.Result().Cookies() {
		if c.Name == api.SessionCookie {
			return c
		}
	}
	return nil
}

func TestPages_Auth(t *testing.T) {
	Convey("Given the UI", t, func() {
		f := newFixture(nil)

		Convey("Pages redirect to the login page without a session", func() {
			for _, path := range []string{"/app", "/app/", "/app/home", "/app/icarus"} {
				w := f.get(path)
				So(w.Code, ShouldEqual, http.StatusSeeOther)
				So(w.Header().Get("Location"), ShouldEqual, "/app/login")
			}
		})

		Convey("The login page shows the form and demo credentials", func() {
			w := f.get("/app/login")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
			So(w.Body.String(), ShouldContainSubstring, "Sign in to access your dashboards")
			So(w.Body.String(), ShouldContainSubstring, "Admin: admin / admin123")
		})

		Convey("Missing credentials are a warning", func() {
			w := f.post("/app/login", url.Values{"username": {"admin"}})
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "Please enter both username and password")
		})

		Convey("Wrong credentials are rejected", func() {
			w := f.post("/app/login", url.Values{"username": {"admin"}, "password": {"nope"}})
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(w.Body.String(), ShouldContainSubstring, "Invalid username or password")
			So(w.Body.String(), ShouldContainSubstring, `value="admin"`)
		})

		Convey("A successful login lands on the home page", func() {
			w := f.post("/app/login", url.Values{"username": {"admin"}, "password": {"admin123"}})
			So(w.Code, ShouldEqual, http.StatusSeeOther)
			So(w.Header().Get("Location"), ShouldEqual, "/app/home")

			cookie := f.login("admin", "admin123")
			So(cookie, ShouldNotBeNil)
			So(f.get("/app", cookie).Header().Get("Location"), ShouldEqual, "/app/home")
			So(f.get("/app/login", cookie).Header().Get("Location"), ShouldEqual, "/app/home")

			Convey("And logging out ends the session", func() {
				w := f.post("/app/logout", nil, cookie)
				So(w.Code, ShouldEqual, http.StatusSeeOther)
				So(w.Header().Get("Location"), ShouldEqual, "/app/login")
				So(f.get("/app/home", cookie).Code, ShouldEqual, http.StatusSeeOther)
			})
		})
	})

	Convey("Given a login limit of one attempt", t, func() {
		f := newFixture(api.NewLimiter(1, 1))
		So(f.post("/app/login", url.Values{"username": {"admin"}, "password": {"x"}}).Code, ShouldEqual, http.StatusUnauthorized)
		w := f.post("/app/login", url.Values{"username": {"admin"}, "password": {"admin123"}})
		So(w.Code, ShouldEqual, http.StatusTooManyRequests)
		So(w.Body.String(), ShouldContainSubstring, "too many login attempts")

		Convey("A forged forwarded address does not earn another attempt", func() {
			req := httptest.NewRequest(http.MethodPost, "/app/login",
				strings.NewReader(url.Values{"username": {"admin"}, "password": {"admin123"}}.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.Header.Set("X-Forwarded-For", "198.51.100.23, 192.0.2.1")
			w := httptest.NewRecorder()
			f.mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
		})
	})
}

func TestPages_Home(t *testing.T) {
	Convey("Given signed in users", t, func() {
		f := newFixture(nil)

		Convey("Admins see the dashboards and refresh controls", func() {
			w := f.get("/app/home", f.login("admin", "admin123"))
			So(w.Code, ShouldEqual, http.StatusOK)
			body := w.Body.String()
			So(body, ShouldContainSubstring, "Welcome back, Administrator")
			So(body, ShouldContainSubstring, `href="/app/icarus"`)
			So(body, ShouldContainSubstring, "Disabled: HERMES - App Overview")
			So(body, ShouldContainSubstring, `data-refresh-kind="all"`)
		})

		Convey("Viewers cannot refresh", func() {
			w := f.get("/app/home", f.login("viewer", "viewer123"))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldNotContainSubstring, "data-refresh-kind")
		})
	})
}

func TestPages_Icarus(t *testing.T) {
	Convey("Given a signed in viewer", t, func() {
		f := newFixture(nil)
		cookie := f.login("viewer", "viewer123")

		Convey("The filter form lists plans per app with the default preselected", func() {
			w := f.get("/app/icarus", cookie)
			So(w.Code, ShouldEqual, http.StatusOK)
			body := w.Body.String()
			So(body, ShouldContainSubstring, "<legend>Aurora</legend>")
			So(body, ShouldContainSubstring, `value="NIM-Pro" checked`)
			So(body, ShouldContainSubstring, `value="AUR-Monthly">`)
			So(body, ShouldContainSubstring, `value="2024-06-30"`)
			So(body, ShouldNotContainSubstring, "Plan Overview")
		})

		Convey("Loading renders both tables and the charts", func() {
			w := f.get("/app/icarus?load=1&plans=AUR-Monthly&metrics=Rebills&metrics=Rebill_Rate", cookie)
			So(w.Code, ShouldEqual, http.StatusOK)
			body := w.Body.String()
			So(body, ShouldContainSubstring, "Plan Overview (Regular)")
			So(body, ShouldContainSubstring, "Plan Overview (Crystal Ball)")
			So(body, ShouldContainSubstring, "Rebill Rate (%)")
			So(body, ShouldContainSubstring, "06/30/2024")
			So(body, ShouldContainSubstring, `class="chart" data-figure=`)
			So(body, ShouldContainSubstring, "Rebills (Crystal Ball)")
			So(body, ShouldContainSubstring, `value="AUR-Monthly" checked`)
		})

		Convey("No plans selected is a warning", func() {
			w := f.get("/app/icarus?load=1&metrics=Rebills", cookie)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "No Plans Selected")
		})

		Convey("No metrics selected is a warning", func() {
			w := f.get("/app/icarus?load=1&plans=AUR-Monthly", cookie)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "No Metrics Selected")
		})

		Convey("Filters without rows report no data", func() {
			w := f.get("/app/icarus?load=1&plans=AUR-Monthly&metrics=Rebills&from=2020-01-01&to=2020-02-01", cookie)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "No data found for selected filters.")
		})

		Convey("Malformed dates are rejected", func() {
			w := f.get("/app/icarus?load=1&plans=AUR-Monthly&from=yesterday", cookie)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "Invalid Filters")
		})
	})
}

func TestPages_Assets(t *testing.T) {
	Convey("Given the UI", t, func() {
		f := newFixture(nil)

		Convey("The stylesheet defaults to the dark theme", func() {
			w := f.get("/app/theme.css")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "text/css")
			So(w.Body.String(), ShouldContainSubstring, "#0F172A")
		})

		Convey("?theme= switches and remembers the theme", func() {
			w := f.get("/app/theme.css?theme=light")
			So(w.Body.String(), ShouldContainSubstring, "background-color: #F8FAFC")
			var themeCookie *http.Cookie
			for _, c := range w.Result().Cookies() {
				if c.Name == pages.ThemeCookie {
					themeCookie = c
				}
			}
			So(themeCookie, ShouldNotBeNil)
			So(themeCookie.Value, ShouldEqual, "light")

			w = f.get("/app/theme.css", themeCookie)
			So(w.Body.String(), ShouldContainSubstring, "background-color: #F8FAFC")
		})

		Convey("Static assets are served", func() {
			w := f.get("/app/static/app.js")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "Plotly")
		})
	})
}
