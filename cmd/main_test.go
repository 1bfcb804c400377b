package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/variantgroup/dashboard/internal/config"
	"github.com/variantgroup/dashboard/internal/probe"
	"github.com/variantgroup/dashboard/internal/scheduler"
	"github.com/variantgroup/dashboard/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func memoryConfig() *config.Config {
	cfg := config.New()
	cfg.Warehouse = "memory"
	cfg.CacheBackend = "memory"
	cfg.CookieSecure = false
	cfg.SessionSecret = "test-secret"
	return cfg
}

func TestBuild(t *testing.T) {
	Convey("Given a memory backed configuration", t, func() {
		ctx := context.Background()
		cfg := memoryConfig()
		So(cfg.Validate(), ShouldBeNil)

		c, err := build(ctx, cfg)
		So(err, ShouldBeNil)
		defer c.close()
		So(c.scheduler, ShouldBeNil)

		So(c.svc.Start(ctx), ShouldBeNil)
		defer func() {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			c.svc.Stop(stopCtx)
			c.hub.Close()
		}()

		srv := httptest.NewServer(c.handler)
		defer srv.Close()

		Convey("The health probes pass", func() {
			p := probe.New()
			So(p.Check(ctx, srv.URL), ShouldBeNil)
			So(p.CheckFull(ctx, srv.URL), ShouldBeNil)
		})

		Convey("The API requires a session", func() {
			resp, err := http.Get(srv.URL + "/app/api/plans")
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("An admin can sign in, read data and refresh", func() {
			jar, err := cookiejar.New(nil)
			So(err, ShouldBeNil)
			client := &http.Client{Jar: jar}

			resp, err := client.PostForm(srv.URL+"/app/login", url.Values{
				"username": {"admin"}, "password": {"admin123"},
			})
			So(err, ShouldBeNil)
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(resp.Request.URL.Path, ShouldEqual, "/app/home")
			So(string(body), ShouldContainSubstring, "Welcome back, Administrator")

			resp, err = client.Get(srv.URL + "/app/api/plans")
			So(err, ShouldBeNil)
			var plans struct {
				Apps []string `json:"apps"`
			}
			So(json.NewDecoder(resp.Body).Decode(&plans), ShouldBeNil)
			resp.Body.Close()
			So(plans.Apps, ShouldResemble, []string{"Aurora", "Nimbus"})

			resp, err = client.Post(srv.URL+"/app/api/refresh?kind=gcs", "application/json", nil)
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusAccepted)
		})

		Convey("Pages redirect to the login form", func() {
			resp, err := http.Get(srv.URL + "/app/icarus")
			So(err, ShouldBeNil)
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			So(resp.Request.URL.Path, ShouldEqual, "/app/login")
			So(strings.Contains(string(body), `name="password"`), ShouldBeTrue)
		})
	})

	Convey("Given a refresh schedule", t, func() {
		cfg := memoryConfig()

		Convey("A valid spec creates the scheduler", func() {
			cfg.RefreshSchedule = "0 */6 * * *"
			c, err := build(context.Background(), cfg)
			So(err, ShouldBeNil)
			defer c.close()
			So(c.scheduler, ShouldNotBeNil)
		})

		Convey("An invalid spec fails the build", func() {
			cfg.RefreshSchedule = "sometimes"
			_, err := build(context.Background(), cfg)
			So(errors.Is(err, scheduler.ErrInvalidSchedule), ShouldBeTrue)
		})
	})

	Convey("Given an unknown backend", t, func() {
		cfg := memoryConfig()
		cfg.CacheBackend = "s3"
		_, err := build(context.Background(), cfg)
		So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
	})
}

func TestNewCatalog(t *testing.T) {
	Convey("Given the default metrics", t, func() {
		catalog, err := newCatalog(config.New())
		So(err, ShouldBeNil)
		So(catalog.Keys(), ShouldContain, "Rebill_Rate")
		So(catalog.DisplayName("Rebill_Rate"), ShouldEqual, "Rebill Rate (%)")

		Convey("Chart metrics default to the number format", func() {
			cfg := config.New()
			cfg.ChartMetrics = []config.ChartMetric{{Metric: "Rebills", Display: "Rebills"}}
			So(string(chartMetrics(cfg)[0].Format), ShouldEqual, "number")
		})
	})
}
