package config_test

import (
	"errors"
	"testing"

	"github.com/smartystreets/goconvey/convey"
	"github.com/variantgroup/dashboard/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, "0.0.0.0:8080")
			convey.So(cfg.AppPath, convey.ShouldEqual, "/app")
			convey.So(cfg.AllowedOrigins, convey.ShouldResemble, []string{"*"})
			convey.So(cfg.SessionTTLHours, convey.ShouldEqual, 24)
			convey.So(cfg.DefaultBC, convey.ShouldBeIn, cfg.BCOptions)
			convey.So(cfg.DefaultCohort, convey.ShouldBeIn, cfg.CohortOptions)
			convey.So(len(cfg.Metrics), convey.ShouldBeGreaterThan, 0)
		})

		convey.Convey("Then defaults fail validation until a bucket and project are set", func() {
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)

			cfg.ProjectID = "proj"
			cfg.CacheBucket = "bucket"
			cfg.Users = map[string]config.User{"ops": {Role: "admin", PasswordHash: "$2a$10$abc"}}
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the login throttle trusts one proxy hop", func() {
			convey.So(cfg.TrustedProxyHops, convey.ShouldEqual, 1)
		})
	})
}

func TestConfig_DemoCredentials(t *testing.T) {
	convey.Convey("Given the default users on a bigquery warehouse", t, func() {
		cfg := config.New()
		cfg.ProjectID = "proj"
		cfg.CacheBucket = "bucket"

		convey.Convey("When validated, the demo passwords are refused", func() {
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "demo password")
		})

		convey.Convey("When one demo user remains, it is still refused", func() {
			cfg.Users["admin"] = config.User{Role: "admin", Password: "a-real-secret"}
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, `"viewer"`)
		})

		convey.Convey("When the users have their own passwords, it passes", func() {
			cfg.Users = map[string]config.User{
				"admin":  {Role: "admin", Password: "a-real-secret"},
				"viewer": {Role: "viewer", PasswordHash: "$2a$10$abc"},
			}
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When the warehouse is the in-memory demo, they are allowed", func() {
			cfg.Warehouse = "memory"
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a valid in-memory config", t, func() {
		cfg := config.New()
		cfg.Warehouse = "memory"
		cfg.CacheBackend = "memory"
		convey.So(cfg.Validate(), convey.ShouldBeNil)

		cases := map[string]func(c *config.Config){
			"root app path":        func(c *config.Config) { c.AppPath = "/" },
			"trailing slash":       func(c *config.Config) { c.AppPath = "/app/" },
			"unknown warehouse":    func(c *config.Config) { c.Warehouse = "snowflake" },
			"unknown cache":        func(c *config.Config) { c.CacheBackend = "redis" },
			"gcs without bucket":   func(c *config.Config) { c.CacheBackend = "gcs" },
			"bad role":             func(c *config.Config) { c.Users["x"] = config.User{Role: "root", Password: "p"} },
			"user without secret":  func(c *config.Config) { c.Users["x"] = config.User{Role: "viewer"} },
			"no metrics":           func(c *config.Config) { c.Metrics = nil },
			"duplicate metric":     func(c *config.Config) { c.Metrics = append(c.Metrics, c.Metrics[0]) },
			"unknown chart metric": func(c *config.Config) { c.ChartMetrics = []config.ChartMetric{{Metric: "Nope"}} },
			"default bc missing":   func(c *config.Config) { c.DefaultBC = "99" },
			"zero session ttl":     func(c *config.Config) { c.SessionTTLHours = 0 },
			"zero workers":         func(c *config.Config) { c.RefreshWorkers = 0 },
			"negative proxy hops":  func(c *config.Config) { c.TrustedProxyHops = -1 },
		}
		for name, mutate := range cases {
			convey.Convey("When the config has "+name, func() {
				mutate(cfg)
				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}
