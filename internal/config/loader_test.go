package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/smartystreets/goconvey/convey"
	"github.com/variantgroup/dashboard/internal/config"
)

var configEnvVars = []string{
	"DASHBOARD_CONFIG",
	"DASHBOARD_ADDR",
	"DASHBOARD_WAREHOUSE",
	"DASHBOARD_CACHE_BACKEND",
	"DASHBOARD_CACHE_TTL_MINUTES",
	"DASHBOARD_LOG_LEVEL",
	"DASHBOARD_ALLOWED_ORIGINS",
	"DASHBOARD_REFRESH_WORKERS",
	"PORT",
	"GCS_CACHE_BUCKET",
	"GOOGLE_CLOUD_PROJECT",
}

func clearConfigEnvVars() {
	for _, k := range configEnvVars {
		_ = os.Unsetenv(k)
	}
}

func createTempConfigFile(content string) string {
	f, err := os.CreateTemp("", "dashboard-config-*.yaml")
	if err != nil {
		panic(err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(content); err != nil {
		panic(err)
	}
	return f.Name()
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When the platform variables are set", func() {
			tmp := createTempConfigFile(`
users:
  ops:
    role: admin
    password_hash: "$2a$10$abc"
`)
			defer func() { _ = os.Remove(tmp) }()
			_ = os.Setenv("DASHBOARD_CONFIG", tmp)
			_ = os.Setenv("PORT", "9000")
			_ = os.Setenv("GCS_CACHE_BUCKET", "variant-cache")
			_ = os.Setenv("GOOGLE_CLOUD_PROJECT", "variant-prod")

			cfg, err := config.Load(ctx)

			convey.Convey("Then they override defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, "0.0.0.0:9000")
				convey.So(cfg.CacheBucket, convey.ShouldEqual, "variant-cache")
				convey.So(cfg.ProjectID, convey.ShouldEqual, "variant-prod")
			})
		})

		convey.Convey("When GCS_CACHE_BUCKET is missing for the gcs backend", func() {
			_ = os.Setenv("GOOGLE_CLOUD_PROJECT", "variant-prod")

			cfg, err := config.Load(ctx)

			convey.Convey("Then loading fails with a validation error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "GCS_CACHE_BUCKET")
			})
		})

		convey.Convey("When prefixed variables select memory backends", func() {
			_ = os.Setenv("DASHBOARD_WAREHOUSE", "memory")
			_ = os.Setenv("DASHBOARD_CACHE_BACKEND", "memory")
			_ = os.Setenv("DASHBOARD_CACHE_TTL_MINUTES", "15")
			_ = os.Setenv("DASHBOARD_ALLOWED_ORIGINS", "https://a.example,https://b.example")
			_ = os.Setenv("DASHBOARD_REFRESH_WORKERS", "2")

			cfg, err := config.Load(ctx)

			convey.Convey("Then values are decoded into typed fields", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Warehouse, convey.ShouldEqual, "memory")
				convey.So(cfg.CacheTTLMinutes, convey.ShouldEqual, 15)
				convey.So(cfg.AllowedOrigins, convey.ShouldResemble, []string{"https://a.example", "https://b.example"})
				convey.So(cfg.RefreshWorkers, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When a YAML file replaces the catalog and PORT is set", func() {
			tmp := createTempConfigFile(`
addr: "127.0.0.1:7000"
warehouse: memory
cache_backend: memory
metrics:
  - key: Trials
    display: Trials
    format: number
chart_metrics:
  - metric: Trials
    display: Trials
    format: number
users:
  ops:
    name: Ops
    role: admin
    password: s3cret
`)
			defer func() { _ = os.Remove(tmp) }()
			_ = os.Setenv("DASHBOARD_CONFIG", tmp)
			_ = os.Setenv("PORT", "7100")

			cfg, err := config.Load(ctx)

			convey.Convey("Then lists are replaced and PORT keeps the host", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, "127.0.0.1:7100")
				convey.So(len(cfg.Metrics), convey.ShouldEqual, 1)
				convey.So(cfg.Metrics[0].Key, convey.ShouldEqual, "Trials")
				convey.So(len(cfg.Users), convey.ShouldEqual, 1)
				convey.So(cfg.Users["ops"].Role, convey.ShouldEqual, "admin")
			})
		})

		convey.Convey("When the YAML file is invalid", func() {
			tmp := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmp) }()
			_ = os.Setenv("DASHBOARD_CONFIG", tmp)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the file does not exist", func() {
			_ = os.Setenv("DASHBOARD_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When a numeric variable is malformed", func() {
			_ = os.Setenv("DASHBOARD_WAREHOUSE", "memory")
			_ = os.Setenv("DASHBOARD_CACHE_BACKEND", "memory")
			_ = os.Setenv("DASHBOARD_REFRESH_WORKERS", "many")

			cfg, err := config.Load(ctx)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}
