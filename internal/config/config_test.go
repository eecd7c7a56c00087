package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/okian/churnscore/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.DefaultThreshold, convey.ShouldEqual, 0.7)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.MaxRows, convey.ShouldEqual, 100_000)
			convey.So(cfg.MaxUploadBytes, convey.ShouldEqual, 10<<20)
			convey.So(cfg.ReportStore, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a config", t, func() {
		cases := []struct {
			name   string
			mutate func(c *config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = " " }},
			{"zero threshold", func(c *config.Config) { c.DefaultThreshold = 0 }},
			{"threshold above one", func(c *config.Config) { c.DefaultThreshold = 1.01 }},
			{"non-positive max rows", func(c *config.Config) { c.MaxRows = 0 }},
			{"non-positive upload", func(c *config.Config) { c.MaxUploadBytes = -1 }},
			{"unknown store", func(c *config.Config) { c.ReportStore = "redis" }},
			{"sqlite without path", func(c *config.Config) { c.ReportStore = config.StoreSQLite; c.ReportDBPath = "" }},
			{"zero sync timeout", func(c *config.Config) { c.SyncTimeoutMS = 0 }},
		}
		for _, tc := range cases {
			convey.Convey("When "+tc.name, func() {
				cfg := config.New()
				tc.mutate(cfg)
				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}

		convey.Convey("When the threshold is exactly one", func() {
			cfg := config.New()
			cfg.DefaultThreshold = 1
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
