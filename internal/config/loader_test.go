package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/vidrank/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load()

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				want := config.New()
				convey.So(cfg.Addr, convey.ShouldEqual, want.Addr)
				convey.So(cfg.BatchSize, convey.ShouldEqual, want.BatchSize)
				convey.So(cfg.AllowedOrigins, convey.ShouldResemble, want.AllowedOrigins)
				convey.So(cfg.DefaultStrategy, convey.ShouldEqual, want.DefaultStrategy)
				convey.So(cfg.BreakerMaxFailures, convey.ShouldEqual, want.BreakerMaxFailures)
				convey.So(cfg.SkillSigma, convey.ShouldEqual, want.SkillSigma)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("VIDRANK_ADDR", ":8080")
			_ = os.Setenv("VIDRANK_BATCH_SIZE", "8")
			_ = os.Setenv("VIDRANK_RNG_SEED", "42")
			_ = os.Setenv("VIDRANK_LOG_BACKEND", "file")
			_ = os.Setenv("VIDRANK_ALLOWED_ORIGINS", "http://a.test, http://b.test")
			_ = os.Setenv("VIDRANK_SKILL_TAU", "0")
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.BatchSize, convey.ShouldEqual, 8)
				convey.So(cfg.RNGSeed, convey.ShouldEqual, uint64(42))
				convey.So(cfg.LogBackend, convey.ShouldEqual, "file")
				convey.So(cfg.AllowedOrigins, convey.ShouldResemble, []string{"http://a.test", "http://b.test"})
				convey.So(cfg.SkillTau, convey.ShouldEqual, 0.0)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":9090"
playlist_id: PL123
default_strategy: balanced
balanced_random_fraction: 0.25
allowed_origins:
  - http://localhost:5173
`)
			_ = os.Setenv("VIDRANK_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.PlaylistID, convey.ShouldEqual, "PL123")
				convey.So(cfg.DefaultStrategy, convey.ShouldEqual, "balanced")
				convey.So(cfg.AllowedOrigins, convey.ShouldResemble, []string{"http://localhost:5173"})
				convey.So(cfg.BatchSize, convey.ShouldEqual, 6)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(t, "addr: \":9090\"\nbatch_size: 4\n")
			_ = os.Setenv("VIDRANK_CONFIG", tmpFile)
			_ = os.Setenv("VIDRANK_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.BatchSize, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, `invalid: yaml: content: [`)
			_ = os.Setenv("VIDRANK_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then it should return an error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("VIDRANK_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("VIDRANK_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "Addr")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("VIDRANK_BATCH_SIZE", "invalid")
			defer clearConfigEnvVars()

			cfg, err := config.Load()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When the default strategy parameters are out of range", func() {
			_ = os.Setenv("VIDRANK_DEFAULT_STRATEGY", "by_date")
			_ = os.Setenv("VIDRANK_BY_DATE_DAYS", "0")
			defer clearConfigEnvVars()

			_, err := config.Load()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func createTempConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "vidrank.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		if key, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(key, config.EnvPrefix) {
			_ = os.Unsetenv(key)
		}
	}
}
