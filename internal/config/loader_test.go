package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/skillsync/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		// Point .env lookup at a file that does not exist so a developer's
		// local .env never leaks into the tests.
		_ = os.Setenv("SKILLSYNC_DOTENV", filepath.Join(t.TempDir(), "missing.env"))
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "memory")
				convey.So(cfg.RecomputeQueueSize, convey.ShouldEqual, 10_000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("SKILLSYNC_ADDR", ":8080")
			_ = os.Setenv("SKILLSYNC_RECOMPUTE_QUEUE_SIZE", "500")
			_ = os.Setenv("SKILLSYNC_WORKER_COUNT", "3")
			_ = os.Setenv("SKILLSYNC_ALLOWED_ORIGINS", "http://a.test, http://b.test")
			_ = os.Setenv("SKILLSYNC_JWT_SECRET", "s3cret")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.RecomputeQueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.AllowedOrigins, convey.ShouldResemble, []string{"http://a.test", "http://b.test"})
				convey.So(cfg.JWTSecret, convey.ShouldEqual, "s3cret")
			})
		})

		convey.Convey("When loading config with a YAML file and env overrides", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":9090"
store_driver: sqlite
sqlite_path: /tmp/skillsync-test.db
worker_count: 24
allowed_origins:
  - http://localhost:5173
`)
			_ = os.Setenv("SKILLSYNC_CONFIG", tmpFile)
			_ = os.Setenv("SKILLSYNC_WORKER_COUNT", "32")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/tmp/skillsync-test.db")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 32)
				convey.So(cfg.AllowedOrigins, convey.ShouldResemble, []string{"http://localhost:5173"})
				convey.So(cfg.HistoryLimit, convey.ShouldEqual, 50) // From defaults
			})
		})

		convey.Convey("When a .env file is present", func() {
			dotenv := filepath.Join(t.TempDir(), ".env")
			convey.So(os.WriteFile(dotenv, []byte("SKILLSYNC_ADDR=:7070\nSKILLSYNC_LOG_LEVEL=debug\n"), 0o600), convey.ShouldBeNil)
			_ = os.Setenv("SKILLSYNC_DOTENV", dotenv)
			_ = os.Setenv("SKILLSYNC_LOG_LEVEL", "warn")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it fills unset variables without overriding set ones", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "warn")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			_ = os.Setenv("SKILLSYNC_CONFIG", createTempConfigFile(t, `invalid: yaml: content: [`))

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("SKILLSYNC_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("SKILLSYNC_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an unknown store driver", func() {
			_ = os.Setenv("SKILLSYNC_STORE_DRIVER", "firestore")

			_, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "firestore")
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("SKILLSYNC_WORKER_COUNT", "not_a_number")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When send_buffer is zero", func() {
			_ = os.Setenv("SKILLSYNC_SEND_BUFFER", "0")

			_, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, envVar := range []string{
		"SKILLSYNC_CONFIG",
		"SKILLSYNC_DOTENV",
		"SKILLSYNC_ADDR",
		"SKILLSYNC_LOG_LEVEL",
		"SKILLSYNC_STORE_DRIVER",
		"SKILLSYNC_RECOMPUTE_QUEUE_SIZE",
		"SKILLSYNC_WORKER_COUNT",
		"SKILLSYNC_ALLOWED_ORIGINS",
		"SKILLSYNC_JWT_SECRET",
		"SKILLSYNC_SEND_BUFFER",
	} {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skillsync.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
