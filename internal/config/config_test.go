package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func writeConfig(dir, content string) string {
	path := filepath.Join(dir, "config.yaml")
	_ = os.WriteFile(path, []byte(content), 0644)
	return path
}

const minimalConfig = `
databases:
  - name: appdb
    host: 127.0.0.1
    port: 3306
    username: backup
    password: secret
    enabled: true
    schedule: "0 0 2 * * *"
backup:
  artifact_root: /tmp/custos-test
`

func TestConfig(t *testing.T) {
	Convey("Given the config loader", t, func() {
		tempDir, err := os.MkdirTemp("", "config_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		Convey("When loading a minimal valid config", func() {
			cfg, err := Load(writeConfig(tempDir, minimalConfig))

			Convey("It should apply defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.App.Name, ShouldEqual, "custos")
				So(cfg.App.LogLevel, ShouldEqual, "info")
				So(cfg.Backup.Compress, ShouldBeTrue)
				So(cfg.Backup.Parallelism, ShouldEqual, 2)
				So(cfg.Retention.KeepDays, ShouldEqual, 7)
				So(cfg.Retention.KeepCount, ShouldEqual, 10)
				So(cfg.Notification.QueueSize, ShouldEqual, 64)
				So(cfg.Notification.Workers, ShouldEqual, 3)
				So(cfg.Notification.MaxAttempts, ShouldEqual, 3)
				So(cfg.Notification.BackoffBase, ShouldEqual, time.Second)
				So(cfg.Notification.BackoffCap, ShouldEqual, 60*time.Second)
				So(cfg.Notification.EnqueueTimeout, ShouldEqual, 2*time.Second)
			})

			Convey("Database accessors should work", func() {
				So(err, ShouldBeNil)
				So(len(cfg.GetEnabledDatabases()), ShouldEqual, 1)
				So(cfg.DatabaseNames(), ShouldResemble, []string{"appdb"})
			})
		})

		Convey("When the file does not exist", func() {
			_, err := Load(filepath.Join(tempDir, "missing.yaml"))

			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to read config")
		})

		Convey("When no databases are configured", func() {
			_, err := Load(writeConfig(tempDir, `
backup:
  artifact_root: /tmp/custos-test
`))

			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "at least one database")
		})

		Convey("When two databases share a name", func() {
			_, err := Load(writeConfig(tempDir, `
databases:
  - name: appdb
    schedule: "@daily"
  - name: appdb
    schedule: "@daily"
backup:
  artifact_root: /tmp/custos-test
`))

			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "duplicate name")
		})

		Convey("When an enabled database has no schedule", func() {
			_, err := Load(writeConfig(tempDir, `
databases:
  - name: appdb
    enabled: true
backup:
  artifact_root: /tmp/custos-test
`))

			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "schedule is required")
		})

		Convey("When artifact_root is missing", func() {
			_, err := Load(writeConfig(tempDir, `
databases:
  - name: appdb
`))

			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "artifact_root is required")
		})

		Convey("When notifications are enabled without an SMTP host", func() {
			_, err := Load(writeConfig(tempDir, minimalConfig+`
notification:
  enabled: true
`))

			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "smtp_host is required")
		})

		Convey("When telegram is enabled without credentials", func() {
			_, err := Load(writeConfig(tempDir, minimalConfig+`
telegram:
  enabled: true
`))

			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "telegram.bot_token")
		})

		Convey("When unknown keys are present", func() {
			cfg, err := Load(writeConfig(tempDir, minimalConfig+`
surprise_option: true
`))

			Convey("They are dropped, not forwarded", func() {
				So(err, ShouldBeNil)
				So(cfg, ShouldNotBeNil)
			})
		})
	})
}
