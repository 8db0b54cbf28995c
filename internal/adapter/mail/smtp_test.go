package mail

import (
	"errors"
	"net"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/custos-io/custos/internal/domain"
)

func TestClassify(t *testing.T) {
	Convey("Given the delivery error classifier", t, func() {
		Convey("A network timeout is transient", func() {
			err := classify(&net.DNSError{Err: "timeout", IsTimeout: true})
			So(domain.IsTransient(err), ShouldBeTrue)
		})

		Convey("A connection-level failure is transient", func() {
			err := classify(&net.OpError{Op: "dial", Err: errors.New("connection refused")})
			So(domain.IsTransient(err), ShouldBeTrue)
		})

		Convey("A 4xx SMTP reply is transient", func() {
			err := classify(&textproto.Error{Code: 451, Msg: "try again later"})
			So(domain.IsTransient(err), ShouldBeTrue)
		})

		Convey("A 5xx SMTP reply is permanent", func() {
			err := classify(&textproto.Error{Code: 550, Msg: "no such user"})
			So(domain.IsTransient(err), ShouldBeFalse)
		})

		Convey("An unclassified error is permanent", func() {
			err := classify(errors.New("malformed message"))
			So(domain.IsTransient(err), ShouldBeFalse)
		})
	})
}

func TestBuildMessage(t *testing.T) {
	Convey("Given the message builder", t, func() {
		recipients := []string{"ops@example.com", "dba@example.com"}

		Convey("A success job renders a plain text message", func() {
			job := domain.NotificationJob{
				Kind: domain.KindBackupSuccess,
				Payload: map[string]string{
					"database": "appdb",
					"artifact": "appdb_20260825_143005.sql.gz",
					"size":     "1.2MB",
					"duration": "3.4s",
				},
			}

			msg, err := buildMessage("custos@example.com", recipients, job)

			So(err, ShouldBeNil)
			text := string(msg)
			So(text, ShouldContainSubstring, "From: custos@example.com")
			So(text, ShouldContainSubstring, "To: ops@example.com, dba@example.com")
			So(text, ShouldContainSubstring, "Subject: Backup completed: appdb")
			So(text, ShouldContainSubstring, "Content-Type: text/plain")
			So(text, ShouldContainSubstring, "artifact: appdb_20260825_143005.sql.gz")
			So(text, ShouldContainSubstring, "size: 1.2MB")
		})

		Convey("An error job carries the failure subject and error line", func() {
			job := domain.NotificationJob{
				Kind:    domain.KindBackupError,
				Payload: map[string]string{"database": "appdb", "error": "exit status 2"},
			}

			msg, err := buildMessage("custos@example.com", recipients, job)

			So(err, ShouldBeNil)
			So(string(msg), ShouldContainSubstring, "Subject: Backup FAILED: appdb")
			So(string(msg), ShouldContainSubstring, "error: exit status 2")
		})

		Convey("A custom job uses its title as the subject", func() {
			job := domain.NotificationJob{
				Kind:    domain.KindCustom,
				Payload: map[string]string{"title": "Weekly report", "message": "All green."},
			}

			msg, err := buildMessage("custos@example.com", recipients, job)

			So(err, ShouldBeNil)
			So(string(msg), ShouldContainSubstring, "Subject: Weekly report")
			So(string(msg), ShouldContainSubstring, "All green.")
		})

		Convey("Attachments produce a multipart message", func() {
			tempDir, err := os.MkdirTemp("", "mail_test")
			So(err, ShouldBeNil)
			defer os.RemoveAll(tempDir)

			attPath := filepath.Join(tempDir, "report.log")
			So(os.WriteFile(attPath, []byte("log line"), 0644), ShouldBeNil)

			job := domain.NotificationJob{
				Kind:    domain.KindCustom,
				Payload: map[string]string{"title": "With files"},
				Attachments: []domain.Attachment{
					{Name: "report.log", Path: attPath},
					{Name: "inline.txt", Content: []byte("inline data")},
				},
			}

			msg, err := buildMessage("custos@example.com", recipients, job)

			So(err, ShouldBeNil)
			text := string(msg)
			So(text, ShouldContainSubstring, "multipart/mixed")
			So(text, ShouldContainSubstring, `attachment; filename="report.log"`)
			So(text, ShouldContainSubstring, `attachment; filename="inline.txt"`)
			So(text, ShouldContainSubstring, "Content-Transfer-Encoding: base64")
		})

		Convey("A missing path-backed attachment fails the build", func() {
			job := domain.NotificationJob{
				Kind:        domain.KindCustom,
				Payload:     map[string]string{"title": "Broken"},
				Attachments: []domain.Attachment{{Name: "gone.log", Path: "/no/such/file"}},
			}

			_, err := buildMessage("custos@example.com", recipients, job)

			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "read attachment")
		})
	})
}
