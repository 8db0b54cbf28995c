package mail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/custos-io/custos/internal/domain"
)

func subjectFor(job domain.NotificationJob) string {
	switch job.Kind {
	case domain.KindBackupSuccess:
		return fmt.Sprintf("Backup completed: %s", job.Payload["database"])
	case domain.KindBackupError:
		return fmt.Sprintf("Backup FAILED: %s", job.Payload["database"])
	default:
		if title := job.Payload["title"]; title != "" {
			return title
		}
		return "Notification"
	}
}

func bodyFor(job domain.NotificationJob) string {
	var b strings.Builder

	switch job.Kind {
	case domain.KindBackupSuccess:
		b.WriteString("A database backup finished successfully.\n\n")
	case domain.KindBackupError:
		b.WriteString("A database backup failed.\n\n")
	default:
		if msg := job.Payload["message"]; msg != "" {
			b.WriteString(msg)
			b.WriteString("\n\n")
		}
	}

	keys := make([]string, 0, len(job.Payload))
	for k := range job.Payload {
		if k == "title" || k == "message" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, job.Payload[k])
	}

	fmt.Fprintf(&b, "\nSent at %s\n", time.Now().Format("2006-01-02 15:04:05"))
	return b.String()
}

// buildMessage renders a job as a MIME message. Jobs without attachments
// become plain text; attachments turn the message into multipart/mixed with
// base64 file parts, reading path-backed attachments at send time.
func buildMessage(from string, recipients []string, job domain.NotificationJob) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", subjectFor(job))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(job.Attachments) == 0 {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(bodyFor(job))
		return buf.Bytes(), nil
	}

	writer := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", writer.Boundary())

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	part, err := writer.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write([]byte(bodyFor(job))); err != nil {
		return nil, err
	}

	for _, att := range job.Attachments {
		content := att.Content
		if content == nil && att.Path != "" {
			content, err = os.ReadFile(att.Path)
			if err != nil {
				return nil, fmt.Errorf("read attachment %s: %w", att.Name, err)
			}
		}

		header := textproto.MIMEHeader{}
		header.Set("Content-Type", "application/octet-stream")
		header.Set("Content-Transfer-Encoding", "base64")
		header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Name))

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, err
		}
		encoded := base64.StdEncoding.EncodeToString(content)
		if _, err := part.Write([]byte(encoded)); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
