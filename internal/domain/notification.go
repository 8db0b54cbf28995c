package domain

import (
	"context"
	"errors"
	"time"
)

type JobKind string

const (
	KindBackupSuccess JobKind = "backup_success"
	KindBackupError   JobKind = "backup_error"
	KindCustom        JobKind = "custom"
)

// Attachment carries either a file path or inline content, never both.
type Attachment struct {
	Name    string
	Path    string
	Content []byte
}

// NotificationJob is owned by the dispatcher once enqueued. Attempts is
// carried on the job so backoff state survives redelivery.
type NotificationJob struct {
	ID          string
	Kind        JobKind
	Payload     map[string]string
	Recipients  []string
	Attachments []Attachment
	Attempts    int
	EnqueuedAt  time.Time
}

// DispatchStats are process-lifetime counters. Pending is an approximate
// gauge of queue depth plus in-flight jobs.
type DispatchStats struct {
	Sent    int64
	Failed  int64
	Pending int64
}

// Transport attempts delivery of a rendered notification. Errors wrapped with
// MarkTransient are retried; anything else is treated as permanent.
type Transport interface {
	Deliver(ctx context.Context, job NotificationJob) error
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient tags err as retryable at the transport boundary.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
