package domain

import (
	"context"
	"io"
	"time"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// BackupRequest describes a single dump attempt for one logical database.
type BackupRequest struct {
	Database string
	Compress bool
	// Policy overrides the configured retention policy for this run when set.
	Policy *RetentionPolicy
}

// BackupResult is the terminal outcome of one dump attempt. Executors always
// return a result; a failed dump is encoded in Status and Error, never raised.
type BackupResult struct {
	Database     string
	ArtifactPath string
	SizeBytes    int64
	Duration     time.Duration
	Status       Status
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
}

func (r BackupResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Dumper streams a consistent snapshot of one database into w, returning a
// non-nil error on tool failure. Implementations wrap an external dump command.
type Dumper interface {
	Name() string
	Dump(ctx context.Context, w io.Writer) error
	Check(ctx context.Context) error
}

// Replicator copies a finished artifact to an offsite location.
type Replicator interface {
	Upload(ctx context.Context, localPath, remoteName string) error
}
