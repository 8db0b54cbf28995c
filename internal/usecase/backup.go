package usecase

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"time"

	"github.com/docker/go-units"

	"github.com/custos-io/custos/internal/adapter/artifact"
	"github.com/custos-io/custos/internal/domain"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// Executor runs one dump attempt for one database. It always returns a
// BackupResult; dump and I/O failures are captured in the result, and no
// partial artifact file survives a failed attempt.
type Executor struct {
	dumper domain.Dumper
	store  *artifact.Store
	logger Logger
}

func NewExecutor(dumper domain.Dumper, store *artifact.Store, logger Logger) *Executor {
	return &Executor{
		dumper: dumper,
		store:  store,
		logger: logger,
	}
}

func (e *Executor) Execute(ctx context.Context, req domain.BackupRequest) domain.BackupResult {
	started := time.Now()
	database := e.dumper.Name()
	e.logger.Infof("[%s] Starting backup...", database)

	path, err := e.store.ReservePath(database, started, req.Compress)
	if err != nil {
		return e.failure(database, started, err)
	}

	size, err := e.writeArtifact(ctx, path, req.Compress)
	if err != nil {
		// Leave nothing behind for retention or operators to trip over.
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			e.logger.Warnf("[%s] Could not remove partial artifact %s: %v", database, path, rmErr)
		}
		return e.failure(database, started, err)
	}

	finished := time.Now()
	e.logger.Infof("[%s] Backup completed in %s: %s (%s)",
		database, finished.Sub(started).Round(time.Millisecond), path,
		units.HumanSize(float64(size)))

	return domain.BackupResult{
		Database:     database,
		ArtifactPath: path,
		SizeBytes:    size,
		Duration:     finished.Sub(started),
		Status:       domain.StatusSuccess,
		StartedAt:    started,
		FinishedAt:   finished,
	}
}

// writeArtifact streams the dump into the artifact file, through a gzip
// writer when compressing, so peak disk usage never includes an uncompressed
// intermediate copy. It returns the bytes written to disk, counted during the
// write so the result needs no stat afterwards.
func (e *Executor) writeArtifact(ctx context.Context, path string, compress bool) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	sink := &countingWriter{w: file}

	if !compress {
		dumpErr := e.dumper.Dump(ctx, sink)
		closeErr := file.Close()
		if dumpErr != nil {
			return sink.n, dumpErr
		}
		return sink.n, closeErr
	}

	gz := gzip.NewWriter(sink)
	dumpErr := e.dumper.Dump(ctx, gz)
	gzErr := gz.Close()
	closeErr := file.Close()
	if dumpErr != nil {
		return sink.n, dumpErr
	}
	if gzErr != nil {
		return sink.n, gzErr
	}
	return sink.n, closeErr
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func (e *Executor) failure(database string, started time.Time, err error) domain.BackupResult {
	finished := time.Now()
	e.logger.Errorf("[%s] Backup failed after %s: %v",
		database, finished.Sub(started).Round(time.Millisecond), err)

	return domain.BackupResult{
		Database:     database,
		ArtifactPath: "",
		Duration:     finished.Sub(started),
		Status:       domain.StatusFailed,
		Error:        err.Error(),
		StartedAt:    started,
		FinishedAt:   finished,
	}
}
