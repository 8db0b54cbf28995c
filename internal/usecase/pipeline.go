package usecase

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/docker/go-units"

	"github.com/custos-io/custos/internal/dispatch"
	"github.com/custos-io/custos/internal/domain"
)

// Pipeline sequences executor, notification enqueue, offsite replication, and
// retention for one or many databases, and aggregates a RunSummary. Failures
// of individual databases are data in the summary; the only error Run returns
// is one that prevents it from starting at all.
type Pipeline struct {
	executors  map[string]*Executor
	order      []string
	retention  *Retention
	dispatcher *dispatch.Dispatcher
	replicator domain.Replicator
	policy     domain.RetentionPolicy
	compress   bool
	workers    int
	logger     Logger
}

func NewPipeline(
	executors map[string]*Executor,
	order []string,
	retention *Retention,
	dispatcher *dispatch.Dispatcher,
	replicator domain.Replicator,
	policy domain.RetentionPolicy,
	compress bool,
	workers int,
	logger Logger,
) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		executors:  executors,
		order:      order,
		retention:  retention,
		dispatcher: dispatcher,
		replicator: replicator,
		policy:     policy,
		compress:   compress,
		workers:    workers,
		logger:     logger,
	}
}

func (p *Pipeline) Run(ctx context.Context, scope domain.RunScope) (domain.RunSummary, error) {
	started := time.Now()

	var targets []string
	switch {
	case scope.All:
		targets = p.order
	case scope.Database != "":
		if _, ok := p.executors[scope.Database]; !ok {
			return domain.RunSummary{}, fmt.Errorf("unknown database %q", scope.Database)
		}
		targets = []string{scope.Database}
	default:
		return domain.RunSummary{}, fmt.Errorf("empty run scope")
	}

	p.logger.Infof("Starting pipeline run for %d database(s)", len(targets))

	results := make([]domain.BackupResult, len(targets))
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	for i, database := range targets {
		wg.Add(1)
		go func(i int, database string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = p.runOne(ctx, database)
		}(i, database)
	}
	wg.Wait()

	summary := domain.RunSummary{
		Results:  results,
		Duration: time.Since(started),
	}
	for _, res := range results {
		if res.Succeeded() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	p.logger.Infof("Pipeline run completed in %s: %d succeeded, %d failed",
		summary.Duration.Round(time.Millisecond), summary.Succeeded, summary.Failed)

	return summary, nil
}

func (p *Pipeline) runOne(ctx context.Context, database string) domain.BackupResult {
	return p.RunBackup(ctx, domain.BackupRequest{
		Database: database,
		Compress: p.compress,
	})
}

// RunBackup owns the full per-database sequence: dump, notification enqueue,
// optional replication, then retention. A failed backup still gets its
// notification, but leaves existing retention untouched for that database.
// The request's policy override, when set, replaces the configured policy for
// this pass only.
func (p *Pipeline) RunBackup(ctx context.Context, req domain.BackupRequest) domain.BackupResult {
	executor, ok := p.executors[req.Database]
	if !ok {
		return domain.BackupResult{
			Database: req.Database,
			Status:   domain.StatusFailed,
			Error:    fmt.Sprintf("unknown database %q", req.Database),
		}
	}

	result := executor.Execute(ctx, req)

	p.notify(result)

	if !result.Succeeded() {
		return result
	}

	p.replicate(ctx, result)

	policy := p.policy
	if req.Policy != nil {
		policy = *req.Policy
	}
	if _, err := p.retention.Enforce(ctx, req.Database, policy, result.ArtifactPath); err != nil {
		p.logger.Errorf("[%s] Retention pass failed: %v", req.Database, err)
	}

	return result
}

// EnforceAll runs a retention-only sweep over every configured database,
// independent of any backup run.
func (p *Pipeline) EnforceAll(ctx context.Context) {
	for _, database := range p.order {
		if _, err := p.retention.Enforce(ctx, database, p.policy, ""); err != nil {
			p.logger.Errorf("[%s] Retention sweep failed: %v", database, err)
		}
	}
}

func (p *Pipeline) notify(result domain.BackupResult) {
	job := domain.NotificationJob{Payload: map[string]string{"database": result.Database}}

	if result.Succeeded() {
		job.Kind = domain.KindBackupSuccess
		job.Payload["artifact"] = filepath.Base(result.ArtifactPath)
		job.Payload["size"] = units.HumanSize(float64(result.SizeBytes))
		job.Payload["duration"] = result.Duration.Round(time.Millisecond).String()
	} else {
		job.Kind = domain.KindBackupError
		job.Payload["error"] = result.Error
	}

	if _, err := p.dispatcher.Enqueue(job); err != nil {
		// Fire and forget: a dropped notification never fails the backup.
		p.logger.Errorf("[%s] Could not enqueue %s notification: %v", result.Database, job.Kind, err)
	}
}

func (p *Pipeline) replicate(ctx context.Context, result domain.BackupResult) {
	if p.replicator == nil {
		return
	}

	remoteName := path.Join(result.Database, filepath.Base(result.ArtifactPath))
	if err := p.replicator.Upload(ctx, result.ArtifactPath, remoteName); err != nil {
		p.logger.Errorf("[%s] Offsite replication failed: %v", result.Database, err)
		return
	}
	p.logger.Infof("[%s] Replicated artifact offsite: %s", result.Database, remoteName)
}
