// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/finlife/identity/pkg/errutil"
)

// purgeJob deletes expired rows and reports how many went.
type purgeJob struct {
	name string
	run  func(ctx context.Context) (int64, error)
}

// purgeJobs lists the cleanups the service runs on a timer.
func purgeJobs(svc *services, b *backend) []purgeJob {
	jobs := []purgeJob{{name: "reset_tokens", run: svc.resets.PurgeExpiredTokens}}
	if b.pruneRevocations != nil {
		prune := b.pruneRevocations
		jobs = append(jobs, purgeJob{name: "revocations", run: func(ctx context.Context) (int64, error) {
			return prune(ctx, time.Now().UTC())
		}})
	}
	return jobs
}

// runPurgeLoop runs every job each interval until ctx is done. A failed job
// is logged and retried on the next tick.
func runPurgeLoop(ctx context.Context, interval time.Duration, logger *slog.Logger, jobs ...purgeJob) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runPurge(ctx, logger, jobs)
		}
	}
}

func runPurge(ctx context.Context, logger *slog.Logger, jobs []purgeJob) {
	for _, job := range jobs {
		n, err := job.run(ctx)
		if err != nil {
			errutil.LogWarn(logger, "purge failed", err, "operation", "purge_"+job.name)
			continue
		}
		if n > 0 {
			logger.Info("purged expired entries", "kind", job.name, "count", n)
		}
	}
}
