// Package sweeper marks sessions that stopped reporting as abandoned.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/studylog/internal/shared"
	"github.com/ashureev/studylog/internal/store"
)

const (
	maxRetries = 3
	baseDelay  = 50 * time.Millisecond
)

// AbandonCallback is called with the ids of sessions a sweep marked abandoned.
type AbandonCallback func(sessionIDs []string)

// Start runs a background goroutine that periodically sweeps for sessions
// idle longer than ttl. It stops when ctx is done.
func Start(ctx context.Context, repo store.Repository, interval, ttl time.Duration, onAbandon AbandonCallback) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, repo, ttl, onAbandon)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep runs one pass and returns the number of sessions marked abandoned.
func Sweep(ctx context.Context, repo store.Repository, ttl time.Duration, onAbandon AbandonCallback) int64 {
	ids, err := markAbandonedWithRetry(ctx, repo, ttl)
	if err != nil {
		slog.Error("Session sweeper failed", "error", err)
		return 0
	}
	if len(ids) == 0 {
		return 0
	}

	slog.Info("Session sweeper marked sessions abandoned", "count", len(ids), "ttl", ttl)
	if onAbandon != nil {
		onAbandon(ids)
	}
	return int64(len(ids))
}

// markAbandonedWithRetry retries SQLITE_BUSY and locked errors with
// exponential backoff: 50ms, 100ms.
func markAbandonedWithRetry(ctx context.Context, repo store.Repository, ttl time.Duration) ([]string, error) {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		ids, err := repo.MarkAbandoned(ctx, ttl)
		if err == nil {
			return ids, nil
		}
		lastErr = err

		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("Session sweeper hit locked database, retrying",
			"attempt", i+1,
			"delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("mark abandoned sessions after retries: %w", lastErr)
}
