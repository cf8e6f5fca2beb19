package jobs

import (
	"context"
	"time"

	"codedox/internal/model"
)

// Monitor periodically scans running jobs for lost heartbeats. A job is
// merely reported as stalled once its heartbeat passes the stall
// threshold; only after the failure window (several thresholds with no
// heartbeat at all) does the monitor mark it failed, so a slow LLM batch
// never kills a healthy job.
const (
	monitorInterval   = 30 * time.Second
	failureMultiplier = 5
)

// RunMonitor blocks until ctx is done, checking heartbeats on every tick.
// Run it in its own goroutine next to the HTTP server.
func (m *Manager) RunMonitor(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		m.failDeadJobs(ctx)
	}
}

func (m *Manager) failDeadJobs(ctx context.Context) {
	cutoff := time.Now().Add(-failureMultiplier * m.cfg.Crawler.HeartbeatStallThreshold())
	dead, err := m.store.StaleRunningJobs(ctx, cutoff)
	if err != nil {
		m.logger.Error("heartbeat scan failed", "error", err)
		return
	}

	for _, job := range dead {
		// Jobs still owned by this process get a real cancel so their
		// goroutines stop; orphans are failed directly.
		m.mu.Lock()
		cancel, owned := m.running[job.ID]
		m.mu.Unlock()
		if owned {
			cancel()
			continue
		}

		if _, err := m.store.TransitionJob(ctx, job.ID, job.Version, model.JobFailed, "heartbeat lost"); err != nil {
			m.logger.Warn("failed to mark dead job", "job_id", job.ID, "error", err)
			continue
		}
		m.logger.Warn("job marked failed after lost heartbeat", "job_id", job.ID,
			"last_heartbeat", job.HeartbeatAt)
	}
}

// RecoverOrphans marks jobs left running by a previous process. Called
// once at startup before the server begins accepting work.
func (m *Manager) RecoverOrphans(ctx context.Context) error {
	cutoff := time.Now().Add(-m.cfg.Crawler.HeartbeatStallThreshold())
	orphans, err := m.store.StaleRunningJobs(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, job := range orphans {
		if _, err := m.store.TransitionJob(ctx, job.ID, job.Version, model.JobFailed, "process restarted"); err != nil {
			m.logger.Warn("orphan recovery failed", "job_id", job.ID, "error", err)
			continue
		}
		m.logger.Info("orphaned job marked failed", "job_id", job.ID)
	}
	return nil
}
