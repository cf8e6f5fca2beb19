package model

import (
	"testing"
	"time"
)

func TestJobStatusTerminal(t *testing.T) {
	terminal := []JobStatus{JobCompleted, JobFailed, JobCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
	for _, s := range []JobStatus{JobPending, JobRunning, JobStalled} {
		if s.Terminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
}

func TestJobStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to JobStatus }{
		{JobPending, JobRunning},
		{JobPending, JobCancelled},
		{JobRunning, JobCompleted},
		{JobRunning, JobFailed},
		{JobRunning, JobCancelled},
		{JobRunning, JobRunning}, // heartbeat refresh
	}
	for _, tc := range allowed {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s must be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to JobStatus }{
		{JobPending, JobCompleted},
		{JobPending, JobFailed},
		{JobCompleted, JobRunning},
		{JobFailed, JobRunning},
		{JobCancelled, JobPending},
		{JobCompleted, JobCompleted},
	}
	for _, tc := range denied {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s must be denied", tc.from, tc.to)
		}
	}
}

func TestStalledIsDerived(t *testing.T) {
	now := time.Now()
	old := now.Add(-2 * time.Minute)
	fresh := now.Add(-5 * time.Second)
	threshold := time.Minute

	job := CrawlJob{Status: JobRunning, HeartbeatAt: &old}
	if !job.Stalled(threshold, now) {
		t.Error("stale heartbeat on a running job must report stalled")
	}
	if got := job.EffectiveStatus(threshold, now); got != JobStalled {
		t.Errorf("effective status = %s, want stalled", got)
	}

	job.HeartbeatAt = &fresh
	if job.Stalled(threshold, now) {
		t.Error("fresh heartbeat must not be stalled")
	}

	job = CrawlJob{Status: JobCompleted, HeartbeatAt: &old}
	if job.Stalled(threshold, now) {
		t.Error("only running jobs can stall")
	}

	job = CrawlJob{Status: JobRunning}
	if job.Stalled(threshold, now) {
		t.Error("a running job with no heartbeat yet is not stalled")
	}
}
