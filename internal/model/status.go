package model

// JobStatus represents the lifecycle state of a crawl job. These values
// must match the text values stored in the database (crawl_jobs.status),
// except for JobStalled which is derived from the heartbeat and never
// written.
//
// Centralizing these here avoids scattering string literals like
// "pending" or "completed" across packages.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
	JobStalled   JobStatus = "stalled"
)

// Terminal reports whether the status is final. Stalled is not terminal:
// a stalled job can be resumed or can recover on its own.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// CanTransitionTo encodes the job state machine. Transitions out of a
// terminal state are never allowed.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case JobPending:
		return next == JobRunning || next == JobCancelled
	case JobRunning:
		return next == JobCompleted || next == JobFailed || next == JobCancelled || next == JobRunning
	}
	return false
}

// JobPhase is the coarse stage a running job is in.
type JobPhase string

const (
	PhaseCrawling   JobPhase = "crawling"
	PhaseExtracting JobPhase = "extracting"
	PhaseFinalizing JobPhase = "finalizing"
)
