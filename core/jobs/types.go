package jobs

import (
	"time"
)

// =============================================================================
// Job Types and Status
// =============================================================================

// JobType selects what a computation run covers.
type JobType string

const (
	// JobTypeFull recomputes scores for every user node.
	JobTypeFull JobType = "full"

	// JobTypePerUser recomputes scores for one user node.
	JobTypePerUser JobType = "per_user"

	// JobTypePerDomain recomputes one domain for every user node.
	JobTypePerDomain JobType = "per_domain"
)

// ValidJobTypes returns all valid JobType values.
func ValidJobTypes() []JobType {
	return []JobType{JobTypeFull, JobTypePerUser, JobTypePerDomain}
}

// IsValid returns true if the job type is a recognized value.
func (jt JobType) IsValid() bool {
	for _, valid := range ValidJobTypes() {
		if jt == valid {
			return true
		}
	}
	return false
}

// NeedsTarget reports whether this job type requires a target.
func (jt JobType) NeedsTarget() bool {
	return jt != JobTypeFull
}

// String returns the string representation of the job type.
func (jt JobType) String() string {
	return string(jt)
}

// JobStatus is the lifecycle state of a computation job.
// Jobs move Queued -> Running -> {Completed, Failed}; terminal states
// are final. A retry is a new job, never a resurrected one.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// IsValid returns true if the status is a recognized value.
func (s JobStatus) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// String returns the string representation of the status.
func (s JobStatus) String() string {
	return string(s)
}

// =============================================================================
// Job Records
// =============================================================================

// JobResult summarizes a finished run. Per-unit failures inside a
// Completed job live in Performance, not in Error: one bad node does
// not fail the run.
type JobResult struct {
	// ProcessedNodes counts subgraph nodes visited across all units.
	ProcessedNodes int `json:"processed_nodes"`

	// ProcessedEdges counts subgraph edges visited across all units.
	ProcessedEdges int `json:"processed_edges"`

	// GeneratedScores counts Score rows written.
	GeneratedScores int `json:"generated_scores"`

	// Performance carries run metrics: units_total, units_ok,
	// units_failed, duration_ms.
	Performance map[string]float64 `json:"performance"`
}

// JobError records why a job ended Failed.
type JobError struct {
	// Message is human-readable.
	Message string `json:"message"`

	// Stack optionally carries a stack trace for panics.
	Stack string `json:"stack,omitempty"`

	// Details carries the underlying cause for operators.
	Details string `json:"details,omitempty"`
}

// Job is one asynchronous (re)computation run.
type Job struct {
	// ID is the unique job identifier.
	ID string `json:"id"`

	// Type selects the run's coverage.
	Type JobType `json:"type"`

	// Target is the user node ID (per_user) or domain (per_domain).
	// Empty for full runs.
	Target string `json:"target,omitempty"`

	// Status is the lifecycle state.
	Status JobStatus `json:"status"`

	// Parameters carries caller-supplied tuning overrides.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Result is present once the job finishes.
	Result *JobResult `json:"result,omitempty"`

	// Error is present iff the job Failed.
	Error *JobError `json:"error,omitempty"`

	// CreatedAt is when the job was submitted.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job transitioned to Running.
	StartedAt time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time `json:"completed_at,omitempty"`
}
