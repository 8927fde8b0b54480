// internal/models/optimization.go
package models

import "time"

// OptimizationRequest is pure input: constructed per call, never persisted.
// Either a single pair (ParticipantA/ParticipantB) or a bulk request
// (ParticipantIDs).
type OptimizationRequest struct {
	ParticipantA   string   `json:"participantA,omitempty"`
	ParticipantB   string   `json:"participantB,omitempty"`
	ParticipantIDs []string `json:"participantIds,omitempty"`
	GroupContext   string   `json:"groupContext,omitempty"`
	AlgorithmID    string   `json:"algorithmId,omitempty"`

	// Intent flags. CheckCache defaults to true; DisableCache is the explicit
	// opt-out so the zero value keeps cache-first semantics.
	DisableCache       bool `json:"disableCache,omitempty"`
	QuickPreview       bool `json:"quickPreview,omitempty"`
	IncludeExplanation bool `json:"includeExplanation,omitempty"`
	Immediate          bool `json:"immediate,omitempty"`
	Priority           bool `json:"priority,omitempty"`
}

// IsBulk reports whether the request targets more than a preview-sized list.
func (r *OptimizationRequest) IsBulk() bool {
	return len(r.ParticipantIDs) > 10
}

// OptimizationInfo describes which path handled a request and how long it took.
type OptimizationInfo struct {
	Approach       string        `json:"approach"`
	Strategy       string        `json:"strategy"`
	ProcessingTime time.Duration `json:"processingTimeMs"`
}

// OptimizationResult is the single outbound contract of the coordinator.
// Handler failures are converted into Success=false results, never faults.
type OptimizationResult struct {
	Success      bool             `json:"success"`
	Data         interface{}      `json:"data,omitempty"`
	Error        string           `json:"error,omitempty"`
	Optimization OptimizationInfo `json:"optimization"`
}

// JobStatus tracks the lifecycle of a queued bulk computation.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job is the read-only handle the coordinator holds on a queued bulk
// computation. The queue owns the lifecycle.
type Job struct {
	JobID             string        `json:"jobId"`
	QueuePosition     int           `json:"queuePosition"`
	EstimatedStart    time.Time     `json:"estimatedStartTime"`
	EstimatedDuration time.Duration `json:"estimatedDuration"`
	Status            JobStatus     `json:"status"`
	Error             string        `json:"error,omitempty"`
	EnqueuedAt        time.Time     `json:"enqueuedAt"`
}

// OptimizationMetrics is process-wide aggregate state: reset at startup,
// mutated after every completed optimization, read by health scoring and
// external observability.
type OptimizationMetrics struct {
	TotalOptimizations    int64         `json:"totalOptimizations"`
	CacheHitRate          float64       `json:"cacheHitRate"`
	AverageResponseTime   time.Duration `json:"averageResponseTime"`
	BackgroundJobs        int64         `json:"backgroundJobs"`
	ApproximationAccuracy float64       `json:"approximationAccuracy"`
}
