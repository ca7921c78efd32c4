package bootstrap

import (
	"time"

	"arc-framework/rsinit/internal/replset"
)

// Status values used across Result and PhaseResult.
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusInProgress = "in-progress"
	StatusSkipped    = "skipped"
)

// State is the position of a run in the linear bootstrap sequence.
type State string

const (
	StateUnready    State = "unready"
	StateReady      State = "ready"
	StateConfigured State = "configured"
	StateConverged  State = "converged"
	StateReported   State = "reported"
	StateFailed     State = "failed"
)

// Phase names, in execution order.
const (
	PhaseReadiness   = "readiness"
	PhaseInitiate    = "initiate"
	PhaseConvergence = "convergence"
	PhaseStatus      = "status"
	PhaseNotify      = "notify"
)

// Result is the outcome of one bootstrap run. It is owned by the run until
// Run returns and is never mutated afterwards.
type Result struct {
	RunID      string          `json:"runId"`
	ReplicaSet string          `json:"replicaSet"`
	Status     string          `json:"status"` // "ok", "error", "in-progress"
	State      State           `json:"state"`
	Initiated  bool            `json:"initiated"` // false when the set already existed
	Phases     []PhaseResult   `json:"phases"`
	Snapshot   *replset.Status `json:"replSetStatus,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Phase returns the named phase result, if the phase ran.
func (r *Result) Phase(name string) (PhaseResult, bool) {
	for _, p := range r.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return PhaseResult{}, false
}

// PhaseResult represents the outcome of a single bootstrap phase.
type PhaseResult struct {
	Name       string `json:"name"`
	Status     string `json:"status"` // "ok", "error", "skipped"
	Attempts   int    `json:"attempts,omitempty"`
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
}

// ProbeResult is returned by RunDeepHealth for each dependency.
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// ReadyEvent is published once a run has converged.
type ReadyEvent struct {
	RunID      string    `json:"runId"`
	ReplicaSet string    `json:"replicaSet"`
	Members    []string  `json:"members"`
	Primary    string    `json:"primary"`
	Term       int64     `json:"term"`
	Initiated  bool      `json:"initiated"`
	Timestamp  time.Time `json:"timestamp"`
}
