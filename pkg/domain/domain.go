package domain

import (
	"sort"
	"time"
)

// RunStatus represents the lifecycle status of a pipeline run.
type RunStatus string

const (
	RunStatusSubmitted RunStatus = "submitted"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the run status is final.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// StageStatus represents the lifecycle status of a single stage within a run.
type StageStatus string

const (
	StageStatusPending StageStatus = "pending"
	StageStatusRunning StageStatus = "running"
	StageStatusSuccess StageStatus = "success"
	StageStatusFailure StageStatus = "failure"
	StageStatusSkipped StageStatus = "skipped"
)

// Terminal reports whether the stage status is final.
func (s StageStatus) Terminal() bool {
	switch s {
	case StageStatusSuccess, StageStatusFailure, StageStatusSkipped:
		return true
	default:
		return false
	}
}

// Skip reasons recorded on StageResult.SkipReason.
const (
	SkipReasonUpstreamFailure = "upstream-failure"
	SkipReasonCancelled       = "cancelled"
)

// FindingType classifies a finding reported by a stage adapter.
type FindingType string

const (
	FindingTypeVulnerability    FindingType = "vulnerability"
	FindingTypeSecret           FindingType = "secret"
	FindingTypeMisconfiguration FindingType = "misconfiguration"
	FindingTypeQualityGate      FindingType = "quality_gate"
	FindingTypeAdapterError     FindingType = "adapter_error"
)

// Finding is a single severity-tagged result item produced by a stage.
type Finding struct {
	ID       string      `json:"id,omitempty"`
	Type     FindingType `json:"type"`
	Severity Severity    `json:"severity"`
	Target   string      `json:"target,omitempty"`
	Message  string      `json:"message"`
}

// ArtifactRef is an opaque reference to a stage output (image digest,
// report checksum, endpoint address). Immutable after creation.
type ArtifactRef struct {
	Name       string    `json:"name"`
	Reference  string    `json:"reference"`
	ProducedBy string    `json:"produced_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// GatePolicy is a threshold rule over a stage's findings. A nil policy
// means the stage reports findings but never blocks.
type GatePolicy struct {
	// FailOn fails the gate when any finding has severity >= FailOn.
	// SeverityUnknown disables the ceiling.
	FailOn Severity `json:"fail_on,omitempty"`

	// MaxCounts fails the gate when the number of findings at a given
	// severity exceeds the configured maximum.
	MaxCounts map[Severity]int `json:"max_counts,omitempty"`
}

// GateOutcome records the result of evaluating a stage's gate policy.
type GateOutcome struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// StageResult is the terminal record of one stage in one run.
// It is written exactly once per stage per run.
type StageResult struct {
	StageID     string                 `json:"stage_id"`
	Status      StageStatus            `json:"status"`
	Findings    []Finding              `json:"findings,omitempty"`
	Artifacts   map[string]ArtifactRef `json:"artifacts,omitempty"`
	GateOutcome *GateOutcome           `json:"gate_outcome,omitempty"`
	SkipReason  string                 `json:"skip_reason,omitempty"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// MaxSeverity returns the highest severity among the result's findings.
func (r *StageResult) MaxSeverity() Severity {
	max := SeverityUnknown
	for _, f := range r.Findings {
		if f.Severity > max {
			max = f.Severity
		}
	}
	return max
}

// StageSpec declares one stage of a pipeline: its identity, dependencies,
// the adapter that executes it, and an optional gate policy.
type StageSpec struct {
	ID        string            `json:"id"`
	DependsOn []string          `json:"depends_on,omitempty"`
	Adapter   string            `json:"adapter"`
	Params    map[string]string `json:"params,omitempty"`
	Gate      *GatePolicy       `json:"gate,omitempty"`
	Timeout   time.Duration     `json:"timeout,omitempty"`
}

// PipelineSpec is a complete pipeline definition.
type PipelineSpec struct {
	Name   string      `json:"name"`
	Stages []StageSpec `json:"stages"`
}

// PipelineRun is one execution instance of a pipeline: the spec snapshot
// plus the evolving per-stage results and the terminal run status. It is
// the only mutable aggregate and is persisted at every transition.
type PipelineRun struct {
	ID           string                  `json:"id"`
	Pipeline     *PipelineSpec           `json:"pipeline"`
	Status       RunStatus               `json:"status"`
	StageResults map[string]*StageResult `json:"stage_results"`
	Error        string                  `json:"error,omitempty"`
	SubmittedAt  time.Time               `json:"submitted_at"`
	StartedAt    *time.Time              `json:"started_at,omitempty"`
	CompletedAt  *time.Time              `json:"completed_at,omitempty"`
	NotifiedAt   *time.Time              `json:"notified_at,omitempty"`
	NotifyError  string                  `json:"notify_error,omitempty"`
}

// NewPipelineRun creates a run for the given spec with every stage pending.
func NewPipelineRun(id string, spec *PipelineSpec) *PipelineRun {
	run := &PipelineRun{
		ID:           id,
		Pipeline:     spec,
		Status:       RunStatusSubmitted,
		StageResults: make(map[string]*StageResult, len(spec.Stages)),
		SubmittedAt:  time.Now(),
	}
	for _, st := range spec.Stages {
		run.StageResults[st.ID] = &StageResult{
			StageID: st.ID,
			Status:  StageStatusPending,
		}
	}
	return run
}

// Artifacts returns every artifact recorded across the run's stages,
// ordered by creation time.
func (r *PipelineRun) Artifacts() []ArtifactRef {
	var refs []ArtifactRef
	for _, res := range r.StageResults {
		for _, ref := range res.Artifacts {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if !refs[i].CreatedAt.Equal(refs[j].CreatedAt) {
			return refs[i].CreatedAt.Before(refs[j].CreatedAt)
		}
		if refs[i].ProducedBy != refs[j].ProducedBy {
			return refs[i].ProducedBy < refs[j].ProducedBy
		}
		return refs[i].Name < refs[j].Name
	})
	return refs
}
