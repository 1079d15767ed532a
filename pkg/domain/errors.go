package domain

import "errors"

// Graph construction errors. These are fatal at pipeline load time and
// abort before any stage runs.
var (
	ErrDuplicateStage    = errors.New("duplicate stage")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrCycleDetected     = errors.New("cycle detected")
)

// Artifact store misuse errors.
var (
	ErrDuplicateArtifact = errors.New("artifact already exists")
	ErrArtifactNotFound  = errors.New("artifact not found")
)

// Run lifecycle errors.
var (
	ErrRunNotFound    = errors.New("run not found")
	ErrRunTerminal    = errors.New("run already in terminal state")
	ErrUnknownAdapter = errors.New("unknown adapter")

	// ErrStageTimeout marks a stage that exceeded its execution deadline.
	ErrStageTimeout = errors.New("timeout")
)
