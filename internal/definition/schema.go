package definition

// pipelineFile is the top-level structure of a pipeline definition file.
type pipelineFile struct {
	Pipeline *pipelineBlock `hcl:"pipeline,block"`
}

// pipelineBlock is a `pipeline "name" { ... }` block containing the
// pipeline's stages.
type pipelineBlock struct {
	Name   string        `hcl:"name,label"`
	Stages []*stageBlock `hcl:"stage,block"`
}

// stageBlock is a `stage "id" { ... }` block: one unit of pipeline work
// bound to an adapter, with declared dependencies and an optional gate.
type stageBlock struct {
	ID        string            `hcl:"id,label"`
	Adapter   string            `hcl:"adapter"`
	DependsOn []string          `hcl:"depends_on,optional"`
	Params    map[string]string `hcl:"params,optional"`
	Timeout   string            `hcl:"timeout,optional"`
	Gate      *gateBlock        `hcl:"gate,block"`
}

// gateBlock declares the stage's pass/fail policy over findings.
// Omitting the block entirely puts the stage in report-only mode.
type gateBlock struct {
	FailOn      string `hcl:"fail_on,optional"`
	MaxLow      *int   `hcl:"max_low,optional"`
	MaxMedium   *int   `hcl:"max_medium,optional"`
	MaxHigh     *int   `hcl:"max_high,optional"`
	MaxCritical *int   `hcl:"max_critical,optional"`
}
