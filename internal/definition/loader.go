package definition

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/conduitci/conduit/pkg/domain"
)

// Load parses a pipeline definition file into a PipelineSpec. The env map
// is exposed to the file as `env.*` for interpolating registries, hosts
// and credential names.
func Load(path string, env map[string]string) (*domain.PipelineSpec, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %w", path, diags)
	}
	return decode(file, env)
}

// LoadBytes parses an in-memory pipeline definition. The filename is used
// only for diagnostics.
func LoadBytes(src []byte, filename string, env map[string]string) (*domain.PipelineSpec, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %w", filename, diags)
	}
	return decode(file, env)
}

// EnvFromOS builds the interpolation environment from the process
// environment.
func EnvFromOS() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

func decode(file *hcl.File, env map[string]string) (*domain.PipelineSpec, error) {
	var cfg pipelineFile
	diags := gohcl.DecodeBody(file.Body, evalContext(env), &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("decoding pipeline: %w", diags)
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("definition contains no pipeline block")
	}

	spec := &domain.PipelineSpec{Name: cfg.Pipeline.Name}
	for _, st := range cfg.Pipeline.Stages {
		stage, err := convertStage(st)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", st.ID, err)
		}
		spec.Stages = append(spec.Stages, stage)
	}
	return spec, nil
}

// evalContext exposes environment variables as the `env` object.
func evalContext(env map[string]string) *hcl.EvalContext {
	vals := make(map[string]cty.Value, len(env))
	for k, v := range env {
		vals[k] = cty.StringVal(v)
	}
	envVal := cty.EmptyObjectVal
	if len(vals) > 0 {
		envVal = cty.ObjectVal(vals)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": envVal,
		},
	}
}

func convertStage(st *stageBlock) (domain.StageSpec, error) {
	spec := domain.StageSpec{
		ID:        st.ID,
		Adapter:   st.Adapter,
		DependsOn: st.DependsOn,
		Params:    st.Params,
	}

	if st.Timeout != "" {
		d, err := time.ParseDuration(st.Timeout)
		if err != nil {
			return domain.StageSpec{}, fmt.Errorf("invalid timeout %q: %w", st.Timeout, err)
		}
		if d <= 0 {
			return domain.StageSpec{}, fmt.Errorf("timeout must be positive, got %q", st.Timeout)
		}
		spec.Timeout = d
	}

	if st.Gate != nil {
		policy, err := convertGate(st.Gate)
		if err != nil {
			return domain.StageSpec{}, err
		}
		spec.Gate = policy
	}
	return spec, nil
}

func convertGate(g *gateBlock) (*domain.GatePolicy, error) {
	policy := &domain.GatePolicy{}

	if g.FailOn != "" {
		sev, err := domain.ParseSeverity(g.FailOn)
		if err != nil {
			return nil, fmt.Errorf("gate: %w", err)
		}
		if sev == domain.SeverityUnknown {
			return nil, fmt.Errorf("gate: fail_on must name a severity, got %q", g.FailOn)
		}
		policy.FailOn = sev
	}

	counts := map[domain.Severity]*int{
		domain.SeverityLow:      g.MaxLow,
		domain.SeverityMedium:   g.MaxMedium,
		domain.SeverityHigh:     g.MaxHigh,
		domain.SeverityCritical: g.MaxCritical,
	}
	for sev, max := range counts {
		if max == nil {
			continue
		}
		if *max < 0 {
			return nil, fmt.Errorf("gate: max_%s must be >= 0", sev)
		}
		if policy.MaxCounts == nil {
			policy.MaxCounts = make(map[domain.Severity]int)
		}
		policy.MaxCounts[sev] = *max
	}

	if policy.FailOn == domain.SeverityUnknown && policy.MaxCounts == nil {
		return nil, fmt.Errorf("gate block declares no rule; omit the block for report-only mode")
	}
	return policy, nil
}
