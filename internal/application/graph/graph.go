package graph

import (
	"fmt"

	"github.com/conduitci/conduit/pkg/domain"
)

// StageGraph holds the dependency structure of a pipeline. Stages may be
// declared in any order; the structure is checked by Validate, which must
// be called before the graph is handed to the executor.
//
// A validated graph is immutable and safe for concurrent reads.
type StageGraph struct {
	stages map[string]domain.StageSpec
	order  []string

	validated  bool
	topo       []string
	dependents map[string][]string
}

// New creates an empty stage graph.
func New() *StageGraph {
	return &StageGraph{
		stages: make(map[string]domain.StageSpec),
	}
}

// FromSpec builds and validates a graph from a pipeline specification.
func FromSpec(spec *domain.PipelineSpec) (*StageGraph, error) {
	if spec == nil {
		return nil, fmt.Errorf("pipeline spec is nil")
	}
	if len(spec.Stages) == 0 {
		return nil, fmt.Errorf("pipeline %q has no stages", spec.Name)
	}

	g := New()
	for _, st := range spec.Stages {
		if err := g.AddStage(st); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// AddStage registers a stage. Dependencies do not need to be registered
// yet; they are resolved by Validate.
func (g *StageGraph) AddStage(spec domain.StageSpec) error {
	if spec.ID == "" {
		return fmt.Errorf("stage ID is required")
	}
	if spec.Adapter == "" {
		return fmt.Errorf("stage %q: adapter is required", spec.ID)
	}
	if _, exists := g.stages[spec.ID]; exists {
		return fmt.Errorf("%w: %q", domain.ErrDuplicateStage, spec.ID)
	}

	seen := make(map[string]struct{}, len(spec.DependsOn))
	for _, dep := range spec.DependsOn {
		if dep == spec.ID {
			return fmt.Errorf("%w: %q depends on itself", domain.ErrCycleDetected, spec.ID)
		}
		if _, dup := seen[dep]; dup {
			return fmt.Errorf("stage %q: duplicate dependency %q", spec.ID, dep)
		}
		seen[dep] = struct{}{}
	}

	g.stages[spec.ID] = spec
	g.order = append(g.order, spec.ID)
	g.validated = false
	return nil
}

// Validate checks that every dependency is registered and that the graph
// is acyclic. On success it fixes a deterministic topological ordering,
// with ties broken by declaration order.
func (g *StageGraph) Validate() error {
	if len(g.stages) == 0 {
		return fmt.Errorf("graph has no stages")
	}

	indegree := make(map[string]int, len(g.stages))
	dependents := make(map[string][]string, len(g.stages))
	for _, id := range g.order {
		indegree[id] = len(g.stages[id].DependsOn)
	}
	for _, id := range g.order {
		for _, dep := range g.stages[id].DependsOn {
			if _, ok := g.stages[dep]; !ok {
				return fmt.Errorf("%w: stage %q depends on %q", domain.ErrUnknownDependency, id, dep)
			}
			dependents[dep] = append(dependents[dep], id)
		}
	}

	// Kahn's algorithm. Scanning the declaration-order slice on every
	// pass keeps the ordering deterministic.
	topo := make([]string, 0, len(g.stages))
	done := make(map[string]struct{}, len(g.stages))
	for len(topo) < len(g.stages) {
		progressed := false
		for _, id := range g.order {
			if _, visited := done[id]; visited {
				continue
			}
			if indegree[id] != 0 {
				continue
			}
			done[id] = struct{}{}
			topo = append(topo, id)
			for _, dep := range dependents[id] {
				indegree[dep]--
			}
			progressed = true
		}
		if !progressed {
			var stuck []string
			for _, id := range g.order {
				if _, visited := done[id]; !visited {
					stuck = append(stuck, id)
				}
			}
			return fmt.Errorf("%w: involving stages %v", domain.ErrCycleDetected, stuck)
		}
	}

	g.topo = topo
	g.dependents = dependents
	g.validated = true
	return nil
}

// Validated reports whether Validate has succeeded since the last mutation.
func (g *StageGraph) Validated() bool { return g.validated }

// Len returns the number of registered stages.
func (g *StageGraph) Len() int { return len(g.stages) }

// Stage returns a stage spec by ID.
func (g *StageGraph) Stage(id string) (domain.StageSpec, bool) {
	st, ok := g.stages[id]
	return st, ok
}

// Stages returns all stage specs in declaration order.
func (g *StageGraph) Stages() []domain.StageSpec {
	out := make([]domain.StageSpec, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.stages[id])
	}
	return out
}

// TopologicalOrder returns the deterministic execution order fixed by
// Validate. It returns nil if the graph has not been validated.
func (g *StageGraph) TopologicalOrder() []string {
	if !g.validated {
		return nil
	}
	out := make([]string, len(g.topo))
	copy(out, g.topo)
	return out
}

// Dependencies returns the declared dependencies of a stage.
func (g *StageGraph) Dependencies(id string) []string {
	st, ok := g.stages[id]
	if !ok {
		return nil
	}
	out := make([]string, len(st.DependsOn))
	copy(out, st.DependsOn)
	return out
}

// Dependents returns the stages that directly depend on the given stage,
// in declaration order. Only valid after Validate.
func (g *StageGraph) Dependents(id string) []string {
	deps := g.dependents[id]
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}
