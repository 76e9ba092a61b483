package graph

import (
	"fmt"
	"sort"

	"github.com/burrowhq/burrow/pkg/types"
)

// Capability names a property a step can provide or enable
type Capability string

const (
	ProvidesConfigNames     Capability = "provides_dataset_config_names"
	ProvidesSplitNames      Capability = "provides_config_split_names"
	ProvidesConfigParquet   Capability = "provides_config_parquet"
	ProvidesParquetMetadata Capability = "provides_config_parquet_metadata"
	ProvidesConfigInfo      Capability = "provides_config_info"
	EnablesPreview          Capability = "enables_preview"
	EnablesViewer           Capability = "enables_viewer"
	EnablesSearch           Capability = "enables_search"
)

// Step is one node of the processing graph
type Step struct {
	Name                 string
	InputScope           types.InputScope
	TriggeredBy          []string
	Version              int
	Difficulty           int
	BonusDifficultyIfBig int
	ParallelStep         string
	Capabilities         map[Capability]bool
}

// HasCapability reports whether the step carries the given flag
func (s *Step) HasCapability(c Capability) bool {
	return s.Capabilities[c]
}

// Graph is the immutable processing graph. It is built once at process
// start from a specification and never mutated afterwards.
type Graph struct {
	steps        map[string]*Step
	names        []string // stable order (sorted, roots first within topo order)
	successors   map[string][]string
	predecessors map[string][]string
	byScope      map[types.InputScope][]*Step
	byCapability map[Capability][]*Step
	topoOrder    []string
}

// New builds a graph from a specification. It rejects unknown trigger
// references, self-loops and cycles at construction.
func New(spec map[string]StepSpec) (*Graph, error) {
	g := &Graph{
		steps:        make(map[string]*Step, len(spec)),
		successors:   make(map[string][]string, len(spec)),
		predecessors: make(map[string][]string, len(spec)),
		byScope:      make(map[types.InputScope][]*Step),
		byCapability: make(map[Capability][]*Step),
	}

	names := make([]string, 0, len(spec))
	for name := range spec {
		names = append(names, name)
	}
	sort.Strings(names)
	g.names = names

	for _, name := range names {
		s := spec[name]
		scope := types.InputScope(s.InputScope)
		switch scope {
		case types.ScopeDataset, types.ScopeConfig, types.ScopeSplit:
		default:
			return nil, fmt.Errorf("step %s: invalid input scope %q", name, s.InputScope)
		}

		step := &Step{
			Name:                 name,
			InputScope:           scope,
			TriggeredBy:          append([]string(nil), s.TriggeredBy...),
			Version:              s.Version,
			Difficulty:           s.Difficulty,
			BonusDifficultyIfBig: s.BonusDifficultyIfBig,
			ParallelStep:         s.ParallelStep,
			Capabilities:         make(map[Capability]bool),
		}
		for c, set := range map[Capability]bool{
			ProvidesConfigNames:     s.ProvidesConfigNames,
			ProvidesSplitNames:      s.ProvidesSplitNames,
			ProvidesConfigParquet:   s.ProvidesConfigParquet,
			ProvidesParquetMetadata: s.ProvidesParquetMetadata,
			ProvidesConfigInfo:      s.ProvidesConfigInfo,
			EnablesPreview:          s.EnablesPreview,
			EnablesViewer:           s.EnablesViewer,
			EnablesSearch:           s.EnablesSearch,
		} {
			if set {
				step.Capabilities[c] = true
			}
		}
		g.steps[name] = step
	}

	// Adjacency in both directions, insertion order of the trigger lists.
	for _, name := range names {
		step := g.steps[name]
		for _, trigger := range step.TriggeredBy {
			if trigger == name {
				return nil, fmt.Errorf("step %s: self-loop trigger", name)
			}
			if _, ok := g.steps[trigger]; !ok {
				return nil, fmt.Errorf("step %s: unknown trigger %q", name, trigger)
			}
			g.predecessors[name] = append(g.predecessors[name], trigger)
			g.successors[trigger] = append(g.successors[trigger], name)
		}
		if step.ParallelStep != "" {
			if _, ok := g.steps[step.ParallelStep]; !ok {
				return nil, fmt.Errorf("step %s: unknown parallel step %q", name, step.ParallelStep)
			}
		}
	}

	// Topological order, used for diagnostics only.
	topo, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.topoOrder = topo

	for _, name := range names {
		step := g.steps[name]
		g.byScope[step.InputScope] = append(g.byScope[step.InputScope], step)
		for c := range step.Capabilities {
			g.byCapability[c] = append(g.byCapability[c], step)
		}
	}

	return g, nil
}

// MustNew builds the graph or panics. Intended for the process-start
// construction from the built-in specification.
func MustNew(spec map[string]StepSpec) *Graph {
	g, err := New(spec)
	if err != nil {
		panic(err)
	}
	return g
}

// topoSort runs Kahn's algorithm over the trigger relation and fails on
// cycles
func (g *Graph) topoSort() ([]string, error) {
	indegree := make(map[string]int, len(g.steps))
	for _, name := range g.names {
		indegree[name] = len(g.predecessors[name])
	}

	var queue []string
	for _, name := range g.names {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	order := make([]string, 0, len(g.steps))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)
		for _, succ := range g.successors[name] {
			indegree[succ]--
			if indegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	if len(order) != len(g.steps) {
		return nil, fmt.Errorf("processing graph contains a cycle")
	}
	return order, nil
}

// Get returns the step with the given name
func (g *Graph) Get(name string) (*Step, error) {
	step, ok := g.steps[name]
	if !ok {
		return nil, fmt.Errorf("step %s: %w", name, types.ErrNotFound)
	}
	return step, nil
}

// Steps returns all steps in stable (sorted-name) order
func (g *Graph) Steps() []*Step {
	steps := make([]*Step, 0, len(g.names))
	for _, name := range g.names {
		steps = append(steps, g.steps[name])
	}
	return steps
}

// Predecessors returns the steps triggering the given step, in the
// insertion order of its trigger list
func (g *Graph) Predecessors(name string) []*Step {
	return g.resolve(g.predecessors[name])
}

// Successors returns the steps triggered by the given step
func (g *Graph) Successors(name string) []*Step {
	return g.resolve(g.successors[name])
}

func (g *Graph) resolve(names []string) []*Step {
	steps := make([]*Step, 0, len(names))
	for _, name := range names {
		steps = append(steps, g.steps[name])
	}
	return steps
}

// StepsFor returns the steps whose input scope equals the given scope
func (g *Graph) StepsFor(scope types.InputScope) []*Step {
	return g.byScope[scope]
}

// StepsProviding returns the steps with the given capability flag set
func (g *Graph) StepsProviding(c Capability) []*Step {
	return g.byCapability[c]
}

// TopoOrder returns a topological order of step names (diagnostics only)
func (g *Graph) TopoOrder() []string {
	return append([]string(nil), g.topoOrder...)
}

// BonusDifficulty returns the step's difficulty, adding the bonus when
// the dataset's known byte size exceeds the threshold
func (g *Graph) BonusDifficulty(step *Step, datasetSizeBytes int64) int {
	difficulty := step.Difficulty
	if step.BonusDifficultyIfBig > 0 && datasetSizeBytes >= MinBytesForBonusDifficulty {
		difficulty += step.BonusDifficultyIfBig
	}
	return difficulty
}
