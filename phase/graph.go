// Package phase describes the fixed dependency graph of the pricing
// pipeline: which tasks belong to which phase and the order phases run in.
// A Graph is immutable and performs no I/O; one value is shared by every run.
package phase

import (
	"fmt"

	pricing "github.com/shivramiyer22/rideshare-sub001"
	"github.com/shivramiyer22/rideshare-sub001/task"
)

// Name identifies a phase.
type Name string

// The three phases of the pricing pipeline.
const (
	// Signals runs forecasting and rule generation concurrently.
	Signals Name = "signals"
	// Recommendation synthesizes recommendations from the signals.
	Recommendation Name = "recommendation"
	// WhatIf simulates the impact of the recommendations.
	WhatIf Name = "whatif"
)

// String returns the phase name.
func (n Name) String() string { return string(n) }

// Criticality describes how a phase failure affects the run.
type Criticality int

const (
	// Optional phases degrade a run to PARTIAL when they fail.
	Optional Criticality = iota
	// Quorum phases are fatal only when every task in them fails.
	Quorum
	// Required phases are fatal when any task in them fails.
	Required
)

// String returns a readable criticality name.
func (c Criticality) String() string {
	switch c {
	case Optional:
		return "optional"
	case Quorum:
		return "quorum"
	case Required:
		return "required"
	default:
		return fmt.Sprintf("criticality(%d)", int(c))
	}
}

// Spec describes one phase.
type Spec struct {
	Name        Name
	Tasks       []task.Name
	DependsOn   []Name
	Criticality Criticality
}

// Graph is an ordered set of phases.
type Graph struct {
	phases []Spec
	index  map[Name]int
	owner  map[task.Name]Name
}

// Default returns the pricing pipeline graph:
//
//	signals        {forecasting, analysis}  quorum
//	recommendation {recommendation}         required, after signals
//	whatif         {whatif}                 optional, after recommendation
func Default() *Graph {
	g, err := New(
		Spec{Name: Signals, Tasks: []task.Name{task.Forecasting, task.Analysis}, Criticality: Quorum},
		Spec{Name: Recommendation, Tasks: []task.Name{task.Recommendation}, DependsOn: []Name{Signals}, Criticality: Required},
		Spec{Name: WhatIf, Tasks: []task.Name{task.WhatIf}, DependsOn: []Name{Recommendation}, Criticality: Optional},
	)
	if err != nil {
		panic(err)
	}
	return g
}

// New builds and validates a graph. Phases must be listed in an order
// where every dependency precedes its dependents.
func New(specs ...Spec) (*Graph, error) {
	g := &Graph{
		phases: make([]Spec, 0, len(specs)),
		index:  make(map[Name]int, len(specs)),
		owner:  make(map[task.Name]Name),
	}
	for _, s := range specs {
		s.Tasks = append([]task.Name(nil), s.Tasks...)
		s.DependsOn = append([]Name(nil), s.DependsOn...)
		g.index[s.Name] = len(g.phases)
		g.phases = append(g.phases, s)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	for _, s := range g.phases {
		for _, t := range s.Tasks {
			g.owner[t] = s.Name
		}
	}
	return g, nil
}

// Validate checks that phase names are unique and non-empty, every phase
// has at least one task, every task belongs to exactly one phase and every
// dependency refers to an earlier phase (which also rules out cycles).
func (g *Graph) Validate() error {
	seen := make(map[Name]int, len(g.phases))
	owners := make(map[task.Name]Name)
	for i, s := range g.phases {
		if s.Name == "" {
			return fmt.Errorf("%w: phase %d has no name", pricing.ErrInvalidGraph, i)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("%w: duplicate phase %q", pricing.ErrInvalidGraph, s.Name)
		}
		if len(s.Tasks) == 0 {
			return fmt.Errorf("%w: phase %q has no tasks", pricing.ErrInvalidGraph, s.Name)
		}
		for _, t := range s.Tasks {
			if prev, ok := owners[t]; ok {
				return fmt.Errorf("%w: task %q in phases %q and %q", pricing.ErrInvalidGraph, t, prev, s.Name)
			}
			owners[t] = s.Name
		}
		for _, dep := range s.DependsOn {
			if _, ok := seen[dep]; !ok {
				return fmt.Errorf("%w: phase %q depends on %q which does not precede it", pricing.ErrInvalidGraph, s.Name, dep)
			}
		}
		seen[s.Name] = i
	}
	return nil
}

// Phases returns the phase names in execution order.
func (g *Graph) Phases() []Name {
	names := make([]Name, len(g.phases))
	for i, s := range g.phases {
		names[i] = s.Name
	}
	return names
}

// Spec returns the description of the named phase.
func (g *Graph) Spec(name Name) (Spec, bool) {
	i, ok := g.index[name]
	if !ok {
		return Spec{}, false
	}
	s := g.phases[i]
	s.Tasks = append([]task.Name(nil), s.Tasks...)
	s.DependsOn = append([]Name(nil), s.DependsOn...)
	return s, true
}

// TasksFor returns the tasks assigned to the named phase, or nil.
func (g *Graph) TasksFor(name Name) []task.Name {
	s, _ := g.Spec(name)
	return s.Tasks
}

// DependenciesFor returns the phases the named phase depends on, or nil.
func (g *Graph) DependenciesFor(name Name) []Name {
	s, _ := g.Spec(name)
	return s.DependsOn
}

// PhaseOf returns the phase a task belongs to.
func (g *Graph) PhaseOf(t task.Name) (Name, bool) {
	n, ok := g.owner[t]
	return n, ok
}

// Tasks returns every task in phase order.
func (g *Graph) Tasks() []task.Name {
	var out []task.Name
	for _, s := range g.phases {
		out = append(out, s.Tasks...)
	}
	return out
}

// Fatal reports whether the given per-task results make the phase fatal
// for the run. ok maps each task of the phase to whether it succeeded.
func (g *Graph) Fatal(name Name, ok map[task.Name]bool) bool {
	s, found := g.Spec(name)
	if !found {
		return false
	}
	succeeded := 0
	for _, t := range s.Tasks {
		if ok[t] {
			succeeded++
		}
	}
	switch s.Criticality {
	case Required:
		return succeeded < len(s.Tasks)
	case Quorum:
		return succeeded == 0
	default:
		return false
	}
}
