// Package phase keeps a participant's local phase in step with a phase name
// broadcast through a shared-state session. Every participant, including the
// one that requested a change, advances only when it observes the change in
// shared state, and each accepted transition runs its handler once.
package phase

import (
	"sort"

	"phasesync/internal/domain"
)

// Table holds the legal successors of every phase
type Table struct {
	edges map[domain.Phase][]domain.Phase
}

// NewTable creates an empty transition table
func NewTable() *Table {
	return &Table{
		edges: make(map[domain.Phase][]domain.Phase),
	}
}

// AddTransition registers that to may follow from.
// Any source other than the initial phase also becomes reachable directly from
// the initial phase, so a late joiner can start at it.
// Registering the same pair twice is allowed.
func (t *Table) AddTransition(from, to domain.Phase) {
	t.edges[from] = append(t.edges[from], to)

	if from != domain.InitialPhase {
		t.edges[domain.InitialPhase] = append(t.edges[domain.InitialPhase], from)
	}
}

// IsValidTransition checks if to is a registered successor of from
func (t *Table) IsValidTransition(from, to domain.Phase) bool {
	allowed, ok := t.edges[from]
	if !ok {
		return false
	}

	for _, phase := range allowed {
		if phase == to {
			return true
		}
	}
	return false
}

// Targets returns a copy of the successors registered for from
func (t *Table) Targets(from domain.Phase) []domain.Phase {
	allowed := t.edges[from]
	out := make([]domain.Phase, len(allowed))
	copy(out, allowed)
	return out
}

// Phases returns every non-initial phase named in the table, sorted
func (t *Table) Phases() []domain.Phase {
	seen := make(map[domain.Phase]struct{})
	for from, targets := range t.edges {
		seen[from] = struct{}{}
		for _, to := range targets {
			seen[to] = struct{}{}
		}
	}
	delete(seen, domain.InitialPhase)

	phases := make([]domain.Phase, 0, len(seen))
	for phase := range seen {
		phases = append(phases, phase)
	}
	sort.Slice(phases, func(i, j int) bool { return phases[i] < phases[j] })
	return phases
}
