package domain

// Phase names a step in an application's lifecycle
type Phase string

const (
	// InitialPhase is the reserved phase of a participant that has not started yet
	InitialPhase Phase = "_init"

	// PhaseKey is the shared-state key holding the current phase name
	PhaseKey = "phase"
)

// String returns the string representation of the phase
func (p Phase) String() string {
	return string(p)
}

// IsInitial reports whether p is the initial phase
func (p Phase) IsInitial() bool {
	return p == InitialPhase
}

// NormalizePhase maps an empty shared-state value to InitialPhase
func NormalizePhase(value string) Phase {
	if value == "" {
		return InitialPhase
	}
	return Phase(value)
}
