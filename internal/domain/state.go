package domain

import (
	"sort"
	"time"
)

// SharedState is the typed view of a room's replicated key/value state.
// Phase holds the reserved phase key; Fields holds every other key.
type SharedState struct {
	Phase  Phase             `json:"phase"`
	Fields map[string]string `json:"fields"`
}

// ParseSharedState builds a typed view of a raw shared-state map
func ParseSharedState(raw map[string]string) SharedState {
	state := SharedState{
		Phase:  InitialPhase,
		Fields: make(map[string]string, len(raw)),
	}

	for key, value := range raw {
		if key == PhaseKey {
			state.Phase = NormalizePhase(value)
			continue
		}
		state.Fields[key] = value
	}

	return state
}

// Get returns an auxiliary field
func (s SharedState) Get(key string) (string, bool) {
	value, ok := s.Fields[key]
	return value, ok
}

// Raw flattens the state back into the wire representation.
// The initial phase is written as an absent phase key.
func (s SharedState) Raw() map[string]string {
	raw := make(map[string]string, len(s.Fields)+1)
	for key, value := range s.Fields {
		raw[key] = value
	}
	if s.Phase != "" && !s.Phase.IsInitial() {
		raw[PhaseKey] = string(s.Phase)
	}
	return raw
}

// Delta is a requested update to the shared state
type Delta struct {
	Adds    map[string]string `json:"adds,omitempty"`
	Removes []string          `json:"removes,omitempty"`
}

// IsEmpty reports whether the delta changes nothing
func (d Delta) IsEmpty() bool {
	return len(d.Adds) == 0 && len(d.Removes) == 0
}

// Snapshot is a versioned copy of a room's shared state
type Snapshot struct {
	State     map[string]string `json:"state"`
	Version   uint64            `json:"version"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// NewSnapshot returns an empty snapshot at version zero
func NewSnapshot() Snapshot {
	return Snapshot{
		State:     make(map[string]string),
		UpdatedAt: time.Now(),
	}
}

// Phase returns the phase recorded in the snapshot
func (s Snapshot) Phase() Phase {
	return NormalizePhase(s.State[PhaseKey])
}

// Clone returns a deep copy of the snapshot
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		State:     CopyState(s.State),
		Version:   s.Version,
		UpdatedAt: s.UpdatedAt,
	}
}

// ChangeMeta describes who produced a change and when
type ChangeMeta struct {
	Version   uint64    `json:"version"`
	Writer    string    `json:"writer"`
	Timestamp time.Time `json:"timestamp"`
}

// Change is a notification that keys of the shared state changed.
// Added contains every submitted key, including keys whose value did not change.
type Change struct {
	Added   []string          `json:"added"`
	Removed []string          `json:"removed"`
	State   map[string]string `json:"state"`
	Meta    ChangeMeta        `json:"meta"`
}

// Touches reports whether the change mentions key as added or removed
func (c Change) Touches(key string) bool {
	for _, k := range c.Added {
		if k == key {
			return true
		}
	}
	for _, k := range c.Removed {
		if k == key {
			return true
		}
	}
	return false
}

// CopyState returns a copy of a raw shared-state map
func CopyState(state map[string]string) map[string]string {
	out := make(map[string]string, len(state))
	for key, value := range state {
		out[key] = value
	}
	return out
}

// SortedKeys returns the keys of m in lexical order
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
