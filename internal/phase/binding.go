package phase

import (
	"phasesync/internal/domain"
)

// Session is the shared-state transport a machine runs on.
// Listeners are called serially; an error returned from a listener halts the
// session for this participant.
type Session interface {
	StateWriter
	OnReady(listener func() error)
	OnStateChange(listener func(change domain.Change) error)
}

// SetupFunc registers transitions and handlers once the session is ready and
// normally ends by calling Begin.
type SetupFunc func(m *Machine) error

// Bind creates a machine on session and registers its listeners:
// setup runs when the session is ready and every change notification is
// dispatched to the machine.
func Bind(session Session, setup SetupFunc, opts ...Option) *Machine {
	m := NewMachine(session, opts...)

	session.OnReady(func() error {
		return setup(m)
	})
	session.OnStateChange(m.HandleChange)

	return m
}
