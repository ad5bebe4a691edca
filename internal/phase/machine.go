package phase

import (
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"phasesync/internal/domain"
)

// Handler runs a participant's local logic on entering a phase.
// first is true when the participant was still at the initial phase, either
// because the session just started or because it joined late.
type Handler func(state domain.SharedState, first bool) error

// StateWriter reads and writes the replicated shared state
type StateWriter interface {
	State() map[string]string
	Submit(adds map[string]string, removes []string) error
}

// Observer is told about every phase notification the machine evaluates
type Observer interface {
	TransitionAccepted(from, to domain.Phase, first bool)
	NotificationDropped(current, claimed domain.Phase)
}

type nopObserver struct{}

func (nopObserver) TransitionAccepted(domain.Phase, domain.Phase, bool) {}
func (nopObserver) NotificationDropped(domain.Phase, domain.Phase)      {}

// Option configures a Machine
type Option func(*Machine)

// WithLogger sets the logger used by the machine
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithObserver sets the observer notified of accepted and dropped transitions
func WithObserver(observer Observer) Option {
	return func(m *Machine) {
		m.observer = observer
	}
}

// Machine tracks one participant's local phase and dispatches phase handlers
type Machine struct {
	table    *Table
	handlers map[domain.Phase]Handler
	shared   StateWriter
	logger   *slog.Logger
	observer Observer

	// mu guards current and started so they can be read outside the
	// notification goroutine. Handlers run without it.
	mu      sync.Mutex
	current domain.Phase
	started bool
}

// NewMachine creates a machine at the initial phase
func NewMachine(shared StateWriter, opts ...Option) *Machine {
	m := &Machine{
		table:    NewTable(),
		handlers: make(map[domain.Phase]Handler),
		shared:   shared,
		logger:   slog.Default(),
		observer: nopObserver{},
		current:  domain.InitialPhase,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// AddTransition registers that to may follow from
func (m *Machine) AddTransition(from, to domain.Phase) {
	m.table.AddTransition(from, to)
}

// Handle registers the handler run on entering phase
func (m *Machine) Handle(phase domain.Phase, handler Handler) {
	m.handlers[phase] = handler
}

// Table returns the machine's transition table
func (m *Machine) Table() *Table {
	return m.table
}

// Current returns the participant's local phase
func (m *Machine) Current() domain.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Validate checks that every phase in the transition table has a handler
func (m *Machine) Validate() error {
	for _, phase := range m.table.Phases() {
		if _, ok := m.handlers[phase]; !ok {
			return errors.Wrapf(domain.ErrHandlerNotFound, "phase %s", phase)
		}
	}
	return nil
}

// Begin starts the machine.
// When the shared state already names a phase the participant joined late and
// fast-forwards into that phase. Otherwise it requests firstPhase for everyone
// and waits for its own notification like any other participant. If a
// notification already activated a phase before Begin, that phase stands and
// Begin neither runs a handler nor writes.
func (m *Machine) Begin(firstPhase domain.Phase) error {
	if firstPhase == "" || firstPhase.IsInitial() {
		return domain.ErrMissingFirstPhase
	}

	if err := m.Validate(); err != nil {
		return err
	}

	state := domain.ParseSharedState(m.shared.State())
	joining := !state.Phase.IsInitial()
	if !joining && !m.table.IsValidTransition(domain.InitialPhase, firstPhase) {
		return errors.Wrapf(domain.ErrUnreachablePhase, "first phase %s", firstPhase)
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return domain.ErrAlreadyStarted
	}
	m.started = true
	current := m.current
	m.mu.Unlock()

	if !current.IsInitial() {
		m.logger.Debug("phase already active at begin", "phase", current)
		return nil
	}

	if joining {
		m.logger.Info("joining session in progress", "phase", state.Phase)
		return m.advanceLocal(state.Phase, state, true)
	}

	if err := m.AdvancePhase(firstPhase, nil, nil); err != nil {
		m.mu.Lock()
		m.started = false
		m.mu.Unlock()
		return err
	}
	return nil
}

// AdvancePhase asks every participant to move to phase.
// fields and removed are written in the same delta. The local phase is not
// changed here; it follows once the write comes back as a notification.
func (m *Machine) AdvancePhase(phase domain.Phase, fields map[string]string, removed []string) error {
	adds := make(map[string]string, len(fields)+1)
	for key, value := range fields {
		adds[key] = value
	}
	adds[domain.PhaseKey] = string(phase)

	removes := make([]string, 0, len(removed))
	for _, key := range removed {
		if key != domain.PhaseKey {
			removes = append(removes, key)
		}
	}

	m.logger.Debug("requesting phase", "phase", phase, "fields", len(fields), "removed", len(removes))

	if err := m.shared.Submit(adds, removes); err != nil {
		return errors.Wrapf(err, "submit phase %s", phase)
	}
	return nil
}

// HandleChange processes one shared-state notification.
// Notifications that do not touch the phase key, or that claim a phase that is
// not a legal successor of the local phase, are dropped without error: they are
// redundant or stale deliveries of a transition already handled.
func (m *Machine) HandleChange(change domain.Change) error {
	if !change.Touches(domain.PhaseKey) {
		return nil
	}

	state := domain.ParseSharedState(change.State)
	current := m.Current()

	if !m.table.IsValidTransition(current, state.Phase) {
		m.logger.Debug("dropping phase notification",
			"current", current,
			"claimed", state.Phase,
			"version", change.Meta.Version,
		)
		m.observer.NotificationDropped(current, state.Phase)
		return nil
	}

	return m.advanceLocal(state.Phase, state, current.IsInitial())
}

// advanceLocal moves the tracker to next and runs its handler
func (m *Machine) advanceLocal(next domain.Phase, state domain.SharedState, first bool) error {
	m.mu.Lock()
	from := m.current
	m.current = next
	m.mu.Unlock()

	m.logger.Info("phase changed", "from", from, "to", next, "first", first)
	m.observer.TransitionAccepted(from, next, first)

	handler, ok := m.handlers[next]
	if !ok {
		return errors.Wrapf(domain.ErrHandlerNotFound, "phase %s", next)
	}

	if err := handler(state, first); err != nil {
		return errors.Wrapf(err, "phase %s handler", next)
	}
	return nil
}
