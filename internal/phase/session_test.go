package phase

import (
	"io"
	"log/slog"

	"phasesync/internal/domain"
)

// fakeSession is an in-process shared state that records writes and lets the
// test decide when, and how often, they are delivered back.
type fakeSession struct {
	state     map[string]string
	version   uint64
	submitted []domain.Delta
	ready     []func() error
	listeners []func(domain.Change) error
}

func newFakeSession(state map[string]string) *fakeSession {
	if state == nil {
		state = make(map[string]string)
	}
	return &fakeSession{state: state}
}

func (s *fakeSession) State() map[string]string {
	return domain.CopyState(s.state)
}

func (s *fakeSession) Submit(adds map[string]string, removes []string) error {
	s.submitted = append(s.submitted, domain.Delta{Adds: adds, Removes: removes})
	return nil
}

func (s *fakeSession) OnReady(listener func() error) {
	s.ready = append(s.ready, listener)
}

func (s *fakeSession) OnStateChange(listener func(domain.Change) error) {
	s.listeners = append(s.listeners, listener)
}

func (s *fakeSession) fireReady() error {
	for _, l := range s.ready {
		if err := l(); err != nil {
			return err
		}
	}
	return nil
}

// flush applies every pending submission and delivers a notification for each
func (s *fakeSession) flush() error {
	pending := s.submitted
	s.submitted = nil
	for _, delta := range pending {
		if err := s.apply(delta); err != nil {
			return err
		}
	}
	return nil
}

// apply writes delta to the state and notifies listeners
func (s *fakeSession) apply(delta domain.Delta) error {
	for key, value := range delta.Adds {
		s.state[key] = value
	}
	for _, key := range delta.Removes {
		delete(s.state, key)
	}
	s.version++

	return s.notify(domain.Change{
		Added:   domain.SortedKeys(delta.Adds),
		Removed: delta.Removes,
		State:   domain.CopyState(s.state),
		Meta:    domain.ChangeMeta{Version: s.version},
	})
}

func (s *fakeSession) notify(change domain.Change) error {
	for _, l := range s.listeners {
		if err := l(change); err != nil {
			return err
		}
	}
	return nil
}

// recorder counts handler invocations per phase
type recorder struct {
	calls []call
}

type call struct {
	phase domain.Phase
	first bool
	state domain.SharedState
}

func (r *recorder) handler(phase domain.Phase) Handler {
	return func(state domain.SharedState, first bool) error {
		r.calls = append(r.calls, call{phase: phase, first: first, state: state})
		return nil
	}
}

func (r *recorder) count(phase domain.Phase) int {
	n := 0
	for _, c := range r.calls {
		if c.phase == phase {
			n++
		}
	}
	return n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
