package phase

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasesync/internal/domain"
)

// newPartyMachine builds lobby -> play -> score with recorded handlers
func newPartyMachine(t *testing.T, session *fakeSession, opts ...Option) (*Machine, *recorder) {
	t.Helper()

	rec := &recorder{}
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	m := NewMachine(session, opts...)
	session.OnStateChange(m.HandleChange)
	m.AddTransition("lobby", "play")
	m.AddTransition("play", "score")
	for _, p := range []domain.Phase{"lobby", "play", "score"} {
		m.Handle(p, rec.handler(p))
	}
	return m, rec
}

func phaseChange(phase string) domain.Change {
	return domain.Change{
		Added: []string{domain.PhaseKey},
		State: map[string]string{domain.PhaseKey: phase},
	}
}

func TestMachine_StartsAtInitialPhase(t *testing.T) {
	m, _ := newPartyMachine(t, newFakeSession(nil))
	assert.Equal(t, domain.InitialPhase, m.Current())
}

func TestMachine_EndToEnd(t *testing.T) {
	session := newFakeSession(nil)
	m, rec := newPartyMachine(t, session)

	require.NoError(t, m.Begin("lobby"))
	assert.Equal(t, domain.InitialPhase, m.Current())
	assert.Empty(t, rec.calls)

	require.NoError(t, session.flush())
	assert.Equal(t, domain.Phase("lobby"), m.Current())
	assert.Equal(t, 1, rec.count("lobby"))
	assert.True(t, rec.calls[0].first)

	require.NoError(t, m.AdvancePhase("play", nil, nil))
	require.NoError(t, session.flush())
	assert.Equal(t, domain.Phase("play"), m.Current())
	assert.Equal(t, 1, rec.count("play"))
	assert.False(t, rec.calls[1].first)

	// second identical delivery
	require.NoError(t, session.apply(domain.Delta{Adds: map[string]string{domain.PhaseKey: "play"}}))
	assert.Equal(t, 1, rec.count("play"))
	assert.Equal(t, domain.Phase("play"), m.Current())
}

func TestMachine_IdempotentDelivery(t *testing.T) {
	m, rec := newPartyMachine(t, newFakeSession(nil))
	require.NoError(t, m.HandleChange(phaseChange("lobby")))

	change := phaseChange("play")
	require.NoError(t, m.HandleChange(change))
	require.NoError(t, m.HandleChange(change))

	assert.Equal(t, 1, rec.count("play"))
	assert.Equal(t, domain.Phase("play"), m.Current())
}

func TestMachine_SelfTransitionWhenRegistered(t *testing.T) {
	m, rec := newPartyMachine(t, newFakeSession(nil))
	m.AddTransition("score", "score")

	require.NoError(t, m.HandleChange(phaseChange("score")))
	require.NoError(t, m.HandleChange(phaseChange("score")))

	assert.Equal(t, 2, rec.count("score"))
}

func TestMachine_StaleRejection(t *testing.T) {
	m, rec := newPartyMachine(t, newFakeSession(nil))
	require.NoError(t, m.HandleChange(phaseChange("lobby")))
	require.NoError(t, m.HandleChange(phaseChange("play")))

	require.NoError(t, m.HandleChange(phaseChange("lobby")))

	assert.Equal(t, domain.Phase("play"), m.Current())
	assert.Equal(t, 1, rec.count("lobby"))
}

func TestMachine_IgnoresIrrelevantKeys(t *testing.T) {
	m, rec := newPartyMachine(t, newFakeSession(nil))

	require.NoError(t, m.HandleChange(domain.Change{
		Added: []string{"word"},
		State: map[string]string{domain.PhaseKey: "lobby", "word": "neon"},
	}))

	assert.Equal(t, domain.InitialPhase, m.Current())
	assert.Empty(t, rec.calls)
}

func TestMachine_RemovedPhaseKeyNormalizesToInitial(t *testing.T) {
	m, rec := newPartyMachine(t, newFakeSession(nil))
	require.NoError(t, m.HandleChange(phaseChange("lobby")))

	require.NoError(t, m.HandleChange(domain.Change{
		Removed: []string{domain.PhaseKey},
		State:   map[string]string{},
	}))

	assert.Equal(t, domain.Phase("lobby"), m.Current())
	assert.Equal(t, 1, rec.count("lobby"))
}

func TestMachine_UnknownPhaseDropped(t *testing.T) {
	m, rec := newPartyMachine(t, newFakeSession(nil))

	require.NoError(t, m.HandleChange(phaseChange("finale")))

	assert.Equal(t, domain.InitialPhase, m.Current())
	assert.Empty(t, rec.calls)
}

func TestMachine_FastForward(t *testing.T) {
	session := newFakeSession(map[string]string{domain.PhaseKey: "play", "word": "neon"})
	m, rec := newPartyMachine(t, session)

	require.NoError(t, m.Begin("lobby"))

	assert.Empty(t, session.submitted)
	assert.Equal(t, domain.Phase("play"), m.Current())
	require.Len(t, rec.calls, 1)
	assert.Equal(t, domain.Phase("play"), rec.calls[0].phase)
	assert.True(t, rec.calls[0].first)
	assert.Equal(t, "neon", rec.calls[0].state.Fields["word"])

	// the late joiner continues normally afterwards
	require.NoError(t, m.HandleChange(phaseChange("score")))
	assert.Equal(t, 1, rec.count("score"))
	assert.False(t, rec.calls[1].first)
}

func TestMachine_FreshStart(t *testing.T) {
	for name, state := range map[string]map[string]string{
		"no phase":      nil,
		"empty phase":   {domain.PhaseKey: ""},
		"initial phase": {domain.PhaseKey: string(domain.InitialPhase)},
	} {
		t.Run(name, func(t *testing.T) {
			session := newFakeSession(state)
			m, rec := newPartyMachine(t, session)

			require.NoError(t, m.Begin("lobby"))

			require.Len(t, session.submitted, 1)
			assert.Equal(t, map[string]string{domain.PhaseKey: "lobby"}, session.submitted[0].Adds)
			assert.Empty(t, session.submitted[0].Removes)
			assert.Empty(t, rec.calls)
			assert.Equal(t, domain.InitialPhase, m.Current())
		})
	}
}

func TestMachine_BeginRequiresFirstPhase(t *testing.T) {
	m, _ := newPartyMachine(t, newFakeSession(nil))

	assert.ErrorIs(t, m.Begin(""), domain.ErrMissingFirstPhase)
}

func TestMachine_BeginTwice(t *testing.T) {
	m, _ := newPartyMachine(t, newFakeSession(nil))

	require.NoError(t, m.Begin("lobby"))
	assert.ErrorIs(t, m.Begin("lobby"), domain.ErrAlreadyStarted)
}

func TestMachine_BeginUnreachableFirstPhase(t *testing.T) {
	session := newFakeSession(nil)
	m, _ := newPartyMachine(t, session)

	assert.ErrorIs(t, m.Begin("score"), domain.ErrUnreachablePhase)
	assert.Empty(t, session.submitted)

	// the corrected call still starts the machine
	require.NoError(t, m.Begin("lobby"))
	require.Len(t, session.submitted, 1)
}

func TestMachine_BeginRetriesAfterSubmitError(t *testing.T) {
	boom := errors.New("connection lost")
	session := &flakySession{fakeSession: newFakeSession(nil), err: boom}
	m := NewMachine(session, WithLogger(discardLogger()))
	m.AddTransition("lobby", "play")
	m.Handle("lobby", func(domain.SharedState, bool) error { return nil })
	m.Handle("play", func(domain.SharedState, bool) error { return nil })

	assert.ErrorIs(t, m.Begin("lobby"), boom)

	session.err = nil
	require.NoError(t, m.Begin("lobby"))
	assert.Len(t, session.submitted, 1)
}

func TestMachine_BeginAfterEarlyNotification(t *testing.T) {
	session := newFakeSession(map[string]string{domain.PhaseKey: "lobby"})
	m, rec := newPartyMachine(t, session)

	// the lobby write arrives before setup calls Begin
	require.NoError(t, m.HandleChange(phaseChange("lobby")))
	require.NoError(t, m.Begin("lobby"))

	assert.Equal(t, 1, rec.count("lobby"))
	assert.Equal(t, domain.Phase("lobby"), m.Current())
	assert.Empty(t, session.submitted)
}

func TestMachine_BeginDoesNotRollBack(t *testing.T) {
	session := newFakeSession(map[string]string{domain.PhaseKey: "lobby"})
	m, rec := newPartyMachine(t, session)

	require.NoError(t, m.HandleChange(phaseChange("lobby")))
	require.NoError(t, m.HandleChange(phaseChange("play")))
	require.NoError(t, m.Begin("lobby"))

	assert.Equal(t, domain.Phase("play"), m.Current())
	assert.Equal(t, 1, rec.count("lobby"))
	assert.Equal(t, 1, rec.count("play"))
}

func TestMachine_BeginMissingHandler(t *testing.T) {
	m := NewMachine(newFakeSession(nil), WithLogger(discardLogger()))
	m.AddTransition("lobby", "play")
	m.Handle("lobby", func(domain.SharedState, bool) error { return nil })

	err := m.Begin("lobby")
	assert.ErrorIs(t, err, domain.ErrHandlerNotFound)
	assert.Contains(t, err.Error(), "play")
}

func TestMachine_DispatchMissingHandler(t *testing.T) {
	m := NewMachine(newFakeSession(nil), WithLogger(discardLogger()))
	m.AddTransition("lobby", "play")

	assert.ErrorIs(t, m.HandleChange(phaseChange("lobby")), domain.ErrHandlerNotFound)
}

func TestMachine_HandlerErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	m := NewMachine(newFakeSession(nil), WithLogger(discardLogger()))
	m.AddTransition("lobby", "play")
	m.Handle("lobby", func(domain.SharedState, bool) error { return boom })
	m.Handle("play", func(domain.SharedState, bool) error { return nil })

	assert.ErrorIs(t, m.HandleChange(phaseChange("lobby")), boom)
}

func TestMachine_AdvancePhaseDelta(t *testing.T) {
	session := newFakeSession(nil)
	m, _ := newPartyMachine(t, session)

	require.NoError(t, m.AdvancePhase("play",
		map[string]string{"word": "neon", domain.PhaseKey: "ignored"},
		[]string{"score", domain.PhaseKey},
	))

	require.Len(t, session.submitted, 1)
	assert.Equal(t, map[string]string{domain.PhaseKey: "play", "word": "neon"}, session.submitted[0].Adds)
	assert.Equal(t, []string{"score"}, session.submitted[0].Removes)
	assert.Equal(t, domain.InitialPhase, m.Current())
}

type failingSession struct {
	*fakeSession
	err error
}

func (s failingSession) Submit(map[string]string, []string) error {
	return s.err
}

// flakySession fails submissions while err is set
type flakySession struct {
	*fakeSession
	err error
}

func (s *flakySession) Submit(adds map[string]string, removes []string) error {
	if s.err != nil {
		return s.err
	}
	return s.fakeSession.Submit(adds, removes)
}

func TestMachine_AdvancePhaseSubmitError(t *testing.T) {
	boom := errors.New("connection lost")
	m := NewMachine(failingSession{fakeSession: newFakeSession(nil), err: boom})

	assert.ErrorIs(t, m.AdvancePhase("play", nil, nil), boom)
}

type countingObserver struct {
	accepted []domain.Phase
	dropped  []domain.Phase
}

func (o *countingObserver) TransitionAccepted(_, to domain.Phase, _ bool) {
	o.accepted = append(o.accepted, to)
}

func (o *countingObserver) NotificationDropped(_, claimed domain.Phase) {
	o.dropped = append(o.dropped, claimed)
}

func TestMachine_Observer(t *testing.T) {
	obs := &countingObserver{}
	m, _ := newPartyMachine(t, newFakeSession(nil), WithObserver(obs))

	require.NoError(t, m.HandleChange(phaseChange("lobby")))
	require.NoError(t, m.HandleChange(phaseChange("lobby")))
	require.NoError(t, m.HandleChange(phaseChange("play")))

	assert.Equal(t, []domain.Phase{"lobby", "play"}, obs.accepted)
	assert.Equal(t, []domain.Phase{"lobby"}, obs.dropped)
}

func TestMachine_HandlerMayAdvance(t *testing.T) {
	session := newFakeSession(nil)
	m := NewMachine(session, WithLogger(discardLogger()))
	session.OnStateChange(m.HandleChange)
	m.AddTransition("lobby", "play")
	m.Handle("lobby", func(domain.SharedState, bool) error {
		return m.AdvancePhase("play", nil, nil)
	})
	m.Handle("play", func(domain.SharedState, bool) error { return nil })

	require.NoError(t, m.HandleChange(phaseChange("lobby")))
	require.NoError(t, session.flush())

	assert.Equal(t, domain.Phase("play"), m.Current())
}
