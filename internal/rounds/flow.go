// Package rounds is a party-round flow built on the phase machine: players
// gather in the lobby, play a number of timed rounds around a shared word and
// see the score between rounds. One participant, the host, drives the timers;
// everyone else follows the shared phase.
package rounds

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"phasesync/internal/domain"
	"phasesync/internal/phase"
)

// Phases of a game
const (
	PhaseLobby domain.Phase = "lobby"
	PhasePlay  domain.Phase = "play"
	PhaseScore domain.Phase = "score"
)

// Phases lists every phase of the flow
var Phases = []domain.Phase{PhaseLobby, PhasePlay, PhaseScore}

// Shared state fields written alongside the phase
const (
	FieldWord  = "word"
	FieldRound = "round"
)

// Settings controls round pacing
type Settings struct {
	Host          bool
	Rounds        int
	LobbyDuration time.Duration
	PlayDuration  time.Duration
	ScoreDuration time.Duration
}

// DefaultSettings returns the default settings for a participant
func DefaultSettings() Settings {
	return Settings{
		Rounds:        3,
		LobbyDuration: 10 * time.Second,
		PlayDuration:  30 * time.Second,
		ScoreDuration: 8 * time.Second,
	}
}

// Entry describes one phase a participant entered
type Entry struct {
	Phase domain.Phase
	Round int
	Word  string
	First bool
}

// Scheduler runs f after d and returns a func that cancels it
type Scheduler func(d time.Duration, f func()) (stop func())

func afterFunc(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// Option configures a Flow
type Option func(*Flow)

// WithLogger sets the flow's logger
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) {
		f.logger = logger
	}
}

// WithScheduler replaces the timer used by the host
func WithScheduler(schedule Scheduler) Option {
	return func(f *Flow) {
		f.schedule = schedule
	}
}

// WithWords replaces the words dealt for rounds
func WithWords(words []string) Option {
	return func(f *Flow) {
		f.words = newDeck(words, nil)
	}
}

// WithNotify registers fn to be called each time a phase is entered
func WithNotify(fn func(Entry)) Option {
	return func(f *Flow) {
		f.notify = fn
	}
}

// Flow runs the lobby -> play -> score cycle for one participant
type Flow struct {
	settings Settings
	logger   *slog.Logger
	schedule Scheduler
	notify   func(Entry)

	mu      sync.Mutex
	machine *phase.Machine
	stop    func()
	words   *deck
	closed  bool
}

// NewFlow creates a flow
func NewFlow(settings Settings, opts ...Option) *Flow {
	if settings.Rounds < 1 {
		settings.Rounds = 1
	}

	f := &Flow{
		settings: settings,
		logger:   slog.Default(),
		schedule: afterFunc,
		notify:   func(Entry) {},
		words:    newDeck(DefaultWords, nil),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Register adds the flow's transitions and handlers to m
func (f *Flow) Register(m *phase.Machine) {
	f.mu.Lock()
	f.machine = m
	f.mu.Unlock()

	m.AddTransition(PhaseLobby, PhasePlay)
	m.AddTransition(PhasePlay, PhaseScore)
	m.AddTransition(PhaseScore, PhasePlay)
	m.AddTransition(PhaseScore, PhaseLobby)

	m.Handle(PhaseLobby, f.enterLobby)
	m.Handle(PhasePlay, f.enterPlay)
	m.Handle(PhaseScore, f.enterScore)
}

// Setup registers the flow and starts it in the lobby. It is a phase.SetupFunc.
func (f *Flow) Setup(m *phase.Machine) error {
	f.Register(m)
	return m.Begin(PhaseLobby)
}

// Close cancels any pending host timer
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	if f.stop != nil {
		f.stop()
		f.stop = nil
	}
}

func (f *Flow) enterLobby(state domain.SharedState, first bool) error {
	f.entered(PhaseLobby, state, first)

	f.after(f.settings.LobbyDuration, func(m *phase.Machine) error {
		return m.AdvancePhase(PhasePlay, map[string]string{
			FieldRound: "1",
			FieldWord:  f.nextWord(),
		}, nil)
	})
	return nil
}

func (f *Flow) enterPlay(state domain.SharedState, first bool) error {
	f.entered(PhasePlay, state, first)

	f.after(f.settings.PlayDuration, func(m *phase.Machine) error {
		return m.AdvancePhase(PhaseScore, nil, nil)
	})
	return nil
}

func (f *Flow) enterScore(state domain.SharedState, first bool) error {
	f.entered(PhaseScore, state, first)

	round := roundOf(state)
	if round >= f.settings.Rounds {
		f.after(f.settings.ScoreDuration, func(m *phase.Machine) error {
			f.mu.Lock()
			f.words.reset()
			f.mu.Unlock()
			return m.AdvancePhase(PhaseLobby, nil, []string{FieldRound, FieldWord})
		})
		return nil
	}

	f.after(f.settings.ScoreDuration, func(m *phase.Machine) error {
		return m.AdvancePhase(PhasePlay, map[string]string{
			FieldRound: strconv.Itoa(round + 1),
			FieldWord:  f.nextWord(),
		}, nil)
	})
	return nil
}

func (f *Flow) entered(p domain.Phase, state domain.SharedState, first bool) {
	entry := Entry{
		Phase: p,
		Round: roundOf(state),
		Word:  state.Fields[FieldWord],
		First: first,
	}

	f.logger.Info("entered phase",
		"phase", p,
		"round", entry.Round,
		"word", entry.Word,
		"first", first,
		"host", f.settings.Host,
	)
	f.notify(entry)
}

// after schedules the host's next phase request, replacing any pending one.
// Non-host participants never write phases.
func (f *Flow) after(d time.Duration, advance func(m *phase.Machine) error) {
	if !f.settings.Host {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || f.machine == nil {
		return
	}
	if f.stop != nil {
		f.stop()
	}

	m := f.machine
	f.stop = f.schedule(d, func() {
		if err := advance(m); err != nil {
			f.logger.Warn("failed to advance phase", "from", m.Current(), "error", err)
		}
	})
}

// nextWord deals a round word, without repeats until the deck runs out
func (f *Flow) nextWord() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.words.draw()
}

func roundOf(state domain.SharedState) int {
	value, ok := state.Get(FieldRound)
	if !ok {
		return 0
	}
	round, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return round
}
