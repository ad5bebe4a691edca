package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"phasesync/internal/metrics"
	"phasesync/internal/phase"
	"phasesync/internal/rounds"
	httpTransport "phasesync/internal/transport/http"
	"phasesync/internal/transport/ws"
)

var (
	serverURL     string
	roomCode      string
	createRoom    bool
	participantID string
	host          bool
	roundCount    int
	lobbyDuration time.Duration
	playDuration  time.Duration
	scoreDuration time.Duration
	logLevel      string
	metricsAddr   string
)

func init() {
	defaults := rounds.DefaultSettings()

	flags := rootCmd.Flags()
	flags.StringVarP(&serverURL, "server", "s", "http://localhost:8080", "Relay base URL")
	flags.StringVarP(&roomCode, "room", "r", "", "Room code to join")
	flags.BoolVarP(&createRoom, "create", "c", false, "Create a new room before joining")
	flags.StringVar(&participantID, "id", "", "Participant ID (reuse it to reconnect)")
	flags.BoolVar(&host, "host", false, "Drive the round timers for the room")
	flags.IntVar(&roundCount, "rounds", defaults.Rounds, "Rounds per game")
	flags.DurationVar(&lobbyDuration, "lobby", defaults.LobbyDuration, "Time spent in the lobby")
	flags.DurationVar(&playDuration, "play", defaults.PlayDuration, "Length of a round")
	flags.DurationVar(&scoreDuration, "score", defaults.ScoreDuration, "Time spent on the score screen")
	flags.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Serve phase metrics on this address")
}

func runParticipant(cmd *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(logLevel),
	}))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if createRoom {
		code, err := requestRoom(ctx, serverURL)
		if err != nil {
			return err
		}
		roomCode = code
		fmt.Fprintf(cmd.OutOrStdout(), "created room %s\n", roomCode)
	}
	if roomCode == "" {
		return errors.New("a room code is required: pass --room or --create")
	}

	if metricsAddr != "" {
		if err := serveMetrics(metricsAddr, logger); err != nil {
			return err
		}
	}

	session, err := ws.Dial(ctx, serverURL, strings.ToUpper(roomCode), participantID, logger)
	if err != nil {
		return err
	}

	flow := rounds.NewFlow(rounds.Settings{
		Host:          host,
		Rounds:        roundCount,
		LobbyDuration: lobbyDuration,
		PlayDuration:  playDuration,
		ScoreDuration: scoreDuration,
	},
		rounds.WithLogger(logger),
		rounds.WithNotify(func(e rounds.Entry) {
			printEntry(cmd, e)
		}),
	)
	defer flow.Close()

	phase.Bind(session, flow.Setup,
		phase.WithLogger(logger),
		phase.WithObserver(metrics.NewPhaseObserver(rounds.Phases...)),
	)

	if err := session.Run(ctx); err != nil {
		return errors.Wrap(err, "session ended")
	}
	return nil
}

func printEntry(cmd *cobra.Command, e rounds.Entry) {
	out := cmd.OutOrStdout()
	switch e.Phase {
	case rounds.PhaseLobby:
		fmt.Fprintln(out, "== lobby: waiting for the next game")
	case rounds.PhasePlay:
		fmt.Fprintf(out, "== round %d: the word is %q\n", e.Round, e.Word)
	case rounds.PhaseScore:
		fmt.Fprintf(out, "== round %d over\n", e.Round)
	}
}

// requestRoom asks the relay for a new room and returns its code
func requestRoom(ctx context.Context, server string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+"/api/rooms", nil)
	if err != nil {
		return "", errors.Wrap(err, "build request")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "create room")
	}
	defer resp.Body.Close()

	created := &httpTransport.CreateRoomResponse{}
	body := &httpTransport.Response{Data: created}
	if err := json.NewDecoder(resp.Body).Decode(body); err != nil {
		return "", errors.Wrap(err, "decode create room response")
	}
	if !body.Success {
		if body.Error != nil {
			return "", errors.Errorf("create room: %s", body.Error.Message)
		}
		return "", errors.Errorf("create room: status %d", resp.StatusCode)
	}
	return created.RoomCode, nil
}

func serveMetrics(addr string, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return errors.Wrap(err, "register metrics")
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
