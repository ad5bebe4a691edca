package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "participant",
	Short:        "Join a phasesync room and play party rounds",
	SilenceUsage: true,
	Long: `participant connects to a phasesync relay over websocket and runs the
lobby -> play -> score round flow. Every participant follows the shared phase;
the one started with --host also drives the round timers.

Examples:
  participant --create --host          # create a room and host it
  participant --room K7MPQX            # join an existing room
  participant --room K7MPQX --id alice # rejoin as alice after a disconnect`,
	Args: cobra.NoArgs,
	RunE: runParticipant,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
