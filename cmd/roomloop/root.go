package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "roomloop",
	Short: "WebRTC video-call signaling relay and headless call client",
	Long: `roomloop runs the signaling side of a multi-party WebRTC video call:
a relay server that hosts rooms and forwards offers, answers and ICE
candidates between participants, and a headless client that can join a
room from the terminal.

Configuration comes from ROOMLOOP_* environment variables; flags override
the environment where both are set.`,
}
