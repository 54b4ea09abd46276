package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/roomloop/roomloop/internal/client"
	"github.com/roomloop/roomloop/internal/config"
	"github.com/roomloop/roomloop/internal/media"
	"github.com/roomloop/roomloop/internal/protocol"
)

var (
	flagJoinServer string
	flagJoinName   string
)

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join a room as a headless participant",
	Long: `Join connects to a relay as a call participant with synthetic media:
it negotiates with every other participant, prints roster and chat
activity, and relays lines typed on stdin as chat messages. Useful for
smoke-testing a deployment and for keeping a room warm.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return join(args[0])
	},
}

func init() {
	joinCmd.Flags().StringVar(&flagJoinServer, "server", "ws://127.0.0.1:8080", "relay base URL")
	joinCmd.Flags().StringVar(&flagJoinName, "name", "roomloop-cli", "display name")
	rootCmd.AddCommand(joinCmd)
}

func join(roomID string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.SetupLogger()

	ended := make(chan error, 1)
	call, err := client.NewCall(client.CallOptions{
		ServerURL:      flagJoinServer,
		ConnectTimeout: cfg.ConnectTimeout,
		ReconnectDelay: cfg.ReconnectDelay,
		ICEServers:     []webrtc.ICEServer{{URLs: cfg.STUNServers}},
		Capturer:       media.NewSynthetic(),
		OnRemoteTrack: func(remoteID string, track *webrtc.TrackRemote) {
			slog.Info("remote media", "participant_id", remoteID, "kind", track.Kind().String())
		},
		OnRosterChange: func(users []protocol.User) {
			names := make([]string, 0, len(users))
			for _, u := range users {
				names = append(names, u.Name)
			}
			fmt.Printf("participants: [%s]\n", strings.Join(names, ", "))
		},
		OnChat: func(from protocol.User, text string) {
			fmt.Printf("%s: %s\n", from.Name, text)
		},
		OnEnded: func(err error) { ended <- err },
	})
	if err != nil {
		return err
	}

	if err := call.Join(roomID, flagJoinName); err != nil {
		return err
	}
	fmt.Printf("joined %s as %s (%s)\n", roomID, flagJoinName, call.SelfID())

	// stdin lines become chat messages.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				call.SendChat(line)
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-ended:
		call.Leave()
		return err
	case <-stop:
		call.Leave()
		fmt.Println("left the room")
		return nil
	}
}
