package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/roommesh/internal/config"
	"github.com/BioHazard786/roommesh/internal/mesh"
	"github.com/BioHazard786/roommesh/internal/signaling"
	"github.com/BioHazard786/roommesh/internal/ui"
	"github.com/BioHazard786/roommesh/internal/webrtc"
)

const (
	chatAction  = "chat"
	joinTimeout = 30 * time.Second
)

// chatMessage is the payload of the chat action.
type chatMessage struct {
	Name string `msgpack:"name"`
	Text string `msgpack:"text"`
}

var joinCmd = &cobra.Command{
	Use:     "join [room-code]",
	Aliases: []string{"j"},
	Short:   "Join a room and chat with its members",
	Long: `Join a room and open a direct connection to every member.

Without a room code a fresh one is reserved on the relay first.

Examples:
  roommesh join amber-fox-lake
  roommesh join --name alice ABCD
  roommesh join --relay --turn turn.example.com ABCD`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		code := ""
		if len(args) == 1 {
			code = args[0]
		} else {
			code, err = newRelayClient(cfg).allocateRoom(context.Background())
			if err != nil {
				return err
			}
			fmt.Println(ui.RoomBanner(code))
		}
		return joinRoom(cfg, code)
	},
}

func newCoordinator(cfg *config.Config, logger *slog.Logger) (*mesh.Coordinator, error) {
	return mesh.New(mesh.Options{
		Name:               cfg.DisplayName,
		Control:            &signaling.Dialer{URL: cfg.WebSocketURL, Logger: logger},
		Peers:              webrtc.NewConnector(webrtc.OptionsFromConfig(cfg, logger)),
		NegotiationTimeout: cfg.NegotiationTimeout,
		ReconnectAttempts:  reconnectAttempts(cfg.ReconnectAttempts),
		Logger:             logger,
	})
}

// reconnectAttempts maps the config value, where zero disables redialing,
// onto mesh options, where zero means the default.
func reconnectAttempts(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

func joinRoom(cfg *config.Config, code string) error {
	logger := slog.Default()
	coord, err := newCoordinator(cfg, logger)
	if err != nil {
		return err
	}
	defer coord.Close()

	var send mesh.Sender
	chat := ui.NewChat(func(text string) error {
		return send(chatMessage{Name: cfg.DisplayName, Text: text})
	})
	program := tea.NewProgram(chat, tea.WithAltScreen())

	send = coord.Register(chatAction, func(msg mesh.Message) {
		var m chatMessage
		if err := msg.Decode(&m); err != nil {
			logger.Debug("dropping chat message", "from", msg.From, "error", err)
			return
		}
		from := m.Name
		if from == "" {
			from = senderName(coord.Snapshot(), msg.From)
		}
		program.Send(ui.ChatLine{From: from, Text: m.Text, Direct: msg.Via == mesh.Direct})
	})

	stop := ui.RunConnectionSpinner("Joining room " + code + "...")
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	err = coord.Join(ctx, code)
	cancel()
	stop()
	if err != nil {
		program.Kill()
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		program.Send(ui.SnapshotMsg(coord.Snapshot()))
		for {
			select {
			case snap := <-coord.Updates():
				program.Send(ui.SnapshotMsg(snap))
			case <-done:
				return
			}
		}
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	if err := coord.Leave(); err != nil {
		return err
	}
	ui.PrintSuccessf("Left room %s", code)
	return nil
}

func senderName(snap mesh.Snapshot, peerID string) string {
	if p, ok := snap.Peers[peerID]; ok && p.Name != "" {
		return p.Name
	}
	if len(peerID) > 8 {
		return peerID[:8]
	}
	return peerID
}
