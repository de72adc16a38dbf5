package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/roommesh/internal/ui"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the rooms open on the relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		stop := ui.RunConnectionSpinner("Fetching rooms...")
		rooms, err := newRelayClient(cfg).listRooms(context.Background())
		stop()
		if err != nil {
			return err
		}

		if len(rooms) == 0 {
			ui.PrintInfo("No open rooms")
			return nil
		}
		fmt.Println(ui.RoomsTableView(rooms))
		return nil
	},
}
