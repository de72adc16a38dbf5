package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/roommesh/internal/ui"
)

var codeCmd = &cobra.Command{
	Use:   "code",
	Short: "Reserve a fresh, human-readable room code",
	Long: `Ask the relay for a room code that is not in use. The room itself is
created by the first member that joins it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		code, err := newRelayClient(cfg).allocateRoom(context.Background())
		if err != nil {
			return err
		}
		fmt.Println(ui.RoomBanner(code))
		return nil
	},
}
