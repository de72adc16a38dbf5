package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/roommesh/internal/config"
	"github.com/BioHazard786/roommesh/internal/ui"
	"github.com/BioHazard786/roommesh/internal/version"
)

var (
	flagDomain   string
	flagServer   string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagName     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "roommesh",
	Short: "Join a room and talk to every member over direct WebRTC connections",
	Long: `roommesh joins a named room on a relay server and opens a direct WebRTC
data channel to every other member. Messages fall back to the relay while a
direct path is unavailable.`,
	Version: version.Version,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagDomain, "domain", "d", "", "relay domain (env DOMAIN)")
	pf.StringVar(&flagServer, "server", "", "relay websocket URL, overrides --domain (env SERVER_URL)")
	pf.StringVar(&flagSTUN, "stun", "", "STUN server URL (env STUN_SERVER)")
	pf.StringVar(&flagTURN, "turn", "", "TURN server host or URL (env TURN_SERVER)")
	pf.StringVar(&flagTURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	pf.StringVar(&flagTURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")
	pf.BoolVar(&flagRelay, "relay", false, "force TURN relay (env FORCE_RELAY)")
	pf.StringVarP(&flagName, "name", "n", "", "display name shown to other members (env DISPLAY_NAME)")

	rootCmd.AddCommand(joinCmd, roomsCmd, codeCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.Options{
		Domain:      flagDomain,
		ServerURL:   flagServer,
		STUNServer:  flagSTUN,
		TURNServer:  flagTURN,
		TURNUser:    flagTURNUser,
		TURNPass:    flagTURNPass,
		DisplayName: flagName,
		ForceRelay:  flagRelay,
	})
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
