package commands

import (
	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "earshot",
	Short: "Speaker identification for voice recordings",
	Long: `earshot diarizes voice recordings, matches each speaker against an
enrolled voice database, and asks a human over chat about the voices it
cannot place. Confirmed answers enroll the voice so the next recording
is identified automatically.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "",
		"config file (default ~/.earshot/config.yaml)")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(peopleCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
