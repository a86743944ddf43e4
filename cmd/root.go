package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "chatvault",
	Short: "chatvault: WhatsApp conversation archiver bot",
	Long: "chatvault attaches to one WhatsApp account, archives every received\n" +
		"conversation (text and media) per contact, and keeps a per-contact\n" +
		"session alive while messages keep arriving.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
}
