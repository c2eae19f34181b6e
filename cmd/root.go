package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bmartynov/nats-codec/cmd/gen"
	"github.com/bmartynov/nats-codec/internal/meta"
)

// configPath is the optional yaml config file
var configPath string

var RootCmd = &cobra.Command{
	Use:   meta.Name,
	Short: "A server, client and debugging tool for the NATS client protocol",
	Long: `natscodec speaks the text based NATS client protocol.

It can run a small publish/subscribe server and decode captured protocol
streams for debugging.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a yaml config file")

	RootCmd.AddCommand(StartCmd)
	RootCmd.AddCommand(DumpCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

// Execute runs the root command.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
