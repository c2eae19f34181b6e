package gen

import (
	"github.com/spf13/cobra"
)

// RootCmd groups the documentation generators of natscodec.
var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate documentation for natscodec",
	Long: `Generate documentation for natscodec

Usage
	natscodec gen man --dir man/
`,
	Args: cobra.NoArgs,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
}
