package gen

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/bmartynov/nats-codec/internal/meta"
)

// manDir is where the pages are written
var manDir string

var ManPagesCmd = &cobra.Command{
	Use:   "man",
	Short: "Write a man page for every natscodec command",
	Long: `Write a man page for every natscodec command

One page is written per command, named after its path with dashes, for
example natscodec-dump.1. The directory is created when missing.

Usage
	natscodec gen man --dir /usr/local/share/man/man1
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(manDir, 0750); err != nil {
			return fmt.Errorf("Failed to create %s: %w", manDir, err)
		}

		root := cmd.Root()
		root.DisableAutoGenTag = true

		err := doc.GenManTreeFromOpts(root, doc.GenManTreeOptions{
			Path:             manDir,
			CommandSeparator: "-",
			Header: &doc.GenManHeader{
				Section: "1",
				Manual:  meta.Name + " Manual",
				Source:  meta.Name + " " + meta.Version,
			},
		})
		if err != nil {
			return fmt.Errorf("Failed to write man pages: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Wrote man pages to", manDir)

		return nil
	},
}

func init() {
	flags := ManPagesCmd.Flags()

	flags.StringVar(&manDir, "dir", "man", "The directory to write the man pages to")

	// Complete the flag with directories only
	if err := flags.SetAnnotation("dir", cobra.BashCompSubdirsInDir, []string{}); err != nil {
		panic(err)
	}
}
