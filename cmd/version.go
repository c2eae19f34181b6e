package cmd

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/bmartynov/nats-codec/internal/meta"
)

var versionJSON bool

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of natscodec",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := meta.GetInfo()

		if !versionJSON {
			fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return nil
		}

		out, err := sonic.Marshal(info)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	VersionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print the build information as JSON")
}
