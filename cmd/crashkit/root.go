// root.go builds the crashkit command tree.

package main

import (
	"github.com/spf13/cobra"

	"github.com/strongdm/ai-crashkit/pkg/crashkit/client"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/di"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "crashkit",
		Short:         "Inspect and deliver stored crash reports",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a crashkit YAML config (CRASHKIT_* env vars also apply)")

	cmd.AddCommand(
		newInspectCmd(opts),
		newFlushCmd(opts),
		newWatchCmd(opts),
		newNotifyCmd(opts),
	)
	return cmd
}

// openClient builds a client from the --config flag.
func (o *rootOptions) openClient() (*client.Client, error) {
	return di.InitClient(di.ConfigPath(o.configPath))
}
