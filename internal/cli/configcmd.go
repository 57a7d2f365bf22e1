package cli

import (
	"github.com/spf13/cobra"
)

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "config",
		Short:         "Print the effective configuration with the password masked",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := rootOpts.Config.Marshal()
			if err != nil {
				return fail(rootOpts.formatter(cmd), err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
