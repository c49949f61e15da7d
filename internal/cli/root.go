// Package cli implements mobiperfctl, an operator tool that runs ACL-scoped
// queries, freshness checks and task matching directly against the database.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

func Run() ExitCode {
	if err := NewRootCmd().Execute(); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

// NewRootCmd returns the mobiperfctl command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "mobiperfctl",
		Short:        "Query mobiperf devices, measurements and tasks.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "set debug logging level")
	flags.String("token", "", "access token naming the principal (overrides --user/--admin)")
	flags.String("user", "", "user id to query as")
	flags.Bool("admin", false, "query as an administrator")
	flags.Bool("anonymous-admin", false, "query with visibility over unclaimed devices")
	flags.StringSlice("policy", nil, "extra Rego modules (package mobiperf.device_access) to load")

	rootCmd.AddCommand(
		newDevicesCmd(),
		newMeasurementsCmd(),
		newAvailabilityCmd(),
		newMatchCmd(),
		newValidationCmd(),
		newCompleteCmd(),
		newHealthCmd(),
	)
	return rootCmd
}
