package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/berth/internal/adapters/in/cli/ui/components"
)

// newReconcileCmd creates the reconcile command.
func newReconcileCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile the registry with the runtime now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}
			report, err := client.Reconcile(cmd.Context())
			if err != nil {
				return fmt.Errorf("reconcile failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if err := cliWriteLine(out, cliRenderTitle("Reconciliation")); err != nil {
				return err
			}
			table := components.NewTable(components.Columns("OBSERVED", "CORRECTED", "ADOPTED", "PENDING", "ERRORS")).
				AddRow(
					fmt.Sprint(report.Observed),
					fmt.Sprint(report.Corrected),
					fmt.Sprint(report.Adopted),
					fmt.Sprint(report.Pending),
					fmt.Sprint(report.Errors),
				)
			if err := cliWriteLine(out, table.Render()); err != nil {
				return err
			}
			if report.Errors > 0 {
				return cliWriteLine(out, cliRenderWarning("Some containers could not be reconciled; see 'berth events'"))
			}
			return nil
		},
	}
}

// newStatusCmd creates the status command.
func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the server and its container runtime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := cliWriteLine(out, cliRenderMeta("Server:", client.BaseURL())); err != nil {
				return err
			}
			health, err := client.Health(cmd.Context())
			if health == nil {
				return fmt.Errorf("server unreachable: %w", err)
			}
			if err != nil {
				if werr := cliWriteLine(out, cliRenderError("Runtime "+health.Runtime+": "+health.Error)); werr != nil {
					return werr
				}
				return fmt.Errorf("runtime unavailable")
			}
			return cliWriteLine(out, cliRenderSuccess("Runtime "+health.Runtime))
		},
	}
}

// newVersionCmd creates the version command.
func newVersionCmd(flags *globalFlags) *cobra.Command {
	var clientOnly bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if err := cliWritef(out, "Client: berth %s (commit %s, built %s)\n", Version, Commit, BuildDate); err != nil {
				return err
			}
			if clientOnly {
				return nil
			}

			client, err := flags.client()
			if err != nil {
				return err
			}
			v, err := client.Version(cmd.Context())
			if err != nil {
				return cliWriteLine(out, cliRenderMuted("Server: unreachable ("+err.Error()+")"))
			}
			return cliWritef(out, "Server: berth %s (commit %s)\n", v.Version, v.Commit)
		},
	}

	cmd.Flags().BoolVar(&clientOnly, "client", false, "Only print the client version")

	return cmd
}
