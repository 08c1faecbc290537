package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/berth/internal/adapters/dto"
)

// newEventsCmd creates the events command.
func newEventsCmd(flags *globalFlags) *cobra.Command {
	var (
		container string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow container status changes",
		Long: `Follow the server's event stream. Every status change is printed
with its cause (intent, drift-corrected, adopted, reconcile-error or
purged). Press Ctrl-C to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			err = client.StreamEvents(cmd.Context(), container, func(ev dto.Event) error {
				if asJSON {
					return enc.Encode(ev)
				}
				return cliWriteLine(out, formatEvent(ev))
			})
			if err != nil && !errors.Is(err, cmd.Context().Err()) {
				return fmt.Errorf("event stream failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&container, "container", "", "Only show events for this container ID")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per event")

	return cmd
}
