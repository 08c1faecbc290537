package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bnema/berth/internal/adapters/dto"
	"github.com/bnema/berth/internal/adapters/in/cli/remote"
	"github.com/bnema/berth/internal/adapters/in/cli/ui/components"
)

// newPsCmd creates the ps command.
func newPsCmd(flags *globalFlags) *cobra.Command {
	var (
		opts   remote.ListOptions
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:     "ps",
		Aliases: []string{"ls", "list"},
		Short:   "List managed containers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}
			containers, err := client.ListContainers(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("failed to list containers: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(cmd, containers)
			}
			if len(containers) == 0 {
				return cliWriteLine(out, cliRenderMuted("No containers"))
			}
			return cliWriteLine(out, components.ContainerTable(containerRows(containers)))
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Statuses, "status", "s", nil, "Filter by status (repeatable or comma-separated)")
	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "Filter by name prefix")
	cmd.Flags().BoolVarP(&opts.All, "all", "a", false, "Include removed containers")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

// newInspectCmd creates the inspect command.
func newInspectCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <id>",
		Short: "Show one container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}
			ctr, err := client.GetContainer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, ctr)
			}
			return writeContainerDetail(cmd.OutOrStdout(), *ctr)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

// newCreateCmd creates the create command.
func newCreateCmd(flags *globalFlags) *cobra.Command {
	var (
		ports  []string
		labels []string
		start  bool
	)

	cmd := &cobra.Command{
		Use:   "create <name> <image>",
		Short: "Register a new container",
		Long: `Register a new container in the created state.

Ports use host:container notation, e.g. -p 8080:80. Use --start to start
the container right after it is created.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dto.CreateContainerRequest{Name: args[0], Image: args[1], Ports: ports}
			if len(labels) > 0 {
				req.Labels = make(map[string]string, len(labels))
				for _, l := range labels {
					k, v, ok := strings.Cut(l, "=")
					if !ok || k == "" {
						return fmt.Errorf("invalid label %q: expected key=value", l)
					}
					req.Labels[k] = v
				}
			}

			client, err := flags.client()
			if err != nil {
				return err
			}
			ctr, err := client.CreateContainer(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("failed to create container: %w", err)
			}

			out := cmd.OutOrStdout()
			if err := cliWriteLine(out, cliRenderSuccess(fmt.Sprintf("Created %s (%s)", ctr.Name, ctr.ID))); err != nil {
				return err
			}
			if !start {
				return nil
			}
			ctr, err = client.Start(cmd.Context(), ctr.ID)
			if err != nil {
				return fmt.Errorf("created but failed to start: %w", err)
			}
			return cliWriteLine(out, cliRenderSuccess("Started "+ctr.Name))
		},
	}

	cmd.Flags().StringArrayVarP(&ports, "port", "p", nil, "Publish a port (host:container)")
	cmd.Flags().StringArrayVarP(&labels, "label", "l", nil, "Set a label (key=value)")
	cmd.Flags().BoolVar(&start, "start", false, "Start the container after creating it")

	return cmd
}

var intentPast = map[string]string{
	"start":  "Started",
	"stop":   "Stopped",
	"pause":  "Paused",
	"resume": "Resumed",
}

// newIntentCmd creates start, stop, pause and resume. Each accepts several IDs
// and keeps going after a failure.
func newIntentCmd(flags *globalFlags, action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <id>...",
		Short: strings.ToUpper(action[:1]) + action[1:] + " one or more containers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}

			var failed int
			out := cmd.OutOrStdout()
			for _, id := range args {
				var ctr *dto.Container
				switch action {
				case "start":
					ctr, err = client.Start(cmd.Context(), id)
				case "stop":
					ctr, err = client.Stop(cmd.Context(), id)
				case "pause":
					ctr, err = client.Pause(cmd.Context(), id)
				case "resume":
					ctr, err = client.Resume(cmd.Context(), id)
				}
				if err != nil {
					failed++
					if werr := cliWriteLine(cmd.ErrOrStderr(), cliRenderError(fmt.Sprintf("%s: %v", id, err))); werr != nil {
						return werr
					}
					continue
				}
				if err := cliWriteLine(out, cliRenderSuccess(fmt.Sprintf("%s %s", intentPast[action], ctr.Name))); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%s failed for %d of %d containers", action, failed, len(args))
			}
			return nil
		},
	}
}

// newRmCmd creates the rm command.
func newRmCmd(flags *globalFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rm <id>...",
		Short: "Remove one or more containers",
		Long: `Remove containers. Running or paused containers need --force,
which stops them first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}

			var failed int
			for _, id := range args {
				ctr, err := client.Remove(cmd.Context(), id, force)
				if err != nil {
					failed++
					if werr := cliWriteLine(cmd.ErrOrStderr(), cliRenderError(fmt.Sprintf("%s: %v", id, err))); werr != nil {
						return werr
					}
					continue
				}
				if err := cliWriteLine(cmd.OutOrStdout(), cliRenderSuccess("Removed "+ctr.Name)); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("rm failed for %d of %d containers", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Stop running or paused containers before removing")

	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
