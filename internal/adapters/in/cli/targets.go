package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bnema/berth/internal/adapters/in/cli/remote"
	"github.com/bnema/berth/internal/adapters/in/cli/ui/components"
	"github.com/bnema/berth/internal/adapters/in/cli/ui/styles"
)

// newTargetsCmd creates the targets command group.
func newTargetsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Manage saved servers",
		Long: `Manage saved berth servers.

Targets let you switch between berth servers without repeating --server
and --token. Configuration is stored in ~/.config/berth/client.toml`,
	}

	cmd.AddCommand(newTargetsListCmd(flags))
	cmd.AddCommand(newTargetsAddCmd(flags))
	cmd.AddCommand(newTargetsRemoveCmd(flags))
	cmd.AddCommand(newTargetsUseCmd(flags))

	return cmd
}

// newTargetsListCmd creates the targets list command.
func newTargetsListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved targets",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := remote.LoadClientConfig(flags.clientConfig)
			if err != nil {
				return fmt.Errorf("failed to list targets: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(config.Targets) == 0 {
				return cliWriteLine(out, cliRenderMuted("No targets configured. Add one with: berth targets add <name> <url>"))
			}

			names := make([]string, 0, len(config.Targets))
			for name := range config.Targets {
				names = append(names, name)
			}
			slices.Sort(names)

			table := components.NewTable([]components.Column{
				{Title: "NAME", Width: 15},
				{Title: "URL", Width: 35, Middle: true},
				{Title: "TOKEN", Width: 15},
				{Title: "STATUS", Width: 10},
			})
			for _, name := range names {
				target := config.Targets[name]
				status := ""
				if name == config.Active {
					status = styles.Theme.Success.Render("active")
				}

				tokenStatus := styles.Theme.Muted.Render("none")
				if target.Token != "" {
					tokenStatus = styles.Theme.Success.Render("set")
				} else if target.TokenEnv != "" {
					tokenStatus = "$" + target.TokenEnv
				}

				table.AddRow(name, target.URL, tokenStatus, status)
			}
			return cliWriteLine(out, table.Render())
		},
	}
}

// newTargetsAddCmd creates the targets add command.
func newTargetsAddCmd(flags *globalFlags) *cobra.Command {
	var (
		token    string
		tokenEnv string
		use      bool
	)

	cmd := &cobra.Command{
		Use:   "add <name> <url>",
		Short: "Add a new target",
		Long: `Add a new saved target.

Examples:
  berth targets add lab http://10.0.0.5:7420
  berth targets add prod https://berth.example.com --token-env PROD_BERTH_TOKEN --use`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, url := args[0], strings.TrimSuffix(args[1], "/")

			entry := remote.TargetEntry{URL: url, Token: token, TokenEnv: tokenEnv}
			if tokenEnv != "" {
				entry.Token = ""
			}
			if err := remote.AddTarget(flags.clientConfig, name, entry); err != nil {
				return fmt.Errorf("failed to add target: %w", err)
			}
			if use {
				if err := remote.SetActiveTarget(flags.clientConfig, name); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if err := cliWriteLine(out, cliRenderSuccess(fmt.Sprintf("Target added: %s -> %s", name, url))); err != nil {
				return err
			}
			if token == "" && tokenEnv == "" {
				return cliWriteLine(out, cliRenderMuted("Tip: add a token with --token or --token-env if the server requires one"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "API token")
	cmd.Flags().StringVar(&tokenEnv, "token-env", "", "Environment variable holding the token")
	cmd.Flags().BoolVar(&use, "use", false, "Make this the active target")

	return cmd
}

// newTargetsRemoveCmd creates the targets remove command.
func newTargetsRemoveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a target",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := remote.RemoveTarget(flags.clientConfig, args[0]); err != nil {
				return fmt.Errorf("failed to remove target: %w", err)
			}
			return cliWriteLine(cmd.OutOrStdout(), cliRenderSuccess("Target removed: "+args[0]))
		},
	}
}

// newTargetsUseCmd creates the targets use command.
func newTargetsUseCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Set the active target",
		Long: `Set a target as the active default. --server, BERTH_SERVER and
BERTH_TOKEN still take precedence over it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := remote.SetActiveTarget(flags.clientConfig, args[0]); err != nil {
				return err
			}
			return cliWriteLine(cmd.OutOrStdout(), cliRenderSuccess("Active target: "+args[0]))
		},
	}
}
